package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/hearth-core/internal/automation"
	"github.com/nerrad567/hearth-core/internal/device"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// Subscriber is the slice of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceSink receives confirmed device state from the listener.
type DeviceSink interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	SetDeviceState(ctx context.Context, id string, state device.State) error
	SetDeviceStatus(ctx context.Context, id string, status device.Status) error
}

// RuleLister supplies the rules that target a device. Satisfied by the
// automation registry.
type RuleLister interface {
	ListTargetingDevice(deviceID string) []*automation.Rule
}

// OverrideRecorder records manual control events. Satisfied by the
// automation override registry.
type OverrideRecorder interface {
	RecordManualControl(ctx context.Context, deviceID, reason string,
		originalState device.State, rules []*automation.Rule) ([]*automation.Override, error)
}

// DeviceMetrics receives numeric device state as telemetry points.
// Satisfied by the InfluxDB client; nil disables telemetry.
type DeviceMetrics interface {
	WriteDeviceMetric(deviceID, measurement string, value float64)
}

// Listener consumes device traffic from MQTT:
//
//   - state topics (hearth/state/{type}/{id}): the device's confirmed
//     state, merged into the registry and marking the device online
//   - command topics (hearth/command/{type}/{id}): commands not flagged
//     rule_driven are manual control, which suppresses the rules
//     targeting the device for the override window
type Listener struct {
	devices   DeviceSink
	rules     RuleLister
	overrides OverrideRecorder
	metrics   DeviceMetrics
	topics    mqtt.Topics
	logger    Logger
}

// NewListener creates an MQTT device listener.
func NewListener(devices DeviceSink, rules RuleLister, overrides OverrideRecorder) *Listener {
	return &Listener{
		devices:   devices,
		rules:     rules,
		overrides: overrides,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used by the listener.
func (l *Listener) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetMetrics enables device telemetry: numeric values in confirmed
// state reports are written as metric points.
func (l *Listener) SetMetrics(metrics DeviceMetrics) {
	l.metrics = metrics
}

// Start subscribes to device state and command topics.
func (l *Listener) Start(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(l.topics.AllDeviceStates(), qos, l.handleState); err != nil {
		return fmt.Errorf("subscribing to device states: %w", err)
	}
	if err := sub.Subscribe(mqtt.TopicPrefix+"/command/+/+", qos, l.handleCommand); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}
	l.logger.Info("device listener started")
	return nil
}

// deviceIDFrom extracts the device ID (final segment) from a state or
// command topic.
func deviceIDFrom(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

// handleState merges a confirmed device state report into the registry.
func (l *Listener) handleState(topic string, payload []byte) error {
	deviceID := deviceIDFrom(topic)
	if deviceID == "" {
		return fmt.Errorf("state topic %q has no device segment", topic)
	}

	var state device.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding state for %s: %w", deviceID, err)
	}

	ctx := context.Background()
	if err := l.devices.SetDeviceState(ctx, deviceID, state); err != nil {
		return fmt.Errorf("storing state for %s: %w", deviceID, err)
	}
	// A device reporting state is alive.
	if err := l.devices.SetDeviceStatus(ctx, deviceID, device.StatusOnline); err != nil {
		l.logger.Warn("marking device online failed", "device_id", deviceID, "error", err)
	}

	if l.metrics != nil {
		// JSON numbers decode as float64; everything else is not telemetry.
		for attr, value := range state {
			if f, ok := value.(float64); ok {
				l.metrics.WriteDeviceMetric(deviceID, attr, f)
			}
		}
	}

	l.logger.Debug("device state received", "device_id", deviceID)
	return nil
}

// commandFlags is the slice of a command payload the listener cares about.
type commandFlags struct {
	Command    string `json:"command"`
	RuleDriven bool   `json:"rule_driven"`
}

// handleCommand watches the command stream for manual control.
// Commands the engine publishes carry rule_driven and are ignored here;
// anything else (wall panel, app, voice assistant) suppresses the rules
// targeting the device.
func (l *Listener) handleCommand(topic string, payload []byte) error {
	deviceID := deviceIDFrom(topic)
	if deviceID == "" {
		return fmt.Errorf("command topic %q has no device segment", topic)
	}

	var flags commandFlags
	if err := json.Unmarshal(payload, &flags); err != nil {
		return fmt.Errorf("decoding command for %s: %w", deviceID, err)
	}
	if flags.RuleDriven {
		return nil
	}

	ctx := context.Background()

	var original device.State
	if dev, err := l.devices.GetDevice(ctx, deviceID); err == nil {
		original = dev.State
	}

	targeting := l.rules.ListTargetingDevice(deviceID)
	if len(targeting) == 0 {
		return nil
	}

	reason := "manual command"
	if flags.Command != "" {
		reason = "manual " + flags.Command
	}

	created, err := l.overrides.RecordManualControl(ctx, deviceID, reason, original, targeting)
	if err != nil {
		return fmt.Errorf("recording manual control of %s: %w", deviceID, err)
	}

	if len(created) > 0 {
		l.logger.Info("manual control detected",
			"device_id", deviceID, "suppressed_rules", len(created))
	}
	return nil
}
