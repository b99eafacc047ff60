package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/hearth-core/internal/automation"
	"github.com/nerrad567/hearth-core/internal/device"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// Publisher is the slice of the MQTT client the driver needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging interface the driver needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTDriver delivers rule actions to devices over MQTT.
//
// Each action becomes a command message on the device's command topic;
// the device (or its bridge) applies the command and reports its
// confirmed state back on its state topic. Commands are fire-and-forget
// at QoS 1: publishing succeeds when the broker accepts the message,
// not when the device acts on it.
type MQTTDriver struct {
	publisher Publisher
	topics    mqtt.Topics
	qos       byte
	logger    Logger
}

// NewMQTTDriver creates an MQTT-backed device driver.
func NewMQTTDriver(publisher Publisher, qos byte) *MQTTDriver {
	return &MQTTDriver{
		publisher: publisher,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used by the driver.
func (d *MQTTDriver) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// commandPayload is the wire form of a device command.
type commandPayload struct {
	Command     string   `json:"command"`
	RuleDriven  bool     `json:"rule_driven"`
	Brightness  *int     `json:"brightness,omitempty"`
	Color       string   `json:"color,omitempty"` //nolint:misspell // wire format uses American "color"
	Temperature *float64 `json:"temperature,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// ControlDevice publishes the command for an action to the device's
// command topic. Implements automation.DeviceDriver.
func (d *MQTTDriver) ControlDevice(ctx context.Context, dev *device.Device, action automation.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := commandPayload{
		Command:    string(action.Type()),
		RuleDriven: true,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	switch v := action.(type) {
	case automation.TurnOnAction:
		if v.Brightness != nil {
			b := *v.Brightness
			payload.Brightness = &b
		}
	case automation.SetBrightnessAction:
		b := v.Brightness
		payload.Brightness = &b
	case automation.SetColorAction:
		payload.Color = v.Color
	case automation.SetTemperatureAction:
		t := v.Temperature
		payload.Temperature = &t
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := d.topics.DeviceCommand(string(dev.Type), dev.ID)
	if err := d.publisher.Publish(topic, data, d.qos, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", topic, err)
	}

	d.logger.Debug("device command published",
		"device_id", dev.ID, "command", payload.Command, "topic", topic)
	return nil
}

// notificationPayload is the wire form of a rule notification.
type notificationPayload struct {
	RuleID    string `json:"rule_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Notify publishes a user-facing notification on the rule's notify
// topic. Implements automation.Notifier.
func (d *MQTTDriver) Notify(ctx context.Context, ruleID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(notificationPayload{
		RuleID:    ruleID,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}

	topic := d.topics.Notification(ruleID)
	if err := d.publisher.Publish(topic, data, d.qos, false); err != nil {
		return fmt.Errorf("publishing notification to %s: %w", topic, err)
	}

	d.logger.Info("notification published", "rule_id", ruleID, "message", message)
	return nil
}
