package driver

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/hearth-core/internal/automation"
	"github.com/nerrad567/hearth-core/internal/device"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// mockSubscriber captures handlers so tests can inject messages.
type mockSubscriber struct {
	handlers map[string]mqtt.MessageHandler
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.handlers[topic] = handler
	return nil
}

// mockSink is a test implementation of DeviceSink.
type mockSink struct {
	devices  map[string]*device.Device
	states   map[string]device.State
	statuses map[string]device.Status
}

func newMockSink(devices ...*device.Device) *mockSink {
	m := &mockSink{
		devices:  make(map[string]*device.Device),
		states:   make(map[string]device.State),
		statuses: make(map[string]device.Status),
	}
	for _, d := range devices {
		m.devices[d.ID] = d
	}
	return m
}

func (m *mockSink) GetDevice(_ context.Context, id string) (*device.Device, error) {
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, device.ErrDeviceNotFound
}

func (m *mockSink) SetDeviceState(_ context.Context, id string, state device.State) error {
	m.states[id] = state
	return nil
}

func (m *mockSink) SetDeviceStatus(_ context.Context, id string, status device.Status) error {
	m.statuses[id] = status
	return nil
}

// mockRuleLister is a test implementation of RuleLister.
type mockRuleLister struct {
	rules []*automation.Rule
}

func (m *mockRuleLister) ListTargetingDevice(deviceID string) []*automation.Rule {
	var out []*automation.Rule
	for _, r := range m.rules {
		if r.TargetsDevice(deviceID) {
			out = append(out, r)
		}
	}
	return out
}

// mockRecorder is a test implementation of OverrideRecorder.
type mockRecorder struct {
	calls []string
	state device.State
}

func (m *mockRecorder) RecordManualControl(_ context.Context, deviceID, _ string,
	originalState device.State, rules []*automation.Rule) ([]*automation.Override, error) {
	m.calls = append(m.calls, deviceID)
	m.state = originalState

	expires := time.Now().Add(30 * time.Minute)
	overrides := make([]*automation.Override, 0, len(rules))
	for _, r := range rules {
		overrides = append(overrides, &automation.Override{
			RuleID: r.ID, DeviceID: deviceID, ExpiresAt: &expires,
		})
	}
	return overrides, nil
}

func setupListener(t *testing.T, devices ...*device.Device) (*mockSubscriber, *mockSink, *mockRecorder, *mockRuleLister) {
	t.Helper()

	sub := newMockSubscriber()
	sink := newMockSink(devices...)
	recorder := &mockRecorder{}
	rules := &mockRuleLister{rules: []*automation.Rule{
		{
			ID:             "rule-1",
			Enabled:        true,
			ManualOverride: true,
			Actions:        automation.ActionList{automation.TurnOnAction{DeviceID: "light-living-main"}},
		},
	}}

	listener := NewListener(sink, rules, recorder)
	if err := listener.Start(sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return sub, sink, recorder, rules
}

func TestListener_StateUpdates(t *testing.T) {
	sub, sink, _, _ := setupListener(t, testLight())

	handler := sub.handlers["hearth/state/+/+"]
	if err := handler("hearth/state/light/light-living-main",
		[]byte(`{"on":true,"brightness":80}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	state := sink.states["light-living-main"]
	if state["on"] != true || state["brightness"] != float64(80) {
		t.Errorf("stored state = %v", state)
	}
	if sink.statuses["light-living-main"] != device.StatusOnline {
		t.Error("reporting device not marked online")
	}
}

// mockDeviceMetrics records telemetry points written by the listener.
type mockDeviceMetrics struct {
	points map[string]float64
}

func (m *mockDeviceMetrics) WriteDeviceMetric(deviceID, measurement string, value float64) {
	if m.points == nil {
		m.points = make(map[string]float64)
	}
	m.points[deviceID+"/"+measurement] = value
}

func TestListener_StateReportWritesTelemetry(t *testing.T) {
	sub := newMockSubscriber()
	sink := newMockSink(testLight())
	metrics := &mockDeviceMetrics{}

	listener := NewListener(sink, &mockRuleLister{}, &mockRecorder{})
	listener.SetMetrics(metrics)
	if err := listener.Start(sub, 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	handler := sub.handlers["hearth/state/+/+"]
	if err := handler("hearth/state/light/light-living-main",
		[]byte(`{"on":true,"brightness":80,"color":"#ffddaa"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// Only numeric attributes become points; booleans and strings do not.
	if len(metrics.points) != 1 {
		t.Fatalf("points = %v, want only brightness", metrics.points)
	}
	if metrics.points["light-living-main/brightness"] != 80 {
		t.Errorf("brightness point = %v, want 80", metrics.points)
	}
}

func TestListener_ManualCommandSuppressesRules(t *testing.T) {
	light := testLight()
	light.State = device.State{"on": false, "brightness": 25}
	sub, _, recorder, _ := setupListener(t, light)

	handler := sub.handlers["hearth/command/+/+"]
	if err := handler("hearth/command/light/light-living-main",
		[]byte(`{"command":"turn_on"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(recorder.calls) != 1 || recorder.calls[0] != "light-living-main" {
		t.Fatalf("recorder calls = %v, want one for light-living-main", recorder.calls)
	}
	if recorder.state["brightness"] != 25 {
		t.Errorf("original state = %v, want pre-command snapshot", recorder.state)
	}
}

func TestListener_RuleDrivenCommandIgnored(t *testing.T) {
	sub, _, recorder, _ := setupListener(t, testLight())

	handler := sub.handlers["hearth/command/+/+"]
	if err := handler("hearth/command/light/light-living-main",
		[]byte(`{"command":"turn_on","rule_driven":true}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(recorder.calls) != 0 {
		t.Error("rule-driven command recorded as manual control")
	}
}

func TestListener_CommandForUntargetedDevice(t *testing.T) {
	sub, _, recorder, _ := setupListener(t, testLight())

	handler := sub.handlers["hearth/command/+/+"]
	if err := handler("hearth/command/lock/lock-front",
		[]byte(`{"command":"unlock"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(recorder.calls) != 0 {
		t.Error("untargeted device triggered override recording")
	}
}
