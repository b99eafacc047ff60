package automation

import (
	"encoding/json"
	"testing"
	"time"
)

func testRule(id, name string) *Rule {
	return &Rule{
		ID:             id,
		Name:           name,
		Trigger:        TimeTrigger{At: "07:30", Days: []Weekday{Monday, Friday}},
		Actions:        ActionList{TurnOnAction{DeviceID: "light-1"}},
		Enabled:        true,
		Status:         RuleStatusActive,
		ManualOverride: true,
	}
}

func TestRule_JSONRoundTrip(t *testing.T) {
	desc := "wake up lights"
	original := testRule("rule-001", "Morning Routine")
	original.Description = &desc
	original.Actions = ActionList{
		SetBrightnessAction{DeviceID: "light-1", Brightness: 80},
		SetColorAction{DeviceID: "light-1", Color: "#ffddaa"},
		NotifyAction{Message: "Good morning"},
	}
	original.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	original.UpdatedAt = original.CreatedAt

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Rule
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.ID != original.ID || decoded.Name != original.Name {
		t.Errorf("identity = %q/%q, want %q/%q",
			decoded.ID, decoded.Name, original.ID, original.Name)
	}
	trigger, ok := decoded.Trigger.(TimeTrigger)
	if !ok {
		t.Fatalf("Trigger type = %T, want TimeTrigger", decoded.Trigger)
	}
	if trigger.At != "07:30" || len(trigger.Days) != 2 {
		t.Errorf("trigger = %+v, want at=07:30 with 2 days", trigger)
	}
	if len(decoded.Actions) != 3 {
		t.Fatalf("Actions = %d, want 3", len(decoded.Actions))
	}
	if sb, ok := decoded.Actions[0].(SetBrightnessAction); !ok || sb.Brightness != 80 {
		t.Errorf("Actions[0] = %+v, want SetBrightnessAction{80}", decoded.Actions[0])
	}
	if n, ok := decoded.Actions[2].(NotifyAction); !ok || n.Message != "Good morning" {
		t.Errorf("Actions[2] = %+v, want NotifyAction", decoded.Actions[2])
	}
}

func TestRule_UnmarshalRejectsUnknownVariants(t *testing.T) {
	t.Run("unknown trigger type", func(t *testing.T) {
		_, err := UnmarshalTrigger([]byte(`{"type":"astral"}`))
		if err == nil {
			t.Fatal("expected error for unknown trigger type")
		}
	})

	t.Run("unknown action type", func(t *testing.T) {
		var actions ActionList
		err := json.Unmarshal([]byte(`[{"type":"explode","device_id":"d"}]`), &actions)
		if err == nil {
			t.Fatal("expected error for unknown action type")
		}
	})

	t.Run("turn_on carries optional brightness", func(t *testing.T) {
		var actions ActionList
		if err := json.Unmarshal([]byte(`[{"type":"turn_on","device_id":"d","brightness":40}]`), &actions); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		on, ok := actions[0].(TurnOnAction)
		if !ok || on.Brightness == nil || *on.Brightness != 40 {
			t.Fatalf("actions[0] = %+v, want TurnOnAction with brightness 40", actions[0])
		}

		data, err := json.Marshal(actions)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var decoded ActionList
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("re-Unmarshal() error = %v", err)
		}
		on, ok = decoded[0].(TurnOnAction)
		if !ok || on.Brightness == nil || *on.Brightness != 40 {
			t.Fatalf("round-trip lost brightness: %+v", decoded[0])
		}
	})

	t.Run("mood trigger without operator", func(t *testing.T) {
		trigger, err := UnmarshalTrigger([]byte(`{"type":"mood","mood":"relax"}`))
		if err != nil {
			t.Fatalf("UnmarshalTrigger() error = %v", err)
		}
		mt, ok := trigger.(MoodTrigger)
		if !ok || mt.Mood != "relax" || mt.Operator != "" {
			t.Fatalf("trigger = %+v, want MoodTrigger{relax}", trigger)
		}
		if err := ValidateTrigger(mt); err != nil {
			t.Errorf("ValidateTrigger() error = %v, want nil for defaulted operator", err)
		}
	})

	t.Run("set_brightness without brightness", func(t *testing.T) {
		var actions ActionList
		err := json.Unmarshal([]byte(`[{"type":"set_brightness","device_id":"d"}]`), &actions)
		if err == nil {
			t.Fatal("expected error for missing brightness")
		}
	})
}

func TestRule_DeepCopy(t *testing.T) {
	desc := "original"
	rule := testRule("rule-001", "Test")
	rule.Description = &desc

	cpy := rule.DeepCopy()

	*cpy.Description = "changed"
	cpy.Actions[0] = TurnOffAction{DeviceID: "other"}

	if *rule.Description != "original" {
		t.Error("DeepCopy shares description pointer")
	}
	if a, ok := rule.Actions[0].(TurnOnAction); !ok || a.DeviceID != "light-1" {
		t.Error("DeepCopy shares actions slice")
	}
}

func TestRule_TargetsDevice(t *testing.T) {
	rule := testRule("rule-001", "Test")
	rule.Actions = ActionList{
		TurnOnAction{DeviceID: "light-1"},
		NotifyAction{Message: "hi"},
	}

	if !rule.TargetsDevice("light-1") {
		t.Error("TargetsDevice(light-1) = false, want true")
	}
	if rule.TargetsDevice("light-2") {
		t.Error("TargetsDevice(light-2) = true, want false")
	}
	if rule.TargetsDevice("") {
		t.Error("TargetsDevice(\"\") matched the notify action")
	}
}

func TestOverride_Active(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("before expiry", func(t *testing.T) {
		expires := now.Add(10 * time.Minute)
		o := &Override{ExpiresAt: &expires}
		if !o.Active(now) {
			t.Error("Active() = false before expiry")
		}
	})

	t.Run("after expiry", func(t *testing.T) {
		expires := now.Add(-time.Minute)
		o := &Override{ExpiresAt: &expires}
		if o.Active(now) {
			t.Error("Active() = true after expiry")
		}
	})

	t.Run("no expiry stays active", func(t *testing.T) {
		o := &Override{}
		if !o.Active(now) {
			t.Error("Active() = false with nil expiry")
		}
	})
}
