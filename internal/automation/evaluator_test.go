package automation

import (
	"testing"
	"time"

	"github.com/nerrad567/hearth-core/internal/device"
)

// clock builds a site-local time on a known date. 2026-08-24 is a Monday.
func clock(t *testing.T, day int, hhmm string) time.Time {
	t.Helper()
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad clock %q: %v", hhmm, err)
	}
	return time.Date(2026, 8, day, at.Hour(), at.Minute(), 0, 0, time.UTC)
}

func TestEvaluate_TimeTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger TimeTrigger
		now     time.Time
		want    bool
	}{
		{
			name:    "fires at exact minute",
			trigger: TimeTrigger{At: "07:30"},
			now:     clock(t, 24, "07:30"),
			want:    true,
		},
		{
			name:    "does not fire a minute early",
			trigger: TimeTrigger{At: "07:30"},
			now:     clock(t, 24, "07:29"),
			want:    false,
		},
		{
			name:    "does not fire a minute late",
			trigger: TimeTrigger{At: "07:30"},
			now:     clock(t, 24, "07:31"),
			want:    false,
		},
		{
			name:    "fires on matching weekday",
			trigger: TimeTrigger{At: "07:30", Days: []Weekday{Monday, Friday}},
			now:     clock(t, 24, "07:30"), // Monday
			want:    true,
		},
		{
			name:    "does not fire on excluded weekday",
			trigger: TimeTrigger{At: "07:30", Days: []Weekday{Friday}},
			now:     clock(t, 24, "07:30"), // Monday
			want:    false,
		},
		{
			name:    "empty days means every day",
			trigger: TimeTrigger{At: "22:00"},
			now:     clock(t, 29, "22:00"), // Saturday
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.trigger, EvalContext{Now: tt.now})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("malformed time returns error", func(t *testing.T) {
		_, err := Evaluate(TimeTrigger{At: "25:99"}, EvalContext{Now: clock(t, 24, "07:30")})
		if err == nil {
			t.Fatal("expected error for malformed time")
		}
	})
}

func TestEvaluate_PresenceTrigger(t *testing.T) {
	presence := map[string]PresenceState{
		"alice": {Present: true, Location: "Home"},
		"bob":   {Present: false},
	}

	tests := []struct {
		name    string
		trigger PresenceTrigger
		want    bool
	}{
		{
			name:    "present person matches arrive",
			trigger: PresenceTrigger{PersonID: "alice", Event: PresenceArrive},
			want:    true,
		},
		{
			name:    "present person with matching location",
			trigger: PresenceTrigger{PersonID: "alice", Event: PresencePresent, Location: "home"},
			want:    true,
		},
		{
			name:    "present person with wrong location",
			trigger: PresenceTrigger{PersonID: "alice", Event: PresencePresent, Location: "office"},
			want:    false,
		},
		{
			name:    "absent person matches leave",
			trigger: PresenceTrigger{PersonID: "bob", Event: PresenceLeave},
			want:    true,
		},
		{
			name:    "absent person does not match arrive",
			trigger: PresenceTrigger{PersonID: "bob", Event: PresenceArrive},
			want:    false,
		},
		{
			name:    "unknown person treated as absent",
			trigger: PresenceTrigger{PersonID: "carol", Event: PresenceAbsent},
			want:    true,
		},
		{
			name:    "unknown person never present",
			trigger: PresenceTrigger{PersonID: "carol", Event: PresencePresent},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.trigger, EvalContext{Presence: presence})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_DeviceStateTrigger(t *testing.T) {
	devices := map[string]*device.Device{
		"sensor-1": {
			ID:    "sensor-1",
			Type:  device.DeviceTypeSensor,
			State: device.State{"temperature": 21.5, "motion": true, "mode": "eco"},
		},
	}

	tests := []struct {
		name    string
		trigger DeviceStateTrigger
		want    bool
	}{
		{
			name:    "equals matches float against int",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "temperature", Operator: OpEquals, Value: 21.5},
			want:    true,
		},
		{
			name:    "not equals",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "mode", Operator: OpNotEquals, Value: "comfort"},
			want:    true,
		},
		{
			name:    "greater than fires",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "temperature", Operator: OpGreaterThan, Value: 20},
			want:    true,
		},
		{
			name:    "greater than does not fire at boundary",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "temperature", Operator: OpGreaterThan, Value: 21.5},
			want:    false,
		},
		{
			name:    "less than on non-numeric attribute is false",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "mode", Operator: OpLessThan, Value: 10},
			want:    false,
		},
		{
			name:    "bool equals",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "motion", Operator: OpEquals, Value: true},
			want:    true,
		},
		{
			name:    "unknown device never fires",
			trigger: DeviceStateTrigger{DeviceID: "gone", Attribute: "temperature", Operator: OpEquals, Value: 21.5},
			want:    false,
		},
		{
			name:    "unknown attribute never fires",
			trigger: DeviceStateTrigger{DeviceID: "sensor-1", Attribute: "humidity", Operator: OpGreaterThan, Value: 50},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.trigger, EvalContext{Devices: devices})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_MoodTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger MoodTrigger
		mood    string
		want    bool
		wantErr bool
	}{
		{
			name:    "equals is case-insensitive",
			trigger: MoodTrigger{Mood: "Relax", Operator: OpEquals},
			mood:    "relax",
			want:    true,
		},
		{
			name:    "not equals",
			trigger: MoodTrigger{Mood: "party", Operator: OpNotEquals},
			mood:    "sleep",
			want:    true,
		},
		{
			name:    "missing operator defaults to equals",
			trigger: MoodTrigger{Mood: "relax"},
			mood:    "relax",
			want:    true,
		},
		{
			name:    "missing operator default does not match different mood",
			trigger: MoodTrigger{Mood: "relax"},
			mood:    "party",
			want:    false,
		},
		{
			name:    "no mood set does not match equals",
			trigger: MoodTrigger{Mood: "relax", Operator: OpEquals},
			mood:    "",
			want:    false,
		},
		{
			name:    "ordering operator is an error",
			trigger: MoodTrigger{Mood: "relax", Operator: OpGreaterThan},
			mood:    "relax",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.trigger, EvalContext{Mood: tt.mood})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_ManualTrigger(t *testing.T) {
	// Manual rules never fire on a tick
	got, err := Evaluate(ManualTrigger{}, EvalContext{Now: time.Now()})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got {
		t.Error("ManualTrigger fired on tick, want false")
	}
}

func TestNextTimeOccurrence(t *testing.T) {
	monday := clock(t, 24, "08:00") // Monday 08:00

	t.Run("later same day", func(t *testing.T) {
		next := NextTimeOccurrence(TimeTrigger{At: "22:00"}, monday)
		if next == nil {
			t.Fatal("NextTimeOccurrence() = nil")
		}
		want := clock(t, 24, "22:00")
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("earlier time rolls to tomorrow", func(t *testing.T) {
		next := NextTimeOccurrence(TimeTrigger{At: "07:00"}, monday)
		if next == nil {
			t.Fatal("NextTimeOccurrence() = nil")
		}
		want := clock(t, 25, "07:00")
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("day filter skips to allowed weekday", func(t *testing.T) {
		next := NextTimeOccurrence(TimeTrigger{At: "09:00", Days: []Weekday{Friday}}, monday)
		if next == nil {
			t.Fatal("NextTimeOccurrence() = nil")
		}
		want := clock(t, 28, "09:00") // Friday
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("non-time triggers have no schedule", func(t *testing.T) {
		if next := NextTimeOccurrence(ManualTrigger{}, monday); next != nil {
			t.Errorf("next = %v, want nil", next)
		}
	})
}
