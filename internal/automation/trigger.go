package automation

import (
	"encoding/json"
	"fmt"
)

// TriggerType identifies the trigger variant of a rule.
type TriggerType string

const (
	TriggerTypeTime        TriggerType = "time"
	TriggerTypePresence    TriggerType = "presence"
	TriggerTypeDeviceState TriggerType = "device_state"
	TriggerTypeMood        TriggerType = "mood"
	TriggerTypeManual      TriggerType = "manual"
)

// AllTriggerTypes returns all valid trigger type values.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerTypeTime, TriggerTypePresence, TriggerTypeDeviceState,
		TriggerTypeMood, TriggerTypeManual,
	}
}

// Trigger is the closed set of rule trigger conditions.
//
// The variants are TimeTrigger, PresenceTrigger, DeviceStateTrigger,
// MoodTrigger and ManualTrigger. The unexported method keeps the set
// closed so the evaluator's type switch is exhaustive.
type Trigger interface {
	Type() TriggerType
	isTrigger()
}

// Weekday is a day-of-week filter value for time triggers.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// AllWeekdays returns all valid weekday values.
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// TimeTrigger fires when the current site-local time matches At
// exactly to the minute, optionally restricted to specific days.
type TimeTrigger struct {
	// At is the local wall-clock time in "15:04" format.
	At string `json:"at"`

	// Days restricts firing to the listed weekdays. Empty means every day.
	Days []Weekday `json:"days,omitempty"`
}

func (TimeTrigger) Type() TriggerType { return TriggerTypeTime }
func (TimeTrigger) isTrigger()        {}

// PresenceTrigger fires based on a person's presence state.
type PresenceTrigger struct {
	PersonID string `json:"person_id"`

	// Event selects the presence condition: "arrive"/"present" fires
	// while the person is home, "leave"/"absent" while they are away.
	Event PresenceEvent `json:"event"`

	// Location optionally narrows "arrive"/"present" to a specific
	// location (e.g. "home", "office").
	Location string `json:"location,omitempty"`
}

func (PresenceTrigger) Type() TriggerType { return TriggerTypePresence }
func (PresenceTrigger) isTrigger()        {}

// PresenceEvent selects which presence condition a PresenceTrigger matches.
type PresenceEvent string

const (
	PresenceArrive  PresenceEvent = "arrive"
	PresencePresent PresenceEvent = "present"
	PresenceLeave   PresenceEvent = "leave"
	PresenceAbsent  PresenceEvent = "absent"
)

// AllPresenceEvents returns all valid presence event values.
func AllPresenceEvents() []PresenceEvent {
	return []PresenceEvent{PresenceArrive, PresencePresent, PresenceLeave, PresenceAbsent}
}

// DeviceStateTrigger fires when a device state attribute compares true
// against a literal value.
type DeviceStateTrigger struct {
	DeviceID  string    `json:"device_id"`
	Attribute string    `json:"attribute"`
	Operator  CompareOp `json:"operator"`
	Value     any       `json:"value"`
}

func (DeviceStateTrigger) Type() TriggerType { return TriggerTypeDeviceState }
func (DeviceStateTrigger) isTrigger()        {}

// CompareOp is a comparison operator for device state and mood triggers.
type CompareOp string

const (
	OpEquals      CompareOp = "equals"
	OpNotEquals   CompareOp = "not_equals"
	OpGreaterThan CompareOp = "greater_than"
	OpLessThan    CompareOp = "less_than"
)

// AllCompareOps returns all valid comparison operators.
func AllCompareOps() []CompareOp {
	return []CompareOp{OpEquals, OpNotEquals, OpGreaterThan, OpLessThan}
}

// MoodTrigger fires when the household mood compares true against Mood.
// Only equals and not_equals are meaningful for moods.
type MoodTrigger struct {
	Mood     string    `json:"mood"`
	Operator CompareOp `json:"operator"`
}

func (MoodTrigger) Type() TriggerType { return TriggerTypeMood }
func (MoodTrigger) isTrigger()        {}

// ManualTrigger never fires on a scheduler tick. Rules with a manual
// trigger only run via Scheduler.RunRule.
type ManualTrigger struct{}

func (ManualTrigger) Type() TriggerType { return TriggerTypeManual }
func (ManualTrigger) isTrigger()        {}

// triggerEnvelope is the JSON wire form of a trigger: the variant's own
// fields plus a "type" discriminator.
type triggerEnvelope struct {
	Type TriggerType `json:"type"`

	// TimeTrigger
	At   string    `json:"at,omitempty"`
	Days []Weekday `json:"days,omitempty"`

	// PresenceTrigger
	PersonID string        `json:"person_id,omitempty"`
	Event    PresenceEvent `json:"event,omitempty"`
	Location string        `json:"location,omitempty"`

	// DeviceStateTrigger
	DeviceID  string `json:"device_id,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Value     any    `json:"value,omitempty"`

	// MoodTrigger
	Mood string `json:"mood,omitempty"`

	// DeviceStateTrigger and MoodTrigger
	Operator CompareOp `json:"operator,omitempty"`
}

// MarshalTrigger encodes a trigger as its tagged JSON envelope.
func MarshalTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: trigger is nil", ErrInvalidTrigger)
	}

	env := triggerEnvelope{Type: t.Type()}
	switch v := t.(type) {
	case TimeTrigger:
		env.At = v.At
		env.Days = v.Days
	case PresenceTrigger:
		env.PersonID = v.PersonID
		env.Event = v.Event
		env.Location = v.Location
	case DeviceStateTrigger:
		env.DeviceID = v.DeviceID
		env.Attribute = v.Attribute
		env.Operator = v.Operator
		env.Value = v.Value
	case MoodTrigger:
		env.Mood = v.Mood
		env.Operator = v.Operator
	case ManualTrigger:
		// Type field only
	default:
		return nil, fmt.Errorf("%w: unknown trigger variant %T", ErrInvalidTrigger, t)
	}

	return json.Marshal(env)
}

// UnmarshalTrigger decodes a tagged JSON envelope into its concrete
// trigger variant.
func UnmarshalTrigger(data []byte) (Trigger, error) {
	var env triggerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	switch env.Type {
	case TriggerTypeTime:
		return TimeTrigger{At: env.At, Days: env.Days}, nil
	case TriggerTypePresence:
		return PresenceTrigger{PersonID: env.PersonID, Event: env.Event, Location: env.Location}, nil
	case TriggerTypeDeviceState:
		return DeviceStateTrigger{
			DeviceID:  env.DeviceID,
			Attribute: env.Attribute,
			Operator:  env.Operator,
			Value:     env.Value,
		}, nil
	case TriggerTypeMood:
		return MoodTrigger{Mood: env.Mood, Operator: env.Operator}, nil
	case TriggerTypeManual:
		return ManualTrigger{}, nil
	}
	return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, env.Type)
}
