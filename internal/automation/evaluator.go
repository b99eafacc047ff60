package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/hearth-core/internal/device"
)

// EvalContext is the frozen world state a scheduler tick evaluates
// triggers against. Every rule in the same tick sees the same snapshot,
// so concurrent device updates cannot make two related rules disagree.
type EvalContext struct {
	// Now is the current site-local time.
	Now time.Time

	// Presence maps person IDs to their latest presence state.
	Presence map[string]PresenceState

	// Mood is the current household mood ("" when unknown).
	Mood string

	// Devices maps device IDs to their snapshotted state.
	Devices map[string]*device.Device
}

// Evaluate reports whether the trigger fires against the given context.
//
// Evaluation is pure: it reads the snapshot and returns a verdict, with
// no side effects. Unknown references (missing person, missing device,
// missing attribute) evaluate to false rather than erroring, so one
// misconfigured rule cannot disturb a tick.
func Evaluate(t Trigger, evalCtx EvalContext) (bool, error) {
	switch v := t.(type) {
	case TimeTrigger:
		return evaluateTime(v, evalCtx.Now)
	case PresenceTrigger:
		return evaluatePresence(v, evalCtx.Presence), nil
	case DeviceStateTrigger:
		return evaluateDeviceState(v, evalCtx.Devices)
	case MoodTrigger:
		return evaluateMood(v, evalCtx.Mood)
	case ManualTrigger:
		// Manual rules only fire via RunRule, never on a tick.
		return false, nil
	case nil:
		return false, fmt.Errorf("%w: trigger is nil", ErrInvalidTrigger)
	}
	return false, fmt.Errorf("%w: unknown trigger variant %T", ErrInvalidTrigger, t)
}

// evaluateTime matches the trigger's wall-clock minute exactly.
//
// The scheduler ticks once per minute; if the process sleeps through a
// minute the firing is missed rather than replayed late.
func evaluateTime(t TimeTrigger, now time.Time) (bool, error) {
	at, err := parseClock(t.At)
	if err != nil {
		return false, err
	}

	if now.Hour() != at.Hour() || now.Minute() != at.Minute() {
		return false, nil
	}

	if len(t.Days) == 0 {
		return true, nil
	}
	today := weekdayOf(now)
	for _, d := range t.Days {
		if d == today {
			return true, nil
		}
	}
	return false, nil
}

// evaluatePresence matches the person's current presence state.
func evaluatePresence(t PresenceTrigger, presence map[string]PresenceState) bool {
	state, known := presence[t.PersonID]

	switch t.Event {
	case PresenceArrive, PresencePresent:
		if !known || !state.Present {
			return false
		}
		if t.Location != "" && !strings.EqualFold(t.Location, state.Location) {
			return false
		}
		return true
	case PresenceLeave, PresenceAbsent:
		// An unknown person is treated as absent.
		return !known || !state.Present
	}
	return false
}

// evaluateDeviceState compares a state attribute against the trigger value.
func evaluateDeviceState(t DeviceStateTrigger, devices map[string]*device.Device) (bool, error) {
	dev, ok := devices[t.DeviceID]
	if !ok {
		// A rule referencing a deleted device simply never fires.
		return false, nil
	}

	attr, ok := dev.State[t.Attribute]
	if !ok {
		return false, nil
	}

	switch t.Operator {
	case OpEquals:
		return looseEqual(attr, t.Value), nil
	case OpNotEquals:
		return !looseEqual(attr, t.Value), nil
	case OpGreaterThan:
		a, aok := toFloat(attr)
		b, bok := toFloat(t.Value)
		return aok && bok && a > b, nil
	case OpLessThan:
		a, aok := toFloat(attr)
		b, bok := toFloat(t.Value)
		return aok && bok && a < b, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidTrigger, t.Operator)
}

// evaluateMood compares the trigger mood against the current mood.
// An unset operator means equals.
func evaluateMood(t MoodTrigger, mood string) (bool, error) {
	match := strings.EqualFold(t.Mood, mood)
	switch t.Operator {
	case OpEquals, "":
		return match, nil
	case OpNotEquals:
		return !match, nil
	case OpGreaterThan, OpLessThan:
		return false, fmt.Errorf("%w: operator %q not valid for mood", ErrInvalidTrigger, t.Operator)
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidTrigger, t.Operator)
}

// NextTimeOccurrence returns the next site-local time at which the
// trigger would fire after the given time, or nil for triggers with no
// schedule (everything except TimeTrigger).
func NextTimeOccurrence(t Trigger, after time.Time) *time.Time {
	tt, ok := t.(TimeTrigger)
	if !ok {
		return nil
	}

	at, err := parseClock(tt.At)
	if err != nil {
		return nil
	}

	candidate := time.Date(after.Year(), after.Month(), after.Day(),
		at.Hour(), at.Minute(), 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	if len(tt.Days) == 0 {
		return &candidate
	}

	allowed := make(map[Weekday]struct{}, len(tt.Days))
	for _, d := range tt.Days {
		allowed[d] = struct{}{}
	}

	// At most a week of scanning to find an allowed day.
	for i := 0; i < 7; i++ {
		if _, ok := allowed[weekdayOf(candidate)]; ok {
			return &candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return nil
}

// parseClock parses a "15:04" wall-clock string.
func parseClock(s string) (time.Time, error) {
	at, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time must be HH:MM, got %q", ErrInvalidTrigger, s)
	}
	return at, nil
}

// weekdayOf maps a time.Time to the trigger weekday value.
func weekdayOf(t time.Time) Weekday {
	switch t.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// looseEqual compares two state values, coercing numerics so that an
// int from a rule definition matches a float64 from JSON state.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// toFloat coerces the numeric types JSON decoding and Go literals
// produce into float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
