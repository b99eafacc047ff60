package automation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxActions        = 50
	maxMessageLen     = 500
	maxAttributeLen   = 100
)

// Pre-computed validation sets for O(1) lookups.
var (
	validWeekdays       map[Weekday]struct{}
	validPresenceEvents map[PresenceEvent]struct{}
	validCompareOps     map[CompareOp]struct{}
	validRuleStatuses   map[RuleStatus]struct{}
)

func init() {
	validWeekdays = make(map[Weekday]struct{}, len(AllWeekdays()))
	for _, d := range AllWeekdays() {
		validWeekdays[d] = struct{}{}
	}

	validPresenceEvents = make(map[PresenceEvent]struct{}, len(AllPresenceEvents()))
	for _, e := range AllPresenceEvents() {
		validPresenceEvents[e] = struct{}{}
	}

	validCompareOps = make(map[CompareOp]struct{}, len(AllCompareOps()))
	for _, op := range AllCompareOps() {
		validCompareOps[op] = struct{}{}
	}

	validRuleStatuses = make(map[RuleStatus]struct{}, len(AllRuleStatuses()))
	for _, s := range AllRuleStatuses() {
		validRuleStatuses[s] = struct{}{}
	}
}

// ValidateRule performs comprehensive validation on a rule.
// Returns an error describing the first validation failure found.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}

	// Validate name
	if err := ValidateName(r.Name); err != nil {
		return err
	}

	// Validate description length
	if r.Description != nil && len(*r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}

	// Validate status if set
	if r.Status != "" {
		if _, ok := validRuleStatuses[r.Status]; !ok {
			return fmt.Errorf("%w: invalid status %q", ErrInvalidRule, r.Status)
		}
	}

	// Validate trigger
	if err := ValidateTrigger(r.Trigger); err != nil {
		return err
	}

	// Validate actions
	if len(r.Actions) == 0 {
		return ErrNoActions
	}
	if len(r.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, action := range r.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateName checks if a rule name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateTrigger checks a trigger's structural validity.
// Device existence is not checked here; a trigger referencing an
// unknown device is valid but never fires.
func ValidateTrigger(t Trigger) error {
	switch v := t.(type) {
	case TimeTrigger:
		if _, err := parseClock(v.At); err != nil {
			return err
		}
		for _, d := range v.Days {
			if _, ok := validWeekdays[d]; !ok {
				return fmt.Errorf("%w: invalid weekday %q", ErrInvalidTrigger, d)
			}
		}
	case PresenceTrigger:
		if v.PersonID == "" {
			return fmt.Errorf("%w: presence trigger requires person_id", ErrInvalidTrigger)
		}
		if _, ok := validPresenceEvents[v.Event]; !ok {
			return fmt.Errorf("%w: invalid presence event %q", ErrInvalidTrigger, v.Event)
		}
	case DeviceStateTrigger:
		if v.DeviceID == "" {
			return fmt.Errorf("%w: device_state trigger requires device_id", ErrInvalidTrigger)
		}
		if v.Attribute == "" || len(v.Attribute) > maxAttributeLen {
			return fmt.Errorf("%w: device_state trigger requires attribute", ErrInvalidTrigger)
		}
		if _, ok := validCompareOps[v.Operator]; !ok {
			return fmt.Errorf("%w: invalid operator %q", ErrInvalidTrigger, v.Operator)
		}
	case MoodTrigger:
		if v.Mood == "" {
			return fmt.Errorf("%w: mood trigger requires mood", ErrInvalidTrigger)
		}
		// An unset operator defaults to equals at evaluation time.
		if v.Operator != "" && v.Operator != OpEquals && v.Operator != OpNotEquals {
			return fmt.Errorf("%w: mood operator must be equals or not_equals", ErrInvalidTrigger)
		}
	case ManualTrigger:
		// Nothing to validate
	case nil:
		return fmt.Errorf("%w: trigger is required", ErrInvalidTrigger)
	default:
		return fmt.Errorf("%w: unknown trigger variant %T", ErrInvalidTrigger, t)
	}
	return nil
}

// ValidateAction checks an action's structural validity.
// Capability and device type gates are applied at execution time by
// ValidateActionFor, once the target device is known.
func ValidateAction(a Action) error {
	switch v := a.(type) {
	case TurnOnAction:
		if v.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
		if v.Brightness != nil && (*v.Brightness < minBrightness || *v.Brightness > maxBrightness) {
			return fmt.Errorf("%w: brightness must be %d-%d", ErrInvalidAction, minBrightness, maxBrightness)
		}
	case TurnOffAction, LockAction, UnlockAction:
		if a.TargetDevice() == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
	case SetBrightnessAction:
		if v.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
		if v.Brightness < minBrightness || v.Brightness > maxBrightness {
			return fmt.Errorf("%w: brightness must be %d-%d", ErrInvalidAction, minBrightness, maxBrightness)
		}
	case SetColorAction:
		if v.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
		if v.Color == "" {
			return fmt.Errorf("%w: color is required", ErrInvalidAction)
		}
	case SetTemperatureAction:
		if v.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
	case NotifyAction:
		if strings.TrimSpace(v.Message) == "" {
			return fmt.Errorf("%w: notify message cannot be empty", ErrInvalidAction)
		}
		if len(v.Message) > maxMessageLen {
			return fmt.Errorf("%w: notify message exceeds %d characters", ErrInvalidAction, maxMessageLen)
		}
	case nil:
		return fmt.Errorf("%w: action is nil", ErrInvalidAction)
	default:
		return fmt.Errorf("%w: unknown action variant %T", ErrInvalidAction, a)
	}
	return nil
}

// GenerateID creates a new UUID for a rule, execution, or override.
func GenerateID() string {
	return uuid.New().String()
}
