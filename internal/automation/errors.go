package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rule: already exists")

	// ErrRuleDisabled is returned when attempting to run a disabled rule.
	ErrRuleDisabled = errors.New("rule: disabled")

	// ErrRuleBusy is returned when a rule is already executing.
	ErrRuleBusy = errors.New("rule: execution in progress")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrInvalidTrigger is returned when a trigger is malformed or unknown.
	ErrInvalidTrigger = errors.New("rule: invalid trigger")

	// ErrInvalidAction is returned when an action is malformed or unknown.
	ErrInvalidAction = errors.New("rule: invalid action")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("rule: invalid name")

	// ErrNoActions is returned when a rule has no actions defined.
	ErrNoActions = errors.New("rule: no actions")

	// ErrActionNotPermitted is returned when a device cannot accept an
	// action (missing capability or wrong device type).
	ErrActionNotPermitted = errors.New("rule: action not permitted for device")

	// ErrDeviceUnavailable is returned when an action targets a device
	// that is offline or in an error state.
	ErrDeviceUnavailable = errors.New("rule: device unavailable")

	// ErrExecutionNotFound is returned when an execution ID does not exist.
	ErrExecutionNotFound = errors.New("rule: execution not found")

	// ErrOverrideNotFound is returned when an override ID does not exist.
	ErrOverrideNotFound = errors.New("rule: override not found")
)
