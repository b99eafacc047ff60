package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/hearth-core/internal/device"
)

// Rule binds a trigger condition to an ordered list of actions.
// When the trigger fires during a scheduler tick (or via manual run),
// the actions execute in order against the device registry.
type Rule struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Description (optional)
	Description *string `json:"description,omitempty"`

	// Trigger condition (exactly one variant)
	Trigger Trigger `json:"-"`

	// Actions to execute in order when the trigger fires
	Actions ActionList `json:"actions"`

	// Configuration
	Enabled bool       `json:"enabled"`
	Status  RuleStatus `json:"status"`

	// ManualOverride controls whether manual device control suppresses
	// this rule for the override window. Defaults to true on creation.
	ManualOverride bool `json:"manual_override"`

	// Scheduling bookkeeping
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ruleJSON mirrors Rule for JSON round-trips, carrying the trigger
// as its tagged envelope.
type ruleJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	Trigger         json.RawMessage `json:"trigger"`
	Actions         ActionList      `json:"actions"`
	Enabled         bool            `json:"enabled"`
	Status          RuleStatus      `json:"status"`
	ManualOverride  bool            `json:"manual_override"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	NextScheduledAt *time.Time      `json:"next_scheduled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MarshalJSON encodes the rule with its trigger as a tagged envelope.
func (r Rule) MarshalJSON() ([]byte, error) {
	trigger, err := MarshalTrigger(r.Trigger)
	if err != nil {
		return nil, fmt.Errorf("marshalling trigger: %w", err)
	}
	return json.Marshal(ruleJSON{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Trigger:         trigger,
		Actions:         r.Actions,
		Enabled:         r.Enabled,
		Status:          r.Status,
		ManualOverride:  r.ManualOverride,
		LastTriggeredAt: r.LastTriggeredAt,
		NextScheduledAt: r.NextScheduledAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	})
}

// UnmarshalJSON decodes a rule, resolving the trigger envelope to its
// concrete variant.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	trigger, err := UnmarshalTrigger(raw.Trigger)
	if err != nil {
		return fmt.Errorf("unmarshalling trigger: %w", err)
	}

	r.ID = raw.ID
	r.Name = raw.Name
	r.Description = raw.Description
	r.Trigger = trigger
	r.Actions = raw.Actions
	r.Enabled = raw.Enabled
	r.Status = raw.Status
	r.ManualOverride = raw.ManualOverride
	r.LastTriggeredAt = raw.LastTriggeredAt
	r.NextScheduledAt = raw.NextScheduledAt
	r.CreatedAt = raw.CreatedAt
	r.UpdatedAt = raw.UpdatedAt
	return nil
}

// DeepCopy creates a complete independent copy of the Rule.
// Trigger and action variants are immutable value types, so sharing
// them between copies is safe; slices and pointers are cloned.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}

	cpy := *r // Shallow copy of value fields

	cpy.Description = cloneStringPtr(r.Description)
	cpy.LastTriggeredAt = cloneTimePtr(r.LastTriggeredAt)
	cpy.NextScheduledAt = cloneTimePtr(r.NextScheduledAt)

	if r.Actions != nil {
		cpy.Actions = make(ActionList, len(r.Actions))
		copy(cpy.Actions, r.Actions)
	}

	return &cpy
}

// TargetsDevice reports whether any of the rule's actions is directed
// at the given device.
func (r *Rule) TargetsDevice(deviceID string) bool {
	for _, a := range r.Actions {
		if a.TargetDevice() == deviceID && deviceID != "" {
			return true
		}
	}
	return false
}

// RuleStatus represents the lifecycle state of a rule.
type RuleStatus string

const (
	// RuleStatusActive rules are considered on every scheduler tick.
	RuleStatusActive RuleStatus = "active"

	// RuleStatusPaused rules are skipped by the scheduler but can still
	// be run manually.
	RuleStatusPaused RuleStatus = "paused"
)

// AllRuleStatuses returns all valid rule status values.
func AllRuleStatuses() []RuleStatus {
	return []RuleStatus{RuleStatusActive, RuleStatusPaused}
}

// Execution records a single firing of a rule: which trigger fired it,
// how many actions ran, and any per-action failures. Records are
// append-only; they are written once after the action sequence completes.
type Execution struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	TriggeredAt time.Time   `json:"triggered_at"`
	TriggerType TriggerType `json:"trigger_type"`

	// Action counts
	ActionsTotal    int `json:"actions_total"`
	ActionsExecuted int `json:"actions_executed"`

	// Success is true only when every action completed.
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`

	// Failure details (populated when actions fail)
	Failures []ActionFailure `json:"failures,omitempty"`

	// Total execution duration in milliseconds
	DurationMS int `json:"duration_ms"`
}

// ActionFailure records details of a failed action within an execution.
// The rest of the action sequence continues past a failure unless the
// failure was a panic, in which case the remainder is skipped.
type ActionFailure struct {
	ActionIndex int        `json:"action_index"`
	ActionType  ActionType `json:"action_type"`
	DeviceID    string     `json:"device_id,omitempty"`
	ErrorMsg    string     `json:"error_message"`
}

// Override suppresses a rule after a user manually controls one of the
// devices the rule targets. While an override is active the scheduler
// will not fire the rule.
type Override struct {
	ID       string `json:"id"`
	RuleID   string `json:"rule_id"`
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason,omitempty"`

	// OriginalState snapshots the device state at override time.
	OriginalState device.State `json:"original_state,omitempty"`

	OverriddenAt time.Time  `json:"overridden_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the override is still in effect at the given time.
// An override with no expiry stays active until explicitly cleared.
func (o *Override) Active(now time.Time) bool {
	if o.ExpiresAt == nil {
		return true
	}
	return now.Before(*o.ExpiresAt)
}

// PresenceState is the evaluator's view of one person's presence.
type PresenceState struct {
	Present   bool      `json:"present"`
	Location  string    `json:"location,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// cloneStringPtr creates an independent copy of a *string.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// cloneTimePtr creates an independent copy of a *time.Time.
func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
