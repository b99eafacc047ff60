package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/hearth-core/internal/device"
)

// OverrideRegistry tracks manual override suppressions in memory,
// backed by the repository for restarts.
//
// When a user manually controls a device, every enabled rule that
// targets the device and has ManualOverride set is suppressed for the
// configured window. A suppressed rule is skipped entirely on ticks;
// it fires again once the window lapses or the override is cleared.
type OverrideRegistry struct {
	repo   Repository
	window time.Duration

	mu sync.RWMutex
	// byRule maps rule IDs to their active overrides.
	byRule map[string][]*Override

	logger Logger
}

// NewOverrideRegistry creates an override registry.
// window is how long a manual override suppresses a rule.
func NewOverrideRegistry(repo Repository, window time.Duration) *OverrideRegistry {
	return &OverrideRegistry{
		repo:   repo,
		window: window,
		byRule: make(map[string][]*Override),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by the registry.
func (o *OverrideRegistry) SetLogger(logger Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// Restore reloads active overrides from the repository, dropping any
// that expired while the process was down.
func (o *OverrideRegistry) Restore(ctx context.Context) error {
	overrides, err := o.repo.ListActiveOverrides(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("restoring overrides: %w", err)
	}

	byRule := make(map[string][]*Override)
	for _, ov := range overrides {
		byRule[ov.RuleID] = append(byRule[ov.RuleID], ov)
	}

	o.mu.Lock()
	o.byRule = byRule
	o.mu.Unlock()

	o.logger.Debug("overrides restored", "count", len(overrides))
	return nil
}

// RecordManualControl registers a manual control event on a device.
// Every rule in the given set that is enabled, honours overrides, and
// targets the device gets an override expiring after the window.
// originalState snapshots the device state before the manual change.
//
// Returns the overrides created.
func (o *OverrideRegistry) RecordManualControl(
	ctx context.Context,
	deviceID string,
	reason string,
	originalState device.State,
	rules []*Rule,
) ([]*Override, error) {
	now := time.Now().UTC()
	expires := now.Add(o.window)

	var created []*Override
	for _, rule := range rules {
		if !rule.Enabled || !rule.ManualOverride {
			continue
		}
		if !rule.TargetsDevice(deviceID) {
			continue
		}

		ov := &Override{
			ID:            GenerateID(),
			RuleID:        rule.ID,
			DeviceID:      deviceID,
			Reason:        reason,
			OriginalState: originalState.DeepCopy(),
			OverriddenAt:  now,
			ExpiresAt:     &expires,
		}

		if err := o.repo.CreateOverride(ctx, ov); err != nil {
			return created, fmt.Errorf("recording override for rule %s: %w", rule.ID, err)
		}

		o.mu.Lock()
		o.byRule[rule.ID] = append(o.byRule[rule.ID], ov)
		o.mu.Unlock()

		o.logger.Info("rule suppressed by manual control",
			"rule_id", rule.ID, "device_id", deviceID, "expires_at", expires)
		created = append(created, ov)
	}

	return created, nil
}

// IsSuppressed reports whether the rule has an active override at the
// given time.
func (o *OverrideRegistry) IsSuppressed(ruleID string, now time.Time) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ov := range o.byRule[ruleID] {
		if ov.Active(now) {
			return true
		}
	}
	return false
}

// ClearExpired drops expired overrides from memory and the database.
// Called at the start of each scheduler tick.
func (o *OverrideRegistry) ClearExpired(ctx context.Context, now time.Time) error {
	removed, err := o.repo.DeleteExpiredOverrides(ctx, now)
	if err != nil {
		return err
	}

	o.mu.Lock()
	for ruleID, overrides := range o.byRule {
		active := overrides[:0]
		for _, ov := range overrides {
			if ov.Active(now) {
				active = append(active, ov)
			}
		}
		if len(active) == 0 {
			delete(o.byRule, ruleID)
		} else {
			o.byRule[ruleID] = active
		}
	}
	o.mu.Unlock()

	if removed > 0 {
		o.logger.Debug("expired overrides cleared", "count", removed)
	}
	return nil
}

// Clear removes all overrides for a rule, re-enabling it immediately.
func (o *OverrideRegistry) Clear(ctx context.Context, ruleID string) error {
	if err := o.repo.DeleteOverridesForRule(ctx, ruleID); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.byRule, ruleID)
	o.mu.Unlock()

	o.logger.Info("rule overrides cleared", "rule_id", ruleID)
	return nil
}

// ListActive returns all active overrides at the given time.
func (o *OverrideRegistry) ListActive(now time.Time) []*Override {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var active []*Override
	for _, overrides := range o.byRule {
		for _, ov := range overrides {
			if ov.Active(now) {
				active = append(active, ov)
			}
		}
	}
	return active
}
