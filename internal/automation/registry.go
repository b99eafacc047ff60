package automation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging interface the automation package needs.
// Satisfied by *logging.Logger; a no-op implementation is used until
// SetLogger is called.
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

// Registry provides cached, thread-safe access to automation rules.
//
// All reads are served from an in-memory cache; writes go through the
// repository first and update the cache on success. Returned rules are
// deep copies, so callers can mutate them freely.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	cache  map[string]*Rule
	logger Logger
}

// NewRegistry creates a rule registry backed by the given repository.
// Call RefreshCache before first use to load existing rules.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads all rules from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh rule cache: %w", err)
	}

	cache := make(map[string]*Rule, len(rules))
	for _, rule := range rules {
		cache[rule.ID] = rule
	}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()

	r.logger.Debug("rule cache refreshed", "count", len(cache))
	return nil
}

// GetRule retrieves a rule by ID, falling back to the repository on a
// cache miss.
func (r *Registry) GetRule(ctx context.Context, id string) (*Rule, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	rule, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[rule.ID] = rule
	r.mu.Unlock()

	return rule.DeepCopy(), nil
}

// ListRules returns all rules.
func (r *Registry) ListRules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		rules = append(rules, rule.DeepCopy())
	}
	return rules
}

// ListEnabled returns the rules the scheduler should consider on a
// tick: enabled and active.
func (r *Registry) ListEnabled() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		if rule.Enabled && rule.Status == RuleStatusActive {
			rules = append(rules, rule.DeepCopy())
		}
	}
	return rules
}

// ListTargetingDevice returns the rules whose actions target the given
// device. Used when recording a manual override.
func (r *Registry) ListTargetingDevice(deviceID string) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rules []*Rule
	for _, rule := range r.cache {
		if rule.TargetsDevice(deviceID) {
			rules = append(rules, rule.DeepCopy())
		}
	}
	return rules
}

// CreateRule validates and persists a new rule.
// Generates an ID when absent. New rules default to enabled, active,
// and respecting manual overrides.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if rule == nil {
		return nil, ErrInvalidRule
	}

	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	if rule.Status == "" {
		rule.Status = RuleStatusActive
	}

	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.NextScheduledAt = NextTimeOccurrence(rule.Trigger, now)

	if err := r.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.mu.Unlock()

	r.logger.Info("rule created", "rule_id", rule.ID, "name", rule.Name,
		"trigger", string(rule.Trigger.Type()))
	return rule.DeepCopy(), nil
}

// UpdateRule validates and persists changes to an existing rule.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if rule == nil || rule.ID == "" {
		return nil, ErrInvalidRule
	}

	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	rule.UpdatedAt = time.Now().UTC()
	rule.NextScheduledAt = NextTimeOccurrence(rule.Trigger, rule.UpdatedAt)

	if err := r.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.mu.Unlock()

	r.logger.Info("rule updated", "rule_id", rule.ID, "name", rule.Name)
	return rule.DeepCopy(), nil
}

// DeleteRule removes a rule and its overrides.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()

	r.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// SetEnabled flips a rule's enabled flag.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()

	var rule *Rule
	if ok {
		rule = cached.DeepCopy()
	} else {
		var err error
		rule, err = r.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
	}

	rule.Enabled = enabled
	rule.UpdatedAt = time.Now().UTC()

	if err := r.repo.Update(ctx, rule); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[id] = rule
	r.mu.Unlock()

	r.logger.Info("rule enabled flag changed", "rule_id", id, "enabled", enabled)
	return nil
}

// MarkTriggered records a firing: last-triggered timestamp and, for
// time triggers, the next scheduled occurrence.
func (r *Registry) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if !ok {
		return ErrRuleNotFound
	}

	next := NextTimeOccurrence(cached.Trigger, at)

	if err := r.repo.MarkTriggered(ctx, id, at, next); err != nil {
		return err
	}

	r.mu.Lock()
	if rule, ok := r.cache[id]; ok {
		t := at
		rule.LastTriggeredAt = &t
		rule.NextScheduledAt = next
		rule.UpdatedAt = time.Now().UTC()
	}
	r.mu.Unlock()

	return nil
}

// RecomputeSchedules refreshes next_scheduled_at for every time-triggered
// rule. The scheduler calls this at the end of each tick so the stored
// value never points at a minute that has already passed, whether or not
// the rule fired.
func (r *Registry) RecomputeSchedules(ctx context.Context, now time.Time) error {
	type update struct {
		id   string
		next *time.Time
	}

	r.mu.RLock()
	var updates []update
	for _, rule := range r.cache {
		if _, ok := rule.Trigger.(TimeTrigger); !ok {
			continue
		}
		next := NextTimeOccurrence(rule.Trigger, now)
		if sameSchedule(rule.NextScheduledAt, next) {
			continue
		}
		updates = append(updates, update{id: rule.ID, next: next})
	}
	r.mu.RUnlock()

	for _, u := range updates {
		if err := r.repo.UpdateNextScheduled(ctx, u.id, u.next); err != nil {
			return fmt.Errorf("recomputing schedule for rule %s: %w", u.id, err)
		}
		r.mu.Lock()
		if rule, ok := r.cache[u.id]; ok {
			rule.NextScheduledAt = u.next
		}
		r.mu.Unlock()
	}
	return nil
}

// sameSchedule compares two optional schedule times.
func sameSchedule(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// GetRuleCount returns the number of cached rules.
func (r *Registry) GetRuleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Stats summarises the rule population.
type Stats struct {
	TotalRules int                 `json:"total_rules"`
	Enabled    int                 `json:"enabled"`
	ByTrigger  map[TriggerType]int `json:"by_trigger"`
	ByStatus   map[RuleStatus]int  `json:"by_status"`
}

// GetStats returns aggregate statistics over cached rules.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalRules: len(r.cache),
		ByTrigger:  make(map[TriggerType]int),
		ByStatus:   make(map[RuleStatus]int),
	}
	for _, rule := range r.cache {
		if rule.Enabled {
			stats.Enabled++
		}
		if rule.Trigger != nil {
			stats.ByTrigger[rule.Trigger.Type()]++
		}
		stats.ByStatus[rule.Status]++
	}
	return stats
}
