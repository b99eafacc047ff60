package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu         sync.Mutex
	rules      map[string]*Rule
	overrides  map[string]*Override
	executions map[string]*Execution
	// For testing error paths
	createErr    error
	updateErr    error
	deleteErr    error
	execErr      error
	overrideErr  error
	triggeredErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		rules:      make(map[string]*Rule),
		overrides:  make(map[string]*Override),
		executions: make(map[string]*Execution),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rules[id]; ok {
		return r.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

func (m *MockRepository) List(_ context.Context) ([]*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := make([]*Rule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r.DeepCopy())
	}
	return rules, nil
}

func (m *MockRepository) Create(_ context.Context, rule *Rule) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; exists {
		return ErrRuleExists
	}
	m.rules[rule.ID] = rule.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, rule *Rule) error {
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; !exists {
		return ErrRuleNotFound
	}
	m.rules[rule.ID] = rule.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[id]; !exists {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	for oid, o := range m.overrides {
		if o.RuleID == id {
			delete(m.overrides, oid)
		}
	}
	return nil
}

func (m *MockRepository) MarkTriggered(_ context.Context, id string, at time.Time, next *time.Time) error {
	if m.triggeredErr != nil {
		return m.triggeredErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	t := at
	rule.LastTriggeredAt = &t
	rule.NextScheduledAt = next
	return nil
}

func (m *MockRepository) UpdateNextScheduled(_ context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.NextScheduledAt = next
	return nil
}

func (m *MockRepository) CreateOverride(_ context.Context, o *Override) error {
	if m.overrideErr != nil {
		return m.overrideErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cpy := *o
	m.overrides[o.ID] = &cpy
	return nil
}

func (m *MockRepository) ListActiveOverrides(_ context.Context, now time.Time) ([]*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*Override
	for _, o := range m.overrides {
		if o.Active(now) {
			cpy := *o
			active = append(active, &cpy)
		}
	}
	return active, nil
}

func (m *MockRepository) DeleteExpiredOverrides(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, o := range m.overrides {
		if !o.Active(now) {
			delete(m.overrides, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MockRepository) DeleteOverridesForRule(_ context.Context, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, o := range m.overrides {
		if o.RuleID == ruleID {
			delete(m.overrides, id)
		}
	}
	return nil
}

func (m *MockRepository) CreateExecution(_ context.Context, e *Execution) error {
	if m.execErr != nil {
		return m.execErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cpy := *e
	m.executions[e.ID] = &cpy
	return nil
}

func (m *MockRepository) GetExecution(_ context.Context, id string) (*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.executions[id]; ok {
		cpy := *e
		return &cpy, nil
	}
	return nil, ErrExecutionNotFound
}

func (m *MockRepository) ListExecutions(_ context.Context, ruleID string, limit int) ([]*Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var executions []*Execution
	for _, e := range m.executions {
		if e.RuleID == ruleID {
			cpy := *e
			executions = append(executions, &cpy)
		}
	}
	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}
	return executions, nil
}

func (m *MockRepository) PruneExecutions(_ context.Context, _ string, _ int) error {
	return nil
}

// executionCount returns how many executions are recorded for a rule.
func (m *MockRepository) executionCount(ruleID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.executions {
		if e.RuleID == ruleID {
			count++
		}
	}
	return count
}

// setupRegistry creates a registry with a mock repository.
func setupRegistry(t *testing.T) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	return registry, repo
}

func TestRegistry_CreateRule(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	t.Run("creates and caches", func(t *testing.T) {
		rule := testRule("", "Evening Lights")
		rule.ID = ""

		created, err := registry.CreateRule(ctx, rule)
		if err != nil {
			t.Fatalf("CreateRule() error = %v", err)
		}
		if created.ID == "" {
			t.Error("CreateRule() did not generate an ID")
		}
		if created.Status != RuleStatusActive {
			t.Errorf("Status = %q, want active", created.Status)
		}

		got, err := registry.GetRule(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetRule() error = %v", err)
		}
		if got.Name != "Evening Lights" {
			t.Errorf("Name = %q, want %q", got.Name, "Evening Lights")
		}
	})

	t.Run("rejects invalid rule", func(t *testing.T) {
		rule := testRule("rule-bad", "Bad")
		rule.Actions = nil

		if _, err := registry.CreateRule(ctx, rule); !errors.Is(err, ErrNoActions) {
			t.Errorf("CreateRule() error = %v, want ErrNoActions", err)
		}
	})

	t.Run("rejects duplicate ID", func(t *testing.T) {
		rule := testRule("rule-dup", "First")
		if _, err := registry.CreateRule(ctx, rule); err != nil {
			t.Fatalf("first CreateRule() error = %v", err)
		}

		dup := testRule("rule-dup", "Second")
		if _, err := registry.CreateRule(ctx, dup); !errors.Is(err, ErrRuleExists) {
			t.Errorf("CreateRule() error = %v, want ErrRuleExists", err)
		}
	})
}

func TestRegistry_GetRule(t *testing.T) {
	registry, repo := setupRegistry(t)
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		if _, err := registry.GetRule(ctx, "missing"); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("GetRule() error = %v, want ErrRuleNotFound", err)
		}
	})

	t.Run("cache miss falls back to repository", func(t *testing.T) {
		rule := testRule("rule-db", "Only In DB")
		if err := repo.Create(ctx, rule); err != nil {
			t.Fatalf("seeding repo: %v", err)
		}

		got, err := registry.GetRule(ctx, "rule-db")
		if err != nil {
			t.Fatalf("GetRule() error = %v", err)
		}
		if got.Name != "Only In DB" {
			t.Errorf("Name = %q, want %q", got.Name, "Only In DB")
		}
	})

	t.Run("returned copy is isolated", func(t *testing.T) {
		rule := testRule("rule-iso", "Isolated")
		if _, err := registry.CreateRule(ctx, rule); err != nil {
			t.Fatalf("CreateRule() error = %v", err)
		}

		first, _ := registry.GetRule(ctx, "rule-iso")
		first.Name = "Mutated"

		second, _ := registry.GetRule(ctx, "rule-iso")
		if second.Name != "Isolated" {
			t.Error("mutating a returned rule changed the cache")
		}
	})
}

func TestRegistry_ListEnabled(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	enabled := testRule("rule-on", "Enabled")
	disabled := testRule("rule-off", "Disabled")
	disabled.Enabled = false
	paused := testRule("rule-paused", "Paused")
	paused.Status = RuleStatusPaused

	for _, r := range []*Rule{enabled, disabled, paused} {
		if _, err := registry.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) error = %v", r.ID, err)
		}
	}

	got := registry.ListEnabled()
	if len(got) != 1 {
		t.Fatalf("ListEnabled() returned %d rules, want 1", len(got))
	}
	if got[0].ID != "rule-on" {
		t.Errorf("ListEnabled()[0].ID = %q, want rule-on", got[0].ID)
	}
}

func TestRegistry_ListTargetingDevice(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	r1 := testRule("rule-1", "Targets light-1")
	r2 := testRule("rule-2", "Targets light-2")
	r2.Actions = ActionList{TurnOnAction{DeviceID: "light-2"}}

	for _, r := range []*Rule{r1, r2} {
		if _, err := registry.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) error = %v", r.ID, err)
		}
	}

	got := registry.ListTargetingDevice("light-1")
	if len(got) != 1 || got[0].ID != "rule-1" {
		t.Errorf("ListTargetingDevice(light-1) = %v, want [rule-1]", got)
	}
}

func TestRegistry_MarkTriggered(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	rule := testRule("rule-fired", "Fires")
	if _, err := registry.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	at := time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC) // Monday 07:30
	if err := registry.MarkTriggered(ctx, "rule-fired", at); err != nil {
		t.Fatalf("MarkTriggered() error = %v", err)
	}

	got, _ := registry.GetRule(ctx, "rule-fired")
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at) {
		t.Errorf("LastTriggeredAt = %v, want %v", got.LastTriggeredAt, at)
	}
	// Trigger is 07:30 Mon/Fri, so the next occurrence is Friday.
	if got.NextScheduledAt == nil {
		t.Fatal("NextScheduledAt = nil, want next occurrence")
	}
	wantNext := time.Date(2026, 8, 28, 7, 30, 0, 0, time.UTC)
	if !got.NextScheduledAt.Equal(wantNext) {
		t.Errorf("NextScheduledAt = %v, want %v", got.NextScheduledAt, wantNext)
	}
}

func TestRegistry_CreateRule_SetsNextScheduled(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	rule := testRule("rule-sched", "Scheduled")
	created, err := registry.CreateRule(ctx, rule)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	// A time rule carries its next occurrence from the moment it exists,
	// not only after it first fires.
	if created.NextScheduledAt == nil {
		t.Error("NextScheduledAt = nil for a new time rule")
	}

	manual := testRule("rule-man", "Manual")
	manual.Trigger = ManualTrigger{}
	createdManual, err := registry.CreateRule(ctx, manual)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if createdManual.NextScheduledAt != nil {
		t.Error("NextScheduledAt set for a manual rule")
	}
}

func TestRegistry_RecomputeSchedules(t *testing.T) {
	registry, repo := setupRegistry(t)
	ctx := context.Background()

	// Seed directly so the rule starts with a stale past schedule.
	stale := time.Date(2026, 8, 21, 7, 30, 0, 0, time.UTC) // previous Friday
	rule := testRule("rule-stale", "Stale Schedule")
	rule.NextScheduledAt = &stale
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("seeding repo: %v", err)
	}
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	// Monday 07:31, one minute past the trigger. The rule did not fire
	// but its schedule must advance anyway.
	now := time.Date(2026, 8, 24, 7, 31, 0, 0, time.UTC)
	if err := registry.RecomputeSchedules(ctx, now); err != nil {
		t.Fatalf("RecomputeSchedules() error = %v", err)
	}

	got, _ := registry.GetRule(ctx, "rule-stale")
	wantNext := time.Date(2026, 8, 28, 7, 30, 0, 0, time.UTC) // Friday
	if got.NextScheduledAt == nil || !got.NextScheduledAt.Equal(wantNext) {
		t.Errorf("NextScheduledAt = %v, want %v", got.NextScheduledAt, wantNext)
	}

	// Persisted, not just cached.
	persisted, _ := repo.GetByID(ctx, "rule-stale")
	if persisted.NextScheduledAt == nil || !persisted.NextScheduledAt.Equal(wantNext) {
		t.Errorf("persisted NextScheduledAt = %v, want %v", persisted.NextScheduledAt, wantNext)
	}

	// A second pass with the same clock is a no-op.
	if err := registry.RecomputeSchedules(ctx, now); err != nil {
		t.Fatalf("second RecomputeSchedules() error = %v", err)
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	rule := testRule("rule-flip", "Flip")
	if _, err := registry.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	if err := registry.SetEnabled(ctx, "rule-flip", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	got, _ := registry.GetRule(ctx, "rule-flip")
	if got.Enabled {
		t.Error("Enabled = true after SetEnabled(false)")
	}
	if len(registry.ListEnabled()) != 0 {
		t.Error("disabled rule still listed as enabled")
	}
}

func TestRegistry_DeleteRule(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	rule := testRule("rule-del", "Doomed")
	if _, err := registry.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	if err := registry.DeleteRule(ctx, "rule-del"); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := registry.GetRule(ctx, "rule-del"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v, want ErrRuleNotFound", err)
	}
	if err := registry.DeleteRule(ctx, "rule-del"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second DeleteRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	registry, repo := setupRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := repo.Create(ctx, testRule(id, "Rule "+id)); err != nil {
			t.Fatalf("seeding repo: %v", err)
		}
	}

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if got := registry.GetRuleCount(); got != 3 {
		t.Errorf("GetRuleCount() = %d, want 3", got)
	}
}

func TestRegistry_GetStats(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	timeRule := testRule("rule-t", "Time Rule")
	moodRule := testRule("rule-m", "Mood Rule")
	moodRule.Trigger = MoodTrigger{Mood: "relax", Operator: OpEquals}
	moodRule.Enabled = false

	for _, r := range []*Rule{timeRule, moodRule} {
		if _, err := registry.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) error = %v", r.ID, err)
		}
	}

	stats := registry.GetStats()
	if stats.TotalRules != 2 {
		t.Errorf("TotalRules = %d, want 2", stats.TotalRules)
	}
	if stats.Enabled != 1 {
		t.Errorf("Enabled = %d, want 1", stats.Enabled)
	}
	if stats.ByTrigger[TriggerTypeTime] != 1 || stats.ByTrigger[TriggerTypeMood] != 1 {
		t.Errorf("ByTrigger = %v, want one time and one mood", stats.ByTrigger)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	rule := testRule("rule-conc", "Concurrent")
	if _, err := registry.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = registry.GetRule(ctx, "rule-conc")
		}()
		go func() {
			defer wg.Done()
			registry.ListEnabled()
		}()
	}
	wg.Wait()
}
