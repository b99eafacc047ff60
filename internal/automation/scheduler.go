package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/hearth-core/internal/device"
)

// SnapshotProvider supplies the frozen device view a tick evaluates
// against. Satisfied by the device registry.
type SnapshotProvider interface {
	Snapshot() map[string]*device.Device
}

// PresenceSource supplies current presence states, keyed by person ID.
type PresenceSource interface {
	PresenceStates() map[string]PresenceState
}

// MoodSource supplies the current household mood ("" when unknown).
type MoodSource interface {
	CurrentMood() string
}

// Scheduler drives rule evaluation: a cron job ticks once a minute in
// the site's timezone, evaluates every enabled rule against a single
// snapshot, and dispatches firing rules to the engine.
//
// Each firing rule executes in its own goroutine so one slow device
// cannot delay the others. A rule still executing when its trigger
// fires again is skipped for that tick, not queued.
type Scheduler struct {
	rules     *Registry
	overrides *OverrideRegistry
	engine    *Engine
	devices   SnapshotProvider
	presence  PresenceSource
	mood      MoodSource

	cron         *cron.Cron
	tickInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger Logger
}

// SchedulerConfig carries the scheduler's collaborators.
type SchedulerConfig struct {
	Rules     *Registry
	Overrides *OverrideRegistry
	Engine    *Engine
	Devices   SnapshotProvider
	Presence  PresenceSource
	Mood      MoodSource
	// Location is the site timezone time triggers evaluate in.
	Location *time.Location

	// TickInterval is the evaluation cadence. Zero means one tick per
	// minute; sub-minute cadences are mainly useful for testing.
	TickInterval time.Duration
}

// NewScheduler creates a scheduler. Call Start to begin ticking.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		rules:        cfg.Rules,
		overrides:    cfg.Overrides,
		engine:       cfg.Engine,
		devices:      cfg.Devices,
		presence:     cfg.Presence,
		mood:         cfg.Mood,
		cron:         cron.New(cron.WithLocation(loc)),
		tickInterval: interval,
		inFlight:     make(map[string]struct{}),
		logger:       noopLogger{},
	}
}

// tickSpec returns the cron spec for the configured cadence. The default
// minute cadence aligns ticks to wall-clock minute boundaries; any other
// cadence runs on a fixed interval from startup.
func (s *Scheduler) tickSpec() string {
	if s.tickInterval == time.Minute {
		return "* * * * *"
	}
	return "@every " + s.tickInterval.String()
}

// SetLogger sets the logger used by the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start begins the minute tick. The context bounds all rule
// executions the scheduler dispatches.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.tickSpec(), func() {
		s.Tick(time.Now().In(s.cron.Location()))
	}); err != nil {
		return fmt.Errorf("registering tick job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"timezone", s.cron.Location().String(),
		"interval", s.tickInterval.String(),
	)
	return nil
}

// Stop halts ticking and waits for in-flight rule executions to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Tick evaluates every enabled rule against a snapshot taken at now.
// Exported so a manual tick can be driven in tests and diagnostics.
func (s *Scheduler) Tick(now time.Time) {
	if s.ctx == nil {
		s.ctx = context.Background()
	}

	if err := s.overrides.ClearExpired(s.ctx, now); err != nil {
		s.logger.Warn("clearing expired overrides failed", "error", err)
	}

	evalCtx := EvalContext{
		Now:     now,
		Devices: s.devices.Snapshot(),
	}
	if s.mood != nil {
		evalCtx.Mood = s.mood.CurrentMood()
	}
	if s.presence != nil {
		evalCtx.Presence = s.presence.PresenceStates()
	}

	for _, rule := range s.rules.ListEnabled() {
		// Suppression is checked before the trigger: an overridden rule
		// is not evaluated at all.
		if s.overrides.IsSuppressed(rule.ID, now) {
			s.logger.Debug("rule suppressed by override", "rule_id", rule.ID)
			continue
		}

		fire, err := Evaluate(rule.Trigger, evalCtx)
		if err != nil {
			s.logger.Warn("trigger evaluation failed",
				"rule_id", rule.ID, "error", err)
			continue
		}
		if !fire {
			continue
		}

		if !s.claim(rule.ID) {
			s.logger.Warn("rule still executing, skipping tick",
				"rule_id", rule.ID)
			continue
		}

		s.dispatch(rule, now)
	}

	if err := s.rules.RecomputeSchedules(s.ctx, now); err != nil {
		s.logger.Warn("recomputing schedules failed", "error", err)
	}
}

// RunRule fires a rule immediately, regardless of its trigger.
// Disabled rules return ErrRuleDisabled; a rule already executing
// returns ErrRuleBusy. Overrides do not block manual runs. The
// execution is synchronous.
func (s *Scheduler) RunRule(ctx context.Context, ruleID string) (*Execution, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}

	if !s.claim(rule.ID) {
		return nil, ErrRuleBusy
	}
	defer s.release(rule.ID)

	exec, err := s.engine.Execute(ctx, rule, TriggerTypeManual)
	if err != nil {
		return exec, err
	}

	if err := s.rules.MarkTriggered(ctx, rule.ID, time.Now()); err != nil {
		s.logger.Warn("marking rule triggered failed", "rule_id", rule.ID, "error", err)
	}
	return exec, nil
}

// dispatch runs a firing rule in its own goroutine.
func (s *Scheduler) dispatch(rule *Rule, now time.Time) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(rule.ID)

		if _, err := s.engine.Execute(s.ctx, rule, rule.Trigger.Type()); err != nil {
			s.logger.Error("rule execution record failed",
				"rule_id", rule.ID, "error", err)
		}

		if err := s.rules.MarkTriggered(s.ctx, rule.ID, now); err != nil {
			s.logger.Warn("marking rule triggered failed",
				"rule_id", rule.ID, "error", err)
		}
	}()
}

// claim marks a rule as executing. Returns false if it already is.
func (s *Scheduler) claim(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[ruleID]; busy {
		return false
	}
	s.inFlight[ruleID] = struct{}{}
	return true
}

// release clears a rule's executing mark.
func (s *Scheduler) release(ruleID string) {
	s.mu.Lock()
	delete(s.inFlight, ruleID)
	s.mu.Unlock()
}
