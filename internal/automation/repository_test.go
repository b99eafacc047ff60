package automation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/hearth-core/internal/device"
)

// setupTestDB creates an in-memory SQLite database with the rule tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Create tables matching the schema
	schema := `
		CREATE TABLE rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			"trigger" TEXT NOT NULL,
			actions TEXT NOT NULL DEFAULT '[]',
			enabled INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'active',
			manual_override INTEGER NOT NULL DEFAULT 1,
			last_triggered_at TEXT,
			next_scheduled_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE manual_overrides (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			original_state TEXT,
			overridden_at TEXT NOT NULL,
			expires_at TEXT
		) STRICT;
		CREATE TABLE rule_executions (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			triggered_at TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			actions_total INTEGER NOT NULL DEFAULT 0,
			actions_executed INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			failures TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		) STRICT;
		CREATE INDEX idx_overrides_rule_id ON manual_overrides(rule_id);
		CREATE INDEX idx_executions_rule_id ON rule_executions(rule_id, triggered_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("round-trips a rule", func(t *testing.T) {
		desc := "warm white at dusk"
		rule := testRule("rule-001", "Dusk Lights")
		rule.Description = &desc
		rule.Trigger = TimeTrigger{At: "18:45", Days: []Weekday{Monday, Tuesday}}
		rule.Actions = ActionList{
			SetBrightnessAction{DeviceID: "light-1", Brightness: 35},
			NotifyAction{Message: "dusk scene on"},
		}

		if err := repo.Create(ctx, rule); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "rule-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Dusk Lights" || got.Description == nil || *got.Description != desc {
			t.Errorf("identity = %q/%v", got.Name, got.Description)
		}
		trigger, ok := got.Trigger.(TimeTrigger)
		if !ok || trigger.At != "18:45" || len(trigger.Days) != 2 {
			t.Errorf("Trigger = %+v, want the time trigger back", got.Trigger)
		}
		if len(got.Actions) != 2 {
			t.Fatalf("Actions = %d, want 2", len(got.Actions))
		}
		if sb, ok := got.Actions[0].(SetBrightnessAction); !ok || sb.Brightness != 35 {
			t.Errorf("Actions[0] = %+v", got.Actions[0])
		}
		if !got.Enabled || !got.ManualOverride {
			t.Error("flags not round-tripped")
		}
	})

	t.Run("duplicate ID", func(t *testing.T) {
		rule := testRule("rule-001", "Duplicate")
		if err := repo.Create(ctx, rule); !errors.Is(err, ErrRuleExists) {
			t.Errorf("Create() error = %v, want ErrRuleExists", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("GetByID() error = %v, want ErrRuleNotFound", err)
		}
	})
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rule := testRule("rule-001", "Before")
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rule.Name = "After"
	rule.Enabled = false
	rule.Trigger = MoodTrigger{Mood: "sleep", Operator: OpEquals}
	if err := repo.Update(ctx, rule); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "rule-001")
	if got.Name != "After" || got.Enabled {
		t.Errorf("got %q enabled=%v, want After disabled", got.Name, got.Enabled)
	}
	if _, ok := got.Trigger.(MoodTrigger); !ok {
		t.Errorf("Trigger = %T, want MoodTrigger", got.Trigger)
	}

	t.Run("missing rule", func(t *testing.T) {
		ghost := testRule("ghost", "Ghost")
		if err := repo.Update(ctx, ghost); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("Update() error = %v, want ErrRuleNotFound", err)
		}
	})
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rule := testRule("rule-001", "Doomed")
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Attach an override and an execution; Delete must sweep them too.
	expires := time.Now().UTC().Add(time.Hour)
	if err := repo.CreateOverride(ctx, &Override{
		ID: "ov-1", RuleID: "rule-001", DeviceID: "light-1",
		OverriddenAt: time.Now().UTC(), ExpiresAt: &expires,
	}); err != nil {
		t.Fatalf("CreateOverride() error = %v", err)
	}
	if err := repo.CreateExecution(ctx, &Execution{
		ID: "ex-1", RuleID: "rule-001", TriggeredAt: time.Now().UTC(),
		TriggerType: TriggerTypeTime, ActionsTotal: 1, ActionsExecuted: 1, Success: true,
	}); err != nil {
		t.Fatalf("CreateExecution() error = %v", err)
	}

	if err := repo.Delete(ctx, "rule-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "rule-001"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
	overrides, _ := repo.ListActiveOverrides(ctx, time.Now().UTC())
	if len(overrides) != 0 {
		t.Error("overrides survived rule delete")
	}
	executions, _ := repo.ListExecutions(ctx, "rule-001", 0)
	if len(executions) != 0 {
		t.Error("executions survived rule delete")
	}

	if err := repo.Delete(ctx, "rule-001"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRuleNotFound", err)
	}
}

func TestSQLiteRepository_MarkTriggered(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rule := testRule("rule-001", "Fires")
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC)
	next := at.Add(24 * time.Hour)
	if err := repo.MarkTriggered(ctx, "rule-001", at, &next); err != nil {
		t.Fatalf("MarkTriggered() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "rule-001")
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at) {
		t.Errorf("LastTriggeredAt = %v, want %v", got.LastTriggeredAt, at)
	}
	if got.NextScheduledAt == nil || !got.NextScheduledAt.Equal(next) {
		t.Errorf("NextScheduledAt = %v, want %v", got.NextScheduledAt, next)
	}
}

func TestSQLiteRepository_UpdateNextScheduled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rule := testRule("rule-001", "Scheduled")
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next := time.Date(2026, 8, 28, 7, 30, 0, 0, time.UTC)
	if err := repo.UpdateNextScheduled(ctx, "rule-001", &next); err != nil {
		t.Fatalf("UpdateNextScheduled() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, "rule-001")
	if got.NextScheduledAt == nil || !got.NextScheduledAt.Equal(next) {
		t.Errorf("NextScheduledAt = %v, want %v", got.NextScheduledAt, next)
	}

	t.Run("clears with nil", func(t *testing.T) {
		if err := repo.UpdateNextScheduled(ctx, "rule-001", nil); err != nil {
			t.Fatalf("UpdateNextScheduled() error = %v", err)
		}
		got, _ := repo.GetByID(ctx, "rule-001")
		if got.NextScheduledAt != nil {
			t.Errorf("NextScheduledAt = %v, want nil", got.NextScheduledAt)
		}
	})

	t.Run("missing rule", func(t *testing.T) {
		if err := repo.UpdateNextScheduled(ctx, "ghost", &next); !errors.Is(err, ErrRuleNotFound) {
			t.Errorf("UpdateNextScheduled() error = %v, want ErrRuleNotFound", err)
		}
	})
}

func TestSQLiteRepository_Overrides(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	live := now.Add(time.Hour)
	dead := now.Add(-time.Hour)

	for _, o := range []*Override{
		{
			ID: "ov-live", RuleID: "rule-1", DeviceID: "light-1", Reason: "wall switch",
			OriginalState: device.State{"on": true}, OverriddenAt: now, ExpiresAt: &live,
		},
		{ID: "ov-dead", RuleID: "rule-2", DeviceID: "light-2", OverriddenAt: now, ExpiresAt: &dead},
		{ID: "ov-forever", RuleID: "rule-3", DeviceID: "light-3", OverriddenAt: now},
	} {
		if err := repo.CreateOverride(ctx, o); err != nil {
			t.Fatalf("CreateOverride(%s) error = %v", o.ID, err)
		}
	}

	t.Run("lists only active", func(t *testing.T) {
		active, err := repo.ListActiveOverrides(ctx, now)
		if err != nil {
			t.Fatalf("ListActiveOverrides() error = %v", err)
		}
		if len(active) != 2 {
			t.Fatalf("active = %d, want 2 (live and no-expiry)", len(active))
		}
		for _, o := range active {
			if o.ID == "ov-dead" {
				t.Error("expired override listed as active")
			}
			if o.ID == "ov-live" && o.OriginalState["on"] != true {
				t.Errorf("OriginalState = %v, want on:true", o.OriginalState)
			}
		}
	})

	t.Run("deletes expired", func(t *testing.T) {
		removed, err := repo.DeleteExpiredOverrides(ctx, now)
		if err != nil {
			t.Fatalf("DeleteExpiredOverrides() error = %v", err)
		}
		if removed != 1 {
			t.Errorf("removed = %d, want 1", removed)
		}
	})

	t.Run("deletes for rule", func(t *testing.T) {
		if err := repo.DeleteOverridesForRule(ctx, "rule-3"); err != nil {
			t.Fatalf("DeleteOverridesForRule() error = %v", err)
		}
		active, _ := repo.ListActiveOverrides(ctx, now)
		if len(active) != 1 {
			t.Errorf("active = %d, want 1", len(active))
		}
	})
}

func TestSQLiteRepository_Executions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	errMsg := "light-2: device timed out"
	for i := 0; i < 5; i++ {
		e := &Execution{
			ID:              GenerateID(),
			RuleID:          "rule-001",
			TriggeredAt:     base.Add(time.Duration(i) * time.Minute),
			TriggerType:     TriggerTypeTime,
			ActionsTotal:    2,
			ActionsExecuted: 2,
			Success:         true,
			DurationMS:      120,
		}
		if i == 4 {
			e.Success = false
			e.ActionsExecuted = 1
			e.Error = &errMsg
			e.Failures = []ActionFailure{{
				ActionIndex: 1, ActionType: ActionTypeTurnOn,
				DeviceID: "light-2", ErrorMsg: errMsg,
			}}
		}
		if err := repo.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution(%d) error = %v", i, err)
		}
	}

	t.Run("lists newest first with limit", func(t *testing.T) {
		got, err := repo.ListExecutions(ctx, "rule-001", 3)
		if err != nil {
			t.Fatalf("ListExecutions() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if !got[0].TriggeredAt.After(got[1].TriggeredAt) {
			t.Error("executions not ordered newest first")
		}
		// Newest is the failed run; failure details round-trip.
		if got[0].Success {
			t.Error("newest execution should be the failed one")
		}
		if len(got[0].Failures) != 1 || got[0].Failures[0].DeviceID != "light-2" {
			t.Errorf("Failures = %+v", got[0].Failures)
		}
	})

	t.Run("prunes history", func(t *testing.T) {
		if err := repo.PruneExecutions(ctx, "rule-001", 2); err != nil {
			t.Fatalf("PruneExecutions() error = %v", err)
		}
		got, _ := repo.ListExecutions(ctx, "rule-001", 0)
		if len(got) != 2 {
			t.Errorf("after prune len = %d, want 2", len(got))
		}
	})

	t.Run("get by id", func(t *testing.T) {
		got, _ := repo.ListExecutions(ctx, "rule-001", 1)
		if len(got) != 1 {
			t.Fatal("no executions left")
		}
		fetched, err := repo.GetExecution(ctx, got[0].ID)
		if err != nil {
			t.Fatalf("GetExecution() error = %v", err)
		}
		if fetched.RuleID != "rule-001" {
			t.Errorf("RuleID = %q", fetched.RuleID)
		}

		if _, err := repo.GetExecution(ctx, "missing"); !errors.Is(err, ErrExecutionNotFound) {
			t.Errorf("GetExecution(missing) error = %v, want ErrExecutionNotFound", err)
		}
	})
}
