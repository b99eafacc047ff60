package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for rule persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a rule by its unique identifier.
	// Returns ErrRuleNotFound if the rule does not exist.
	GetByID(ctx context.Context, id string) (*Rule, error)

	// List retrieves all rules.
	List(ctx context.Context) ([]*Rule, error)

	// Create inserts a new rule.
	// Returns ErrRuleExists if a rule with the same ID already exists.
	Create(ctx context.Context, rule *Rule) error

	// Update modifies an existing rule.
	// Returns ErrRuleNotFound if the rule does not exist.
	Update(ctx context.Context, rule *Rule) error

	// Delete removes a rule and its overrides by ID.
	// Returns ErrRuleNotFound if the rule does not exist.
	Delete(ctx context.Context, id string) error

	// MarkTriggered records a firing timestamp and next occurrence.
	MarkTriggered(ctx context.Context, id string, at time.Time, next *time.Time) error

	// UpdateNextScheduled stores a recomputed next occurrence without
	// touching the firing timestamp.
	UpdateNextScheduled(ctx context.Context, id string, next *time.Time) error

	// CreateOverride inserts a manual override record.
	CreateOverride(ctx context.Context, o *Override) error

	// ListActiveOverrides returns overrides that have not expired at the
	// given time.
	ListActiveOverrides(ctx context.Context, now time.Time) ([]*Override, error)

	// DeleteExpiredOverrides removes overrides whose expiry has passed.
	// Returns the number of rows removed.
	DeleteExpiredOverrides(ctx context.Context, now time.Time) (int, error)

	// DeleteOverridesForRule removes all overrides for a rule.
	DeleteOverridesForRule(ctx context.Context, ruleID string) error

	// CreateExecution appends an execution record.
	CreateExecution(ctx context.Context, e *Execution) error

	// GetExecution retrieves an execution by ID.
	// Returns ErrExecutionNotFound if it does not exist.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns a rule's most recent executions, newest
	// first, up to limit (0 means no limit).
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]*Execution, error)

	// PruneExecutions trims a rule's history to the newest keep records.
	PruneExecutions(ctx context.Context, ruleID string, keep int) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// "trigger" is a reserved word in SQLite so the column is quoted.
const ruleColumns = `id, name, description, "trigger", actions, enabled, status,
			manual_override, last_triggered_at, next_scheduled_at, created_at, updated_at`

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanRuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}
	return rule, nil
}

// List retrieves all rules.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}

	return rules, nil
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	triggerJSON, err := MarshalTrigger(rule.Trigger)
	if err != nil {
		return fmt.Errorf("marshalling trigger: %w", err)
	}

	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rules (
			id, name, description, "trigger", actions, enabled, status,
			manual_override, last_triggered_at, next_scheduled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		nullableString(rule.Description),
		string(triggerJSON),
		string(actionsJSON),
		boolToInt(rule.Enabled),
		string(rule.Status),
		boolToInt(rule.ManualOverride),
		nullableTime(rule.LastTriggeredAt),
		nullableTime(rule.NextScheduledAt),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}

	return nil
}

// Update modifies an existing rule.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	triggerJSON, err := MarshalTrigger(rule.Trigger)
	if err != nil {
		return fmt.Errorf("marshalling trigger: %w", err)
	}

	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE rules SET
			name = ?, description = ?, "trigger" = ?, actions = ?,
			enabled = ?, status = ?, manual_override = ?,
			last_triggered_at = ?, next_scheduled_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		nullableString(rule.Description),
		string(triggerJSON),
		string(actionsJSON),
		boolToInt(rule.Enabled),
		string(rule.Status),
		boolToInt(rule.ManualOverride),
		nullableTime(rule.LastTriggeredAt),
		nullableTime(rule.NextScheduledAt),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// Delete removes a rule, its overrides, and its execution history.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM manual_overrides WHERE rule_id = ?", id); err != nil {
		return fmt.Errorf("deleting rule overrides: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rule_executions WHERE rule_id = ?", id); err != nil {
		return fmt.Errorf("deleting rule executions: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rule delete: %w", err)
	}
	return nil
}

// MarkTriggered records a firing timestamp and next occurrence.
func (r *SQLiteRepository) MarkTriggered(ctx context.Context, id string, at time.Time, next *time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE rules
		SET last_triggered_at = ?, next_scheduled_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339),
		nullableTime(next),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("marking rule triggered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// UpdateNextScheduled stores a recomputed next occurrence.
func (r *SQLiteRepository) UpdateNextScheduled(ctx context.Context, id string, next *time.Time) error {
	query := `UPDATE rules SET next_scheduled_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, nullableTime(next), id)
	if err != nil {
		return fmt.Errorf("updating next scheduled time: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// CreateOverride inserts a manual override record.
func (r *SQLiteRepository) CreateOverride(ctx context.Context, o *Override) error {
	stateJSON, err := json.Marshal(o.OriginalState)
	if err != nil {
		return fmt.Errorf("marshalling original state: %w", err)
	}

	query := `
		INSERT INTO manual_overrides (
			id, rule_id, device_id, reason, original_state, overridden_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		o.ID,
		o.RuleID,
		o.DeviceID,
		o.Reason,
		string(stateJSON),
		o.OverriddenAt.UTC().Format(time.RFC3339),
		nullableTime(o.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting override: %w", err)
	}
	return nil
}

// ListActiveOverrides returns overrides that have not expired.
func (r *SQLiteRepository) ListActiveOverrides(ctx context.Context, now time.Time) ([]*Override, error) {
	query := `
		SELECT id, rule_id, device_id, reason, original_state, overridden_at, expires_at
		FROM manual_overrides
		WHERE expires_at IS NULL OR expires_at > ?
		ORDER BY overridden_at DESC`

	rows, err := r.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*Override
	for rows.Next() {
		o, err := scanOverrideRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		overrides = append(overrides, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}

	return overrides, nil
}

// DeleteExpiredOverrides removes overrides whose expiry has passed.
func (r *SQLiteRepository) DeleteExpiredOverrides(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM manual_overrides WHERE expires_at IS NOT NULL AND expires_at <= ?`

	result, err := r.db.ExecContext(ctx, query, now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired overrides: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// DeleteOverridesForRule removes all overrides for a rule.
func (r *SQLiteRepository) DeleteOverridesForRule(ctx context.Context, ruleID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM manual_overrides WHERE rule_id = ?", ruleID)
	if err != nil {
		return fmt.Errorf("deleting overrides for rule: %w", err)
	}
	return nil
}

// CreateExecution appends an execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, e *Execution) error {
	var failuresJSON string
	if len(e.Failures) > 0 {
		data, err := json.Marshal(e.Failures)
		if err != nil {
			return fmt.Errorf("marshalling failures: %w", err)
		}
		failuresJSON = string(data)
	}

	query := `
		INSERT INTO rule_executions (
			id, rule_id, triggered_at, trigger_type, actions_total,
			actions_executed, success, error, failures, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.RuleID,
		e.TriggeredAt.UTC().Format(time.RFC3339),
		string(e.TriggerType),
		e.ActionsTotal,
		e.ActionsExecuted,
		boolToInt(e.Success),
		nullableString(e.Error),
		sql.NullString{String: failuresJSON, Valid: failuresJSON != ""},
		e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `
		SELECT id, rule_id, triggered_at, trigger_type, actions_total,
			actions_executed, success, error, failures, duration_ms
		FROM rule_executions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	e, err := scanExecutionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns a rule's most recent executions, newest first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, ruleID string, limit int) ([]*Execution, error) {
	query := `
		SELECT id, rule_id, triggered_at, trigger_type, actions_total,
			actions_executed, success, error, failures, duration_ms
		FROM rule_executions
		WHERE rule_id = ?
		ORDER BY triggered_at DESC`
	args := []any{ruleID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecutionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		executions = append(executions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}

	return executions, nil
}

// PruneExecutions trims a rule's history to the newest keep records.
func (r *SQLiteRepository) PruneExecutions(ctx context.Context, ruleID string, keep int) error {
	if keep <= 0 {
		return nil
	}

	query := `
		DELETE FROM rule_executions
		WHERE rule_id = ? AND id NOT IN (
			SELECT id FROM rule_executions
			WHERE rule_id = ?
			ORDER BY triggered_at DESC
			LIMIT ?
		)`

	_, err := r.db.ExecContext(ctx, query, ruleID, ruleID, keep)
	if err != nil {
		return fmt.Errorf("pruning executions: %w", err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRuleRow scans a row or rows result into a Rule.
func scanRuleRow(scanner rowScanner) (*Rule, error) {
	var rule Rule
	var description sql.NullString
	var lastTriggered, nextScheduled sql.NullString
	var triggerJSON, actionsJSON string
	var enabled, manualOverride int
	var status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&description,
		&triggerJSON,
		&actionsJSON,
		&enabled,
		&status,
		&manualOverride,
		&lastTriggered,
		&nextScheduled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled != 0
	rule.ManualOverride = manualOverride != 0
	rule.Status = RuleStatus(status)

	if description.Valid {
		rule.Description = &description.String
	}

	if lastTriggered.Valid {
		t, err := time.Parse(time.RFC3339, lastTriggered.String)
		if err == nil {
			rule.LastTriggeredAt = &t
		}
	}
	if nextScheduled.Valid {
		t, err := time.Parse(time.RFC3339, nextScheduled.String)
		if err == nil {
			rule.NextScheduledAt = &t
		}
	}

	var parseErr error
	rule.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rule.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	rule.Trigger, err = UnmarshalTrigger([]byte(triggerJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshalling trigger: %w", err)
	}

	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling actions: %w", err)
	}

	return &rule, nil
}

// scanOverrideRow scans a row or rows result into an Override.
func scanOverrideRow(scanner rowScanner) (*Override, error) {
	var o Override
	var stateJSON sql.NullString
	var expiresAt sql.NullString
	var overriddenAt string

	err := scanner.Scan(
		&o.ID,
		&o.RuleID,
		&o.DeviceID,
		&o.Reason,
		&stateJSON,
		&overriddenAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	var parseErr error
	o.OverriddenAt, parseErr = time.Parse(time.RFC3339, overriddenAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing overridden_at: %w", parseErr)
	}

	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err == nil {
			o.ExpiresAt = &t
		}
	}

	if stateJSON.Valid && stateJSON.String != "" {
		if err := json.Unmarshal([]byte(stateJSON.String), &o.OriginalState); err != nil {
			return nil, fmt.Errorf("unmarshalling original state: %w", err)
		}
	}

	return &o, nil
}

// scanExecutionRow scans a row or rows result into an Execution.
func scanExecutionRow(scanner rowScanner) (*Execution, error) {
	var e Execution
	var triggeredAt, triggerType string
	var success int
	var errMsg, failuresJSON sql.NullString

	err := scanner.Scan(
		&e.ID,
		&e.RuleID,
		&triggeredAt,
		&triggerType,
		&e.ActionsTotal,
		&e.ActionsExecuted,
		&success,
		&errMsg,
		&failuresJSON,
		&e.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	e.Success = success != 0
	e.TriggerType = TriggerType(triggerType)

	var parseErr error
	e.TriggeredAt, parseErr = time.Parse(time.RFC3339, triggeredAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing triggered_at: %w", parseErr)
	}

	if errMsg.Valid {
		e.Error = &errMsg.String
	}

	if failuresJSON.Valid && failuresJSON.String != "" {
		if err := json.Unmarshal([]byte(failuresJSON.String), &e.Failures); err != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", err)
		}
	}

	return &e, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a bool to the 0/1 form SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
