package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/hearth-core/internal/device"
)

// DeviceRegistry is the slice of the device registry the engine needs:
// resolving action targets and recording optimistic state after a
// command is accepted.
type DeviceRegistry interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	SetDeviceState(ctx context.Context, id string, state device.State) error
}

// DeviceDriver delivers a device command to the outside world.
// The MQTT driver publishes the command; the device's confirmed state
// arrives later on its state topic.
type DeviceDriver interface {
	ControlDevice(ctx context.Context, dev *device.Device, action Action) error
}

// Notifier delivers user-facing notifications produced by notify actions.
type Notifier interface {
	Notify(ctx context.Context, ruleID, message string) error
}

// MetricsRecorder receives per-execution metrics. Satisfied by the
// InfluxDB client; nil disables metrics.
type MetricsRecorder interface {
	WriteExecutionMetric(ruleID, triggerType string, success bool, actionsExecuted int, duration time.Duration)
}

// Engine executes a rule's actions in order.
//
// Failure isolation: one action failing (offline device, missing
// capability, driver error) is recorded and the sequence continues. A
// panic during an action aborts the remainder of that rule's sequence
// but never the process. Exactly one execution record is written per
// firing, after the sequence finishes.
type Engine struct {
	devices       DeviceRegistry
	driver        DeviceDriver
	notifier      Notifier
	metrics       MetricsRecorder
	repo          Repository
	actionTimeout time.Duration
	retention     int
	logger        Logger
}

// EngineConfig carries the engine's collaborators and tuning.
type EngineConfig struct {
	Devices       DeviceRegistry
	Driver        DeviceDriver
	Notifier      Notifier
	Metrics       MetricsRecorder
	Repository    Repository
	ActionTimeout time.Duration
	// Retention is how many execution records to keep per rule.
	Retention int
}

// NewEngine creates an execution engine.
func NewEngine(cfg EngineConfig) *Engine {
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 50
	}
	return &Engine{
		devices:       cfg.Devices,
		driver:        cfg.Driver,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		repo:          cfg.Repository,
		actionTimeout: timeout,
		retention:     retention,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger used by the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Execute runs the rule's actions in order and records the execution.
// triggerType records what fired the rule (the trigger's type, or
// TriggerTypeManual for a manual run).
//
// The returned execution reflects what happened; a non-nil error means
// the record itself could not be persisted.
func (e *Engine) Execute(ctx context.Context, rule *Rule, triggerType TriggerType) (*Execution, error) {
	started := time.Now()

	exec := &Execution{
		ID:           GenerateID(),
		RuleID:       rule.ID,
		TriggeredAt:  started.UTC(),
		TriggerType:  triggerType,
		ActionsTotal: len(rule.Actions),
	}

	e.logger.Info("rule firing", "rule_id", rule.ID, "name", rule.Name,
		"trigger", string(triggerType), "actions", len(rule.Actions))

	for i, action := range rule.Actions {
		if err := e.runAction(ctx, rule, i, action); err != nil {
			exec.Failures = append(exec.Failures, ActionFailure{
				ActionIndex: i,
				ActionType:  action.Type(),
				DeviceID:    action.TargetDevice(),
				ErrorMsg:    err.Error(),
			})
			e.logger.Warn("action failed", "rule_id", rule.ID,
				"action_index", i, "action", string(action.Type()), "error", err)

			if isPanicFailure(err) {
				// A panic means something is structurally wrong with
				// this rule; skip the rest of its sequence.
				e.logger.Error("action panicked, aborting rule sequence",
					"rule_id", rule.ID, "action_index", i)
				break
			}
			continue
		}
		exec.ActionsExecuted++
	}

	exec.Success = exec.ActionsExecuted == exec.ActionsTotal
	if !exec.Success && len(exec.Failures) > 0 {
		msg := exec.Failures[0].ErrorMsg
		exec.Error = &msg
	}
	exec.DurationMS = int(time.Since(started).Milliseconds())

	if e.metrics != nil {
		e.metrics.WriteExecutionMetric(rule.ID, string(triggerType),
			exec.Success, exec.ActionsExecuted, time.Since(started))
	}

	if err := e.repo.CreateExecution(ctx, exec); err != nil {
		return exec, fmt.Errorf("recording execution: %w", err)
	}
	if err := e.repo.PruneExecutions(ctx, rule.ID, e.retention); err != nil {
		e.logger.Warn("pruning executions failed", "rule_id", rule.ID, "error", err)
	}

	return exec, nil
}

// runAction executes one action with panic recovery and a timeout.
func (e *Engine) runAction(ctx context.Context, rule *Rule, index int, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicFailure{value: r}
		}
	}()

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	if notify, ok := action.(NotifyAction); ok {
		// Notifications have no device dependency and count as executed
		// unconditionally; delivery problems are logged, not recorded as
		// action failures.
		if e.notifier == nil {
			e.logger.Warn("no notifier configured, dropping notification",
				"rule_id", rule.ID)
			return nil
		}
		if err := e.notifier.Notify(actionCtx, rule.ID, notify.Message); err != nil {
			e.logger.Warn("notification delivery failed",
				"rule_id", rule.ID, "error", err)
		}
		return nil
	}

	dev, err := e.devices.GetDevice(actionCtx, action.TargetDevice())
	if err != nil {
		return fmt.Errorf("resolving device %q: %w", action.TargetDevice(), err)
	}

	if err := ValidateActionFor(dev, action); err != nil {
		return err
	}

	if err := e.driver.ControlDevice(actionCtx, dev, action); err != nil {
		return fmt.Errorf("controlling device %q: %w", dev.ID, err)
	}

	// Optimistic update: record the expected state now so subsequent
	// triggers in the same run see it. The device's confirmed state
	// overwrites this when it reports back.
	if patch := ApplyAction(action); patch != nil {
		if err := e.devices.SetDeviceState(actionCtx, dev.ID, patch); err != nil {
			e.logger.Warn("optimistic state update failed",
				"device_id", dev.ID, "error", err)
		}
	}

	return nil
}

// panicFailure wraps a recovered panic value as an error.
type panicFailure struct {
	value any
}

func (p panicFailure) Error() string {
	return fmt.Sprintf("action panicked: %v", p.value)
}

// isPanicFailure reports whether an action failure came from a panic.
func isPanicFailure(err error) bool {
	_, ok := err.(panicFailure)
	return ok
}
