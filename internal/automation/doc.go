// Package automation implements the rule engine: triggers, actions,
// evaluation, execution, manual overrides, and scheduling.
//
// A Rule binds one trigger (time, presence, device state, mood, or
// manual) to an ordered list of actions. The Scheduler ticks once a
// minute, evaluates every enabled rule against a single snapshot of
// the world, and hands firing rules to the Engine, which executes
// their actions through the device driver with per-action failure
// isolation.
//
// Manual control of a device suppresses the rules targeting it for a
// configurable window via the OverrideRegistry, so a person flicking
// a switch wins over the automation for a while.
//
// Rules, overrides, and execution history persist in SQLite through
// the Repository; the Registry serves cached deep copies on top.
package automation
