package automation

import (
	"fmt"

	"github.com/nerrad567/hearth-core/internal/device"
)

// Brightness bounds for set_brightness actions.
const (
	minBrightness = 0
	maxBrightness = 100
)

// ValidateActionFor checks whether a device can accept an action.
// nil means the action is permitted; otherwise the error explains the
// first gate that failed (offline device, missing capability, wrong
// device type, out-of-range value).
//
// NotifyAction targets no device and is always permitted.
func ValidateActionFor(dev *device.Device, a Action) error {
	if _, ok := a.(NotifyAction); ok {
		return nil
	}
	if dev == nil {
		return fmt.Errorf("%w: no device", ErrActionNotPermitted)
	}

	if dev.Status != device.StatusOnline {
		return fmt.Errorf("%w: device %q is %s", ErrDeviceUnavailable, dev.ID, dev.Status)
	}

	switch v := a.(type) {
	case TurnOnAction:
		// Not capability-gated; any online device can be switched.
		if v.Brightness != nil && (*v.Brightness < minBrightness || *v.Brightness > maxBrightness) {
			return fmt.Errorf("%w: brightness %d out of range %d-%d",
				ErrActionNotPermitted, *v.Brightness, minBrightness, maxBrightness)
		}
	case TurnOffAction:
		// Not capability-gated either.
	case SetBrightnessAction:
		if !dev.HasCapability(device.CapBrightness) && !dev.HasCapability(device.CapDim) {
			return fmt.Errorf("%w: device %q is not dimmable", ErrActionNotPermitted, dev.ID)
		}
		if v.Brightness < minBrightness || v.Brightness > maxBrightness {
			return fmt.Errorf("%w: brightness %d out of range %d-%d",
				ErrActionNotPermitted, v.Brightness, minBrightness, maxBrightness)
		}
	case SetColorAction:
		if !dev.HasCapability(device.CapColor) {
			return fmt.Errorf("%w: device %q lacks color capability", ErrActionNotPermitted, dev.ID)
		}
	case SetTemperatureAction:
		if dev.Type != device.DeviceTypeThermostat {
			return fmt.Errorf("%w: device %q is not a thermostat", ErrActionNotPermitted, dev.ID)
		}
	case LockAction, UnlockAction:
		if dev.Type != device.DeviceTypeLock {
			return fmt.Errorf("%w: device %q is not a lock", ErrActionNotPermitted, dev.ID)
		}
	default:
		return fmt.Errorf("%w: unknown action variant %T", ErrInvalidAction, a)
	}

	return nil
}

// ApplyAction returns the state patch an action produces on success.
// The patch is merged into the device's state by the registry; keys not
// in the patch keep their current values.
//
// Call ValidateActionFor first; ApplyAction assumes the action is
// permitted. NotifyAction returns nil (no device state change).
func ApplyAction(a Action) device.State {
	switch v := a.(type) {
	case TurnOnAction:
		patch := device.State{"on": true}
		if v.Brightness != nil {
			patch["brightness"] = *v.Brightness
		}
		return patch
	case TurnOffAction:
		// Brightness is preserved so the previous level is restored
		// the next time the device turns on.
		return device.State{"on": false}
	case SetBrightnessAction:
		patch := device.State{"brightness": v.Brightness}
		// A non-zero level implies the device should be on; zero leaves
		// the power state alone.
		if v.Brightness > 0 {
			patch["on"] = true
		}
		return patch
	case SetColorAction:
		// Setting a colour implies the device should be visible.
		return device.State{"color": v.Color, "on": true}
	case SetTemperatureAction:
		return device.State{"target_temperature": v.Temperature}
	case LockAction:
		return device.State{"locked": true}
	case UnlockAction:
		return device.State{"locked": false}
	case NotifyAction:
		return nil
	}
	return nil
}
