package automation

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies an action variant.
type ActionType string

const (
	ActionTypeTurnOn         ActionType = "turn_on"
	ActionTypeTurnOff        ActionType = "turn_off"
	ActionTypeSetBrightness  ActionType = "set_brightness"
	ActionTypeSetColor       ActionType = "set_color" //nolint:misspell // wire format uses American "color"
	ActionTypeSetTemperature ActionType = "set_temperature"
	ActionTypeLock           ActionType = "lock"
	ActionTypeUnlock         ActionType = "unlock"
	ActionTypeNotify         ActionType = "notify"
)

// AllActionTypes returns all valid action type values.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionTypeTurnOn, ActionTypeTurnOff, ActionTypeSetBrightness,
		ActionTypeSetColor, ActionTypeSetTemperature,
		ActionTypeLock, ActionTypeUnlock, ActionTypeNotify,
	}
}

// Action is the closed set of rule actions.
//
// Every variant except NotifyAction targets a device. The unexported
// method keeps the set closed so the executor's type switch is
// exhaustive.
type Action interface {
	Type() ActionType

	// TargetDevice returns the device the action is directed at,
	// or "" for actions that target no device (notify).
	TargetDevice() string

	isAction()
}

// TurnOnAction switches a device on, optionally at a specific
// brightness level.
type TurnOnAction struct {
	DeviceID string `json:"device_id"`

	// Brightness, when set, is applied along with the power-on (0-100).
	Brightness *int `json:"brightness,omitempty"`
}

func (TurnOnAction) Type() ActionType       { return ActionTypeTurnOn }
func (a TurnOnAction) TargetDevice() string { return a.DeviceID }
func (TurnOnAction) isAction()              {}

// TurnOffAction switches a device off. Brightness and colour settings
// are left untouched so the device returns to them when turned back on.
type TurnOffAction struct {
	DeviceID string `json:"device_id"`
}

func (TurnOffAction) Type() ActionType       { return ActionTypeTurnOff }
func (a TurnOffAction) TargetDevice() string { return a.DeviceID }
func (TurnOffAction) isAction()              {}

// SetBrightnessAction sets a dimmable device's brightness (0-100).
type SetBrightnessAction struct {
	DeviceID   string `json:"device_id"`
	Brightness int    `json:"brightness"`
}

func (SetBrightnessAction) Type() ActionType       { return ActionTypeSetBrightness }
func (a SetBrightnessAction) TargetDevice() string { return a.DeviceID }
func (SetBrightnessAction) isAction()              {}

// SetColorAction sets a colour-capable device's colour (hex "#RRGGBB").
type SetColorAction struct {
	DeviceID string `json:"device_id"`
	Color    string `json:"color"` //nolint:misspell // wire format uses American "color"
}

func (SetColorAction) Type() ActionType       { return ActionTypeSetColor }
func (a SetColorAction) TargetDevice() string { return a.DeviceID }
func (SetColorAction) isAction()              {}

// SetTemperatureAction sets a thermostat's target temperature in celsius.
type SetTemperatureAction struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
}

func (SetTemperatureAction) Type() ActionType       { return ActionTypeSetTemperature }
func (a SetTemperatureAction) TargetDevice() string { return a.DeviceID }
func (SetTemperatureAction) isAction()              {}

// LockAction engages a lock.
type LockAction struct {
	DeviceID string `json:"device_id"`
}

func (LockAction) Type() ActionType       { return ActionTypeLock }
func (a LockAction) TargetDevice() string { return a.DeviceID }
func (LockAction) isAction()              {}

// UnlockAction disengages a lock.
type UnlockAction struct {
	DeviceID string `json:"device_id"`
}

func (UnlockAction) Type() ActionType       { return ActionTypeUnlock }
func (a UnlockAction) TargetDevice() string { return a.DeviceID }
func (UnlockAction) isAction()              {}

// NotifyAction publishes a user-facing notification. It targets no
// device and always executes, even when device actions around it fail.
type NotifyAction struct {
	Message string `json:"message"`
}

func (NotifyAction) Type() ActionType     { return ActionTypeNotify }
func (NotifyAction) TargetDevice() string { return "" }
func (NotifyAction) isAction()            {}

// ActionList is an ordered list of actions with tagged JSON encoding.
type ActionList []Action

// actionEnvelope is the JSON wire form of an action: the variant's own
// fields plus a "type" discriminator.
type actionEnvelope struct {
	Type        ActionType `json:"type"`
	DeviceID    string     `json:"device_id,omitempty"`
	Brightness  *int       `json:"brightness,omitempty"`
	Color       string     `json:"color,omitempty"` //nolint:misspell // wire format uses American "color"
	Temperature *float64   `json:"temperature,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// MarshalJSON encodes each action as a tagged envelope.
func (l ActionList) MarshalJSON() ([]byte, error) {
	envelopes := make([]actionEnvelope, 0, len(l))
	for _, a := range l {
		env, err := envelopeFor(a)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return json.Marshal(envelopes)
}

// UnmarshalJSON decodes tagged envelopes into concrete action variants.
func (l *ActionList) UnmarshalJSON(data []byte) error {
	var envelopes []actionEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}

	actions := make(ActionList, 0, len(envelopes))
	for i, env := range envelopes {
		action, err := actionFrom(env)
		if err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
		actions = append(actions, action)
	}
	*l = actions
	return nil
}

func envelopeFor(a Action) (actionEnvelope, error) {
	if a == nil {
		return actionEnvelope{}, fmt.Errorf("%w: action is nil", ErrInvalidAction)
	}

	env := actionEnvelope{Type: a.Type(), DeviceID: a.TargetDevice()}
	switch v := a.(type) {
	case TurnOnAction:
		if v.Brightness != nil {
			b := *v.Brightness
			env.Brightness = &b
		}
	case TurnOffAction, LockAction, UnlockAction:
		// Type and device only
	case SetBrightnessAction:
		b := v.Brightness
		env.Brightness = &b
	case SetColorAction:
		env.Color = v.Color
	case SetTemperatureAction:
		t := v.Temperature
		env.Temperature = &t
	case NotifyAction:
		env.Message = v.Message
	default:
		return actionEnvelope{}, fmt.Errorf("%w: unknown action variant %T", ErrInvalidAction, a)
	}
	return env, nil
}

func actionFrom(env actionEnvelope) (Action, error) {
	switch env.Type {
	case ActionTypeTurnOn:
		a := TurnOnAction{DeviceID: env.DeviceID}
		if env.Brightness != nil {
			b := *env.Brightness
			a.Brightness = &b
		}
		return a, nil
	case ActionTypeTurnOff:
		return TurnOffAction{DeviceID: env.DeviceID}, nil
	case ActionTypeSetBrightness:
		if env.Brightness == nil {
			return nil, fmt.Errorf("%w: set_brightness requires brightness", ErrInvalidAction)
		}
		return SetBrightnessAction{DeviceID: env.DeviceID, Brightness: *env.Brightness}, nil
	case ActionTypeSetColor:
		return SetColorAction{DeviceID: env.DeviceID, Color: env.Color}, nil
	case ActionTypeSetTemperature:
		if env.Temperature == nil {
			return nil, fmt.Errorf("%w: set_temperature requires temperature", ErrInvalidAction)
		}
		return SetTemperatureAction{DeviceID: env.DeviceID, Temperature: *env.Temperature}, nil
	case ActionTypeLock:
		return LockAction{DeviceID: env.DeviceID}, nil
	case ActionTypeUnlock:
		return UnlockAction{DeviceID: env.DeviceID}, nil
	case ActionTypeNotify:
		return NotifyAction{Message: env.Message}, nil
	}
	return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, env.Type)
}
