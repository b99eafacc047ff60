package device

import "time"

// Device represents a controllable or monitorable entity in the home.
// This matches the database schema in migrations/20260830_100000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Location (optional room assignment)
	RoomID *string `json:"room_id,omitempty"`

	// Classification
	Type DeviceType `json:"type"`

	// Capabilities describe what actions the device supports.
	Capabilities []Capability `json:"capabilities"`

	// Current state
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	// Connectivity status
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	cpy.State = deepCopyMap(d.State)

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// HasCapability reports whether the device declares the given capability.
func (d *Device) HasCapability(c Capability) bool {
	for _, dc := range d.Capabilities {
		if dc == c {
			return true
		}
	}
	return false
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// State holds the current device state as a JSON map.
//
// Examples:
//   - Light: {"on": true, "brightness": 75}
//   - Thermostat: {"temperature": 21.5, "target_temperature": 22.0}
//   - Lock: {"locked": true}
type State map[string]any

// DeepCopy creates a complete independent copy of the state map.
func (s State) DeepCopy() State {
	return deepCopyMap(s)
}

// DeviceType represents the specific kind of device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	DeviceTypeLight      DeviceType = "light"
	DeviceTypeThermostat DeviceType = "thermostat"
	DeviceTypeLock       DeviceType = "lock"
	DeviceTypeSensor     DeviceType = "sensor"
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeOther      DeviceType = "other"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeLight, DeviceTypeThermostat, DeviceTypeLock,
		DeviceTypeSensor, DeviceTypeCamera, DeviceTypeOther,
	}
}

// Capability represents what a device can do.
type Capability string

// Control capabilities.
const (
	CapOnOff      Capability = "on_off"
	CapBrightness Capability = "brightness"
	CapDim        Capability = "dim"
	CapColor      Capability = "color" //nolint:misspell // state keys use American "color"
)

// Climate capabilities.
const (
	CapTemperatureSet  Capability = "temperature_set"
	CapTemperatureRead Capability = "temperature_read"
	CapHumidityRead    Capability = "humidity_read"
)

// Security capabilities.
const (
	CapLockUnlock   Capability = "lock_unlock"
	CapMotionDetect Capability = "motion_detect"
	CapContactState Capability = "contact_state"
	CapVideoStream  Capability = "video_stream"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{
		// Control
		CapOnOff, CapBrightness, CapDim, CapColor,
		// Climate
		CapTemperatureSet, CapTemperatureRead, CapHumidityRead,
		// Security
		CapLockUnlock, CapMotionDetect, CapContactState, CapVideoStream,
	}
}

// Status represents the device connectivity state.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusError}
}
