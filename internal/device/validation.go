package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100

	// Size limits for JSON fields to prevent memory exhaustion from
	// oversized payloads. Generous limits for home automation use.
	maxStateKeys      = 100  // Max keys in state map (devices can have many readings)
	maxCapabilities   = 20   // Max capabilities per device
	maxStringValueLen = 1024 // Max length for string values in JSON maps
)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validDeviceTypes  map[DeviceType]struct{}
	validCapabilities map[Capability]struct{}
	validStatuses     map[Status]struct{}
)

func init() {
	// Build validation sets once at startup
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validCapabilities = make(map[Capability]struct{}, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		validCapabilities[c] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	// Validate name
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	// Validate type
	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	// Validate capabilities if provided
	if len(d.Capabilities) > 0 {
		if err := ValidateCapabilities(d.Capabilities); err != nil {
			return err
		}
	}

	// Validate state size if provided
	if len(d.State) > maxStateKeys {
		return fmt.Errorf("%w: state exceeds max keys (%d)", ErrInvalidState, maxStateKeys)
	}
	if err := validateMapSize(d.State, "state"); err != nil {
		return err
	}

	// Validate status if set
	if d.Status != "" {
		if err := ValidateStatus(d.Status); err != nil {
			return err
		}
	}

	return nil
}

// maxNestingDepth prevents stack overflow from deeply nested structures.
const maxNestingDepth = 10

// validateMapSize checks that all values in a map don't exceed size limits.
// This recursively validates nested maps and slices.
func validateMapSize(m map[string]any, fieldName string) error {
	return validateMapSizeRecursive(m, fieldName, 0)
}

// validateMapSizeRecursive recursively validates map values with depth tracking.
func validateMapSizeRecursive(m map[string]any, fieldName string, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: %s exceeds maximum nesting depth", ErrInvalidDevice, fieldName)
	}

	for k, v := range m {
		// Check key length
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: %s key too long", ErrInvalidDevice, fieldName)
		}
		// Recursively validate values
		if err := validateValueSize(v, fieldName, depth); err != nil {
			return err
		}
	}
	return nil
}

// validateValueSize recursively validates a value's size.
func validateValueSize(v any, fieldName string, depth int) error {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: %s string value too long", ErrInvalidDevice, fieldName)
		}
	case map[string]any:
		if len(val) > maxStateKeys {
			return fmt.Errorf("%w: %s nested map too large", ErrInvalidDevice, fieldName)
		}
		return validateMapSizeRecursive(val, fieldName, depth+1)
	case []any:
		if len(val) > maxStateKeys {
			return fmt.Errorf("%w: %s array too large", ErrInvalidDevice, fieldName)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, fieldName, depth+1); err != nil {
				return err
			}
		}
	}
	// Primitives (bool, int, float64, etc.) are safe
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateDeviceType checks if a device type is valid.
// Uses O(1) map lookup for efficiency.
func ValidateDeviceType(deviceType DeviceType) error {
	if _, ok := validDeviceTypes[deviceType]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
}

// ValidateCapabilities checks if all capabilities are valid.
// Uses O(1) map lookup for each capability.
func ValidateCapabilities(caps []Capability) error {
	if len(caps) > maxCapabilities {
		return fmt.Errorf("%w: too many capabilities (max %d)", ErrInvalidCapability, maxCapabilities)
	}
	for _, cap := range caps {
		if _, ok := validCapabilities[cap]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, cap)
		}
	}
	return nil
}

// ValidateStatus checks if a status is valid.
// Uses O(1) map lookup for efficiency.
func ValidateStatus(status Status) error {
	if _, ok := validStatuses[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
