package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT hierarchy.
//
// Device topics use the flat scheme: hearth/{category}/{device_type}/{device_id}
const (
	// TopicPrefix is the base for all Hearth topics.
	TopicPrefix = "hearth"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("light", "light-living-main")
//	// Returns: "hearth/command/light/light-living-main"
type Topics struct{}

// DeviceCommand returns the topic for commands to a device driver.
//
// Example: hearth/command/light/light-living-main
func (Topics) DeviceCommand(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, deviceType, deviceID)
}

// DeviceState returns the topic for device state updates from the driver layer.
//
// Example: hearth/state/light/light-living-main
func (Topics) DeviceState(deviceType, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, deviceType, deviceID)
}

// Presence returns the topic for presence events for a person.
//
// Example: hearth/presence/person-anna
func (Topics) Presence(personID string) string {
	return fmt.Sprintf("%s/presence/%s", TopicPrefix, personID)
}

// Mood returns the topic for the current inferred household mood.
//
// Example: hearth/mood
func (Topics) Mood() string {
	return fmt.Sprintf("%s/mood", TopicPrefix)
}

// Notification returns the topic for user-facing notifications from rules.
//
// Example: hearth/notify/rule-morning-lights
func (Topics) Notification(ruleID string) string {
	return fmt.Sprintf("%s/notify/%s", TopicPrefix, ruleID)
}

// RuleFired returns the topic for rule execution events.
//
// Example: hearth/automation/rule-morning-lights/fired
func (Topics) RuleFired(ruleID string) string {
	return fmt.Sprintf("%s/automation/%s/fired", TopicPrefix, ruleID)
}

// SystemStatus returns the system status topic.
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state updates.
//
// Pattern: hearth/state/+/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllPresence returns a pattern matching all presence events.
//
// Pattern: hearth/presence/+
func (Topics) AllPresence() string {
	return fmt.Sprintf("%s/presence/+", TopicPrefix)
}
