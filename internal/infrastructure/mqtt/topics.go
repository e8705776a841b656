package mqtt

import "fmt"

// Topic prefixes for the DiscoAVR MQTT surface.
//
// All topics live under the flat scheme: discoavr/{category}/{subject}
const (
	// TopicPrefix is the base for all DiscoAVR topics.
	TopicPrefix = "discoavr"

	// TopicPrefixAVR is the base for receiver topics.
	TopicPrefixAVR = "discoavr/avr"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "discoavr/system"
)

// Topics provides builders for DiscoAVR MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.AVRState()
//	// Returns: "discoavr/avr/state"
type Topics struct{}

// AVRState returns the topic for retained receiver state snapshots.
//
// Example: discoavr/avr/state
func (Topics) AVRState() string {
	return fmt.Sprintf("%s/state", TopicPrefixAVR)
}

// AVRCommand returns the topic on which command names or raw protocol
// strings are accepted.
//
// Example: discoavr/avr/command
func (Topics) AVRCommand() string {
	return fmt.Sprintf("%s/command", TopicPrefixAVR)
}

// AVREvent returns the topic for receiver lifecycle events
// (connected, disconnected, poll failures).
//
// Example: discoavr/avr/event/connected
func (Topics) AVREvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixAVR, eventType)
}

// SystemStatus returns the system status topic used for LWT and
// online/offline announcements.
//
// Example: discoavr/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllAVREvents returns a pattern matching all receiver events.
//
// Pattern: discoavr/avr/event/+
func (Topics) AllAVREvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixAVR)
}

// AllTopics returns a pattern matching all DiscoAVR topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: discoavr/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
