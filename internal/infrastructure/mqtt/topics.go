package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots for the Flora MQTT hierarchy.
const (
	// TopicRoot prefixes every Flora topic.
	TopicRoot = "flora"

	// TopicPrefixIngest carries device readings: flora/ingest/{device_id}.
	TopicPrefixIngest = TopicRoot + "/ingest"

	// TopicPrefixCommand carries outbound commands: flora/command/{device_id}.
	TopicPrefixCommand = TopicRoot + "/command"

	// TopicPrefixSystem carries service presence.
	TopicPrefixSystem = TopicRoot + "/system"
)

// Topics builds Flora topic strings.
//
//	t := mqtt.Topics{}
//	t.Command("ESP32_001") // "flora/command/ESP32_001"
type Topics struct{}

// Ingest returns the reading topic for one device.
func (Topics) Ingest(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixIngest, deviceID)
}

// AllIngest matches readings from every device.
func (Topics) AllIngest() string {
	return TopicPrefixIngest + "/+"
}

// Command returns the command topic for one device.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, deviceID)
}

// AllCommands matches commands for every device.
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/+"
}

// SystemStatus is the retained presence topic (online, offline, LWT) for
// one client.
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// LastSegment returns the final level of a topic, or "" for an empty topic.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
