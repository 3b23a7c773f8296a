package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every nvdisplay topic.
const TopicPrefix = "nvdisplay"

// Topics builds nvdisplay MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.AttributeState("0:1", "vibrance")
//	// Returns: "nvdisplay/state/0:1/vibrance"
type Topics struct{}

// Status is the retained service status topic, also used for the LWT.
//
// Example: nvdisplay/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// AttributeState is the retained last-known value of one attribute.
//
// Example: nvdisplay/state/0:1/vibrance
func (Topics) AttributeState(displayID, attribute string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, displayID, attribute)
}

// AttributeCommand requests a set of one attribute.
//
// Example: nvdisplay/command/0:1/vibrance
func (Topics) AttributeCommand(displayID, attribute string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, displayID, attribute)
}

// Event carries non-retained notifications such as hotplug changes.
//
// Example: nvdisplay/event/hotplug.status_changed
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// AllCommands matches every attribute command.
//
// Pattern: nvdisplay/command/+/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+/+"
}

// AllStates matches every attribute state.
//
// Pattern: nvdisplay/state/+/+
func (Topics) AllStates() string {
	return TopicPrefix + "/state/+/+"
}

// ParseCommand extracts the display and attribute from a command topic.
func (Topics) ParseCommand(topic string) (displayID, attribute string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
