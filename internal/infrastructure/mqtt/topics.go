package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every Boardflow topic.
const DefaultTopicPrefix = "boardflow"

// Topics builds Boardflow topic names under a configurable prefix.
//
//	topics := mqtt.NewTopics("boardflow")
//	topics.UserAction("card.moved")
//	// Returns: "boardflow/user/action/card.moved"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimRight(prefix, "/")}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// UserAction returns the topic a domain event of the given type is published on.
//
// Example: boardflow/user/action/card.moved
func (t Topics) UserAction(eventType string) string {
	return fmt.Sprintf("%s/user/action/%s", t.root(), eventType)
}

// AllUserActions returns the subscription pattern covering every event type.
//
// Pattern: boardflow/user/action/+
func (t Topics) AllUserActions() string {
	return fmt.Sprintf("%s/user/action/+", t.root())
}

// MentionNotification returns the topic mention notifications are sent on.
//
// Example: boardflow/notification/mention
func (t Topics) MentionNotification() string {
	return fmt.Sprintf("%s/notification/mention", t.root())
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: boardflow/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// ActionType extracts the event type from a user action topic.
// It returns false for topics outside the user action namespace.
func (t Topics) ActionType(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/user/action/", t.root())
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	eventType := strings.TrimPrefix(topic, prefix)
	if eventType == "" || strings.Contains(eventType, "/") {
		return "", false
	}
	return eventType, true
}
