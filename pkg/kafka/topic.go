package kafka

import "fmt"

// TopicPrefix is the prefix of every topic and event type the identity
// service publishes.
const TopicPrefix = "identity"

// Topic builds a dotted topic name: "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
