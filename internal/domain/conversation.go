package domain

import "regexp"

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidConversationID reports whether id is safe to use as a storage key and
// as a single MQTT topic level: ASCII letters, digits, '-' or '_', at most 128
// characters. Generated UUIDs always qualify.
func ValidConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}
