package mqttws

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrEmptyTopic = errors.New("topic cannot be empty")

const topicSeparator = '/'

// NormalizeTopic strips a single leading path separator from a topic name.
// Topic registration accepts "/rooms/1" and "rooms/1" as the same topic.
func NormalizeTopic(topic string) string {
	return strings.TrimPrefix(topic, string(topicSeparator))
}

// ValidateTopicName validates a topic name: it must be non-empty, valid
// UTF-8, and contain printable characters only. Control characters make a
// topic unusable for registration.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if !unicode.IsPrint(r) {
			return ErrInvalidTopicName
		}
	}

	return nil
}
