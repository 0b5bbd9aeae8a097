package application

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

// ValidRecipient reports whether recipient is well formed for ch. The check
// is syntactic only and says nothing about deliverability.
func ValidRecipient(ch model.Channel, recipient string) bool {
	switch ch {
	case model.ChannelEmail:
		return emailPattern.MatchString(recipient)
	case model.ChannelSMS:
		return phonePattern.MatchString(recipient)
	case model.ChannelPush:
		return recipient != "" && strings.IndexFunc(recipient, unicode.IsSpace) < 0
	default:
		return false
	}
}

// PartitionRecipients splits recipients into valid and invalid lists,
// trimming surrounding whitespace and preserving order.
func PartitionRecipients(ch model.Channel, recipients []string) (valid, invalid []string) {
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if ValidRecipient(ch, r) {
			valid = append(valid, r)
		} else {
			invalid = append(invalid, r)
		}
	}
	return valid, invalid
}
