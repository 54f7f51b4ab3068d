package call

import "strings"

// bookingConfirmationPhrases are the phrasings an assistant turn uses once
// a booking has actually been confirmed with the caller, as opposed to
// merely discussing availability.
var bookingConfirmationPhrases = []string{
	"you're all set", "youre all set", "you are all set",
	"you're booked", "youre booked", "all booked",
	"booked you in", "confirmed your", "see you then",
	"we'll see you", "we will see you",
}

func looksLikeBookingConfirmation(content string) bool {
	c := strings.ToLower(strings.TrimSpace(content))
	if c == "" {
		return false
	}
	for _, phrase := range bookingConfirmationPhrases {
		if strings.Contains(c, phrase) {
			return true
		}
	}
	return false
}
