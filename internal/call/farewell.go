package call

import "strings"

// farewellPhrases are explicit sign-offs, distinct from mere politeness
// such as "thanks" or "thank you" which never end a call on their own.
var farewellPhrases = []string{
	"bye", "bye bye", "goodbye", "good bye",
	"that's all", "thats all", "that is all",
	"nothing else", "nothing more",
	"that'll be all", "thatll be all",
	"we're done", "were done", "i'm done", "im done", "i am done",
}

func isFarewell(utterance string) bool {
	u := strings.ToLower(strings.TrimSpace(utterance))
	if u == "" {
		return false
	}
	for _, phrase := range farewellPhrases {
		if strings.Contains(u, phrase) {
			return true
		}
	}
	return false
}
