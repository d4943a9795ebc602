package ai

import "strings"

// helpKeywords marks a message as help-seeking; only those messages are
// forwarded to the assistant.
var helpKeywords = []string{"how", "what", "help", "support", "?", "streaming", "rtmp", "obs"}

// WantsHelp reports whether the message looks like a question the
// assistant should answer. Case-insensitive substring match.
func WantsHelp(body string) bool {
	lower := strings.ToLower(body)
	for _, keyword := range helpKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
