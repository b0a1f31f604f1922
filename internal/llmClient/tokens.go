package llmclient

import "strings"

// CountTokens estimates the token count of text for batch packing. Words
// approximate tokens well enough for budget decisions; endpoints that
// expose a real count override this in their client.
func CountTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if words := strings.Fields(text); len(words) > 0 {
		return len(words)
	}
	if n := len(text) / 4; n > 0 {
		return n
	}
	return 1
}
