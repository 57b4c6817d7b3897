package analysis

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	shareSubject         = "Check out this hand"
	shareMissingAnalysis = "No analysis available yet."
)

// ShareText composes the plain-text form of a hand and its analysis.
func ShareText(hand, analysis string) string {
	if strings.TrimSpace(analysis) == "" {
		analysis = shareMissingAnalysis
	}
	return fmt.Sprintf("Poker Hand Analysis:\n\nHand: %s\n\nAnalysis: %s\n\n", hand, analysis)
}

// MailtoURL builds a mailto link carrying the share text as the message body.
func MailtoURL(hand, analysis string) string {
	return "mailto:?subject=" + escapeComponent(shareSubject) + "&body=" + escapeComponent(ShareText(hand, analysis))
}

func escapeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
