package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Common trailing boilerplate on article pages.
	footerNoisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Copyright.*$`),
		regexp.MustCompile(`(?i)All rights reserved.*$`),
		regexp.MustCompile(`(?i)subscribe to our newsletter.*`),
		regexp.MustCompile(`(?i)follow us on.*$`),
		regexp.MustCompile(`(?i)sign up to read more.*`),
	}
)

// CleanContent collapses whitespace and strips footer noise from
// extracted article text.
func CleanContent(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	for _, pattern := range footerNoisePatterns {
		text = pattern.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// TrimForProcessing caps text at max bytes before it is sent to a model.
func TrimForProcessing(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	return text[:max]
}

// TimeAgo renders a coarse human-readable age, e.g. "3 days ago".
func TimeAgo(from, now time.Time) string {
	diff := now.Sub(from)
	if diff < 0 {
		diff = 0
	}

	const (
		day   = 24 * time.Hour
		week  = 7 * day
		month = 30 * day
	)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff/time.Minute))
	case diff < day:
		return fmt.Sprintf("%d hours ago", int(diff/time.Hour))
	case diff < week:
		return fmt.Sprintf("%d days ago", int(diff/day))
	case diff < month:
		return fmt.Sprintf("%d weeks ago", int(diff/week))
	default:
		return fmt.Sprintf("%d months ago", int(diff/month))
	}
}
