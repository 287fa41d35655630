package history

import (
	"regexp"
	"strings"

	"github.com/xiy/webrecall/pkg/types"
)

// blockedDomains are substring matches against the lowercased URL. They
// cover pages whose content is either private, transient, or useless to
// recall later (feeds, inboxes, search result pages, package registries).
var blockedDomains = []string{
	// Social media
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"linkedin.com",
	"reddit.com",
	"tiktok.com",
	"snapchat.com",
	"pinterest.com",

	// Video platforms
	"youtube.com",
	"youtu.be",
	"twitch.tv",
	"vimeo.com",

	// Email and communication
	"mail.google.com",
	"outlook.live.com",
	"outlook.office.com",
	"yahoo.com/mail",
	"slack.com",
	"discord.com",
	"teams.microsoft.com",
	"zoom.us",

	// Cloud storage and private docs
	"drive.google.com",
	"dropbox.com",
	"onedrive.live.com",
	"docs.google.com",

	// Package managers and CDNs
	"npmjs.com",
	"npm.io",
	"cdnjs.com",
	"unpkg.com",
	"jsdelivr.net",

	// Icon libraries
	"lucide.dev",
	"fontawesome.com",
	"heroicons.com",
	"flaticon.com",

	// Search result pages
	"google.com/search",
	"bing.com/search",
	"duckduckgo.com/",

	// Analytics
	"analytics.google.com",

	// Version control hosts
	"github.com",
	"gitlab.com",
	"bitbucket.org",
}

var blockedPatterns = []*regexp.Regexp{
	// Auth flows
	regexp.MustCompile(`(?i)/(login|signin|sign-in|signup|sign-up|register|auth|oauth|sso|callback|logout)`),

	// API endpoints
	regexp.MustCompile(`(?i)/api/`),
	regexp.MustCompile(`(?i)/graphql`),

	// Official documentation
	regexp.MustCompile(`(?i)/docs?/`),
	regexp.MustCompile(`(?i)/documentation/`),
	regexp.MustCompile(`(?i)/guide`),
	regexp.MustCompile(`(?i)/guides/`),
	regexp.MustCompile(`(?i)/reference`),
	regexp.MustCompile(`(?i)/getting-started`),
	regexp.MustCompile(`(?i)/quickstart`),
	regexp.MustCompile(`(?i)readthedocs\.io`),

	// File downloads
	regexp.MustCompile(`(?i)\.(pdf|zip|rar|tar|gz|exe|dmg|pkg|deb|rpm)$`),

	// Media files
	regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|svg|webp|mp4|mp3|wav|avi|mov)$`),

	// Local and development endpoints
	regexp.MustCompile(`(?i)localhost`),
	regexp.MustCompile(`(?i)127\.0\.0\.1`),
	regexp.MustCompile(`(?i)192\.168\.`),
	regexp.MustCompile(`(?i)\.local`),
	regexp.MustCompile(`(?i)^file://`),

	// Redirect wrappers
	regexp.MustCompile(`(?i)[?&](redirect|return|returnUrl|next|continue|callback)=`),
}

// ApplyBlocklist drops entries whose URL matches a blocked domain or
// pattern. Applying it twice yields the same result.
func ApplyBlocklist(entries []types.HistoryEntry) []types.HistoryEntry {
	out := make([]types.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		if Blocked(entry.URL) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Blocked reports whether a single URL is excluded from ingestion.
func Blocked(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, domain := range blockedDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	for _, pattern := range blockedPatterns {
		if pattern.MatchString(rawURL) {
			return true
		}
	}
	return false
}
