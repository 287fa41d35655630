package bridge

import (
	"unicode/utf8"

	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/pkg/types"
)

const (
	// ReasonInvalidRequest covers malformed JSON and requests missing
	// required fields.
	ReasonInvalidRequest = "invalid_request"
	// ReasonTooLarge is sent when a message exceeds the channel's size cap.
	ReasonTooLarge = "message_too_large"
	// ReasonInternalError is sent when the capture handler fails.
	ReasonInternalError = "internal_error"
)

// ValidateRequest checks a capture request against the configured page
// limits. It returns a human-readable rejection reason, or "" when the
// request is acceptable.
//
// Selection captures are small by construction, so only the text cap
// applies to them; full-page captures are checked against every limit.
func ValidateRequest(req *types.BridgeRequest, cfg config.BridgeConfig) string {
	if req.ID == "" || req.URL == "" || req.Title == "" {
		return ReasonInvalidRequest
	}

	if req.SelectedOnly {
		if utf8.RuneCountInString(req.Text) > cfg.MaxTextChars {
			return "Selected text too long to process."
		}
		return ""
	}

	if req.WordCount > cfg.MaxWords {
		return "Page contains too many words to process."
	}
	if req.HTMLSize > cfg.MaxHTMLBytes {
		return "HTML size too large to process."
	}
	if req.NodeCount > cfg.MaxNodeCount {
		return "Page has too many DOM nodes to process."
	}
	if utf8.RuneCountInString(req.Text) > cfg.MaxTextChars {
		return "Text content too long to process."
	}
	return ""
}
