package bot

import (
	"errors"
	"fmt"
)

// Failure kinds. GetUpdates never returns them; they are reported through
// the logger and the Observer. Send helpers wrap them in their errors.
var (
	// ErrConnect means the transport refused to connect, so the body was empty.
	ErrConnect = errors.New("bot: transport connect failure")
	// ErrPartialBody means the body was too short to be a response.
	ErrPartialBody = errors.New("bot: partial response body")
	// ErrParse means the body was not valid JSON.
	ErrParse = errors.New("bot: json parse failure")
	// ErrMissingField means a required field was absent.
	ErrMissingField = errors.New("bot: missing field")
	// ErrOversized means the response filled the body buffer and was skipped.
	ErrOversized = errors.New("bot: update too large for buffer")
	// ErrNoMessageID means a message id of zero was passed where one is required.
	ErrNoMessageID = errors.New("bot: message id required")
)

// APIError is a failure reported by the Bot API itself ({"ok":false}).
type APIError struct {
	Code        int    `json:"error_code"`
	Description string `json:"description"`
	RetryAfter  int    `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("bot: api error %d %s (retry after %ds)", e.Code, e.Description, e.RetryAfter)
	}
	if e.Code == 0 && e.Description == "" {
		return "bot: api returned ok=false"
	}
	return fmt.Sprintf("bot: api error %d %s", e.Code, e.Description)
}

// permanent reports whether retrying the same request cannot succeed.
func (e *APIError) permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != 429
}
