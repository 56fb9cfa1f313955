package exchange

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jobdeck/jobdeck/identity"
)

// Kind classifies why a session exchange failed.
type Kind string

const (
	KindSessionIDMissing Kind = "session_id_missing"
	KindTokenMissing     Kind = "token_missing"
	KindExpired          Kind = "expired"
	KindInvalid          Kind = "invalid"
	KindTimeout          Kind = "timeout"
	KindUnknown          Kind = "unknown"
)

// Error is a terminal exchange failure. Message is user-visible; exchange
// failures are never silent.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func newError(kind Kind) *Error {
	return &Error{Kind: kind, Message: messageFor(kind)}
}

func messageFor(kind Kind) string {
	switch kind {
	case KindSessionIDMissing:
		return "No session identifier was found in the sign-in redirect. Please sign in again."
	case KindTokenMissing:
		return "The sign-in service did not return a token. Please sign in again."
	case KindExpired:
		return "Your sign-in link has expired. Please sign in again."
	case KindInvalid:
		return "This sign-in link is not valid. Please sign in again."
	case KindTimeout:
		return "The sign-in service took too long to respond. Please try again."
	default:
		return "Sign-in failed. Please try again."
	}
}

// classify maps a backend exchange failure onto a Kind, first from the
// transport error shape, then from the response detail string.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	detail := strings.ToLower(identity.Detail(err))
	switch {
	case strings.Contains(detail, "expired"):
		return KindExpired
	case strings.Contains(detail, "invalid"):
		return KindInvalid
	case strings.Contains(detail, "timeout"), strings.Contains(detail, "timed out"):
		return KindTimeout
	default:
		return KindUnknown
	}
}
