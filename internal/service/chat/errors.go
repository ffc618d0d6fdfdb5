package chat

import (
	"errors"
	"fmt"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrTurnInFlight    = errors.New("a reply is still streaming for this session")
	ErrTransport       = errors.New("generation stream failed")
)

// ApologyText replaces a bot message whose stream failed.
const ApologyText = "Sorry, I encountered an error. Please try again."

// TransportError reports a turn that ended with the apology message.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session %s: %v: %v", e.SessionID, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
