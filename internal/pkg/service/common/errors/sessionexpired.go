package errors

import (
	"fmt"
)

// SessionExpiredError means that the coordination session has been lost, all ephemeral nodes of the session are gone.
type SessionExpiredError struct {
	sessionID string
}

func NewSessionExpiredError(sessionID string) SessionExpiredError {
	return SessionExpiredError{sessionID: sessionID}
}

func (SessionExpiredError) ErrorName() string {
	return "sessionExpired"
}

func (e SessionExpiredError) SessionID() string {
	return e.sessionID
}

func (e SessionExpiredError) Error() string {
	return fmt.Sprintf(`coordination session "%s" expired`, e.sessionID)
}
