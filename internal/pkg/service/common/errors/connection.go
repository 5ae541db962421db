package errors

// ConnectionError means that a session with the coordination service or a connection to the database cannot be established.
type ConnectionError struct {
	err error
}

func NewConnectionError(err error) ConnectionError {
	return ConnectionError{err: err}
}

func (ConnectionError) ErrorName() string {
	return "connection"
}

func (e ConnectionError) Unwrap() error {
	return e.err
}

func (e ConnectionError) Error() string {
	return e.err.Error()
}
