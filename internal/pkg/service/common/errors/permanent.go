package errors

// PermanentError is a failure which is not retried, for example a malformed or an empty response.
type PermanentError struct {
	err error
}

func NewPermanentError(err error) PermanentError {
	return PermanentError{err: err}
}

func (PermanentError) ErrorName() string {
	return "permanent"
}

func (e PermanentError) Unwrap() error {
	return e.err
}

func (e PermanentError) Error() string {
	return e.err.Error()
}
