package errors

// TransientError is a failure which may succeed on a retry, for example a timeout, a network error or HTTP 429/5xx.
type TransientError struct {
	err error
}

func NewTransientError(err error) TransientError {
	return TransientError{err: err}
}

func (TransientError) ErrorName() string {
	return "transient"
}

func (e TransientError) Unwrap() error {
	return e.err
}

func (e TransientError) Error() string {
	return e.err.Error()
}
