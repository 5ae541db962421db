package errors

import (
	"fmt"
	"strings"
)

// nestedError is a main error followed by the list of sub-errors.
type nestedError struct {
	main  error
	sub   error
	trace StackTrace
}

func PrefixError(err error, prefix string) error {
	return &nestedError{main: New(prefix), sub: err, trace: callers()}
}

func PrefixErrorf(err error, format string, a ...any) error {
	return &nestedError{main: New(fmt.Sprintf(format, a...)), sub: err, trace: callers()}
}

func (e *nestedError) Error() string {
	sub := e.sub.Error()
	if !strings.Contains(sub, "\n") && !strings.HasPrefix(sub, "- ") {
		return e.main.Error() + ": " + sub
	}
	return e.main.Error() + ":\n" + indent(sub)
}

func (e *nestedError) Unwrap() []error {
	return []error{e.main, e.sub}
}

func (e *nestedError) StackTrace() StackTrace {
	return e.trace
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "  ") {
			line = "- " + line
		}
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
