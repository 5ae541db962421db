package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

// callers skips runtime.Callers, callers and the public constructor.
func callers() StackTrace {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// Frame returns "file:line" of the place where the error was created.
func (t StackTrace) Frame() string {
	if len(t) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(t[:1])
	frame, _ := frames.Next()
	return fmt.Sprintf("%s:%d", frame.File, frame.Line)
}

// FormatWithStack formats the error chain, each error with its creation place.
func FormatWithStack(err error) string {
	var b strings.Builder
	for level := 0; err != nil; level++ {
		if level > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", level-1))
			b.WriteString("- ")
		}
		b.WriteString(err.Error())
		if v, ok := err.(stackTracer); ok { // nolint: errorlint
			if frame := v.StackTrace().Frame(); frame != "" {
				b.WriteString(" [")
				b.WriteString(frame)
				b.WriteString("]")
			}
		}

		// Skip plain stack wrappers, they have the same message as the cause.
		next := Unwrap(err)
		if s, ok := err.(*withStack); ok { // nolint: errorlint
			next = Unwrap(s.error)
		}
		err = next
	}
	return b.String()
}
