// Package skerr provides functions that wrap errors with the location of the
// call site, so a log line of an error that travelled through several layers
// still shows where it came from.
package skerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace identifies a filename (base filename only) and line number.
type StackTrace struct {
	File string
	Line int
}

func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns a slice of StackTrace representing the current stack trace.
// The lines returned start at the depth specified by startAt: 0 means the call
// to CallStack, 1 is CallStack's caller, and so on.
func CallStack(height, startAt int) []StackTrace {
	stack := []StackTrace{}
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + i)
		if !ok {
			break
		}
		stack = append(stack, StackTrace{
			File: filepath.Base(file),
			Line: line,
		})
	}
	return stack
}

// ErrorWithContext contains an original error with context info (a stack
// trace and optional messages).
type ErrorWithContext struct {
	// Wrapped is the original error. Never nil.
	Wrapped error
	// CallStack is the stack trace of the first call to Wrap or Fmt.
	CallStack []StackTrace
	// Context contains additional info from calls to Wrapf, outermost first.
	Context []string
}

const stackHeight = 3

// Fmt is equivalent to Wrap(fmt.Errorf(fmtStr, args...)). It supports %w.
func Fmt(fmtStr string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(fmtStr, args...),
		CallStack: CallStack(stackHeight, 2),
	}
}

// Wrap adds a stack trace to err unless it already has one. Returns nil if err
// is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ewc *ErrorWithContext
	if errors.As(err, &ewc) {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(stackHeight, 2),
	}
}

// Wrapf adds a stack trace (unless err already has one) and the given message
// to err. Returns nil if err is nil.
func Wrapf(err error, fmtStr string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(fmtStr, args...)
	var ewc *ErrorWithContext
	if errors.As(err, &ewc) && ewc == err {
		cp := *ewc
		cp.Context = append([]string{msg}, ewc.Context...)
		return &cp
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(stackHeight, 2),
		Context:   []string{msg},
	}
}

// Error implements the error interface.
func (ewc *ErrorWithContext) Error() string {
	var out strings.Builder
	for _, c := range ewc.Context {
		out.WriteString(c)
		out.WriteString(": ")
	}
	out.WriteString(ewc.Wrapped.Error())
	out.WriteString(". At")
	for _, st := range ewc.CallStack {
		out.WriteString(" ")
		out.WriteString(st.String())
	}
	return out.String()
}

// Unwrap lets errors.Is and errors.As see the original error.
func (ewc *ErrorWithContext) Unwrap() error {
	return ewc.Wrapped
}

// Unwrap returns the original error that was wrapped by Wrap, Wrapf or Fmt.
func Unwrap(err error) error {
	var ewc *ErrorWithContext
	for errors.As(err, &ewc) {
		err = ewc.Wrapped
	}
	return err
}
