// Package exitcode maps failure categories of the console driver to stable
// process exit codes suitable for scripted consumption.
package exitcode

import (
	"errors"
	"fmt"
)

// Code is a process exit status.
type Code int

const (
	OK                 Code = 0
	Usage              Code = 2
	ConfigurationLoad  Code = 3
	OptionParse        Code = 4
	SolverResolution   Code = 5
	NoTargets          Code = 6
	HintSource         Code = 7
	ConfigurationLink  Code = 8
	OptimizationFailed Code = 9
	NoImprovement      Code = 10
	Save               Code = 11
	Cancelled          Code = 12
	Execution          Code = 13
	Settings           Code = 14
)

var names = map[Code]string{
	OK:                 "ok",
	Usage:              "usage",
	ConfigurationLoad:  "configuration load error",
	OptionParse:        "option parse error",
	SolverResolution:   "solver resolution error",
	NoTargets:          "no optimize targets",
	HintSource:         "hint source error",
	ConfigurationLink:  "configuration link error",
	OptimizationFailed: "optimization failure",
	NoImprovement:      "no improvement",
	Save:               "save error",
	Cancelled:          "cancelled",
	Execution:          "execution failure",
	Settings:           "settings error",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error attaches a failure category to an underlying error.
type Error struct {
	Code Code
	Err  error
}

// New wraps err with the given category. A nil err yields a bare category error.
func New(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf formats a message and wraps it with the given category.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, exitcode.New(exitcode.Save, nil))
// works without comparing the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Of returns the exit code carried by err. A nil error is OK; an error without
// a category is reported as an execution failure.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Execution
}
