// Package checkpoint decorates errors with caller information, building up
// something similar to a stack trace as an error travels outward.
// Every error attached to a checkpoint stays visible to errors.Is and
// errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err in a checkpoint carrying the caller's file and line.
// It returns nil if err is nil.
func From(err error) error {
	// io.EOF must stay io.EOF; callers compare it with ==.
	// https://github.com/golang/go/issues/39155
	if err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}

	if err == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err: err,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

// Wrap adds a checkpoint with caller information on top of prev and attaches
// err as an additional description of the failure. It returns nil if prev is
// nil, so call sites can wrap unconditionally:
//
//	var ErrSomethingBroke = errors.New("something broke")
//
//	func someFunction() error {
//		err := lowerLayer()
//		return checkpoint.Wrap(err, ErrSomethingBroke)
//	}
//
// The result satisfies errors.Is for both ErrSomethingBroke and whatever
// lowerLayer returned.
func Wrap(prev, err error) error {
	if prev == io.EOF {
		return io.EOF
	}

	if prev == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) Error() string {
	caller := "unknown"
	if e.callerOk {
		caller = fmt.Sprintf("%s:%d", e.file, e.line)
	}

	if e.prev == nil {
		return fmt.Sprintf("File: %s\n\t%v", caller, e.err)
	}

	// Indent a plain previous error; a checkpoint formats itself.
	prevErrString := e.prev.Error()
	if _, ok := e.prev.(*checkpoint); !ok {
		prevErrString = "File: unknown\n\t" + strings.ReplaceAll(prevErrString, "\n", "\n\t")
	}
	return fmt.Sprintf("File: %s\n\t%v\n%v", caller, e.err, prevErrString)
}

func (e *checkpoint) Unwrap() error {
	if e.prev != nil {
		return e.prev
	}
	return e.err
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
