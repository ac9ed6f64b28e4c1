// Package checkpoint decorates errors with the location they passed through, which results
// in something similar to a stacktrace without the cost of capturing one.
// Each error added to a checkpoint can still be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err by a new checkpoint which records the caller location.
// It returns nil if err == nil.
func From(err error) error {
	if err == nil || isPassThrough(err) {
		return err
	}

	return newCheckpoint(err, nil, "")
}

// Wrap adds a checkpoint to prev which is further described by err.
// This allows to predefine sentinel errors and attach them to lower level failures:
//  var ErrIO = errors.New("i/o error")
//
//  func readSomething() error {
//  	err := dev.ReadBlock(block, buf)
//  	return checkpoint.Wrap(err, ErrIO)
//  }
// Afterwards both errors.Is(err, ErrIO) and errors.Is(err, <device error>) hold.
// Wrap returns nil if prev == nil.
func Wrap(prev, err error) error {
	if prev == nil || isPassThrough(prev) {
		return prev
	}

	return newCheckpoint(err, prev, "")
}

// New creates a checkpoint for the sentinel err, described by a formatted detail message.
// It never returns nil.
func New(err error, format string, args ...interface{}) error {
	return newCheckpoint(err, nil, fmt.Sprintf(format, args...))
}

// Wrapf is Wrap with an additional detail message.
func Wrapf(prev, err error, format string, args ...interface{}) error {
	if prev == nil || isPassThrough(prev) {
		return prev
	}

	return newCheckpoint(err, prev, fmt.Sprintf(format, args...))
}

// io.EOF and io.ErrUnexpectedEOF are compared by identity by many readers.
// https://github.com/golang/go/issues/39155
func isPassThrough(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

func newCheckpoint(err, prev error, detail string) *checkpoint {
	// Skip newCheckpoint and the exported constructor.
	pc, file, line, ok := runtime.Caller(2)

	c := &checkpoint{
		err:    err,
		prev:   prev,
		detail: detail,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}

	if fn := runtime.FuncForPC(pc); ok && fn != nil {
		c.function = fn.Name()
		if i := strings.LastIndex(c.function, "/"); i >= 0 {
			c.function = c.function[i+1:]
		}
	}

	return c
}

type checkpoint struct {
	err    error
	prev   error
	detail string

	callerOk bool
	function string
	file     string
	line     int
}

// Location returns "file:line" of the place the checkpoint was created or "unknown".
func (e *checkpoint) Location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	var b strings.Builder

	switch {
	case e.err != nil && e.detail != "":
		fmt.Fprintf(&b, "%v: %s", e.err, e.detail)
	case e.err != nil:
		b.WriteString(e.err.Error())
	default:
		b.WriteString(e.detail)
	}

	if e.function != "" {
		fmt.Fprintf(&b, " [%s %s]", e.function, e.Location())
	}

	if e.prev != nil {
		b.WriteString("\n\t")
		b.WriteString(strings.ReplaceAll(e.prev.Error(), "\n", "\n\t"))
	}

	return b.String()
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}
