// Package pngerr holds the error taxonomy shared by the pipeline, the
// filter engine and the compression stream.
package pngerr

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Kind classifies an error by how the caller must react to it.
type Kind uint8

const (
	// Format errors abort the whole operation; partial output is invalid.
	Format Kind = iota + 1
	// Benign errors are reported and processing continues with a substitute.
	Benign
	// Resource errors abort the current operation after releasing ownership.
	Resource
	// Policy errors are raised when a configured policy says so.
	Policy
	// Internal errors mark inconsistent library state.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format"
	case Benign:
		return "benign"
	case Resource:
		return "resource"
	case Policy:
		return "policy"
	case Internal:
		return "internal"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("png: %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("png: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind when the target carries no cause, so
// errors.Is(err, pngerr.ErrFormat) works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// Kind sentinels.
var (
	ErrFormat   = &Error{Kind: Format}
	ErrBenign   = &Error{Kind: Benign}
	ErrResource = &Error{Kind: Resource}
	ErrPolicy   = &Error{Kind: Policy}
	ErrInternal = &Error{Kind: Internal}
)

// Specific causes.
var (
	ErrClaimConflict = errors.New("compression stream claimed by another owner")
	ErrBadFilter     = errors.New("unknown filter type")
	ErrRowSize       = errors.New("row size mismatch")
	ErrTooLarge      = errors.New("image dimensions too large")
	ErrNonGray       = errors.New("rgb to gray found non-gray pixel")
	ErrPaletteIndex  = errors.New("palette index out of range")
	ErrReleased      = errors.New("compression claim already released")
)

// New returns an *Error of the given kind.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Newf formats a new cause and classifies it.
func Newf(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Action selects how a policy violation is handled.
type Action uint8

const (
	// ActionNone ignores the violation.
	ActionNone Action = iota + 1
	// ActionWarn reports the violation and continues.
	ActionWarn
	// ActionError turns the violation into a Policy error.
	ActionError
)

// Reporter receives benign errors and policy warnings.
type Reporter interface {
	Warn(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

func (f ReporterFunc) Warn(err error) { f(err) }

// LogReporter logs through glog and counts what it saw.
type LogReporter struct {
	Count int
}

func (r *LogReporter) Warn(err error) {
	r.Count++
	glog.Warningf("%v", err)
}

// Apply resolves a policy violation according to a.
func Apply(a Action, rep Reporter, err *Error) error {
	switch a {
	case ActionError:
		return err
	case ActionWarn:
		if rep != nil {
			rep.Warn(err)
		}
	}
	return nil
}
