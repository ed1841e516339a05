package errcode

import (
	"errors"
	"io/fs"
	"syscall"
)

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Bus handle.
	BusUnavailable Code = "bus_unavailable" // open failed: missing device file or permission
	BusNotOpen     Code = "bus_not_open"
	NoAddress      Code = "no_address" // transfer attempted before an address was selected
	IoError        Code = "io_error"   // register transfer failed; "nobody home" while probing

	// Probing and device state.
	NotFound       Code = "not_found"
	NotInitialized Code = "not_initialized"

	// Arguments rejected rather than clamped.
	UnsupportedCharacter Code = "unsupported_character"
	InvalidChannel       Code = "invalid_channel"
	InvalidPosition      Code = "invalid_position"
	InvalidSpeed         Code = "invalid_speed"
	InvalidParams        Code = "invalid_params"

	Unsupported Code = "unsupported"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E. A nil cause is allowed.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E carrying a message and no cause.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Ensure returns err unchanged when it already carries a Code, otherwise it
// wraps it with c. nil stays nil.
func Ensure(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	if Of(err) != Error {
		return err
	}
	return Wrap(c, op, err)
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level OS errors from the character device to a Code.
// Anything that is not an open-time failure counts as a transfer failure.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return BusUnavailable
	case errors.Is(err, fs.ErrClosed), errors.Is(err, syscall.EBADF):
		return BusNotOpen
	default:
		return IoError
	}
}
