package record

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of the most recent manager operation.
type Code uint8

const (
	// OK means the operation succeeded.
	OK Code = iota
	// IO means a physical read or write failed.
	IO
	// CRC means a record was found but its checksum did not match.
	CRC
	// BUG means the slot geometry cannot hold the record.
	BUG
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case IO:
		return "IO"
	case CRC:
		return "CRC"
	case BUG:
		return "BUG"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// Sentinel errors, one per failure code.
var (
	ErrIO  = errors.New("physical i/o failed")
	ErrCRC = errors.New("record checksum mismatch")
	ErrBug = errors.New("record does not fit slot geometry")

	// ErrConfig is returned by constructors given an unusable configuration.
	ErrConfig = errors.New("invalid record configuration")

	// ErrPatchRange is returned by Patch for bytes outside the payload.
	ErrPatchRange = errors.New("patch outside payload")
)

// Err returns the sentinel error for c, or nil for OK.
func (c Code) Err() error {
	switch c {
	case IO:
		return ErrIO
	case CRC:
		return ErrCRC
	case BUG:
		return ErrBug
	default:
		return nil
	}
}

// OpError describes a failed manager operation.
type OpError struct {
	Op   string // Operation that failed, e.g. "read", "write"
	Slot int    // Slot involved, or -1
	Addr int    // Device address involved, or -1
	Code Code   // Failure class
	Err  error  // Underlying cause
}

func (e *OpError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("%s slot %d (addr %d): %v: %v", e.Op, e.Slot, e.Addr, e.Code.Err(), e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Code.Err(), e.Err)
}

// Unwrap exposes both the failure sentinel and the underlying cause.
func (e *OpError) Unwrap() []error {
	return []error{e.Code.Err(), e.Err}
}

// CodeOf extracts the failure code from an error returned by a Manager.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return IO
}
