// Package device provides block devices for nvrec: the physical I/O layer
// beneath the record manager.
//
// A BlockDevice reads and writes whole byte ranges at an address. A call
// either transfers the full range or returns an error; partial completion is
// never reported as success.
package device

import (
	"errors"
	"fmt"
)

// BlockDevice is the physical I/O collaborator of the record manager.
type BlockDevice interface {
	// ReadBlock fills p with len(p) bytes starting at addr.
	ReadBlock(p []byte, addr int) error
	// WriteBlock stores all of p starting at addr.
	WriteBlock(p []byte, addr int) error
}

// ErasedByte is the value of a blank EEPROM cell.
const ErasedByte = 0xFF

var (
	// ErrOutOfRange is returned when a block does not fit inside the device.
	ErrOutOfRange = errors.New("block out of device range")
	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("device is closed")
)

// checkRange validates that [addr, addr+n) lies within a device of the given size.
func checkRange(addr, n, size int) error {
	if addr < 0 || n < 0 || addr+n > size {
		return fmt.Errorf("%w: [%d, %d) exceeds %d bytes", ErrOutOfRange, addr, addr+n, size)
	}
	return nil
}

func fillErased(p []byte) {
	for i := range p {
		p[i] = ErasedByte
	}
}
