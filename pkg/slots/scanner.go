package slots

import (
	"fmt"

	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/device"
)

// Scan is the outcome of examining every slot.
type Scan struct {
	Entries   []Entry      // Per-slot state, indexed by slot
	ReadSlot  int          // Slot with the newest valid edition, or None
	Newest    codec.Header // Header read from ReadSlot; zero when ReadSlot == None
	WriteSlot int          // Slot the next edition should be written to
}

// Found reports whether any slot holds a valid edition.
func (s Scan) Found() bool {
	return s.ReadSlot != None
}

// Scanner answers the allocator questions for the record manager.
//
// Implementations must never return a partial result: a device error on any
// slot aborts the scan.
type Scanner interface {
	Scan() (Scan, error)
	// Recorded tells the scanner that h was written to slot.
	Recorded(slot int, h codec.Header)
	// Erased tells the scanner that slot was invalidated.
	Erased(slot int)
	// Reset drops anything the scanner remembers about the device.
	Reset()
}

// SlotError reports the slot whose header could not be read.
type SlotError struct {
	Slot int
	Addr int
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d at %d: %v", e.Slot, e.Addr, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// PhysicalScanner reads every slot header from the device on each scan.
type PhysicalScanner struct {
	dev      device.BlockDevice
	geometry Geometry
}

// NewPhysicalScanner creates a scanner reading headers from dev.
func NewPhysicalScanner(dev device.BlockDevice, geometry Geometry) *PhysicalScanner {
	return &PhysicalScanner{dev: dev, geometry: geometry}
}

// Headers reads the header of every slot.
func (s *PhysicalScanner) Headers() ([]codec.Header, error) {
	headers := make([]codec.Header, s.geometry.Count)
	for slot := range headers {
		h, err := s.ReadHeader(slot)
		if err != nil {
			return nil, err
		}
		headers[slot] = h
	}
	return headers, nil
}

// ReadHeader reads the header stored in one slot.
func (s *PhysicalScanner) ReadHeader(slot int) (codec.Header, error) {
	addr := s.geometry.Address(slot)
	buf := make([]byte, codec.HeaderSize)
	if err := s.dev.ReadBlock(buf, addr); err != nil {
		return codec.Header{}, &SlotError{Slot: slot, Addr: addr, Err: err}
	}
	return codec.DecodeHeader(buf)
}

// Scan reads all headers and selects the read and write slots.
func (s *PhysicalScanner) Scan() (Scan, error) {
	headers, err := s.Headers()
	if err != nil {
		return Scan{ReadSlot: None}, err
	}

	entries := make([]Entry, len(headers))
	for slot, h := range headers {
		entries[slot] = Entry{Valid: h.Valid(), Edition: h.Edition}
	}

	result := Scan{
		Entries:   entries,
		ReadSlot:  SelectReadSlot(entries),
		WriteSlot: SelectWriteSlot(entries),
	}
	if result.Found() {
		result.Newest = headers[result.ReadSlot]
	}
	return result, nil
}

func (s *PhysicalScanner) Recorded(int, codec.Header) {}
func (s *PhysicalScanner) Erased(int)                 {}
func (s *PhysicalScanner) Reset()                     {}
