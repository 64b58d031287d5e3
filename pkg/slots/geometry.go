// Package slots maps wear-leveling slots to device addresses and decides
// which slot holds the newest edition and which slot the next edition goes to.
package slots

import "fmt"

// Geometry describes how records are laid out on the device.
type Geometry struct {
	Count int // Number of wear-leveling slots, at least 1
	Size  int // Bytes per slot; ignored when Count == 1
}

// WearLeveling reports whether writes rotate across several slots.
func (g Geometry) WearLeveling() bool {
	return g.Count > 1
}

// Address converts a 0 thru Count-1 slot number into a device address.
func (g Geometry) Address(slot int) int {
	if !g.WearLeveling() {
		return 0
	}
	return slot * g.Size
}

// Validate checks that a record of recordLen bytes fits the geometry.
func (g Geometry) Validate(recordLen int) error {
	if g.Count < 1 {
		return fmt.Errorf("slot count must be at least 1, got %d", g.Count)
	}
	if g.WearLeveling() && g.Size < recordLen {
		return fmt.Errorf("slot size %d cannot hold a %d byte record", g.Size, recordLen)
	}
	return nil
}

// Span returns the number of device bytes used by a record of recordLen bytes.
func (g Geometry) Span(recordLen int) int {
	if !g.WearLeveling() {
		return recordLen
	}
	return g.Count * g.Size
}
