package slots

import (
	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/device"
)

// CachedScanner keeps the edition of every slot in memory after one full
// physical scan. Later scans read only the newest slot's header from the
// device; if that header disagrees with the cache, the cache is rebuilt.
type CachedScanner struct {
	physical *PhysicalScanner
	entries  []Entry
	built    bool

	rebuilds int
}

// NewCachedScanner creates a cached scanner over dev.
func NewCachedScanner(dev device.BlockDevice, geometry Geometry) *CachedScanner {
	return &CachedScanner{physical: NewPhysicalScanner(dev, geometry)}
}

// Scan answers from the cache, building it first if needed.
func (c *CachedScanner) Scan() (Scan, error) {
	if !c.built {
		return c.rebuild()
	}

	result := Scan{
		Entries:   append([]Entry(nil), c.entries...),
		ReadSlot:  SelectReadSlot(c.entries),
		WriteSlot: SelectWriteSlot(c.entries),
	}
	if !result.Found() {
		return result, nil
	}

	h, err := c.physical.ReadHeader(result.ReadSlot)
	if err != nil {
		c.Reset()
		return Scan{ReadSlot: None}, err
	}

	cached := c.entries[result.ReadSlot]
	if !h.Valid() || h.Edition != cached.Edition {
		return c.rebuild()
	}

	result.Newest = h
	return result, nil
}

// Recorded updates the cached edition of slot.
func (c *CachedScanner) Recorded(slot int, h codec.Header) {
	if !c.built || slot < 0 || slot >= len(c.entries) {
		return
	}
	c.entries[slot] = Entry{Valid: h.Valid(), Edition: h.Edition}
}

// Erased marks slot empty in the cache.
func (c *CachedScanner) Erased(slot int) {
	if !c.built || slot < 0 || slot >= len(c.entries) {
		return
	}
	c.entries[slot] = Entry{}
}

// Reset discards the cache; the next scan reads every header again.
func (c *CachedScanner) Reset() {
	c.entries = nil
	c.built = false
}

// Rebuilds returns how many full physical scans the cache has performed.
func (c *CachedScanner) Rebuilds() int {
	return c.rebuilds
}

func (c *CachedScanner) rebuild() (Scan, error) {
	c.Reset()
	c.rebuilds++

	result, err := c.physical.Scan()
	if err != nil {
		return result, err
	}

	c.entries = append([]Entry(nil), result.Entries...)
	c.built = true
	return result, nil
}
