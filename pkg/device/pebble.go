package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
)

// DefaultPageSize is the number of image bytes stored under one pebble key.
const DefaultPageSize = 64

// PebbleConfig holds configuration for a pebble-backed image
type PebbleConfig struct {
	Dir      string      // Pebble database directory
	ImageID  ksuid.KSUID // Identifies the image inside the database
	Size     int         // Image capacity in bytes
	PageSize int         // Bytes per stored page (0 = DefaultPageSize)
	NoSync   bool        // Commit without fsync. Tests only.
}

// Pebble keeps an EEPROM image as fixed-size pages in a pebble database.
// Pages that were never written read back as erased. A block write touching
// several pages is committed as one batch.
type Pebble struct {
	db     *pebble.DB
	config PebbleConfig
	mutex  sync.Mutex
	closed bool
}

// NewImageID returns a fresh image identifier.
func NewImageID() ksuid.KSUID {
	return ksuid.New()
}

// ParseImageID parses the string form of an image identifier.
func ParseImageID(s string) (ksuid.KSUID, error) {
	id, err := ksuid.Parse(s)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("invalid image id %q: %w", s, err)
	}
	return id, nil
}

// OpenPebble opens (creating if needed) the database holding the image.
func OpenPebble(config PebbleConfig) (*Pebble, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("invalid image size: %d", config.Size)
	}
	if config.ImageID == ksuid.Nil {
		return nil, errors.New("image id is required")
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}

	db, err := pebble.Open(config.Dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &Pebble{db: db, config: config}, nil
}

// ReadBlock reads len(p) bytes at addr.
func (d *Pebble) ReadBlock(p []byte, addr int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := checkRange(addr, len(p), d.config.Size); err != nil {
		return err
	}

	for done := 0; done < len(p); {
		page, off := d.locate(addr + done)
		data, err := d.loadPage(page)
		if err != nil {
			return err
		}
		done += copy(p[done:], data[off:])
	}
	return nil
}

// WriteBlock writes p at addr, committing every touched page atomically.
func (d *Pebble) WriteBlock(p []byte, addr int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := checkRange(addr, len(p), d.config.Size); err != nil {
		return err
	}

	batch := d.db.NewBatch()
	defer batch.Close()

	for done := 0; done < len(p); {
		page, off := d.locate(addr + done)
		data, err := d.loadPage(page)
		if err != nil {
			return err
		}
		done += copy(data[off:], p[done:])
		if err := batch.Set(d.pageKey(page), data, nil); err != nil {
			return err
		}
	}

	opts := pebble.Sync
	if d.config.NoSync {
		opts = pebble.NoSync
	}
	return batch.Commit(opts)
}

// Size returns the image capacity in bytes.
func (d *Pebble) Size() int {
	return d.config.Size
}

// ImageID returns the identifier of the image.
func (d *Pebble) ImageID() ksuid.KSUID {
	return d.config.ImageID
}

// Close closes the underlying database.
func (d *Pebble) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

func (d *Pebble) locate(addr int) (page uint32, off int) {
	return uint32(addr / d.config.PageSize), addr % d.config.PageSize
}

// pageKey is the image id followed by the big-endian page number.
func (d *Pebble) pageKey(page uint32) []byte {
	id := d.config.ImageID.Bytes()
	key := make([]byte, len(id)+4)
	copy(key, id)
	binary.BigEndian.PutUint32(key[len(id):], page)
	return key
}

// loadPage returns a private copy of a page, erased if it was never stored.
func (d *Pebble) loadPage(page uint32) ([]byte, error) {
	data := make([]byte, d.config.PageSize)

	value, closer, err := d.db.Get(d.pageKey(page))
	if errors.Is(err, pebble.ErrNotFound) {
		fillErased(data)
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load page %d: %w", page, err)
	}
	defer closer.Close()

	if len(value) != d.config.PageSize {
		return nil, fmt.Errorf("page %d has %d bytes, want %d", page, len(value), d.config.PageSize)
	}
	copy(data, value)
	return data, nil
}
