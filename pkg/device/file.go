package device

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig holds configuration for a file-backed image
type FileConfig struct {
	Path string // Path to the image file
	Size int    // Image capacity in bytes
	// NoSync skips the fsync after every block write. Tests only.
	NoSync bool
}

// File is an EEPROM image kept in a regular file, one byte per cell.
// A missing or short file is extended with erased bytes on open.
type File struct {
	file   *os.File
	config FileConfig
	mutex  sync.Mutex
	closed bool
}

// OpenFile opens or creates the image described by config.
func OpenFile(config FileConfig) (*File, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("invalid image size: %d", config.Size)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(config.Path), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	// Extend the image with blank cells up to the configured size
	if missing := int64(config.Size) - stat.Size(); missing > 0 {
		blank := make([]byte, missing)
		fillErased(blank)
		if _, err := file.WriteAt(blank, stat.Size()); err != nil {
			_ = file.Close()
			return nil, err
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return &File{file: file, config: config}, nil
}

// ReadBlock reads len(p) bytes at addr.
func (f *File) ReadBlock(p []byte, addr int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return ErrClosed
	}
	if err := checkRange(addr, len(p), f.config.Size); err != nil {
		return err
	}

	n, err := f.file.ReadAt(p, int64(addr))
	if err == io.EOF && n == len(p) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("read %d bytes at %d: %w", len(p), addr, err)
	}
	return nil
}

// WriteBlock writes p at addr and syncs it to stable storage.
func (f *File) WriteBlock(p []byte, addr int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return ErrClosed
	}
	if err := checkRange(addr, len(p), f.config.Size); err != nil {
		return err
	}

	if _, err := f.file.WriteAt(p, int64(addr)); err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(p), addr, err)
	}
	if f.config.NoSync {
		return nil
	}
	return f.file.Sync()
}

// Size returns the image capacity in bytes.
func (f *File) Size() int {
	return f.config.Size
}

// Path returns the file path
func (f *File) Path() string {
	return f.config.Path
}

// Close syncs and closes the image file.
func (f *File) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.file.Sync(); err != nil {
		_ = f.file.Close()
		return err
	}
	return f.file.Close()
}
