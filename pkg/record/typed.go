package record

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ssargent/nvrec/pkg/device"
)

// Typed binds a fixed-size struct to a manager's payload. Fields are laid
// out little-endian in declaration order; use blank padding fields to match
// a packed layout. New fields must only be appended.
type Typed[T any] struct {
	*Manager
	value T
}

// NewTyped creates a manager whose payload is exactly the encoded size of T.
// config.PayloadSize is overwritten.
func NewTyped[T any](dev device.BlockDevice, config Config) (*Typed[T], error) {
	var zero T
	size := binary.Size(zero)
	if size < 0 {
		return nil, fmt.Errorf("%w: %T has no fixed binary size", ErrConfig, zero)
	}
	config.PayloadSize = size

	m, err := New(dev, config)
	if err != nil {
		return nil, err
	}
	return &Typed[T]{Manager: m}, nil
}

// Value returns the decoded payload as of the last Load or Set.
func (t *Typed[T]) Value() T {
	return t.value
}

// Load decodes the payload into the typed value.
func (t *Typed[T]) Load() error {
	return binary.Read(bytes.NewReader(t.Payload()), binary.LittleEndian, &t.value)
}

// Store encodes the typed value into the payload.
func (t *Typed[T]) Store() error {
	var buf bytes.Buffer
	buf.Grow(len(t.Payload()))
	if err := binary.Write(&buf, binary.LittleEndian, t.value); err != nil {
		return err
	}
	copy(t.Payload(), buf.Bytes())
	return nil
}

// Set replaces the typed value and encodes it into the payload.
func (t *Typed[T]) Set(v T) error {
	t.value = v
	return t.Store()
}

// Read reads the record and decodes the payload. The value is decoded even
// when Read reports an error, since the payload then holds defaults.
func (t *Typed[T]) Read() error {
	err := t.Manager.Read()
	if loadErr := t.Load(); loadErr != nil && err == nil {
		return loadErr
	}
	return err
}

// RollBack rolls the record back and decodes the resulting payload.
func (t *Typed[T]) RollBack() error {
	err := t.Manager.RollBack()
	if loadErr := t.Load(); loadErr != nil && err == nil {
		return loadErr
	}
	return err
}

// Destroy destroys every edition and decodes the resulting payload.
func (t *Typed[T]) Destroy() error {
	err := t.Manager.Destroy()
	if loadErr := t.Load(); loadErr != nil && err == nil {
		return loadErr
	}
	return err
}

// MigrateTyped adapts a function working on a decoded struct to a Migrator.
// The payload is decoded, passed to fn and encoded back.
func MigrateTyped[T any](fn func(storedFormat uint16, v *T)) Migrator {
	return MigratorFunc(func(storedFormat uint16, payload []byte) {
		var v T
		if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &v); err != nil {
			return
		}
		fn(storedFormat, &v)

		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return
		}
		copy(payload, buf.Bytes())
	})
}
