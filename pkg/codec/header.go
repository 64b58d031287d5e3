package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the encoded size of Header in bytes.
	HeaderSize = 16

	// Magic marks a slot that holds a record.
	Magic uint32 = 0x41414457 // "AADW"

	// MaxPayloadLength is the largest payload the PayloadLength field can describe.
	MaxPayloadLength = 0xFFFF
)

// Field offsets within an encoded header.
const (
	offChecksum      = 0
	offEdition       = 4
	offMagic         = 8
	offPayloadLength = 12
	offFormat        = 14
)

// Header is the fixed prefix of every stored record.
type Header struct {
	Checksum      uint32 // CRC32 over header+payload with this field zeroed
	Edition       uint32 // Global write counter
	Magic         uint32 // Presence sentinel
	PayloadLength uint16 // Payload bytes written for this edition
	Format        uint16 // Payload schema version
}

// Valid reports whether the header carries the magic number.
func (h Header) Valid() bool {
	return h.Magic == Magic
}

// Encode writes the header into the first HeaderSize bytes of buf.
func (h Header) Encode(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("buffer too short for header: %d < %d", len(buf), HeaderSize)
	}
	h.Put(buf)
	return nil
}

// Put encodes the header into buf, which must hold at least HeaderSize bytes.
func (h Header) Put(buf []byte) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint32(buf[offChecksum:], h.Checksum)
	binary.LittleEndian.PutUint32(buf[offEdition:], h.Edition)
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint16(buf[offPayloadLength:], h.PayloadLength)
	binary.LittleEndian.PutUint16(buf[offFormat:], h.Format)
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	h.Put(buf)
	return buf
}

// DecodeHeader parses the header stored in the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("data too short for header: %d < %d", len(data), HeaderSize)
	}

	return Header{
		Checksum:      binary.LittleEndian.Uint32(data[offChecksum:]),
		Edition:       binary.LittleEndian.Uint32(data[offEdition:]),
		Magic:         binary.LittleEndian.Uint32(data[offMagic:]),
		PayloadLength: binary.LittleEndian.Uint16(data[offPayloadLength:]),
		Format:        binary.LittleEndian.Uint16(data[offFormat:]),
	}, nil
}

// Erased returns the byte pattern written over a header to invalidate a slot.
func Erased() []byte {
	buf := make([]byte, HeaderSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}
