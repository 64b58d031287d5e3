// Package codec provides the on-medium layout of an nvrec record.
//
// A record is a fixed-size header followed by the payload bytes owned by the
// application. The record is always read and written as one contiguous block.
//
// # Record Format
//
// Records are serialized in a binary format with the following structure:
//
//	[Checksum(4)][Edition(4)][Magic(4)][PayloadLength(2)][Format(2)][Payload]
//
// Fields:
//   - Checksum: CRC32 (IEEE) over the whole record with this field zeroed (little-endian)
//   - Edition: global write counter, strictly increasing across writes (little-endian)
//   - Magic: presence sentinel 0x41414457; any other value marks the slot empty
//   - PayloadLength: number of payload bytes written for this edition (little-endian)
//   - Format: schema version of the payload layout (little-endian)
//   - Payload: PayloadLength bytes of application data
//
// The header is 16 bytes. Nothing may ever be placed ahead of it, and payload
// fields may only be appended across firmware revisions so that older
// editions stay readable.
//
// # Checksum Calculation
//
// The checksum covers the header (with the checksum field treated as zero)
// followed by the payload:
//
//	crc := codec.Checksum(record)
//
// The same value can be computed over separate fragments by seeding the
// payload CRC with the header CRC:
//
//	crc := codec.ChecksumParts(header, payload)
//
// # Erased Headers
//
// Rollback and destroy invalidate a slot by overwriting its header with
// Erased(), sixteen 0xFF bytes. This matches the blank state of EEPROM cells
// and can never carry the magic number.
package codec
