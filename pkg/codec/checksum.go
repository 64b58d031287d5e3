package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// Checksum computes the CRC32 of an encoded record (header followed by
// payload) with the checksum field treated as zero. record is not modified.
// The caller must pass the same record length that was used at write time.
func Checksum(record []byte) uint32 {
	if len(record) < HeaderSize {
		return crc32.ChecksumIEEE(record)
	}

	saved := binary.LittleEndian.Uint32(record[offChecksum:])
	binary.LittleEndian.PutUint32(record[offChecksum:], 0)
	sum := crc32.ChecksumIEEE(record)
	binary.LittleEndian.PutUint32(record[offChecksum:], saved)

	return sum
}

// ChecksumParts computes the same value as Checksum for a record held in two
// fragments: the encoded header and the payload.
func ChecksumParts(header, payload []byte) uint32 {
	var zeroed [HeaderSize]byte
	copy(zeroed[:], header)
	binary.LittleEndian.PutUint32(zeroed[offChecksum:], 0)

	partial := crc32.ChecksumIEEE(zeroed[:])
	return crc32.Update(partial, crc32.IEEETable, payload)
}

// Seal stamps the checksum of record into its header.
func Seal(record []byte) uint32 {
	sum := Checksum(record)
	binary.LittleEndian.PutUint32(record[offChecksum:], sum)
	return sum
}
