package device

// Memory is an in-RAM EEPROM image. A new image reads back as erased (0xFF).
// It is intended for tests and simulation and is not safe for concurrent use.
type Memory struct {
	data []byte
}

// NewMemory creates an erased image of size bytes.
func NewMemory(size int) *Memory {
	m := &Memory{data: make([]byte, size)}
	fillErased(m.data)
	return m
}

// ReadBlock copies len(p) bytes at addr into p.
func (m *Memory) ReadBlock(p []byte, addr int) error {
	if err := checkRange(addr, len(p), len(m.data)); err != nil {
		return err
	}
	copy(p, m.data[addr:])
	return nil
}

// WriteBlock copies p into the image at addr.
func (m *Memory) WriteBlock(p []byte, addr int) error {
	if err := checkRange(addr, len(p), len(m.data)); err != nil {
		return err
	}
	copy(m.data[addr:], p)
	return nil
}

// Size returns the capacity of the image in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// Bytes exposes the raw image. Mutating it simulates corruption of the medium.
func (m *Memory) Bytes() []byte {
	return m.data
}
