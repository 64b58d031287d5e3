package record

import (
	"errors"
	"testing"

	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/device"
	"github.com/ssargent/nvrec/pkg/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeometry = slots.Geometry{Count: 5, Size: 64}

type testDevice struct {
	mem    *device.Memory
	faulty *device.Faulty
}

func newTestDevice(g slots.Geometry, recordLen int) testDevice {
	mem := device.NewMemory(g.Span(recordLen))
	return testDevice{mem: mem, faulty: device.NewFaulty(mem)}
}

func newTestManager(t *testing.T, dev device.BlockDevice, config Config) *Manager {
	t.Helper()
	if config.Geometry.Count == 0 {
		config.Geometry = testGeometry
	}
	m, err := New(dev, config)
	require.NoError(t, err)
	return m
}

func headerAt(t *testing.T, mem *device.Memory, addr int) codec.Header {
	t.Helper()
	h, err := codec.DecodeHeader(mem.Bytes()[addr : addr+codec.HeaderSize])
	require.NoError(t, err)
	return h
}

func TestNew_RejectsBadConfig(t *testing.T) {
	mem := device.NewMemory(1024)

	_, err := New(nil, Config{Geometry: testGeometry})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(mem, Config{Geometry: testGeometry, PayloadSize: codec.MaxPayloadLength + 1})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(mem, Config{Geometry: slots.Geometry{Count: 0}, PayloadSize: 4})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestManager_FreshDevice(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.mem, Config{PayloadSize: 4, CleanCopy: true})

	require.NoError(t, m.Read())
	assert.Equal(t, OK, m.Err())
	assert.Equal(t, codec.Header{}, m.Header())
	assert.Equal(t, []byte{0, 0, 0, 0}, m.Payload())
	assert.False(t, m.IsDirty())
	assert.Equal(t, 20, m.RecordSize())
}

func TestManager_RoundTrip(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(map[bool]string{false: "physical", true: "cached"}[cached], func(t *testing.T) {
			dev := newTestDevice(testGeometry, 20)
			config := Config{PayloadSize: 4, Format: 3, CleanCopy: true, SlotCache: cached}

			m := newTestManager(t, dev.mem, config)
			require.NoError(t, m.Destroy())
			copy(m.Payload(), []byte{0xDE, 0xAD, 0xBE, 0xEF})
			require.NoError(t, m.Write(false))
			assert.Equal(t, OK, m.Err())

			other := newTestManager(t, dev.mem, config)
			require.NoError(t, other.Read())
			assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, other.Payload())

			h := other.Header()
			assert.Equal(t, uint32(1), h.Edition)
			assert.Equal(t, codec.Magic, h.Magic)
			assert.Equal(t, uint16(4), h.PayloadLength)
			assert.Equal(t, uint16(3), h.Format)
			assert.Equal(t, m.Header(), h)
		})
	}
}

func TestManager_EditionsRotateAcrossSlots(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
	require.NoError(t, m.Destroy())
	dev.faulty.ResetCounters()

	for i := 1; i <= 12; i++ {
		m.Payload()[0] = byte(i)
		require.NoError(t, m.Write(true))
		assert.Equal(t, uint32(i), m.Header().Edition)
	}

	assert.Equal(t,
		[]int{0, 64, 128, 192, 256, 0, 64, 128, 192, 256, 0, 64},
		dev.faulty.WriteAddresses())

	// Each write is one block holding header and payload
	assert.Equal(t, 12, dev.faulty.Writes())
	assert.Equal(t, 12*20, dev.faulty.BytesWritten())

	editions := map[uint32]bool{}
	for slot := 0; slot < testGeometry.Count; slot++ {
		h := headerAt(t, dev.mem, testGeometry.Address(slot))
		require.True(t, h.Valid())
		editions[h.Edition] = true
	}
	assert.Equal(t, map[uint32]bool{8: true, 9: true, 10: true, 11: true, 12: true}, editions)

	other := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	require.NoError(t, other.Read())
	assert.Equal(t, uint32(12), other.Header().Edition)
	assert.Equal(t, byte(12), other.Payload()[0])
}

func TestManager_EditionNeverMovesBackwards(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	writer := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	for i := 0; i < 4; i++ {
		require.NoError(t, writer.Write(true))
	}

	// A manager that never read the device still continues the sequence
	stale := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	require.NoError(t, stale.Write(true))
	assert.Equal(t, uint32(5), stale.Header().Edition)
}

func TestManager_DirtyElision(t *testing.T) {
	t.Run("clean copy", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true})
		require.NoError(t, m.Read())
		dev.faulty.ResetCounters()

		require.NoError(t, m.Write(false))
		assert.Zero(t, dev.faulty.Writes())
		assert.Zero(t, dev.faulty.Reads())

		m.Payload()[1] = 7
		assert.True(t, m.IsDirty())
		require.NoError(t, m.Write(false))
		assert.Equal(t, 1, dev.faulty.Writes())
		assert.False(t, m.IsDirty())

		// Changing a byte and restoring it leaves the record clean
		m.Payload()[1] = 8
		m.Payload()[1] = 7
		require.NoError(t, m.Write(false))
		assert.Equal(t, 1, dev.faulty.Writes())

		require.NoError(t, m.Write(true))
		assert.Equal(t, 2, dev.faulty.Writes())
	})

	t.Run("owner flag", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
		require.NoError(t, m.Read())
		dev.faulty.ResetCounters()

		m.Payload()[0] = 1
		require.NoError(t, m.Write(false))
		assert.Zero(t, dev.faulty.Writes(), "change without MarkDirty is invisible")

		m.MarkDirty()
		require.NoError(t, m.Write(false))
		assert.Equal(t, 1, dev.faulty.Writes())
		assert.False(t, m.IsDirty())
	})

	t.Run("checking disabled", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true})
		m.EnableDirtyChecking(false)
		require.NoError(t, m.Read())
		dev.faulty.ResetCounters()

		assert.True(t, m.IsDirty())
		require.NoError(t, m.Write(false))
		require.NoError(t, m.Write(false))
		assert.Equal(t, 2, dev.faulty.Writes())
	})
}

func TestManager_Patch(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
	require.NoError(t, m.Read())
	dev.faulty.ResetCounters()

	changed, err := m.Patch(0, []byte{0, 0})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, m.IsDirty())
	require.NoError(t, m.Write(false))
	assert.Zero(t, dev.faulty.Writes())

	changed, err = m.Patch(2, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, m.IsDirty())
	assert.Equal(t, []byte{0, 0, 0xAA, 0xBB}, m.Payload())

	for _, tc := range []struct {
		offset int
		data   []byte
	}{
		{-1, []byte{1}},
		{3, []byte{1, 2}},
		{5, nil},
		{int(^uint(0) >> 1), []byte{1}},
	} {
		_, err := m.Patch(tc.offset, tc.data)
		assert.ErrorIs(t, err, ErrPatchRange, "offset %d", tc.offset)
	}
	assert.Equal(t, []byte{0, 0, 0xAA, 0xBB}, m.Payload())

	_, err = m.Patch(4, nil)
	assert.NoError(t, err)
}

func TestManager_CorruptPayload(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	writer := newTestManager(t, dev.mem, Config{PayloadSize: 4, Format: 2})
	copy(writer.Payload(), []byte{1, 2, 3, 4})
	require.NoError(t, writer.Write(true))

	dev.mem.Bytes()[codec.HeaderSize+2] ^= 0x01

	var migratedFrom []uint16
	reader := newTestManager(t, dev.mem, Config{
		PayloadSize: 4,
		Format:      2,
		CleanCopy:   true,
		Migrator: MigratorFunc(func(stored uint16, payload []byte) {
			migratedFrom = append(migratedFrom, stored)
			payload[3] = 0x42
		}),
	})

	err := reader.Read()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCRC)
	assert.Equal(t, CRC, reader.Err())
	assert.Equal(t, CRC, CodeOf(err))
	assert.Equal(t, codec.Header{}, reader.Header())
	assert.Equal(t, []byte{0, 0, 0, 0x42}, reader.Payload())
	assert.Equal(t, []uint16{0}, migratedFrom)
	assert.False(t, reader.IsDirty())

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 0, opErr.Slot)
	assert.Equal(t, "read", opErr.Op)
}

func TestManager_CorruptHeaderField(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	writer := newTestManager(t, dev.mem, Config{PayloadSize: 4, Format: 2})
	require.NoError(t, writer.Write(true))

	// Format is covered by the checksum too
	dev.mem.Bytes()[14] ^= 0x80

	reader := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	assert.ErrorIs(t, reader.Read(), ErrCRC)
}

func TestManager_StoredLengthOverrunsSlot(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	h := codec.Header{Edition: 1, Magic: codec.Magic, PayloadLength: 60}
	require.NoError(t, h.Encode(dev.mem.Bytes()))

	m := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	err := m.Read()
	assert.ErrorIs(t, err, ErrCRC)
	assert.Equal(t, codec.Header{}, m.Header())
}

func TestManager_RollBack(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(map[bool]string{false: "physical", true: "cached"}[cached], func(t *testing.T) {
			dev := newTestDevice(testGeometry, 20)
			m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true, SlotCache: cached})
			require.NoError(t, m.Destroy())

			for v := byte(1); v <= 3; v++ {
				m.Payload()[0] = v
				require.NoError(t, m.Write(false))
			}

			require.NoError(t, m.RollBack())
			assert.Equal(t, byte(2), m.Payload()[0])
			assert.Equal(t, uint32(2), m.Header().Edition)

			require.NoError(t, m.RollBack())
			assert.Equal(t, byte(1), m.Payload()[0])
			assert.Equal(t, uint32(1), m.Header().Edition)

			require.NoError(t, m.RollBack())
			assert.Equal(t, byte(0), m.Payload()[0])
			assert.Equal(t, codec.Header{}, m.Header())
			assert.Equal(t, OK, m.Err())

			// Nothing left to roll back
			dev.faulty.ResetCounters()
			require.NoError(t, m.RollBack())
			assert.Zero(t, dev.faulty.Writes())
		})
	}
}

func TestManager_WriteAfterRollBack(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true})
	require.NoError(t, m.Destroy())
	for v := byte(1); v <= 3; v++ {
		m.Payload()[0] = v
		require.NoError(t, m.Write(false))
	}
	require.NoError(t, m.RollBack())
	dev.faulty.ResetCounters()

	m.Payload()[0] = 9
	require.NoError(t, m.Write(false))
	assert.Equal(t, uint32(3), m.Header().Edition)
	assert.Equal(t, []int{128}, dev.faulty.WriteAddresses(), "erased slot is reused first")
}

func TestManager_Destroy(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{
		PayloadSize: 4,
		Migrator: MigratorFunc(func(stored uint16, payload []byte) {
			if stored < 1 {
				payload[0] = 0x55
			}
		}),
	})
	for i := 0; i < 7; i++ {
		m.Payload()[1] = byte(i)
		require.NoError(t, m.Write(true))
	}
	dev.faulty.ResetCounters()

	require.NoError(t, m.Destroy())
	assert.Equal(t, testGeometry.Count, dev.faulty.Writes())
	assert.Equal(t, codec.Header{}, m.Header())
	assert.Equal(t, []byte{0x55, 0, 0, 0}, m.Payload())

	for slot := 0; slot < testGeometry.Count; slot++ {
		assert.False(t, headerAt(t, dev.mem, testGeometry.Address(slot)).Valid())
	}

	other := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	require.NoError(t, other.Read())
	assert.Equal(t, OK, other.Err())
	assert.Equal(t, []byte{0, 0, 0, 0}, other.Payload())
}

func TestManager_SingleSlot(t *testing.T) {
	g := slots.Geometry{Count: 1}
	dev := newTestDevice(g, 20)
	m := newTestManager(t, dev.faulty, Config{Geometry: g, PayloadSize: 4, CleanCopy: true})
	require.NoError(t, m.Read())

	for v := byte(1); v <= 3; v++ {
		m.Payload()[0] = v
		require.NoError(t, m.Write(false))
		assert.Equal(t, uint32(v), m.Header().Edition)
	}
	assert.Equal(t, []int{0, 0, 0}, dev.faulty.WriteAddresses())

	other := newTestManager(t, dev.mem, Config{Geometry: g, PayloadSize: 4})
	require.NoError(t, other.Read())
	assert.Equal(t, byte(3), other.Payload()[0])

	// Rolling back the only edition leaves nothing behind
	require.NoError(t, other.RollBack())
	assert.Equal(t, codec.Header{}, other.Header())
}

func TestManager_GeometryTooSmall(t *testing.T) {
	g := slots.Geometry{Count: 2, Size: 16}
	dev := newTestDevice(g, 20)
	m := newTestManager(t, dev.faulty, Config{Geometry: g, PayloadSize: 4})

	ops := map[string]func() error{
		"read":     m.Read,
		"write":    func() error { return m.Write(true) },
		"rollback": m.RollBack,
		"destroy":  m.Destroy,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, ErrBug)
			assert.Equal(t, BUG, m.Err())
		})
	}
	assert.Zero(t, dev.faulty.Reads())
	assert.Zero(t, dev.faulty.Writes())
}

func TestManager_ErrResetsOnSuccess(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})

	dev.faulty.AddFault(device.Fault{From: 0, To: 1 << 20, FailReads: true})
	assert.Error(t, m.Read())
	assert.Equal(t, IO, m.Err())

	dev.faulty.Clear()
	require.NoError(t, m.Read())
	assert.Equal(t, OK, m.Err())
}

func TestManager_ReadFaults(t *testing.T) {
	t.Run("header read fails", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		writer := newTestManager(t, dev.mem, Config{PayloadSize: 4})
		writer.Payload()[0] = 1
		require.NoError(t, writer.Write(true))

		dev.faulty.AddFault(device.Fault{From: 64, To: 80, FailReads: true})
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
		err := m.Read()
		assert.ErrorIs(t, err, ErrIO)
		assert.ErrorIs(t, err, device.ErrInjected)
		assert.Equal(t, codec.Header{}, m.Header())
		assert.Equal(t, byte(0), m.Payload()[0])
	})

	t.Run("payload read fails", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		writer := newTestManager(t, dev.mem, Config{PayloadSize: 4})
		writer.Payload()[0] = 1
		require.NoError(t, writer.Write(true))

		dev.faulty.AddFault(device.Fault{From: 16, To: 20, FailReads: true})
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
		assert.ErrorIs(t, m.Read(), ErrIO)
		assert.Equal(t, codec.Header{}, m.Header())
	})
}

func TestManager_WriteFaults(t *testing.T) {
	t.Run("device write fails", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true, SlotCache: true})
		require.NoError(t, m.Read())

		dev.faulty.AddFault(device.Fault{From: 0, To: 64, FailWrites: true})
		m.Payload()[0] = 1
		err := m.Write(false)
		assert.ErrorIs(t, err, ErrIO)
		assert.Equal(t, IO, m.Err())
		assert.False(t, m.IsDirty(), "no internal retry")

		var opErr *OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, 0, opErr.Slot)
		assert.Equal(t, 0, opErr.Addr)

		// The failed slot stays empty, so the next forced write lands there again
		dev.faulty.Clear()
		require.NoError(t, m.Write(true))
		assert.Equal(t, []int{0}, dev.faulty.WriteAddresses())
		assert.Greater(t, m.Header().Edition, uint32(1))
	})

	t.Run("scan fails", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.faulty, Config{PayloadSize: 4, CleanCopy: true})
		require.NoError(t, m.Read())

		dev.faulty.AddFault(device.Fault{From: 128, To: 144, FailReads: true})
		m.Payload()[0] = 1
		assert.ErrorIs(t, m.Write(false), ErrIO)
		assert.Zero(t, dev.faulty.Writes())
		assert.True(t, m.IsDirty())
	})
}

func TestManager_RollBackFaults(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
	for i := 0; i < 2; i++ {
		require.NoError(t, m.Write(true))
	}
	dev.faulty.ResetCounters()

	dev.faulty.AddFault(device.Fault{From: 0, To: 320, FailReads: true})
	assert.ErrorIs(t, m.RollBack(), ErrIO)
	assert.Zero(t, dev.faulty.Writes())

	dev.faulty.Clear()
	dev.faulty.AddFault(device.Fault{From: 64, To: 80, FailWrites: true})
	assert.ErrorIs(t, m.RollBack(), ErrIO)
	assert.True(t, headerAt(t, dev.mem, 64).Valid())
}

func TestManager_DestroyContinuesPastFailures(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.faulty, Config{PayloadSize: 4})
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Write(true))
	}
	dev.faulty.ResetCounters()
	dev.faulty.AddFault(device.Fault{From: 128, To: 144, FailWrites: true})

	err := m.Destroy()
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, IO, m.Err())
	assert.Equal(t, []int{0, 64, 192, 256}, dev.faulty.WriteAddresses())
	assert.True(t, headerAt(t, dev.mem, 128).Valid())
	assert.Equal(t, codec.Header{}, m.Header())

	// The surviving edition is still the newest on the device
	dev.faulty.Clear()
	require.NoError(t, m.Read())
	assert.Equal(t, uint32(3), m.Header().Edition)
}

func TestManager_PayloadMigration(t *testing.T) {
	t.Run("stored payload shorter", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 22)
		old := newTestManager(t, dev.mem, Config{PayloadSize: 2, Format: 1})
		copy(old.Payload(), []byte{0xAA, 0xBB})
		require.NoError(t, old.Write(true))

		current := newTestManager(t, dev.mem, Config{
			PayloadSize: 4,
			Format:      2,
			Migrator: Migrations{
				{Format: 1, Apply: func(p []byte) { p[0], p[1] = 0x01, 0x02 }},
				{Format: 2, Apply: func(p []byte) { p[2], p[3] = 0x11, 0x22 }},
			},
		})
		require.NoError(t, current.Read())
		assert.Equal(t, []byte{0xAA, 0xBB, 0x11, 0x22}, current.Payload())
		assert.Equal(t, uint16(1), current.Header().Format)
		assert.Equal(t, uint16(2), current.Header().PayloadLength)

		// The next write stores the current layout
		require.NoError(t, current.Write(true))
		assert.Equal(t, uint16(2), current.Header().Format)
		assert.Equal(t, uint16(4), current.Header().PayloadLength)
	})

	t.Run("stored payload longer", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 22)
		newer := newTestManager(t, dev.mem, Config{PayloadSize: 6, Format: 5})
		copy(newer.Payload(), []byte{1, 2, 3, 4, 5, 6})
		require.NoError(t, newer.Write(true))

		older := newTestManager(t, dev.mem, Config{PayloadSize: 4, Format: 4})
		require.NoError(t, older.Read())
		assert.Equal(t, []byte{1, 2, 3, 4}, older.Payload())
	})

	t.Run("fresh device runs every step", func(t *testing.T) {
		dev := newTestDevice(testGeometry, 20)
		m := newTestManager(t, dev.mem, Config{
			PayloadSize: 4,
			Format:      2,
			Migrator: Migrations{
				{Format: 1, Apply: func(p []byte) { p[0] = 0x01 }},
				{Format: 2, Apply: func(p []byte) { p[3] = 0x02 }},
			},
		})
		require.NoError(t, m.Read())
		assert.Equal(t, []byte{0x01, 0, 0, 0x02}, m.Payload())
	})
}

func TestManager_Slots(t *testing.T) {
	dev := newTestDevice(testGeometry, 20)
	m := newTestManager(t, dev.mem, Config{PayloadSize: 4})
	require.NoError(t, m.Destroy())
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Write(true))
	}

	infos, err := m.Slots()
	require.NoError(t, err)
	require.Len(t, infos, 5)

	assert.Equal(t, 128, infos[2].Addr)
	assert.True(t, infos[2].Newest)
	assert.Equal(t, uint32(3), infos[2].Header.Edition)
	assert.False(t, infos[0].Newest)
	assert.False(t, infos[4].Header.Valid())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, IO, CodeOf(errors.New("boom")))
	assert.Equal(t, CRC, CodeOf(&OpError{Op: "read", Slot: -1, Addr: -1, Code: CRC, Err: errors.New("x")}))
	assert.Equal(t, "BUG", BUG.String())
	assert.Nil(t, OK.Err())
}
