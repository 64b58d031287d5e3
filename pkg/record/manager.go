// Package record implements the wear-leveling record manager: it keeps one
// fixed-layout record durable on an erase-limited block device.
//
// Every write stores a complete new edition (header plus payload) in one
// block write to a slot chosen by the allocator, so the device always holds
// either the previous valid edition or the new one. Reads pick the newest
// edition whose magic is present and verify its checksum.
package record

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/device"
	"github.com/ssargent/nvrec/pkg/logging"
	"github.com/ssargent/nvrec/pkg/metrics"
	"github.com/ssargent/nvrec/pkg/slots"
)

// Operation names used in errors, logs and metrics.
const (
	opRead     = "read"
	opWrite    = "write"
	opRollBack = "roll_back"
	opDestroy  = "destroy"
)

// Config holds configuration for a record manager
type Config struct {
	Geometry    slots.Geometry   // Wear-leveling slots
	PayloadSize int              // Bytes of application payload after the header
	Format      uint16           // Schema version of the current payload layout
	CleanCopy   bool             // Keep a copy of the committed bytes for dirty checking
	SlotCache   bool             // Remember slot editions between scans
	Migrator    Migrator         // Initializes fields newer than the stored format (optional)
	Logger      *logging.Logger  // Optional, defaults to a no-op logger
	Metrics     *metrics.Metrics // Optional
}

// Manager owns one record buffer and the device region holding its editions.
// It is not safe for concurrent use.
type Manager struct {
	dev     device.BlockDevice
	config  Config
	scanner slots.Scanner
	log     *logging.Logger
	metrics *metrics.Metrics

	header codec.Header
	buf    []byte // header followed by payload
	clean  []byte // committed copy of buf, nil without CleanCopy

	dirtyChecking bool
	dirty         bool
	code          Code
}

// New creates a manager over dev. The record buffer starts zero-filled;
// call Read to load the newest edition.
func New(dev device.BlockDevice, config Config) (*Manager, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: device is required", ErrConfig)
	}
	if config.PayloadSize < 0 || config.PayloadSize > codec.MaxPayloadLength {
		return nil, fmt.Errorf("%w: payload size %d out of range [0, %d]",
			ErrConfig, config.PayloadSize, codec.MaxPayloadLength)
	}
	if config.Geometry.Count < 1 {
		return nil, fmt.Errorf("%w: slot count must be at least 1, got %d", ErrConfig, config.Geometry.Count)
	}

	log := config.Logger
	if log == nil {
		log = logging.NoopLogger()
	}

	config.Metrics.SetSlotSize(config.Geometry.Address(1))
	dev = device.NewInstrumented(dev, observer(config.Metrics))

	m := &Manager{
		dev:           dev,
		config:        config,
		log:           log,
		metrics:       config.Metrics,
		buf:           make([]byte, codec.HeaderSize+config.PayloadSize),
		dirtyChecking: true,
	}
	if config.CleanCopy {
		m.clean = make([]byte, len(m.buf))
	}
	if config.SlotCache {
		m.scanner = slots.NewCachedScanner(dev, config.Geometry)
	} else {
		m.scanner = slots.NewPhysicalScanner(dev, config.Geometry)
	}

	return m, nil
}

// observer keeps a nil *metrics.Metrics from becoming a non-nil interface.
func observer(m *metrics.Metrics) device.Observer {
	if m == nil {
		return nil
	}
	return m
}

// Read loads the newest valid edition from the device into the record buffer.
//
// Without a valid edition the record is left in fresh-start state: zeroed
// and migration-initialized. A checksum mismatch also leaves fresh-start
// state and reports CRC. In every case the buffer is clean afterwards.
func (m *Manager) Read() error {
	start := time.Now()
	err := m.read()
	m.metrics.ObserveOperation(opRead, start, err)
	return err
}

func (m *Manager) read() error {
	m.code = OK
	if err := m.checkGeometry(opRead); err != nil {
		return err
	}

	payload := m.Payload()
	clear(payload)
	m.header = codec.Header{}

	var (
		storedFormat uint16
		readErr      error
	)

	scan, err := m.scanner.Scan()
	switch {
	case err != nil:
		readErr = m.fail(opRead, IO, slots.None, err)
		m.log.LogRead(context.Background(), slots.None, 0, 0, readErr)
	case scan.Found():
		storedFormat, readErr = m.load(scan.ReadSlot, scan.Newest)
	}

	m.migrate(storedFormat)
	m.syncHeader()
	m.MarkClean()
	m.metrics.SetEdition(m.header.Edition)

	return readErr
}

// load reads the payload of the edition in slot and verifies it.
func (m *Manager) load(slot int, h codec.Header) (uint16, error) {
	addr := m.config.Geometry.Address(slot)
	stored := int(h.PayloadLength)

	if m.config.Geometry.WearLeveling() && codec.HeaderSize+stored > m.config.Geometry.Size {
		err := m.fail(opRead, CRC, slot,
			fmt.Errorf("stored payload length %d overruns the slot", stored))
		m.log.LogRead(context.Background(), slot, h.Edition, h.Format, err)
		m.metrics.CRCFailure()
		return 0, err
	}

	data := make([]byte, stored)
	if err := m.dev.ReadBlock(data, addr+codec.HeaderSize); err != nil {
		opErr := m.fail(opRead, IO, slot, err)
		m.log.LogRead(context.Background(), slot, h.Edition, h.Format, opErr)
		return 0, opErr
	}

	if sum := codec.ChecksumParts(h.Bytes(), data); sum != h.Checksum {
		m.log.LogCorruption(context.Background(), slot, h.Edition, h.Checksum, sum)
		m.metrics.CRCFailure()
		return 0, m.fail(opRead, CRC, slot,
			fmt.Errorf("edition %d: stored %08x, computed %08x", h.Edition, h.Checksum, sum))
	}

	// Older firmware may have written a shorter payload; newer firmware a longer one
	copy(m.Payload(), data)
	m.header = h
	m.log.LogRead(context.Background(), slot, h.Edition, h.Format, nil)

	return h.Format, nil
}

// Write commits the record buffer as a new edition. Unless force is set, a
// clean buffer is not written at all.
//
// A failed device write is reported as IO but the buffer is still marked
// clean; the manager never retries internally.
func (m *Manager) Write(force bool) error {
	start := time.Now()
	err := m.write(force)
	m.metrics.ObserveOperation(opWrite, start, err)
	return err
}

func (m *Manager) write(force bool) error {
	m.code = OK
	if err := m.checkGeometry(opWrite); err != nil {
		return err
	}

	if !force && !m.IsDirty() {
		m.metrics.WriteElided()
		m.log.LogElided(context.Background(), m.header.Edition)
		return nil
	}

	scan, err := m.scanner.Scan()
	if err != nil {
		opErr := m.fail(opWrite, IO, slots.None, err)
		m.log.LogWrite(context.Background(), slots.None, m.header.Edition, opErr)
		return opErr
	}

	// The edition counter is global: never step back below what the device holds
	edition := m.header.Edition
	if scan.Found() && scan.Newest.Edition > edition {
		edition = scan.Newest.Edition
	}

	m.header = codec.Header{
		Edition:       edition + 1,
		Magic:         codec.Magic,
		PayloadLength: uint16(m.config.PayloadSize),
		Format:        m.config.Format,
	}
	m.syncHeader()
	m.header.Checksum = codec.Seal(m.buf)

	slot := scan.WriteSlot
	var writeErr error
	if err := m.dev.WriteBlock(m.buf, m.config.Geometry.Address(slot)); err != nil {
		// The slot may now hold anything
		m.scanner.Reset()
		writeErr = m.fail(opWrite, IO, slot, err)
	} else {
		m.scanner.Recorded(slot, m.header)
	}

	m.log.LogWrite(context.Background(), slot, m.header.Edition, writeErr)
	m.metrics.SetEdition(m.header.Edition)
	m.MarkClean()

	return writeErr
}

// RollBack invalidates the newest edition on the device and reads the
// record again, which then resolves to the next-newest edition or to
// fresh-start state. A scan failure aborts before anything is erased.
func (m *Manager) RollBack() error {
	start := time.Now()
	err := m.rollBack()
	m.metrics.ObserveOperation(opRollBack, start, err)
	return err
}

func (m *Manager) rollBack() error {
	m.code = OK
	if err := m.checkGeometry(opRollBack); err != nil {
		return err
	}

	scan, err := m.scanner.Scan()
	if err != nil {
		opErr := m.fail(opRollBack, IO, slots.None, err)
		m.log.LogRollBack(context.Background(), slots.None, 0, opErr)
		return opErr
	}

	if scan.Found() {
		slot := scan.ReadSlot
		if err := m.dev.WriteBlock(codec.Erased(), m.config.Geometry.Address(slot)); err != nil {
			m.scanner.Reset()
			opErr := m.fail(opRollBack, IO, slot, err)
			m.log.LogRollBack(context.Background(), slot, scan.Newest.Edition, opErr)
			return opErr
		}
		m.scanner.Erased(slot)
		m.log.LogRollBack(context.Background(), slot, scan.Newest.Edition, nil)
	}

	return m.read()
}

// Destroy invalidates every slot on the device and resets the record to
// fresh-start state. It keeps going past per-slot failures and reports IO
// if any slot could not be erased.
func (m *Manager) Destroy() error {
	start := time.Now()
	err := m.destroy()
	m.metrics.ObserveOperation(opDestroy, start, err)
	return err
}

func (m *Manager) destroy() error {
	m.code = OK
	if err := m.checkGeometry(opDestroy); err != nil {
		return err
	}

	var (
		firstErr error
		failed   int
	)
	erased := codec.Erased()
	for slot := 0; slot < m.config.Geometry.Count; slot++ {
		if err := m.dev.WriteBlock(erased, m.config.Geometry.Address(slot)); err != nil {
			failed++
			opErr := m.fail(opDestroy, IO, slot, err)
			if firstErr == nil {
				firstErr = opErr
			}
			continue
		}
		m.scanner.Erased(slot)
	}
	if failed > 0 {
		m.scanner.Reset()
	}
	m.log.LogDestroy(context.Background(), m.config.Geometry.Count, failed)

	m.header = codec.Header{}
	clear(m.Payload())
	m.migrate(0)
	m.syncHeader()
	m.MarkClean()
	m.metrics.SetEdition(0)

	return firstErr
}

// Err returns the code recorded by the most recent Read, Write, RollBack or Destroy.
func (m *Manager) Err() Code {
	return m.code
}

// EnableDirtyChecking turns dirty checking on or off. With it off every
// Write reaches the device. It is on by default.
func (m *Manager) EnableDirtyChecking(enabled bool) {
	m.dirtyChecking = enabled
}

// IsDirty reports whether the record buffer needs to be written.
func (m *Manager) IsDirty() bool {
	if !m.dirtyChecking {
		return true
	}
	if m.clean != nil && !bytes.Equal(m.buf, m.clean) {
		return true
	}
	return m.dirty
}

// MarkDirty flags the buffer as modified. Needed when no clean copy is kept.
func (m *Manager) MarkDirty() {
	m.dirty = true
}

// MarkClean declares the buffer identical to what is on the device.
func (m *Manager) MarkClean() {
	if m.clean != nil {
		copy(m.clean, m.buf)
	}
	m.dirty = false
}

// Patch copies data into the payload at offset and marks the buffer dirty
// if any byte changed. It reports whether the payload changed.
func (m *Manager) Patch(offset int, data []byte) (bool, error) {
	payload := m.Payload()
	if offset < 0 || offset > len(payload) || len(data) > len(payload)-offset {
		return false, fmt.Errorf("%w: patch of %d bytes at offset %d outside %d byte payload",
			ErrPatchRange, len(data), offset, len(payload))
	}
	target := payload[offset : offset+len(data)]
	if bytes.Equal(target, data) {
		return false, nil
	}
	copy(target, data)
	m.dirty = true
	return true, nil
}

// Payload returns the live payload region of the record buffer. Writes to
// the slice modify the record.
func (m *Manager) Payload() []byte {
	return m.buf[codec.HeaderSize:]
}

// Header returns the header of the edition currently held in memory.
func (m *Manager) Header() codec.Header {
	return m.header
}

// Geometry returns the slot geometry.
func (m *Manager) Geometry() slots.Geometry {
	return m.config.Geometry
}

// Format returns the payload format written by this manager.
func (m *Manager) Format() uint16 {
	return m.config.Format
}

// RecordSize returns the size of header plus payload in bytes.
func (m *Manager) RecordSize() int {
	return len(m.buf)
}

// SlotInfo describes one slot as found on the device.
type SlotInfo struct {
	Slot   int
	Addr   int
	Header codec.Header
	Newest bool // Holds the edition Read would load
}

// Slots reads every slot header directly from the device. It is a
// diagnostic and does not change the recorded error code.
func (m *Manager) Slots() ([]SlotInfo, error) {
	scanner := slots.NewPhysicalScanner(m.dev, m.config.Geometry)
	scan, err := scanner.Scan()
	if err != nil {
		return nil, err
	}
	headers, err := scanner.Headers()
	if err != nil {
		return nil, err
	}

	infos := make([]SlotInfo, len(headers))
	for slot, h := range headers {
		infos[slot] = SlotInfo{
			Slot:   slot,
			Addr:   m.config.Geometry.Address(slot),
			Header: h,
			Newest: slot == scan.ReadSlot,
		}
	}
	return infos, nil
}

func (m *Manager) checkGeometry(op string) error {
	if err := m.config.Geometry.Validate(m.RecordSize()); err != nil {
		opErr := m.fail(op, BUG, slots.None, err)
		m.log.LogMisconfigured(context.Background(), op, opErr)
		return opErr
	}
	return nil
}

func (m *Manager) fail(op string, code Code, slot int, err error) *OpError {
	m.code = code
	addr := -1
	if slot >= 0 {
		addr = m.config.Geometry.Address(slot)
	}
	return &OpError{Op: op, Slot: slot, Addr: addr, Code: code, Err: err}
}

func (m *Manager) migrate(storedFormat uint16) {
	if m.config.Migrator != nil {
		m.config.Migrator.InitializeNewFields(storedFormat, m.Payload())
	}
}

// syncHeader encodes the in-memory header into the record buffer.
func (m *Manager) syncHeader() {
	m.header.Put(m.buf)
}
