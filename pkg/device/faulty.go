package device

import (
	"errors"
	"sync"
)

// ErrInjected is the default error returned by a Faulty device.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior for a range of addresses.
type Fault struct {
	From, To    int   // Address range [From, To) the fault applies to
	FailReads   bool  // Fail reads overlapping the range
	FailWrites  bool  // Fail writes overlapping the range
	AfterWrites int   // Only fail once this many writes succeeded (0 = immediately)
	Err         error // Error to return (nil = ErrInjected)
}

// Faulty wraps a BlockDevice, injecting errors and counting traffic.
type Faulty struct {
	dev    BlockDevice
	mu     sync.Mutex
	faults []Fault

	reads        int
	writes       int
	bytesWritten int
	writeLog     []int
}

// NewFaulty wraps dev.
func NewFaulty(dev BlockDevice) *Faulty {
	return &Faulty{dev: dev}
}

// AddFault registers a fault rule.
func (f *Faulty) AddFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault)
}

// Clear removes every fault rule.
func (f *Faulty) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
}

// ReadBlock reads through to the wrapped device unless a fault matches.
func (f *Faulty) ReadBlock(p []byte, addr int) error {
	f.mu.Lock()
	err := f.match(addr, len(p), false)
	f.reads++
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.dev.ReadBlock(p, addr)
}

// WriteBlock writes through to the wrapped device unless a fault matches.
func (f *Faulty) WriteBlock(p []byte, addr int) error {
	f.mu.Lock()
	err := f.match(addr, len(p), true)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if err := f.dev.WriteBlock(p, addr); err != nil {
		return err
	}

	f.mu.Lock()
	f.writes++
	f.bytesWritten += len(p)
	f.writeLog = append(f.writeLog, addr)
	f.mu.Unlock()
	return nil
}

// Reads returns the number of read calls, failed ones included.
func (f *Faulty) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Writes returns the number of successful write calls.
func (f *Faulty) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// BytesWritten returns the number of bytes successfully written.
func (f *Faulty) BytesWritten() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytesWritten
}

// WriteAddresses returns the start address of every successful write, in order.
func (f *Faulty) WriteAddresses() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.writeLog...)
}

// ResetCounters zeroes the traffic counters.
func (f *Faulty) ResetCounters() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads, f.writes, f.bytesWritten = 0, 0, 0
	f.writeLog = nil
}

func (f *Faulty) match(addr, n int, write bool) error {
	for _, fault := range f.faults {
		if write && !fault.FailWrites || !write && !fault.FailReads {
			continue
		}
		if addr >= fault.To || addr+n <= fault.From {
			continue
		}
		if write && f.writes < fault.AfterWrites {
			continue
		}
		if fault.Err != nil {
			return fault.Err
		}
		return ErrInjected
	}
	return nil
}
