package modbus

import (
	"sync"
)

// Mock is an in-memory register image implementing Modbus.
// Unset registers read as zero. It is safe for concurrent use.
type Mock struct {
	holding map[uint16]uint16
	input   map[uint16]uint16
	errors  map[uint16]error
	reads   int
	writes  int
	closed  int
	lock    sync.Mutex
}

func NewMock() *Mock {
	return &Mock{
		holding: make(map[uint16]uint16),
		input:   make(map[uint16]uint16),
		errors:  make(map[uint16]error),
	}
}

// SetHolding stores values in consecutive holding registers starting at address
func (ms *Mock) SetHolding(address uint16, values ...uint16) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	for n, v := range values {
		ms.holding[address+uint16(n)] = v
	}
}

// SetInput stores values in consecutive input registers starting at address
func (ms *Mock) SetInput(address uint16, values ...uint16) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	for n, v := range values {
		ms.input[address+uint16(n)] = v
	}
}

func (ms *Mock) Holding(address uint16) uint16 {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.holding[address]
}

func (ms *Mock) Input(address uint16) uint16 {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.input[address]
}

// SetError makes every read starting at address, and every write to address, fail with err.
// A nil err clears it.
func (ms *Mock) SetError(address uint16, err error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if err == nil {
		delete(ms.errors, address)
		return
	}
	ms.errors[address] = err
}

func read(state map[uint16]uint16, address uint16, quantity uint16) []uint16 {
	results := make([]uint16, quantity)
	for n := range results {
		results[n] = state[address+uint16(n)]
	}
	return results
}

func (ms *Mock) ReadHolding(address uint16, quantity uint16) ([]uint16, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.reads++
	if err := ms.errors[address]; err != nil {
		return nil, err
	}
	return read(ms.holding, address, quantity), nil
}

func (ms *Mock) ReadInput(address uint16, quantity uint16) ([]uint16, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.reads++
	if err := ms.errors[address]; err != nil {
		return nil, err
	}
	return read(ms.input, address, quantity), nil
}

func (ms *Mock) WriteRegister(address uint16, value uint16) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.writes++
	if err := ms.errors[address]; err != nil {
		return err
	}
	ms.holding[address] = value
	return nil
}

func (ms *Mock) Close() error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.closed++
	return nil
}

// Reads returns the number of read requests served so far
func (ms *Mock) Reads() int {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.reads
}

func (ms *Mock) Writes() int {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.writes
}

// Closed returns how many times Close was called
func (ms *Mock) Closed() int {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.closed
}
