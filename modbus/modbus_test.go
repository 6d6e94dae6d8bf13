package modbus

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/epiclabs-io/ut"
	gmodbus "github.com/goburrow/modbus"
)

// fakeClient answers from a fixed register image and records how many requests overlap
type fakeClient struct {
	gmodbus.Client
	holding  []uint16
	input    []uint16
	inFlight int32
	overlaps int32
	calls    int32
	err      error
	short    bool
	closed   int32
}

func encode(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for n, w := range words {
		binary.BigEndian.PutUint16(b[n*2:], w)
	}
	return b
}

func (f *fakeClient) enter() func() {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	return func() { atomic.AddInt32(&f.inFlight, -1) }
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	defer f.enter()()
	if f.err != nil {
		return nil, f.err
	}
	if f.short {
		quantity--
	}
	return encode(f.holding[address : address+quantity]), nil
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	defer f.enter()()
	if f.err != nil {
		return nil, f.err
	}
	return encode(f.input[address : address+quantity]), nil
}

func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	defer f.enter()()
	if f.err != nil {
		return nil, f.err
	}
	return encode([]uint16{value}), nil
}

func (f *fakeClient) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func newFake() *fakeClient {
	f := &fakeClient{
		holding: make([]uint16, 32),
		input:   make([]uint16, 64),
	}
	for n := range f.holding {
		f.holding[n] = uint16(1000 + n)
	}
	for n := range f.input {
		f.input[n] = uint16(2000 + n)
	}
	return f
}

func TestRead(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	f := newFake()
	mb := newClient(f, f)

	r, err := mb.ReadHolding(1, 3)
	t.Ok(err)
	t.Equals([]uint16{1001, 1002, 1003}, r)

	r, err = mb.ReadInput(41, 2)
	t.Ok(err)
	t.Equals([]uint16{2041, 2042}, r)

	t.Ok(mb.WriteRegister(14, 1))

	f.short = true
	r, err = mb.ReadHolding(1, 16)
	t.MustFailWith(err, ErrIncorrectResultSize)
	t.Equals([]uint16(nil), r)
}

func TestNoRetries(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	f := newFake()
	f.err = errors.New("connection refused")
	mb := newClient(f, f)

	_, err := mb.ReadInput(30, 8)
	t.MustFailWith(err, f.err)
	t.MustFailWith(mb.WriteRegister(1, 120), f.err)
	t.Equals(int32(2), atomic.LoadInt32(&f.calls))
}

func TestSerialized(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	f := newFake()
	mb := newClient(f, f)

	var wg sync.WaitGroup
	var failures int32
	check := func(err error) {
		if err != nil {
			atomic.AddInt32(&failures, 1)
		}
	}
	for n := 0; n < 8; n++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := mb.ReadInput(30, 8)
			check(err)
		}()
		go func() {
			defer wg.Done()
			_, err := mb.ReadHolding(1, 16)
			check(err)
		}()
		go func() {
			defer wg.Done()
			check(mb.WriteRegister(15, 1))
		}()
	}
	wg.Wait()
	t.Ok(mb.Close())

	t.Equals(int32(0), failures)
	t.Equals(int32(24), atomic.LoadInt32(&f.calls))
	t.Equals(int32(0), atomic.LoadInt32(&f.overlaps))
}

func TestCloseIdempotent(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	mb := New(&Config{Address: "127.0.0.1:1"})
	t.Ok(mb.Close())
	t.Ok(mb.Close())
}

func TestMock(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	var mb Modbus = NewMock()
	m := mb.(*Mock)
	m.SetInput(30, 235, 240)
	m.SetHolding(1, 120)

	r, err := mb.ReadInput(30, 3)
	t.Ok(err)
	t.Equals([]uint16{235, 240, 0}, r)

	t.Ok(mb.WriteRegister(14, 1))
	t.Equals(uint16(1), m.Holding(14))

	failure := errors.New("timeout")
	m.SetError(41, failure)
	_, err = mb.ReadInput(41, 3)
	t.MustFailWith(err, failure)
	m.SetError(41, nil)
	_, err = mb.ReadInput(41, 3)
	t.Ok(err)

	t.Equals(3, m.Reads())
	t.Equals(1, m.Writes())
	t.Ok(mb.Close())
	t.Equals(1, m.Closed())
}
