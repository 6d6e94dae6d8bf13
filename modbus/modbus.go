// Package modbus wraps a Modbus TCP client so that only one request is on the wire at a time
package modbus

import (
	"encoding/binary"
	"errors"
	stdlog "log"
	"sync"
	"time"

	gmodbus "github.com/goburrow/modbus"
	log "github.com/sirupsen/logrus"
)

// Modbus is the register level interface used by the polling hub
type Modbus interface {
	ReadHolding(address uint16, quantity uint16) ([]uint16, error)
	ReadInput(address uint16, quantity uint16) ([]uint16, error)
	WriteRegister(address uint16, value uint16) error
	Close() error
}

const DEFAULT_PORT = 502
const DEFAULT_TIMEOUT = 5 * time.Second
const DEFAULT_UNIT_ID = 1

// Config contains the connection parameters of a Modbus TCP device
type Config struct {
	Address string        // host:port
	Timeout time.Duration // per request, connect included
	UnitID  byte
}

// Client serializes all operations on a goburrow Modbus TCP client.
// The connection is opened lazily by the first request and reopened after Close.
type Client struct {
	closer interface{ Close() error }
	client gmodbus.Client
	lock   sync.Mutex
}

var ErrIncorrectResultSize = errors.New("Incorrect number of results returned")

// New returns a Client for the device at config.Address. No connection is made until the first request.
func New(config *Config) *Client {
	handler := gmodbus.NewTCPClientHandler(config.Address)
	handler.Timeout = config.Timeout
	if handler.Timeout == 0 {
		handler.Timeout = DEFAULT_TIMEOUT
	}
	handler.SlaveId = config.UnitID
	if handler.SlaveId == 0 {
		handler.SlaveId = DEFAULT_UNIT_ID
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		handler.Logger = stdlog.New(log.WithField("modbus", config.Address).WriterLevel(log.DebugLevel), "", 0)
	}
	return newClient(gmodbus.NewClient(handler), handler)
}

func newClient(client gmodbus.Client, closer interface{ Close() error }) *Client {
	return &Client{
		client: client,
		closer: closer,
	}
}

// Close releases the socket. It waits for any in-flight request and can be called more than once.
func (mb *Client) Close() error {
	mb.lock.Lock()
	defer mb.lock.Unlock()
	return mb.closer.Close()
}

func parseResults(r []byte, quantity uint16) ([]uint16, error) {
	if len(r) != int(quantity)*2 {
		return nil, ErrIncorrectResultSize
	}
	results := make([]uint16, quantity)
	for n := uint16(0); n < quantity; n++ {
		results[n] = binary.BigEndian.Uint16(r[n*2 : n*2+2])
	}
	return results, nil
}

// ReadHolding reads quantity holding registers (function 0x03) starting at address
func (mb *Client) ReadHolding(address uint16, quantity uint16) (results []uint16, err error) {
	err = mb.do(func() error {
		r, err := mb.client.ReadHoldingRegisters(address, quantity)
		if err != nil {
			return err
		}
		results, err = parseResults(r, quantity)
		return err
	})
	return results, err
}

// ReadInput reads quantity input registers (function 0x04) starting at address
func (mb *Client) ReadInput(address uint16, quantity uint16) (results []uint16, err error) {
	err = mb.do(func() error {
		r, err := mb.client.ReadInputRegisters(address, quantity)
		if err != nil {
			return err
		}
		results, err = parseResults(r, quantity)
		return err
	})
	return results, err
}

// WriteRegister writes a single holding register (function 0x06)
func (mb *Client) WriteRegister(address uint16, value uint16) error {
	return mb.do(func() error {
		r, err := mb.client.WriteSingleRegister(address, value)
		if err != nil {
			return err
		}
		_, err = parseResults(r, 1)
		return err
	})
}

// do runs f holding the client lock. Failures are returned as they are, the caller decides
// whether and when to try again.
func (mb *Client) do(f func() error) error {
	mb.lock.Lock()
	defer mb.lock.Unlock()
	return f()
}
