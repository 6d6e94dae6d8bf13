// Package sim serves a simulated Futura register image over Modbus TCP
package sim

import (
	"futura2mqtt/modbus"
	"futura2mqtt/registers"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	smodbus "github.com/simonvetter/modbus"
)

// REGISTER_SPACE is the number of registers of each space answered by the simulator
const REGISTER_SPACE = 1000

const MAX_CLIENTS = 4

type Config struct {
	Listen  string        // host:port
	Timeout time.Duration // idle client timeout
	Image   *modbus.Mock  // register image, a default one is created when nil
}

// Simulator is a Modbus TCP server answering from a register image
type Simulator struct {
	Config
	server *smodbus.ModbusServer
	lock   sync.Mutex    // serializes Step against client writes
	carry  time.Duration // boost time elapsed but not yet counted, below one second
}

// handler adapts the register image to the server's request handler interface
type handler struct {
	s *Simulator
}

func New(config *Config) (*Simulator, error) {
	s := &Simulator{
		Config: *config,
	}
	if s.Image == nil {
		s.Image = DefaultImage()
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	server, err := smodbus.NewServer(&smodbus.ServerConfiguration{
		URL:        "tcp://" + s.Listen,
		Timeout:    s.Timeout,
		MaxClients: MAX_CLIENTS,
	}, &handler{s: s})
	if err != nil {
		return nil, err
	}
	s.server = server
	return s, nil
}

func (s *Simulator) Start() error {
	log.WithField("listen", s.Listen).Info("Starting Futura simulator")
	return s.server.Start()
}

func (s *Simulator) Stop() error {
	return s.server.Stop()
}

func inRange(address, quantity uint16) bool {
	return quantity > 0 && int(address)+int(quantity) <= REGISTER_SPACE
}

func (h *handler) HandleCoils(req *smodbus.CoilsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *handler) HandleDiscreteInputs(req *smodbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *handler) HandleHoldingRegisters(req *smodbus.HoldingRegistersRequest) ([]uint16, error) {
	if !inRange(req.Addr, req.Quantity) {
		return nil, smodbus.ErrIllegalDataAddress
	}
	if !req.IsWrite {
		return h.s.Image.ReadHolding(req.Addr, req.Quantity)
	}

	h.s.lock.Lock()
	defer h.s.lock.Unlock()
	for n, v := range req.Args {
		address := req.Addr + uint16(n)
		if !valid(address, v) {
			return nil, smodbus.ErrIllegalDataValue
		}
	}
	for n, v := range req.Args {
		address := req.Addr + uint16(n)
		log.WithField("address", address).WithField("value", v).Debug("Register written")
		if err := h.s.Image.WriteRegister(address, v); err != nil {
			return nil, smodbus.ErrServerDeviceFailure
		}
	}
	return req.Args, nil
}

func (h *handler) HandleInputRegisters(req *smodbus.InputRegistersRequest) ([]uint16, error) {
	if !inRange(req.Addr, req.Quantity) {
		return nil, smodbus.ErrIllegalDataAddress
	}
	return h.s.Image.ReadInput(req.Addr, req.Quantity)
}

// valid rejects values the unit would refuse for its writable registers
func valid(address uint16, value uint16) bool {
	switch address {
	case registers.REG_BOOST_TM:
		return value <= registers.MinutesToSeconds(registers.BOOST_MAX_MINUTES)
	case registers.REG_TEMP_SET:
		t := int16(value)
		return t >= registers.TEMP_SET_MIN*10 && t <= registers.TEMP_SET_MAX*10
	case registers.REG_BYPASS_ENABLE, registers.REG_HEATING_ENABLE,
		registers.REG_COOLING_ENABLE, registers.REG_COMFORT_ENABLE:
		return value <= 1
	case registers.REG_HUMI_SET:
		return value <= 1000
	}
	return true
}

// DefaultImage returns the register image of an idle Futura M
func DefaultImage() *modbus.Mock {
	m := modbus.NewMock()
	m.SetInput(registers.REG_INPUT_DEVICE,
		39,             // device id
		0x0001, 0x86A0, // serial number
		0x001E, 0xC0A1, 0xB20C, // MAC
	)
	m.SetInput(registers.REG_INPUT_DEVICE+14, 2) // Futura M
	m.SetInput(registers.REG_TEMP_HUMI, 52, 198, 221, 110, 812, 405, 452, 598)
	m.SetInput(registers.REG_INPUT_DEVICE+38, 52)
	m.SetInput(registers.REG_POWER, 38, 910, 0, 180)
	m.SetInput(registers.REG_INPUT_DEVICE+52, 3312)
	m.SetHolding(registers.REG_HOLDING_GLOBAL, 2)
	m.SetHolding(registers.REG_TEMP_SET, 220, 450)
	m.SetHolding(registers.REG_BYPASS_ENABLE, 0, 1, 0, 1)
	return m
}

// Step advances the simulation by elapsed: a running boost timer counts down
// and the measured temperatures drift by at most a tenth of a degree.
func (s *Simulator) Step(elapsed time.Duration, rng *rand.Rand) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if boost := s.Image.Holding(registers.REG_BOOST_TM); boost > 0 {
		elapsed += s.carry
		secs := elapsed / time.Second
		s.carry = elapsed % time.Second
		if secs >= time.Duration(boost) {
			boost = 0
			s.carry = 0
		} else {
			boost -= uint16(secs)
		}
		s.Image.SetHolding(registers.REG_BOOST_TM, boost)
	} else {
		s.carry = 0
	}

	if rng == nil {
		return
	}
	for n := uint16(0); n < 4; n++ {
		address := registers.REG_TEMP_HUMI + n
		t := int(s.Image.Input(address)) + rng.Intn(3) - 1
		if t < 0 {
			t = 0
		}
		s.Image.SetInput(address, uint16(t))
	}
}
