// Package hub polls a Futura unit through a Modbus transport, keeps the most recent decoded
// snapshot and notifies listeners after every successful poll cycle.
//
// The hub is idle until the first listener is added. That starts a ticker that runs a poll
// cycle every Interval. Removing the last listener stops the ticker and closes the transport.
package hub

import (
	"context"
	"fmt"
	"futura2mqtt/modbus"
	"futura2mqtt/registers"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const DEFAULT_INTERVAL = 2 * time.Second

// Config contains the configuration parameters for a new Hub instance
type Config struct {
	Name      string            // instance name, used to tell devices apart
	Interval  time.Duration     // time between poll cycles
	Blocks    []registers.Block // read plan, in read order
	Transport modbus.Modbus
}

// ListenerID identifies a registered listener
type ListenerID uint64

type listener struct {
	id ListenerID
	cb func()
}

// Hub drives periodic acquisition of one device
type Hub struct {
	Config
	cycle      sync.Mutex // held for the whole duration of a poll cycle
	lock       sync.RWMutex
	snapshot   registers.Snapshot
	listeners  []listener
	nextID     ListenerID
	cancel     context.CancelFunc
	lastError  error
	lastUpdate time.Time
	log        *log.Entry
}

// New returns a new idle Hub
func New(config *Config) *Hub {
	h := &Hub{
		Config: *config,
		log:    log.WithField("hub", config.Name),
	}
	if h.Interval <= 0 {
		h.Interval = DEFAULT_INTERVAL
	}
	if h.Blocks == nil {
		h.Blocks = registers.Blocks(false)
	}
	return h
}

func (h *Hub) Name() string {
	return h.Config.Name
}

// AddListener registers cb to be called after every successful poll cycle.
// Listeners are called in registration order. The first registration starts polling.
func (h *Hub) AddListener(cb func()) ListenerID {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.nextID++
	id := h.nextID
	h.listeners = append(h.listeners, listener{id: id, cb: cb})
	if len(h.listeners) == 1 {
		h.start()
	}
	return id
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
// Removing the last listener stops polling and closes the transport.
func (h *Hub) RemoveListener(id ListenerID) {
	h.lock.Lock()
	found := false
	for n, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:n:n], h.listeners[n+1:]...)
			found = true
			break
		}
	}
	stop := found && len(h.listeners) == 0
	if stop {
		h.cancel()
		h.cancel = nil
	}
	h.lock.Unlock()

	if stop {
		h.log.Debug("Last listener removed, stopping")
		h.closeTransport()
	}
}

func (h *Hub) closeTransport() {
	if err := h.Transport.Close(); err != nil {
		h.log.WithError(err).Warn("Error closing transport")
	}
}

// Active returns true while polling is running
func (h *Hub) Active() bool {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.cancel != nil
}

// start launches the polling goroutine. Must be called with the lock held.
func (h *Hub) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.log.WithField("interval", h.Interval).Debug("Starting")
	go h.run(ctx)
}

func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.Refresh(ctx)
			if ctx.Err() != nil {
				// stopped during the cycle: a read in flight may have reconnected
				h.closeTransport()
				return
			}
			if err != nil {
				h.log.WithError(err).Warn("Poll cycle failed")
			}
		}
	}
}

func (h *Hub) read(b *registers.Block) ([]uint16, error) {
	if b.Space == registers.Holding {
		return h.Transport.ReadHolding(b.Address, b.Quantity)
	}
	return h.Transport.ReadInput(b.Address, b.Quantity)
}

// Refresh runs one poll cycle: every block of the read plan is read and decoded in order.
// If any block fails the published snapshot is left untouched and no listener is called.
// Otherwise the merged result replaces the snapshot and every listener is called once.
// Cycles never overlap; a second caller waits for the running one to finish.
func (h *Hub) Refresh(ctx context.Context) error {
	h.cycle.Lock()
	defer h.cycle.Unlock()

	next := make(registers.Snapshot)
	for n := range h.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := &h.Blocks[n]
		words, err := h.read(b)
		if err == nil {
			var part registers.Snapshot
			part, err = registers.Decode(b, words)
			next.Merge(part)
		}
		if err != nil {
			err = fmt.Errorf("read %s %s block at %d: %w", b.Name, b.Space, b.Address, err)
			h.lock.Lock()
			h.lastError = err
			h.lock.Unlock()
			return err
		}
	}

	h.lock.Lock()
	h.snapshot = next
	h.lastError = nil
	h.lastUpdate = time.Now()
	listeners := append([]listener(nil), h.listeners...)
	h.lock.Unlock()

	for _, l := range listeners {
		l.cb()
	}
	return nil
}

// Snapshot returns the most recently published snapshot, nil before the first successful cycle.
// The returned map must not be modified.
func (h *Hub) Snapshot() registers.Snapshot {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.snapshot
}

// Get reads one decoded field from the current snapshot
func (h *Hub) Get(key string) (interface{}, bool) {
	return h.Snapshot().Get(key)
}

// LastError returns the error of the most recent poll cycle, nil if it succeeded
func (h *Hub) LastError() error {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.lastError
}

// LastUpdate returns when the snapshot was last replaced
func (h *Hub) LastUpdate() time.Time {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.lastUpdate
}

// WriteRegister writes one holding register. The snapshot is not refreshed; the next poll
// cycle reflects the new value.
func (h *Hub) WriteRegister(address uint16, value uint16) error {
	h.log.WithField("address", address).WithField("value", value).Debug("Writing register")
	return h.Transport.WriteRegister(address, value)
}

// WriteField encodes value for the writable field key and writes it
func (h *Hub) WriteField(key string, value float64) error {
	address, word, err := registers.Encode(key, value)
	if err != nil {
		return err
	}
	return h.WriteRegister(address, word)
}
