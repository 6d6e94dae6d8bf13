// Package futura publishes the state of a Futura unit to MQTT and turns MQTT commands into
// register writes
package futura

import (
	"encoding/json"
	"fmt"
	"futura2mqtt/hub"
	"futura2mqtt/registers"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Publish func(topic string, qos byte, retained bool, payload string) error
type Subscribe func(topic string, callback func(message string)) error

// Device is what the bridge needs from a polling hub
type Device interface {
	Name() string
	Get(key string) (interface{}, bool)
	Snapshot() registers.Snapshot
	AddListener(cb func()) hub.ListenerID
	RemoveListener(id hub.ListenerID)
	WriteRegister(address uint16, value uint16) error
}

type Config struct {
	Device      Device
	Publish     Publish
	Subscribe   Subscribe
	TopicPrefix string
	Smoothing   int  // moving average window for temperatures, 1 or less disables it
	Extended    bool // also publish every other decoded field under fields/<key>
}

// Bridge publishes changed values after every poll of its device
type Bridge struct {
	Config
	listener  hub.ListenerID
	started   bool
	published map[string]string // topic -> last payload
	smoothers map[string]*smoother
	lock      sync.Mutex
	log       *log.Entry
}

func NewBridge(config *Config) *Bridge {
	b := &Bridge{
		Config:    *config,
		published: make(map[string]string),
		smoothers: make(map[string]*smoother),
		log:       log.WithField("device", config.Device.Name()),
	}
	if b.Smoothing > 1 {
		for _, e := range Entities {
			if e.Smooth {
				b.smoothers[e.Key] = newSmoother(b.Smoothing)
			}
		}
	}
	return b
}

func (b *Bridge) getTopic(object string) string {
	return fmt.Sprintf("%s/%s/%s", b.TopicPrefix, b.Device.Name(), object)
}

func (b *Bridge) getStatusTopic() string {
	return b.getTopic("status")
}

// Start subscribes to the command topics and starts listening to the device.
// The retained state of every entity is published after the next successful poll.
func (b *Bridge) Start() error {
	for _, e := range Entities {
		if e.Component == COMPONENT_SENSOR {
			continue
		}
		e := e
		topic := b.getTopic(e.Object) + SET_SUFFIX
		err := b.Subscribe(topic, func(message string) {
			if err := b.command(e, message); err != nil {
				b.log.WithError(err).WithField("topic", topic).Errorf("Cannot apply command %q", message)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	b.lock.Lock()
	b.started = true
	b.lock.Unlock()
	b.listener = b.Device.AddListener(b.refresh)
	return nil
}

// Stop detaches the bridge from its device and marks the device offline
func (b *Bridge) Stop() {
	b.lock.Lock()
	started := b.started
	b.started = false
	b.lock.Unlock()
	if !started {
		return
	}
	b.Device.RemoveListener(b.listener)
	if err := b.Publish(b.getStatusTopic(), 0, true, STATUS_OFFLINE); err != nil {
		b.log.WithError(err).Warn("Cannot publish status")
	}
}

// format renders a decoded value as an MQTT payload
func format(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		if n {
			return STATE_ON
		}
		return STATE_OFF
	case string:
		return n
	}
	j, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(j)
}

// publish sends payload to topic unless it is what was sent last time.
// Must be called with the lock held.
func (b *Bridge) publish(topic string, payload string) {
	if last, ok := b.published[topic]; ok && last == payload {
		return
	}
	if err := b.Publish(topic, 0, true, payload); err != nil {
		b.log.WithError(err).WithField("topic", topic).Warn("Cannot publish")
		return
	}
	b.published[topic] = payload
}

// refresh is called by the device after every successful poll
func (b *Bridge) refresh() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.started {
		return
	}

	b.publish(b.getStatusTopic(), STATUS_ONLINE)
	for _, e := range Entities {
		v, ok := b.Device.Get(e.Key)
		if !ok {
			continue
		}
		if s := b.smoothers[e.Key]; s != nil {
			if f, ok := v.(float64); ok {
				v = s.sample(f)
			}
		}
		b.publish(b.getTopic(e.Object), format(v))
	}

	if !b.Extended {
		return
	}
	snapshot := b.Device.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		if !Objects.ExistsInverse(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.publish(b.getTopic("fields/"+key), format(snapshot[key]))
	}
}

// parse converts a command payload into a value for the entity's field
func parse(e Entity, message string) (float64, error) {
	message = strings.TrimSpace(message)
	if e.Component == COMPONENT_SWITCH {
		switch strings.ToUpper(message) {
		case STATE_ON, "1", "TRUE":
			return 1, nil
		case STATE_OFF, "0", "FALSE":
			return 0, nil
		}
		return 0, fmt.Errorf("%q is not %s or %s", message, STATE_ON, STATE_OFF)
	}
	return strconv.ParseFloat(message, 64)
}

func (b *Bridge) command(e Entity, message string) error {
	value, err := parse(e, message)
	if err != nil {
		return err
	}
	address, word, err := registers.Encode(e.Key, value)
	if err != nil {
		return err
	}
	b.log.WithField("object", e.Object).Infof("Setting %s to %s", e.Key, message)
	return b.Device.WriteRegister(address, word)
}
