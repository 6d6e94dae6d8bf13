package mqtt

import (
	"errors"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const RECONNECT_INTERVAL = 5 * time.Second

type Config struct {
	Server   string
	ClientID string
	Username string
	Password string
	// WillTopic receives WillPayload (retained) if the connection is lost without a clean close
	WillTopic   string
	WillPayload string
}

// Client keeps a connection to an MQTT broker, reconnecting in the background.
// Every successful connection starts a new session with a new ID; subscriptions do not survive sessions.
type Client struct {
	client MQTT.Client
	id     int
	lock   sync.RWMutex
	quit   chan struct{}
	once   sync.Once
}

var ErrNotConnected = errors.New("MQTT client not connected")

func New(config *Config) *Client {
	m := &Client{
		quit: make(chan struct{}),
	}

	connOpts := MQTT.NewClientOptions().
		AddBroker(config.Server).
		SetClientID(config.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false)

	if config.Username != "" {
		connOpts.SetUsername(config.Username)
		if config.Password != "" {
			connOpts.SetPassword(config.Password)
		}
	}
	if config.WillTopic != "" {
		connOpts.SetWill(config.WillTopic, config.WillPayload, 0, true)
	}

	connOpts.OnConnectionLost = func(c MQTT.Client, err error) {
		log.WithError(err).Warn("MQTT disconnected")
	}

	connect := func() {
		log.Infof("Trying to connect to MQTT %s ...", config.Server)
		newClient := MQTT.NewClient(connOpts)
		token := newClient.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).Warn("Cannot connect to MQTT")
			return
		}
		m.lock.Lock()
		m.client = newClient
		m.id++
		id := m.id
		m.lock.Unlock()
		log.Infof("Connected to MQTT. Session ID %d", id)
	}

	connect()
	go func() {
		ticker := time.NewTicker(RECONNECT_INTERVAL)
		defer ticker.Stop()
		for {
			select {
			case <-m.quit:
				return
			case <-ticker.C:
				if !m.IsConnected() {
					connect()
				}
			}
		}
	}()
	return m
}

// ID returns the current session number. It changes every time a new connection is made.
func (m *Client) ID() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.id
}

func (m *Client) IsConnected() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.client != nil && m.client.IsConnectionOpen()
}

func (m *Client) current() MQTT.Client {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.client
}

func (m *Client) Publish(topic string, qos byte, retained bool, payload string) error {
	client := m.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (m *Client) Subscribe(topic string, callback func(message string)) error {
	client := m.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Subscribe(topic, 0, func(c MQTT.Client, m MQTT.Message) {
		callback(string(m.Payload()))
	})
	token.Wait()
	return token.Error()
}

// Close stops reconnecting and disconnects cleanly
func (m *Client) Close() error {
	m.once.Do(func() {
		close(m.quit)
		if client := m.current(); client != nil {
			client.Disconnect(250)
		}
	})
	return nil
}
