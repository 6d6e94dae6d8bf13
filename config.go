package main

import (
	"errors"
	"flag"
	"fmt"
	"futura2mqtt/hub"
	"futura2mqtt/modbus"
	"futura2mqtt/registers"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DEFAULT_NAME = "FuturaModbus"
const DEFAULT_PREFIX = "futura2mqtt"

// DeviceConfig describes one Futura unit
type DeviceConfig struct {
	Name         string `yaml:"name"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ScanInterval int    `yaml:"scan_interval"` // seconds
	Timeout      int    `yaml:"timeout"`       // seconds
	UnitID       int    `yaml:"unit_id"`
	Extended     bool   `yaml:"extended"`
	Smoothing    int    `yaml:"smoothing"`
}

type MqttConfig struct {
	Server   string `yaml:"server"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type HttpConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	Mqtt    MqttConfig     `yaml:"mqtt"`
	Http    HttpConfig     `yaml:"http"`
	Debug   bool           `yaml:"debug"`
}

var ErrNoDevices = errors.New("No devices configured")
var ErrMissingHost = errors.New("Device host is required")
var ErrInvalidName = errors.New("Device names may only contain letters, digits, '-' and '_'")
var ErrDuplicateName = errors.New("Duplicate device name")
var ErrInvalidPort = errors.New("Port must be between 1 and 65535")
var ErrInvalidInterval = errors.New("Scan interval must be a positive number of seconds")
var ErrInvalidTimeout = errors.New("Timeout must be a positive number of seconds")
var ErrInvalidUnitID = errors.New("Unit id must be between 1 and 247")
var ErrNothingToDo = errors.New("Neither an MQTT server nor an HTTP listen address is configured")

var validName = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

// LoadConfig reads a YAML configuration. Unknown keys are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	var config Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &config, nil
}

// applyDefaults fills every unset optional value
func (c *Config) applyDefaults() {
	for n := range c.Devices {
		d := &c.Devices[n]
		if d.Name == "" {
			d.Name = DEFAULT_NAME
		}
		if d.Port == 0 {
			d.Port = modbus.DEFAULT_PORT
		}
		if d.ScanInterval == 0 {
			d.ScanInterval = int(hub.DEFAULT_INTERVAL / time.Second)
		}
		if d.Timeout == 0 {
			d.Timeout = int(modbus.DEFAULT_TIMEOUT / time.Second)
		}
		if d.UnitID == 0 {
			d.UnitID = modbus.DEFAULT_UNIT_ID
		}
		if d.Smoothing == 0 {
			d.Smoothing = 1
		}
	}
	if c.Mqtt.Prefix == "" {
		c.Mqtt.Prefix = DEFAULT_PREFIX
	}
	if c.Mqtt.ClientID == "" {
		hostname, _ := os.Hostname()
		c.Mqtt.ClientID = "futura2mqtt_" + hostname
	}
}

// Validate checks a configuration with defaults applied
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}
	if c.Mqtt.Server == "" && c.Http.Listen == "" {
		return ErrNothingToDo
	}
	names := make(map[string]bool)
	for _, d := range c.Devices {
		var err error
		switch {
		case d.Host == "":
			err = ErrMissingHost
		case !validName.MatchString(d.Name):
			err = ErrInvalidName
		case names[d.Name]:
			err = ErrDuplicateName
		case d.Port < 1 || d.Port > 65535:
			err = ErrInvalidPort
		case d.ScanInterval < 1:
			err = ErrInvalidInterval
		case d.Timeout < 1:
			err = ErrInvalidTimeout
		case d.UnitID < 1 || d.UnitID > 247:
			err = ErrInvalidUnitID
		}
		if err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
		names[d.Name] = true
	}
	return nil
}

// Address returns the host:port of the device
func (d *DeviceConfig) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ModbusConfig returns the transport configuration of the device
func (d *DeviceConfig) ModbusConfig() *modbus.Config {
	return &modbus.Config{
		Address: d.Address(),
		Timeout: time.Duration(d.Timeout) * time.Second,
		UnitID:  byte(d.UnitID),
	}
}

// HubConfig returns the polling configuration of the device, reading through transport
func (d *DeviceConfig) HubConfig(transport modbus.Modbus) *hub.Config {
	return &hub.Config{
		Name:      d.Name,
		Interval:  time.Duration(d.ScanInterval) * time.Second,
		Blocks:    registers.Blocks(d.Extended),
		Transport: transport,
	}
}

// ParseCommandLine builds the configuration from the command line arguments.
// With -config the devices come from the YAML file; MQTT, HTTP and debug flags given
// explicitly override the file.
func ParseCommandLine(args []string) (*Config, error) {
	fs := flag.NewFlagSet("futura2mqtt", flag.ContinueOnError)

	configFile := fs.String("config", "", "YAML configuration file, for several devices")
	host := fs.String("host", "", "Host name or IP address of the Futura unit")
	port := fs.Int("port", modbus.DEFAULT_PORT, "Modbus TCP port")
	name := fs.String("name", DEFAULT_NAME, "Device name, used in MQTT topics and the HTTP API")
	scanInterval := fs.Int("scanInterval", int(hub.DEFAULT_INTERVAL/time.Second), "Seconds between polls")
	timeout := fs.Int("timeout", int(modbus.DEFAULT_TIMEOUT/time.Second), "Modbus request timeout in seconds")
	unitID := fs.Int("unitId", modbus.DEFAULT_UNIT_ID, "Modbus unit id")
	extended := fs.Bool("extended", false, "Also poll the full register map")
	smoothing := fs.Int("smoothing", 1, "Moving average window for published temperatures")

	server := fs.String("server", "", "The full url of the MQTT server to connect to ex: tcp://127.0.0.1:1883")
	clientid := fs.String("clientid", "", "A clientid for the connection")
	username := fs.String("username", "", "A username to authenticate to the MQTT server")
	password := fs.String("password", "", "Password to match username")
	prefix := fs.String("prefix", DEFAULT_PREFIX, "MQTT topic root where to publish/read topics")
	listen := fs.String("listen", "", "HTTP API and metrics listen address ex: :8080")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config := &Config{}
	if *configFile != "" {
		f, err := os.Open(*configFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		config, err = LoadConfig(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", *configFile, err)
		}
	} else {
		config.Devices = []DeviceConfig{{
			Name:         *name,
			Host:         *host,
			Port:         *port,
			ScanInterval: *scanInterval,
			Timeout:      *timeout,
			UnitID:       *unitID,
			Extended:     *extended,
			Smoothing:    *smoothing,
		}}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			config.Mqtt.Server = *server
		case "clientid":
			config.Mqtt.ClientID = *clientid
		case "username":
			config.Mqtt.Username = *username
		case "password":
			config.Mqtt.Password = *password
		case "prefix":
			config.Mqtt.Prefix = *prefix
		case "listen":
			config.Http.Listen = *listen
		case "debug":
			config.Debug = *debug
		}
	})

	config.applyDefaults()
	return config, config.Validate()
}
