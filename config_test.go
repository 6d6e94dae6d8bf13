package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/epiclabs-io/ut"
)

const testConfig = `
devices:
  - name: upstairs
    host: 192.168.1.50
    extended: true
    smoothing: 5
  - name: downstairs
    host: futura.local
    port: 5020
    scan_interval: 10
    unit_id: 3
mqtt:
  server: tcp://127.0.0.1:1883
  prefix: home/futura
http:
  listen: ":8080"
`

func TestLoadConfig(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	config, err := LoadConfig(strings.NewReader(testConfig))
	t.Ok(err)
	config.applyDefaults()
	t.Ok(config.Validate())

	t.Equals(2, len(config.Devices))
	up := config.Devices[0]
	t.Equals("192.168.1.50:502", up.Address())
	t.Equals(true, up.Extended)
	t.Equals(5, up.Smoothing)
	t.Equals(2*time.Second, up.HubConfig(nil).Interval)

	down := config.Devices[1]
	t.Equals("futura.local:5020", down.Address())
	t.Equals(byte(3), down.ModbusConfig().UnitID)
	t.Equals(5*time.Second, down.ModbusConfig().Timeout)
	t.Equals(10*time.Second, down.HubConfig(nil).Interval)
	t.Equals(1, down.Smoothing)
	t.Equals(3, len(down.HubConfig(nil).Blocks))
	t.Assert(len(up.HubConfig(nil).Blocks) > 3, "extended devices poll the full map")

	t.Equals("home/futura", config.Mqtt.Prefix)
	t.Assert(strings.HasPrefix(config.Mqtt.ClientID, "futura2mqtt_"), "default client id, got %s", config.Mqtt.ClientID)
	t.Equals(":8080", config.Http.Listen)

	_, err = LoadConfig(strings.NewReader("devices:\n  - host: a\n    colour: red\n"))
	t.Assert(err != nil, "unknown keys must be rejected")

	config, err = LoadConfig(strings.NewReader(""))
	t.Ok(err)
	t.Equals(0, len(config.Devices))
}

func TestValidate(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	for _, c := range []struct {
		devices  []DeviceConfig
		listen   string
		expected error
	}{
		{nil, ":80", ErrNoDevices},
		{[]DeviceConfig{{Host: "a"}}, "", ErrNothingToDo},
		{[]DeviceConfig{{Name: "x"}}, ":80", ErrMissingHost},
		{[]DeviceConfig{{Host: "a", Name: "a/b"}}, ":80", ErrInvalidName},
		{[]DeviceConfig{{Host: "a", Name: "x+"}}, ":80", ErrInvalidName},
		{[]DeviceConfig{{Host: "a"}, {Host: "b"}}, ":80", ErrDuplicateName},
		{[]DeviceConfig{{Host: "a", Port: 70000}}, ":80", ErrInvalidPort},
		{[]DeviceConfig{{Host: "a", ScanInterval: -1}}, ":80", ErrInvalidInterval},
		{[]DeviceConfig{{Host: "a", Timeout: -1}}, ":80", ErrInvalidTimeout},
		{[]DeviceConfig{{Host: "a", UnitID: 248}}, ":80", ErrInvalidUnitID},
	} {
		config := &Config{Devices: c.devices, Http: HttpConfig{Listen: c.listen}}
		config.applyDefaults()
		err := config.Validate()
		t.Assert(errors.Is(err, c.expected), "expected %v, got %v", c.expected, err)
	}
}

func TestParseCommandLine(tx *testing.T) {
	t := ut.BeginTest(tx, false)
	defer t.FinishTest()

	config, err := ParseCommandLine([]string{
		"-host", "10.0.0.7", "-server", "tcp://broker:1883", "-scanInterval", "5", "-smoothing", "3",
	})
	t.Ok(err)
	t.Equals(1, len(config.Devices))
	t.Equals(DEFAULT_NAME, config.Devices[0].Name)
	t.Equals("10.0.0.7:502", config.Devices[0].Address())
	t.Equals(5*time.Second, config.Devices[0].HubConfig(nil).Interval)
	t.Equals(3, config.Devices[0].Smoothing)
	t.Equals("tcp://broker:1883", config.Mqtt.Server)
	t.Equals(DEFAULT_PREFIX, config.Mqtt.Prefix)
	t.Equals("", config.Http.Listen)

	_, err = ParseCommandLine([]string{"-server", "tcp://broker:1883"})
	t.Assert(errors.Is(err, ErrMissingHost), "a host is required, got %v", err)

	_, err = ParseCommandLine([]string{"-nope"})
	t.Assert(err != nil, "unknown flags must fail")

	path := filepath.Join(tx.TempDir(), "futura.yaml")
	t.Ok(os.WriteFile(path, []byte(testConfig), 0644))

	// explicit flags override the file
	config, err = ParseCommandLine([]string{"-config", path, "-prefix", "other", "-debug"})
	t.Ok(err)
	t.Equals(2, len(config.Devices))
	t.Equals("other", config.Mqtt.Prefix)
	t.Equals("tcp://127.0.0.1:1883", config.Mqtt.Server)
	t.Equals(true, config.Debug)

	_, err = ParseCommandLine([]string{"-config", filepath.Join(tx.TempDir(), "missing.yaml")})
	t.Assert(err != nil, "a missing file must fail")
}
