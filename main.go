package main

import (
	"context"
	"errors"
	"futura2mqtt/api"
	"futura2mqtt/futura"
	"futura2mqtt/hub"
	"futura2mqtt/metrics"
	"futura2mqtt/modbus"
	"futura2mqtt/mqtt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const SESSION_CHECK_INTERVAL = 2 * time.Second
const SHUTDOWN_TIMEOUT = 5 * time.Second

// device groups a configured unit with its polling hub
type device struct {
	*DeviceConfig
	hub *hub.Hub
}

func NewDevices(config *Config) []*device {
	var devices []*device
	for n := range config.Devices {
		c := &config.Devices[n]
		transport := modbus.New(c.ModbusConfig())
		devices = append(devices, &device{
			DeviceConfig: c,
			hub:          hub.New(c.HubConfig(transport)),
		})
	}
	return devices
}

func NewBridges(devices []*device, client *mqtt.Client, prefix string) []*futura.Bridge {
	var bridges []*futura.Bridge
	for _, d := range devices {
		bridges = append(bridges, futura.NewBridge(&futura.Config{
			Device:      d.hub,
			Publish:     client.Publish,
			Subscribe:   client.Subscribe,
			TopicPrefix: prefix,
			Smoothing:   d.Smoothing,
			Extended:    d.Extended,
		}))
	}
	return bridges
}

func stopBridges(bridges []*futura.Bridge) {
	for _, b := range bridges {
		b.Stop()
	}
}

// runBridges recreates the bridges every time the MQTT client starts a new session,
// since subscriptions are lost with the old one
func runBridges(ctx context.Context, client *mqtt.Client, devices []*device, prefix string) {
	ticker := time.NewTicker(SESSION_CHECK_INTERVAL)
	defer ticker.Stop()
	statusTopic := prefix + "/status"
	var sessionID int
	var bridges []*futura.Bridge
	for {
		select {
		case <-ctx.Done():
			stopBridges(bridges)
			return
		case <-ticker.C:
		}
		newSessionID := client.ID()
		if newSessionID == 0 || sessionID == newSessionID {
			continue
		}
		stopBridges(bridges)
		bridges = NewBridges(devices, client, prefix)
		started := true
		for _, b := range bridges {
			if err := b.Start(); err != nil {
				log.WithError(err).Error("Error starting bridge")
				started = false
				break
			}
		}
		if !started {
			continue
		}
		sessionID = newSessionID
		if err := client.Publish(statusTopic, 0, true, futura.STATUS_ONLINE); err != nil {
			log.WithError(err).Warn("Cannot publish status")
		}
	}
}

func main() {
	config, err := ParseCommandLine(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %s", err)
	}
	if config.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices := NewDevices(config)
	for _, d := range devices {
		if err := d.hub.Refresh(ctx); err != nil {
			log.WithError(err).WithField("device", d.Name).Warn("First poll failed, will keep trying")
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	var exporter *metrics.Exporter
	var watches []hub.ListenerID
	if config.Http.Listen != "" {
		exporter = metrics.New()
		var apiDevices []api.Device
		for _, d := range devices {
			watches = append(watches, exporter.Watch(d.hub))
			apiDevices = append(apiDevices, d.hub)
		}
		server := &http.Server{
			Addr:    config.Http.Listen,
			Handler: api.New(apiDevices, exporter.Handler()),
		}
		g.Go(func() error {
			log.WithField("listen", config.Http.Listen).Info("HTTP API started")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	var client *mqtt.Client
	if config.Mqtt.Server != "" {
		client = mqtt.New(&mqtt.Config{
			Server:      config.Mqtt.Server,
			ClientID:    config.Mqtt.ClientID,
			Username:    config.Mqtt.Username,
			Password:    config.Mqtt.Password,
			WillTopic:   config.Mqtt.Prefix + "/status",
			WillPayload: futura.STATUS_OFFLINE,
		})
		g.Go(func() error {
			runBridges(ctx, client, devices, config.Mqtt.Prefix)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Shutting down")
	}

	for n, id := range watches {
		devices[n].hub.RemoveListener(id)
	}
	if client != nil {
		if err := client.Publish(config.Mqtt.Prefix+"/status", 0, true, futura.STATUS_OFFLINE); err != nil {
			log.WithError(err).Warn("Cannot publish status")
		}
		client.Close()
	}
}
