// Package metrics exports the snapshots of the polled devices as Prometheus gauges
package metrics

import (
	"futura2mqtt/hub"
	"futura2mqtt/registers"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "futura"

// Device is what the exporter needs from a polling hub
type Device interface {
	Name() string
	Snapshot() registers.Snapshot
	LastUpdate() time.Time
	AddListener(cb func()) hub.ListenerID
}

// Exporter keeps one gauge per numeric field of every watched device
type Exporter struct {
	registry *prometheus.Registry
	fields   *prometheus.GaugeVec
	channels *prometheus.GaugeVec
	info     *prometheus.GaugeVec
	updated  *prometheus.GaugeVec
}

func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		fields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "field",
			Help:      "Decoded register value. Flags are 0 or 1.",
		}, []string{"device", "field"}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "channel_field",
			Help:      "Decoded register value of a room unit, sensor or external device channel.",
		}, []string{"device", "channel", "index", "field"}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "info",
			Help:      "Device model, always 1.",
		}, []string{"device", "model"}),
		updated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "last_update_timestamp_seconds",
			Help:      "Time of the last successful poll cycle.",
		}, []string{"device"}),
	}
	e.registry.MustRegister(e.fields, e.channels, e.info, e.updated)
	return e
}

// Gatherer exposes the registry the gauges are registered with
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Watch updates the gauges of d after every successful poll
func (e *Exporter) Watch(d Device) hub.ListenerID {
	return d.AddListener(func() {
		e.Update(d.Name(), d.Snapshot())
		e.updated.WithLabelValues(d.Name()).Set(float64(d.LastUpdate().UnixNano()) / 1e9)
	})
}

// Update sets the gauges of device from snapshot s. Non numeric fields are skipped.
func (e *Exporter) Update(device string, s registers.Snapshot) {
	for key, v := range s {
		switch value := v.(type) {
		case []registers.Record:
			e.updateChannel(device, key, value)
		case string:
			if key == "sys_options" {
				e.info.DeletePartialMatch(prometheus.Labels{"device": device})
				e.info.WithLabelValues(device, value).Set(1)
			}
		default:
			if f, ok := registers.ToFloat(value); ok {
				e.fields.WithLabelValues(device, key).Set(f)
			}
		}
	}
}

func (e *Exporter) updateChannel(device string, channel string, records []registers.Record) {
	for _, rec := range records {
		index := strconv.FormatInt(rec[registers.INDEX].(int64), 10)
		for field, v := range rec {
			if field == registers.INDEX {
				continue
			}
			if f, ok := registers.ToFloat(v); ok {
				e.channels.WithLabelValues(device, channel, index, field).Set(f)
			}
		}
	}
}
