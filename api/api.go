// Package api serves the device snapshots over HTTP and accepts register writes
package api

import (
	"errors"
	"futura2mqtt/registers"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Device is what the API needs from a polling hub
type Device interface {
	Name() string
	Active() bool
	Snapshot() registers.Snapshot
	Get(key string) (interface{}, bool)
	LastUpdate() time.Time
	LastError() error
	WriteRegister(address uint16, value uint16) error
	WriteField(key string, value float64) error
}

type DeviceState struct {
	Name       string             `json:"name"`
	Active     bool               `json:"active"`
	LastUpdate *time.Time         `json:"last_update,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	Snapshot   registers.Snapshot `json:"snapshot"`
}

type FieldValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

type FieldWrite struct {
	Value *float64 `json:"value"`
}

type RegisterWrite struct {
	Value *uint16 `json:"value"`
}

var ErrUnknownDevice = errors.New("Unknown device")
var ErrFieldUnavailable = errors.New("Field not available")
var ErrMissingValue = errors.New("Missing value")

func handleErrors(c *gin.Context) {
	c.Next()

	if len(c.Errors) > 0 {
		c.JSON(-1, c.Errors) // -1 == not override the current error code
	}
}

func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.WithField("status", c.Writer.Status()).
		WithField("duration", time.Since(start)).
		Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
}

// writeStatus maps a write error to the HTTP status to answer with
func writeStatus(err error) int {
	switch {
	case errors.Is(err, registers.ErrUnknownField),
		errors.Is(err, registers.ErrReadOnly),
		errors.Is(err, registers.ErrOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// New returns the HTTP handler for devices. metrics, when not nil, is served at /metrics.
func New(devices []Device, metrics http.Handler) *gin.Engine {
	byName := make(map[string]Device, len(devices))
	var names []string
	for _, d := range devices {
		byName[d.Name()] = d
		names = append(names, d.Name())
	}
	sort.Strings(names)

	r := gin.New()
	r.Use(gin.Recovery(), logRequests, handleErrors)

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api")

	api.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, names)
	})

	device := func(c *gin.Context) (Device, bool) {
		d, ok := byName[c.Param("name")]
		if !ok {
			c.AbortWithError(http.StatusNotFound, ErrUnknownDevice)
		}
		return d, ok
	}

	api.GET("/devices/:name", func(c *gin.Context) {
		d, ok := device(c)
		if !ok {
			return
		}
		state := DeviceState{
			Name:     d.Name(),
			Active:   d.Active(),
			Snapshot: d.Snapshot(),
		}
		if t := d.LastUpdate(); !t.IsZero() {
			state.LastUpdate = &t
		}
		if err := d.LastError(); err != nil {
			state.LastError = err.Error()
		}
		c.JSON(http.StatusOK, state)
	})

	api.GET("/devices/:name/fields/:key", func(c *gin.Context) {
		d, ok := device(c)
		if !ok {
			return
		}
		key := c.Param("key")
		v, ok := d.Get(key)
		if !ok {
			c.AbortWithError(http.StatusNotFound, ErrFieldUnavailable)
			return
		}
		c.JSON(http.StatusOK, FieldValue{Key: key, Value: v})
	})

	api.PUT("/devices/:name/fields/:key", func(c *gin.Context) {
		d, ok := device(c)
		if !ok {
			return
		}
		var args FieldWrite
		if err := c.ShouldBindJSON(&args); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		if args.Value == nil {
			c.AbortWithError(http.StatusBadRequest, ErrMissingValue)
			return
		}
		if err := d.WriteField(c.Param("key"), *args.Value); err != nil {
			c.AbortWithError(writeStatus(err), err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.PUT("/devices/:name/registers/:address", func(c *gin.Context) {
		d, ok := device(c)
		if !ok {
			return
		}
		address, err := strconv.ParseUint(c.Param("address"), 10, 16)
		if err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		var args RegisterWrite
		if err := c.ShouldBindJSON(&args); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		if args.Value == nil {
			c.AbortWithError(http.StatusBadRequest, ErrMissingValue)
			return
		}
		if err := d.WriteRegister(uint16(address), *args.Value); err != nil {
			c.AbortWithError(http.StatusBadGateway, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r
}
