// Package metrics exposes Prometheus collectors for control-file I/O,
// arbitration results and API traffic.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dokzlo13/lightsd/internal/lights"
)

var (
	controlFileWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "sysfs",
		Name:      "writes_total",
		Help:      "Control file writes by endpoint and result",
	}, []string{"endpoint", "result"})

	controlFileReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "sysfs",
		Name:      "reads_total",
		Help:      "Control file reads by endpoint and result",
	}, []string{"endpoint", "result"})

	ledUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "led",
		Name:      "updates_total",
		Help:      "LED updates by requesting light and displayed slot",
	}, []string{"light", "active"})

	ledBlinking = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lightsd",
		Subsystem: "led",
		Name:      "blinking",
		Help:      "1 when the LED is running a blink waveform",
	})

	backlightBrightness = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lightsd",
		Subsystem: "backlight",
		Name:      "brightness",
		Help:      "Last panel brightness written",
	})

	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status code",
	}, []string{"route", "code"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveLights records an applied event. It is meant to be registered as
// a lights.Listener.
func ObserveLights(e lights.Event) {
	if e.Light == lights.IDBacklight {
		backlightBrightness.Set(float64(e.Brightness))
		return
	}
	ledUpdates.WithLabelValues(e.Light.String(), e.Active.String()).Inc()
	if e.Program != nil && e.Program.Blink {
		ledBlinking.Set(1)
	} else {
		ledBlinking.Set(0)
	}
}

// ObserveRequest counts one API request.
func ObserveRequest(route string, code int) {
	apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
