package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dokzlo13/lightsd/internal/eventbus"
)

// observedBus is read at scrape time. Collectors are registered once, so a
// later ObserveBus swaps the source instead of registering again.
var observedBus atomic.Pointer[eventbus.Bus]

func busStat(pick func(eventbus.Stats) uint64) func() float64 {
	return func() float64 {
		b := observedBus.Load()
		if b == nil {
			return 0
		}
		return float64(pick(b.Stats()))
	}
}

var (
	busPublished = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "eventbus",
		Name:      "published_total",
		Help:      "Events handed to bus subscribers",
	}, busStat(func(s eventbus.Stats) uint64 { return s.Published }))

	busDropped = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Events dropped because the queue was full or the bus was closing",
	}, busStat(func(s eventbus.Stats) uint64 { return s.Dropped }))

	busPanics = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "lightsd",
		Subsystem: "eventbus",
		Name:      "handler_panics_total",
		Help:      "Bus subscriber panics recovered by workers",
	}, busStat(func(s eventbus.Stats) uint64 { return s.Panics }))
)

// ObserveBus exports b's counters.
func ObserveBus(b *eventbus.Bus) {
	observedBus.Store(b)
}
