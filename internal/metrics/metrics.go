package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/compose-network/voting-bridge/internal/voting"
)

const namespace = "voting_bridge"

// Collector counts conversions and factory events. It is a voting.EventSink and a
// bridge.ConversionObserver.
type Collector struct {
	conversions *prometheus.CounterVec
	events      *prometheus.CounterVec
	proxies     prometheus.Gauge
}

// New registers the collector on reg. A nil reg leaves the metrics unregistered.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "bridge conversions by direction and outcome",
		}, []string{"direction", "outcome"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factory_events_total",
			Help:      "events emitted by the voter factory",
		}, []string{"kind"}),
		proxies: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_proxies",
			Help:      "voter proxies created and not yet released",
		}),
	}
}

func (c *Collector) ObserveConversion(direction string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.conversions.WithLabelValues(direction, outcome).Inc()
}

func (c *Collector) HandleEvent(_ context.Context, event voting.Event) error {
	c.events.WithLabelValues(string(event.Kind())).Inc()
	switch event.(type) {
	case voting.VoterCreated:
		c.proxies.Inc()
	case voting.ProxyReleased:
		c.proxies.Dec()
	}
	return nil
}
