package nats

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
)

const (
	outcomeDispatched  = "dispatched"
	outcomeInvalid     = "invalid"
	outcomeUndecodable = "undecodable"
	outcomeError       = "error"
)

var (
	receivedCount = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "bus",
		Name:      "intents_received_total",
		Help:      "Count of intents received from the bus, by outcome.",
	}, []string{provmetrics.LabelOutcome})

	publishedCount = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "bus",
		Name:      "projections_published_total",
		Help:      "Count of release projections published to the bus.",
	}, []string{provmetrics.LabelSuccess})
)
