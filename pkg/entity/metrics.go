package entity

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
)

var (
	commandDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "provisioner",
		Subsystem: "entity",
		Name:      "command_duration_seconds",
		Help:      "Duration of release command handling, including persistence, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{provmetrics.LabelCommand, provmetrics.LabelSuccess})

	activeEntities = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "provisioner",
		Subsystem: "entity",
		Name:      "active_count",
		Help:      "Count of release entities held in memory.",
	}, []string{})
)
