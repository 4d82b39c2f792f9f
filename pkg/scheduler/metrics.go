package scheduler

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
)

// Most of the time goes on the proxy call; installs that block until
// the chart is up can take minutes.
var reconcileDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "provisioner",
	Subsystem: "scheduler",
	Name:      "reconcile_duration_seconds",
	Help:      "Duration of reconciling one release, in seconds.",
	Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
}, []string{provmetrics.LabelStatus, provmetrics.LabelOutcome})
