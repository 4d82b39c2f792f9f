package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/release"
)

const consumerLabel = provmetrics.LabelConsumer

var (
	requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "provisioner",
		Subsystem: "eventlog",
		Name:      "request_duration_seconds",
		Help:      "Event log request duration in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{provmetrics.LabelMethod, provmetrics.LabelSuccess})

	consumedRecords = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "provisioner",
		Subsystem: "eventlog",
		Name:      "consumed_records_total",
		Help:      "Count of event log records handled, per consumer.",
	}, []string{provmetrics.LabelConsumer})
)

type instrumentedStore struct {
	s Store
}

// InstrumentedStore records the duration and outcome of every call to
// the store.
func InstrumentedStore(s Store) Store {
	return &instrumentedStore{s: s}
}

func observe(method string, err error, begin time.Time) {
	requestDuration.With(
		provmetrics.LabelMethod, method,
		provmetrics.LabelSuccess, fmt.Sprint(err == nil || err == ErrConflict),
	).Observe(time.Since(begin).Seconds())
}

func (i *instrumentedStore) Append(ctx context.Context, id string, expectedSeq int64, events ...release.Event) (err error) {
	defer func(begin time.Time) {
		observe("Append", err, begin)
	}(time.Now())
	return i.s.Append(ctx, id, expectedSeq, events...)
}

func (i *instrumentedStore) Load(ctx context.Context, id string) (_ []Record, err error) {
	defer func(begin time.Time) {
		observe("Load", err, begin)
	}(time.Now())
	return i.s.Load(ctx, id)
}

func (i *instrumentedStore) ReadTag(ctx context.Context, tag string, after int64, limit int) (_ []Record, err error) {
	defer func(begin time.Time) {
		observe("ReadTag", err, begin)
	}(time.Now())
	return i.s.ReadTag(ctx, tag, after, limit)
}
