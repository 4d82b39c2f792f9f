package index

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/release"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "provisioner",
	Subsystem: "index",
	Name:      "request_duration_seconds",
	Help:      "Schedule index request duration in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{provmetrics.LabelMethod, provmetrics.LabelSuccess})

type instrumentedStore struct {
	s Store
}

func InstrumentedStore(s Store) Store {
	return &instrumentedStore{s: s}
}

func observe(method string, err error, begin time.Time) {
	requestDuration.With(
		provmetrics.LabelMethod, method,
		provmetrics.LabelSuccess, fmt.Sprint(err == nil),
	).Observe(time.Since(begin).Seconds())
}

func (i *instrumentedStore) Upsert(ctx context.Context, row Row) (err error) {
	defer func(begin time.Time) {
		observe("Upsert", err, begin)
	}(time.Now())
	return i.s.Upsert(ctx, row)
}

func (i *instrumentedStore) Update(ctx context.Context, id string, status release.Status, at time.Time) (err error) {
	defer func(begin time.Time) {
		observe("Update", err, begin)
	}(time.Now())
	return i.s.Update(ctx, id, status, at)
}

func (i *instrumentedStore) Delete(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		observe("Delete", err, begin)
	}(time.Now())
	return i.s.Delete(ctx, id)
}

func (i *instrumentedStore) Candidates(ctx context.Context, statuses []release.Status, tags []string) (_ []Row, err error) {
	defer func(begin time.Time) {
		observe("Candidates", err, begin)
	}(time.Now())
	return i.s.Candidates(ctx, statuses, tags)
}
