// Package scheduler drives releases towards their desired state. On
// every tick it looks up the releases in the statuses it is
// responsible for, calls their deployment proxy, and feeds the outcome
// back to the release as a command.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/kit/log"
	hapi_release "k8s.io/helm/pkg/proto/hapi/release"

	"github.com/fluxcd/provisioner/pkg/endpoint"
	"github.com/fluxcd/provisioner/pkg/index"
	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/proxy"
	"github.com/fluxcd/provisioner/pkg/release"
)

const (
	DefaultInitialDelay    = 5 * time.Second
	DefaultExecuteInterval = 10 * time.Second
	DefaultMonitorInterval = 60 * time.Second
)

var (
	// ExecuteStatuses are the statuses that need the proxy to act, or
	// are waiting to hear back from it.
	ExecuteStatuses = []release.Status{
		release.StatusInstalling,
		release.StatusUpdating,
		release.StatusDeleting,
		release.StatusPending,
	}
	// MonitorStatuses are checked for drift.
	MonitorStatuses = []release.Status{release.StatusDeployed}
)

// Outcomes of reconciling one release, as counted in metrics.
const (
	outcomeStale     = "stale"
	outcomeInvalid   = "invalid"
	outcomeInitiated = "initiated"
	outcomeConfirmed = "confirmed"
	outcomeDeleted   = "deleted"
	outcomeWaiting   = "waiting"
	outcomeUnchanged = "unchanged"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	outcomeError     = "error"
)

// Proxies resolves a release target to its deployment proxy.
type Proxies interface {
	For(target string) (proxy.Proxy, error)
}

type Scheduler struct {
	Entities release.Entities
	Index    index.Store
	Proxies  Proxies
	// Tags are the shards this scheduler is responsible for.
	Tags []string

	InitialDelay    time.Duration
	ExecuteInterval time.Duration
	MonitorInterval time.Duration

	Logger log.Logger

	mu sync.Mutex
	// releases being reconciled, by any tick
	inflight map[string]struct{}
}

// Loop runs the execute and monitor ticks until stop is closed. Work
// in flight is cancelled on the way out.
func (s *Scheduler) Loop(stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delay := time.NewTimer(s.InitialDelay)
	select {
	case <-stop:
		delay.Stop()
		s.Logger.Log("stopping", "true")
		return
	case <-delay.C:
	}

	execute := time.NewTicker(s.ExecuteInterval)
	defer execute.Stop()
	monitor := time.NewTicker(s.MonitorInterval)
	defer monitor.Stop()

	s.Tick(ctx, ExecuteStatuses)
	s.Tick(ctx, MonitorStatuses)
	for {
		select {
		case <-stop:
			s.Logger.Log("stopping", "true")
			return
		case <-execute.C:
			s.Tick(ctx, ExecuteStatuses)
		case <-monitor.C:
			s.Tick(ctx, MonitorStatuses)
		}
	}
}

// Tick starts reconciling every release the index has in one of the
// statuses, and returns without waiting for them; the WaitGroup is
// done when all have been dealt with.
func (s *Scheduler) Tick(ctx context.Context, statuses []release.Status) *sync.WaitGroup {
	var wg sync.WaitGroup
	rows, err := s.Index.Candidates(ctx, statuses, s.Tags)
	if err != nil {
		s.Logger.Log("err", err)
		return &wg
	}
	for _, row := range rows {
		if !s.claim(row.ReleaseID) {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer s.unclaim(id)
			s.reconcile(ctx, id, statuses)
		}(row.ReleaseID)
	}
	return &wg
}

// claim marks the release as being reconciled, unless it already is;
// a proxy call may well outlast the interval between ticks.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = map[string]struct{}{}
	}
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) unclaim(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) reconcile(ctx context.Context, id string, statuses []release.Status) {
	var (
		status  release.Status
		outcome = outcomeError
	)
	defer func(begin time.Time) {
		reconcileDuration.With(
			provmetrics.LabelStatus, string(status),
			provmetrics.LabelOutcome, outcome,
		).Observe(time.Since(begin).Seconds())
	}(time.Now())

	logger := log.With(s.Logger, "release", id)
	state, err := s.Entities.Ask(ctx, id, release.GetFullState{})
	if err != nil {
		logger.Log("err", err)
		return
	}
	status = state.Status
	// the index lags behind the entity
	if !contains(statuses, state.Status) || state.Release == nil {
		outcome = outcomeStale
		return
	}

	if state.Status == release.StatusInstalling || state.Status == release.StatusUpdating {
		if v := state.Release.Template.Version; !validVersion(v) {
			outcome = outcomeInvalid
			s.fail(ctx, logger, id, fmt.Errorf("chart version %q is not a semantic version", v))
			return
		}
	}

	p, err := s.Proxies.For(state.Release.Target)
	if err != nil {
		outcome = outcomeInvalid
		s.fail(ctx, logger, id, err)
		return
	}

	switch state.Status {
	case release.StatusInstalling:
		rel := state.Release
		err = p.Install(ctx, proxy.InstallRequest{
			Name:       state.InstanceID,
			Namespace:  rel.Namespace,
			Repository: rel.Template.Repository,
			Chart:      rel.Template.Name,
			Version:    rel.Template.Version,
			Values:     rel.Parameters,
		})
		outcome = s.initiated(ctx, logger, id, err)
	case release.StatusUpdating:
		rel := state.Release
		err = p.Update(ctx, proxy.UpdateRequest{
			Name:       state.InstanceID,
			Repository: rel.Template.Repository,
			Chart:      rel.Template.Name,
			Version:    rel.Template.Version,
			Values:     rel.Parameters,
		})
		outcome = s.initiated(ctx, logger, id, err)
	case release.StatusDeleting:
		err = p.Delete(ctx, state.InstanceID)
		outcome = s.initiated(ctx, logger, id, err)
	case release.StatusPending:
		outcome = s.pending(ctx, logger, p, state)
	case release.StatusDeployed:
		outcome = s.monitor(ctx, logger, p, state)
	}
}

// initiated reports the result of asking the proxy to act.
func (s *Scheduler) initiated(ctx context.Context, logger log.Logger, id string, err error) string {
	if err != nil {
		return s.proxyError(ctx, logger, id, err)
	}
	return s.send(ctx, logger, id, release.InitiateRelease{}, outcomeInitiated)
}

func (s *Scheduler) pending(ctx context.Context, logger log.Logger, p proxy.Proxy, state release.State) string {
	res, err := p.Status(ctx, state.InstanceID, state.Release.Template.Version)
	if err != nil {
		return s.proxyError(ctx, logger, state.ID, err)
	}
	switch code := res.Info.Status.Code; code {
	case hapi_release.Status_UNKNOWN:
		return outcomeWaiting
	case hapi_release.Status_DEPLOYED:
		endpoints := endpoint.Extract(
			res.Info.Status.Resources,
			state.InstanceID,
			proxy.ClusterHost(state.Release.Target),
			state.Release.EndpointTemplates,
		)
		return s.send(ctx, logger, state.ID, release.ConfirmRelease{Endpoints: endpoints}, outcomeConfirmed)
	case hapi_release.Status_DELETED:
		return s.send(ctx, logger, state.ID, release.DeleteConfirmed{}, outcomeDeleted)
	default:
		return s.unexpected(ctx, logger, state.ID, code)
	}
}

func (s *Scheduler) monitor(ctx context.Context, logger log.Logger, p proxy.Proxy, state release.State) string {
	res, err := p.Status(ctx, state.InstanceID, state.Release.Template.Version)
	if err != nil {
		return s.proxyError(ctx, logger, state.ID, err)
	}
	switch code := res.Info.Status.Code; code {
	case hapi_release.Status_DEPLOYED:
		return outcomeUnchanged
	case hapi_release.Status_DELETED:
		return s.send(ctx, logger, state.ID, release.DeleteConfirmed{}, outcomeDeleted)
	default:
		return s.unexpected(ctx, logger, state.ID, code)
	}
}

func (s *Scheduler) unexpected(ctx context.Context, logger log.Logger, id string, code hapi_release.Status_Code) string {
	s.fail(ctx, logger, id, fmt.Errorf("proxy reports release as %s", code))
	return outcomeFailed
}

// proxyError leaves the release alone if the proxy may yet answer,
// and fails it otherwise.
func (s *Scheduler) proxyError(ctx context.Context, logger log.Logger, id string, err error) string {
	if proxy.IsTransient(err) {
		logger.Log("retry", "next tick", "err", err)
		return outcomeRetry
	}
	s.fail(ctx, logger, id, err)
	return outcomeFailed
}

func (s *Scheduler) fail(ctx context.Context, logger log.Logger, id string, reason error) {
	logger.Log("fail", reason)
	s.send(ctx, logger, id, release.FailRelease{Reason: reason.Error()}, outcomeFailed)
}

func (s *Scheduler) send(ctx context.Context, logger log.Logger, id string, cmd release.Command, outcome string) string {
	if _, err := s.Entities.Ask(ctx, id, cmd); err != nil {
		logger.Log("command", cmd.CommandName(), "err", err)
		return outcomeError
	}
	return outcome
}

func validVersion(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

func contains(statuses []release.Status, s release.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
