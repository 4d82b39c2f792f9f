// Package entity runs one actor per live release. An actor owns the
// state of its release, handles the commands addressed to it one at a
// time, and persists what they decide before answering.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	pkgerrors "github.com/pkg/errors"

	"github.com/fluxcd/provisioner/pkg/eventlog"
	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/release"
)

// DefaultPassivateAfter is how long an actor stays in memory without
// receiving a command.
const DefaultPassivateAfter = 2 * time.Minute

// ErrStopped is returned for commands sent to, or still queued in, a
// stopped registry.
var ErrStopped = errors.New("entity registry stopped")

type actor struct {
	id      string
	mailbox *mailbox
	state   release.State
	loaded  bool
}

// Registry routes commands to release actors, starting them on
// demand and letting them go once idle.
type Registry struct {
	entity         release.Entity
	log            eventlog.Store
	passivateAfter time.Duration
	logger         log.Logger

	mu      sync.Mutex
	actors  map[string]*actor
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var _ release.Entities = &Registry{}

func NewRegistry(en release.Entity, store eventlog.Store, passivateAfter time.Duration, logger log.Logger) *Registry {
	if passivateAfter <= 0 {
		passivateAfter = DefaultPassivateAfter
	}
	return &Registry{
		entity:         en,
		log:            store,
		passivateAfter: passivateAfter,
		logger:         logger,
		actors:         map[string]*actor{},
		stop:           make(chan struct{}),
	}
}

// Ask delivers the command to the release and waits for the state of
// the release after it. Commands to the same release are handled in
// the order Ask was called.
func (r *Registry) Ask(ctx context.Context, id string, cmd release.Command) (release.State, error) {
	req := newRequest(ctx, cmd)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return release.State{}, ErrStopped
	}
	a, ok := r.actors[id]
	if !ok {
		a = &actor{id: id, mailbox: newMailbox()}
		r.actors[id] = a
		activeEntities.Set(float64(len(r.actors)))
		r.wg.Add(1)
		go r.run(a)
	}
	// enqueued under the lock, so the actor cannot passivate between
	// being found and receiving the request
	a.mailbox.enqueue(req)
	r.mu.Unlock()

	select {
	case rep := <-req.reply:
		return rep.state, rep.err
	case <-ctx.Done():
		return release.State{}, ctx.Err()
	}
}

// Len is the number of actors in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Stop refuses further commands, answers queued ones with ErrStopped,
// and waits for the actors to finish what they are handling.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) run(a *actor) {
	defer r.wg.Done()
	for {
		if req := a.mailbox.next(); req != nil {
			r.handle(a, req)
			continue
		}
		select {
		case <-a.mailbox.ready:
		case <-r.stop:
			for req := a.mailbox.next(); req != nil; req = a.mailbox.next() {
				req.respond(release.State{}, ErrStopped)
			}
			return
		case <-time.After(r.passivateAfter):
			if r.passivate(a) {
				return
			}
		}
	}
}

// passivate removes the actor from the registry, unless a request
// arrived in the meantime.
func (r *Registry) passivate(a *actor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.mailbox.Len() > 0 {
		return false
	}
	delete(r.actors, a.id)
	activeEntities.Set(float64(len(r.actors)))
	return true
}

func (r *Registry) handle(a *actor, req *request) {
	var err error
	defer func(begin time.Time) {
		commandDuration.With(
			provmetrics.LabelCommand, req.cmd.CommandName(),
			provmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())

	if err = req.ctx.Err(); err != nil {
		req.respond(release.State{}, err)
		return
	}

	if !a.loaded {
		var records []eventlog.Record
		records, err = r.log.Load(req.ctx, a.id)
		if err != nil {
			err = pkgerrors.Wrapf(err, "recovering release %s", a.id)
			r.logger.Log("release", a.id, "err", err)
			req.respond(release.State{}, err)
			return
		}
		a.state = release.Replay(a.id, eventlog.Events(records))
		a.loaded = true
	}

	e := r.entity.Decide(a.state, req.cmd)
	if e == nil {
		req.respond(a.state, nil)
		return
	}
	if err = r.log.Append(req.ctx, a.id, a.state.Seq, *e); err != nil {
		// what is in memory can no longer be trusted; start again from
		// the log on the next command
		a.loaded = false
		if err != eventlog.ErrConflict {
			err = pkgerrors.Wrapf(err, "persisting %s for release %s", e.Type, a.id)
		}
		r.logger.Log("release", a.id, "command", req.cmd.CommandName(), "err", err)
		req.respond(release.State{}, err)
		return
	}
	a.state = a.state.Apply(*e)
	req.respond(a.state, nil)
}
