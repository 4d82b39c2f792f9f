package entity

import (
	"context"
	"sync"

	"github.com/fluxcd/provisioner/pkg/release"
)

type reply struct {
	state release.State
	err   error
}

// request is a command waiting for its entity, with a place to put
// the answer. The reply channel is buffered, so the entity never
// blocks on a caller that has gone away.
type request struct {
	ctx   context.Context
	cmd   release.Command
	reply chan reply
}

func newRequest(ctx context.Context, cmd release.Command) *request {
	return &request{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
}

func (r *request) respond(s release.State, err error) {
	r.reply <- reply{state: s, err: err}
}

// mailbox is an unbounded FIFO of requests. Enqueueing never blocks;
// the owner waits on ready, which has a signal pending whenever
// something has been enqueued since it last looked.
type mailbox struct {
	mu      sync.Mutex
	waiting []*request
	ready   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) enqueue(r *request) {
	m.mu.Lock()
	m.waiting = append(m.waiting, r)
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// next dequeues the head of the mailbox, or returns nil if it is
// empty.
func (m *mailbox) next() *request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiting) == 0 {
		return nil
	}
	r := m.waiting[0]
	m.waiting[0] = nil
	m.waiting = m.waiting[1:]
	return r
}

func (m *mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}
