package bus

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

// ForwarderName is the offset name the forwarder consumes the log
// under.
const ForwarderName = "release-topic"

// Publisher sends release projections to the bus.
type Publisher interface {
	Publish(ctx context.Context, p release.Projection) error
}

// Forwarder publishes the projection of a release as it was right
// after each of its events. It is an eventlog.Handler, so delivery is
// at least once.
type Forwarder struct {
	Log       eventlog.Store
	Publisher Publisher
}

func (f *Forwarder) Handle(ctx context.Context, rec eventlog.Record) error {
	records, err := f.Log.Load(ctx, rec.ReleaseID)
	if err != nil {
		return errors.Wrapf(err, "loading release %s", rec.ReleaseID)
	}
	var events []release.Event
	for _, r := range records {
		if r.Seq > rec.Seq {
			break
		}
		events = append(events, r.Event)
	}
	state := release.Replay(rec.ReleaseID, events)
	if err := f.Publisher.Publish(ctx, state.Projection()); err != nil {
		return errors.Wrapf(err, "publishing release %s", rec.ReleaseID)
	}
	return nil
}
