package index

import (
	"context"

	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

// ConsumerName is the offset name the projector consumes the log
// under.
const ConsumerName = "release-schedule"

// Projector keeps the index up to date with the event log. Handling
// the same record twice leaves the index as handling it once did.
type Projector struct {
	Index Store
}

// Handle is an eventlog.Handler.
func (p *Projector) Handle(ctx context.Context, rec eventlog.Record) error {
	e := rec.Event
	switch e.Type {
	case release.EventInstalling:
		return p.Index.Upsert(ctx, Row{
			ReleaseID: rec.ReleaseID,
			Tag:       rec.Tag,
			Status:    e.Status(),
			UpdatedAt: e.Timestamp,
		})
	case release.EventDeleted, release.EventFailed:
		return p.Index.Delete(ctx, rec.ReleaseID)
	default:
		return p.Index.Update(ctx, rec.ReleaseID, e.Status(), e.Timestamp)
	}
}
