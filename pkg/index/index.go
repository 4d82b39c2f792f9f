// Package index keeps the schedule index: which releases are in which
// status, by tag. The scheduler reads it to find work; it is written
// only by the projector, from the event log, so it may lag behind the
// releases themselves.
package index

import (
	"context"
	"time"

	"github.com/fluxcd/provisioner/pkg/release"
)

// Row is the index entry of one release.
type Row struct {
	ReleaseID string         `db:"release_id"`
	Tag       string         `db:"tag"`
	Status    release.Status `db:"status"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Store is the schedule index.
type Store interface {
	// Upsert inserts the row, or replaces the row with the same
	// release id.
	Upsert(ctx context.Context, row Row) error
	// Update changes the status of an existing row; it does nothing if
	// there is no row for the release.
	Update(ctx context.Context, id string, status release.Status, at time.Time) error
	Delete(ctx context.Context, id string) error
	// Candidates returns the rows in any of the statuses and any of
	// the tags.
	Candidates(ctx context.Context, statuses []release.Status, tags []string) ([]Row, error)
}
