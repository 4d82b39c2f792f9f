package release

import (
	"context"
	"time"
)

// Command is an intent addressed to one release. UpdateRelease and
// DeleteRelease come from outside; the rest are issued by the
// scheduler, apart from the read-only queries.
type Command interface {
	CommandName() string
}

type (
	// UpdateRelease installs or updates the release. Revision
	// identifies the intent it came from; zero means unknown.
	UpdateRelease struct {
		Release  Release
		Revision time.Time
	}
	DeleteRelease struct{}

	// InitiateRelease records that the proxy accepted an install,
	// update or delete.
	InitiateRelease struct{}
	// ConfirmRelease records that the proxy reports the release as
	// deployed, with the endpoints resolved from it.
	ConfirmRelease struct {
		Endpoints map[string]string
	}
	// DeleteConfirmed records that the proxy reports the release as
	// deleted.
	DeleteConfirmed struct{}
	FailRelease     struct {
		Reason string
	}

	GetRelease   struct{}
	GetFullState struct{}
)

func (UpdateRelease) CommandName() string   { return "UpdateRelease" }
func (DeleteRelease) CommandName() string   { return "DeleteRelease" }
func (InitiateRelease) CommandName() string { return "InitiateRelease" }
func (ConfirmRelease) CommandName() string  { return "ConfirmRelease" }
func (DeleteConfirmed) CommandName() string { return "DeleteConfirmed" }
func (FailRelease) CommandName() string     { return "FailRelease" }
func (GetRelease) CommandName() string      { return "GetRelease" }
func (GetFullState) CommandName() string    { return "GetFullState" }

// Entities delivers commands to release entities, one release at a
// time, and returns the state of the release after the command.
type Entities interface {
	Ask(ctx context.Context, id string, cmd Command) (State, error)
}
