package release

import (
	"time"
)

// DefaultInstancePrefix is prepended to a release id to name its
// instance at the proxy.
const DefaultInstancePrefix = "oscm-"

// Entity decides which event, if any, a command produces given the
// current state of a release. It holds no state of its own.
type Entity struct {
	InstancePrefix string
	Now            func() time.Time
}

// NewEntity returns an Entity naming instances with prefix.
func NewEntity(prefix string) Entity {
	return Entity{InstancePrefix: prefix, Now: time.Now}
}

// InstanceName is the name a release gets at the proxy.
func (en Entity) InstanceName(id string) string {
	return en.InstancePrefix + id
}

// Decide returns the event the command produces in state s, or nil
// when the command is read-only or does not apply to the current
// status. A command never produces more than one event.
func (en Entity) Decide(s State, cmd Command) *Event {
	switch s.Status {
	case StatusNone:
		switch c := cmd.(type) {
		case UpdateRelease:
			return en.installing(c, en.InstanceName(s.ID))
		}

	case StatusInstalling:
		switch c := cmd.(type) {
		case UpdateRelease:
			if duplicate(s, c) {
				return nil
			}
			return en.installing(c, s.InstanceID)
		case DeleteRelease:
			return en.event(EventDeleted)
		case InitiateRelease:
			return en.event(EventPending)
		case FailRelease:
			return en.failed(EventFailed, c)
		}

	case StatusUpdating:
		switch c := cmd.(type) {
		case UpdateRelease:
			return en.updating(s, c)
		case DeleteRelease:
			return en.event(EventDeleting)
		case InitiateRelease:
			return en.event(EventPending)
		case FailRelease:
			return en.failed(EventError, c)
		}

	case StatusDeleting:
		switch c := cmd.(type) {
		case InitiateRelease:
			return en.event(EventPending)
		case FailRelease:
			return en.failed(EventError, c)
		}

	case StatusPending:
		switch c := cmd.(type) {
		case UpdateRelease:
			return en.updating(s, c)
		case DeleteRelease:
			return en.event(EventDeleting)
		case ConfirmRelease:
			e := en.event(EventDeployed)
			e.Endpoints = c.Endpoints
			if e.Endpoints == nil {
				e.Endpoints = map[string]string{}
			}
			return e
		case DeleteConfirmed:
			return en.event(EventDeleted)
		case FailRelease:
			return en.failed(EventError, c)
		}

	case StatusDeployed:
		switch c := cmd.(type) {
		case UpdateRelease:
			return en.updating(s, c)
		case DeleteRelease:
			return en.event(EventDeleting)
		case DeleteConfirmed:
			return en.event(EventDeleted)
		case FailRelease:
			return en.failed(EventError, c)
		}

	case StatusFailed:
		switch c := cmd.(type) {
		case UpdateRelease:
			if duplicate(s, c) {
				return nil
			}
			return en.installing(c, s.InstanceID)
		}

	case StatusError:
		switch c := cmd.(type) {
		case UpdateRelease:
			return en.updating(s, c)
		case DeleteRelease:
			return en.event(EventDeleting)
		}

	case StatusDeleted:
		// terminal; every command is acknowledged without effect
	}
	return nil
}

// duplicate reports whether the update is a re-delivery of the intent
// the release was last updated from.
func duplicate(s State, c UpdateRelease) bool {
	return !c.Revision.IsZero() && c.Revision.Equal(s.Revision)
}

func (en Entity) event(t EventType) *Event {
	return &Event{Type: t, Timestamp: en.Now().UTC()}
}

func (en Entity) installing(c UpdateRelease, instanceID string) *Event {
	rel := c.Release
	e := en.event(EventInstalling)
	e.Release = &rel
	e.Revision = c.Revision
	e.InstanceID = instanceID
	return e
}

func (en Entity) updating(s State, c UpdateRelease) *Event {
	if duplicate(s, c) {
		return nil
	}
	rel := c.Release
	e := en.event(EventUpdating)
	e.Release = &rel
	e.Revision = c.Revision
	return e
}

func (en Entity) failed(t EventType, c FailRelease) *Event {
	e := en.event(t)
	e.Reason = c.Reason
	return e
}
