package release

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// EventType discriminates the events of a release.
type EventType string

// These are all the types of events.
const (
	EventInstalling EventType = "InstallingRelease"
	EventUpdating   EventType = "UpdatingRelease"
	EventDeleting   EventType = "DeletingRelease"
	EventPending    EventType = "PendingRelease"
	EventDeployed   EventType = "DeployedRelease"
	EventDeleted    EventType = "DeletedRelease"
	EventFailed     EventType = "FailedRelease"
	EventError      EventType = "ErrorRelease"
)

// Event is an immutable fact about a release. Only the fields of its
// type are set.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Installing, Updating
	Release  *Release  `json:"release,omitempty"`
	Revision time.Time `json:"revision,omitempty"`
	// Installing
	InstanceID string `json:"instanceId,omitempty"`
	// Deployed
	Endpoints map[string]string `json:"endpoints,omitempty"`
	// Failed, Error
	Reason string `json:"reason,omitempty"`
}

// Status is the status a release is in after the event.
func (e Event) Status() Status {
	switch e.Type {
	case EventInstalling:
		return StatusInstalling
	case EventUpdating:
		return StatusUpdating
	case EventDeleting:
		return StatusDeleting
	case EventPending:
		return StatusPending
	case EventDeployed:
		return StatusDeployed
	case EventDeleted:
		return StatusDeleted
	case EventFailed:
		return StatusFailed
	case EventError:
		return StatusError
	}
	return StatusNone
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	ev := Event(p)
	if ev.Status() == StatusNone {
		return errors.Errorf("unknown release event type %q", p.Type)
	}
	*e = ev
	return nil
}

// Apply returns the state after the event. It never fails: an event
// is a fact that has already been persisted.
func (s State) Apply(e Event) State {
	next := s
	next.Timestamp = e.Timestamp
	next.Status = e.Status()
	next.Seq = s.Seq + 1

	switch e.Type {
	case EventInstalling:
		next.Release = e.Release
		next.Revision = e.Revision
		next.InstanceID = e.InstanceID
		next.Reason = ""
		next.Endpoints = nil
	case EventUpdating:
		next.Release = e.Release
		next.Revision = e.Revision
		next.Reason = ""
	case EventDeleting, EventPending:
		next.Reason = ""
	case EventDeployed:
		next.Endpoints = e.Endpoints
	case EventFailed, EventError:
		next.Reason = e.Reason
	}
	return next
}

// Replay folds a sequence of events into the state of release id.
func Replay(id string, events []Event) State {
	s := NewState(id)
	for _, e := range events {
		s = s.Apply(e)
	}
	return s
}
