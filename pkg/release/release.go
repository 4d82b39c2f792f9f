// Package release holds the release model and the state machine that
// decides how a release moves through its lifecycle.
package release

import (
	"time"
)

// Template names the chart a release is installed from.
type Template struct {
	Repository string `json:"repository"`
	Name       string `json:"name"`
	Version    string `json:"version"`
}

// Release is the desired specification of a deployment. It is replaced
// wholesale on every update.
type Release struct {
	// Target is the URL of the deployment proxy for the cluster.
	Target    string            `json:"target"`
	Namespace string            `json:"namespace"`
	Template  Template          `json:"template"`
	Labels    map[string]string `json:"labels,omitempty"`
	// Parameters are handed to the chart verbatim, as its values.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	// EndpointTemplates map logical endpoint names to URLs with
	// {placeholder} tokens, resolved once the release is deployed.
	EndpointTemplates map[string]string `json:"endpointTemplates,omitempty"`
}

// Status is the internal lifecycle status of a release.
type Status string

const (
	StatusNone       Status = "NONE"
	StatusInstalling Status = "INSTALLING"
	StatusUpdating   Status = "UPDATING"
	StatusDeleting   Status = "DELETING"
	StatusPending    Status = "PENDING"
	StatusDeployed   Status = "DEPLOYED"
	StatusFailed     Status = "FAILED"
	StatusError      Status = "ERROR"
	StatusDeleted    Status = "DELETED"
)

// PublicStatus is the status reported to the outside world.
type PublicStatus string

const (
	PublicPending  PublicStatus = "pending"
	PublicDeployed PublicStatus = "deployed"
	PublicDeleted  PublicStatus = "deleted"
	PublicFailed   PublicStatus = "failed"
)

// Public collapses the internal status into the public one.
func (s Status) Public() PublicStatus {
	switch s {
	case StatusDeployed:
		return PublicDeployed
	case StatusDeleted:
		return PublicDeleted
	case StatusFailed, StatusError:
		return PublicFailed
	default:
		return PublicPending
	}
}

// State is the current snapshot of a release, derived by applying its
// events in order. It is owned by exactly one entity.
type State struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Release   *Release  `json:"release,omitempty"`
	Status    Status    `json:"status"`
	// InstanceID is the name used for the release at the proxy. It is
	// assigned by the first install and never changes.
	InstanceID string            `json:"instanceId,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Endpoints  map[string]string `json:"endpoints,omitempty"`
	// Revision is the timestamp of the last intent accepted.
	Revision time.Time `json:"revision"`
	// Seq counts the events applied so far.
	Seq int64 `json:"seq"`
}

// NewState is the state of a release nothing has happened to.
func NewState(id string) State {
	return State{ID: id, Status: StatusNone}
}

// Projection is the externally visible view of a release.
type Projection struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Target     string                 `json:"target,omitempty"`
	Namespace  string                 `json:"namespace,omitempty"`
	Template   *Template              `json:"template,omitempty"`
	Labels     map[string]string      `json:"labels,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Status     PublicStatus           `json:"status"`
	Reason     string                 `json:"reason,omitempty"`
	InstanceID string                 `json:"instanceId,omitempty"`
	Endpoints  map[string]string      `json:"endpoints,omitempty"`
}

// Projection returns the public view of the state.
func (s State) Projection() Projection {
	p := Projection{
		ID:         s.ID,
		Timestamp:  s.Timestamp,
		Status:     s.Status.Public(),
		Reason:     s.Reason,
		InstanceID: s.InstanceID,
		Endpoints:  s.Endpoints,
	}
	if s.Release != nil {
		tmpl := s.Release.Template
		p.Target = s.Release.Target
		p.Namespace = s.Release.Namespace
		p.Template = &tmpl
		p.Labels = s.Release.Labels
		p.Parameters = s.Release.Parameters
	}
	return p
}
