// Package bus connects releases to the message bus: intents come in
// and are dispatched to their release, and every change to a release
// goes out as its projection.
package bus

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	proverr "github.com/fluxcd/provisioner/pkg/errors"
	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

type Operation string

const (
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Template is the chart of an intent.
type Template struct {
	Repository string `json:"repository"`
	Name       string `json:"name" validate:"required"`
	Version    string `json:"version" validate:"required"`
}

// Intent is a request to create, change or remove a release, as
// published by the subscription side.
type Intent struct {
	ID        string    `json:"id" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation" validate:"required,oneof=update delete"`

	Target            string                 `json:"target,omitempty" validate:"required_if=Operation update"`
	Namespace         string                 `json:"namespace,omitempty" validate:"required_if=Operation update"`
	Template          *Template              `json:"template,omitempty" validate:"required_if=Operation update,omitempty"`
	Labels            map[string]string      `json:"labels,omitempty"`
	Parameters        map[string]interface{} `json:"parameters,omitempty"`
	EndpointTemplates map[string]string      `json:"endpointTemplates,omitempty"`
}

var validate = validator.New()

// Validate checks the intent has what its operation needs. A bad
// target or chart version fails the release later, in the scheduler.
func (in Intent) Validate() error {
	if err := validate.Struct(in); err != nil {
		return errors.Wrapf(err, "intent %q", in.ID)
	}
	return nil
}

// Command is what the intent asks of its release. The timestamp of
// the intent becomes the revision of an update.
func (in Intent) Command() release.Command {
	if in.Operation == OperationDelete {
		return release.DeleteRelease{}
	}
	rel := release.Release{
		Target:            in.Target,
		Namespace:         in.Namespace,
		Labels:            in.Labels,
		Parameters:        in.Parameters,
		EndpointTemplates: in.EndpointTemplates,
	}
	if in.Template != nil {
		rel.Template = release.Template{
			Repository: in.Template.Repository,
			Name:       in.Template.Name,
			Version:    in.Template.Version,
		}
	}
	return release.UpdateRelease{Release: rel, Revision: in.Timestamp.UTC()}
}

// Dispatch validates the intent and delivers its command to the
// release. Invalid intents are rejected as user errors. A command that
// lost a race to append is tried once more, against the release as
// reloaded.
func Dispatch(ctx context.Context, entities release.Entities, in Intent) (release.State, error) {
	if err := in.Validate(); err != nil {
		return release.State{}, proverr.InvalidIntent(err)
	}
	cmd := in.Command()
	state, err := entities.Ask(ctx, in.ID, cmd)
	if errors.Cause(err) == eventlog.ErrConflict {
		state, err = entities.Ask(ctx, in.ID, cmd)
	}
	return state, err
}
