package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/entity"
	proverr "github.com/fluxcd/provisioner/pkg/errors"
	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

const updateJSON = `{
  "id": "abc",
  "timestamp": "2019-06-01T12:00:00Z",
  "operation": "update",
  "target": "https://rudder.example.com:8443",
  "namespace": "tenant-a",
  "template": {"repository": "stable", "name": "wordpress", "version": "5.1.0"},
  "labels": {"team": "a"},
  "parameters": {"replicas": 2},
  "endpointTemplates": {"site": "http://{-web:ip}"}
}`

func decode(t *testing.T, s string) Intent {
	var in Intent
	require.NoError(t, json.Unmarshal([]byte(s), &in))
	return in
}

func TestIntentCommand(t *testing.T) {
	in := decode(t, updateJSON)
	require.NoError(t, in.Validate())

	want := release.UpdateRelease{
		Release: release.Release{
			Target:            "https://rudder.example.com:8443",
			Namespace:         "tenant-a",
			Template:          release.Template{Repository: "stable", Name: "wordpress", Version: "5.1.0"},
			Labels:            map[string]string{"team": "a"},
			Parameters:        map[string]interface{}{"replicas": float64(2)},
			EndpointTemplates: map[string]string{"site": "http://{-web:ip}"},
		},
		Revision: time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, in.Command()); diff != "" {
		t.Errorf("command (-want +got):\n%s", diff)
	}

	del := Intent{ID: "abc", Operation: OperationDelete}
	require.NoError(t, del.Validate())
	assert.Equal(t, release.DeleteRelease{}, del.Command())
}

func TestIntentValidation(t *testing.T) {
	valid := decode(t, updateJSON)
	for name, mutate := range map[string]func(*Intent){
		"no id":         func(in *Intent) { in.ID = "" },
		"no operation":  func(in *Intent) { in.Operation = "" },
		"bad operation": func(in *Intent) { in.Operation = "upgrade" },
		"no target":     func(in *Intent) { in.Target = "" },
		"no namespace":  func(in *Intent) { in.Namespace = "" },
		"no template":   func(in *Intent) { in.Template = nil },
		"no chart":      func(in *Intent) { in.Template = &Template{Version: "1.0.0"} },
		"no version":    func(in *Intent) { in.Template = &Template{Name: "wordpress"} },
	} {
		t.Run(name, func(t *testing.T) {
			in := valid
			tmpl := *valid.Template
			in.Template = &tmpl
			mutate(&in)
			assert.Error(t, in.Validate())
		})
	}
}

// These are left to fail the release, rather than be refused.
func TestIntentValidationAcceptsUnusableValues(t *testing.T) {
	in := decode(t, updateJSON)
	in.Target = "http//bad"
	in.Template.Version = "latest"
	assert.NoError(t, in.Validate())
}

func TestDispatch(t *testing.T) {
	store := eventlog.NewMemoryStore(eventlog.DefaultTags)
	registry := entity.NewRegistry(release.NewEntity(release.DefaultInstancePrefix), store, time.Minute, log.NewNopLogger())
	t.Cleanup(registry.Stop)
	ctx := context.Background()

	s, err := Dispatch(ctx, registry, decode(t, updateJSON))
	require.NoError(t, err)
	assert.Equal(t, release.StatusInstalling, s.Status)
	assert.Equal(t, "oscm-abc", s.InstanceID)

	_, err = Dispatch(ctx, registry, Intent{Operation: OperationDelete})
	require.Error(t, err)
	assert.True(t, proverr.IsUser(err))

	s, err = Dispatch(ctx, registry, Intent{ID: "abc", Operation: OperationDelete})
	require.NoError(t, err)
	records, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, s.Seq, int64(len(records)))
}

// conflictingEntities fails the first asks with conflicts, as when
// another writer got to the log first.
type conflictingEntities struct {
	conflicts int
	asks      int
}

func (c *conflictingEntities) Ask(ctx context.Context, id string, cmd release.Command) (release.State, error) {
	c.asks++
	if c.asks <= c.conflicts {
		return release.State{}, eventlog.ErrConflict
	}
	return release.State{ID: id, Status: release.StatusInstalling}, nil
}

func TestDispatchRetriesConflict(t *testing.T) {
	ctx := context.Background()

	once := &conflictingEntities{conflicts: 1}
	s, err := Dispatch(ctx, once, decode(t, updateJSON))
	require.NoError(t, err)
	assert.Equal(t, release.StatusInstalling, s.Status)
	assert.Equal(t, 2, once.asks)

	always := &conflictingEntities{conflicts: 10}
	_, err = Dispatch(ctx, always, decode(t, updateJSON))
	assert.Equal(t, eventlog.ErrConflict, err)
	assert.Equal(t, 2, always.asks)
	assert.False(t, proverr.IsUser(err))
}
