package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

type recordingPublisher struct {
	published []release.Projection
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, proj release.Projection) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, proj)
	return nil
}

func TestForwarderPublishesStateAtEachEvent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	rel := &release.Release{
		Target:    "https://rudder.example.com:8443",
		Namespace: "tenant-a",
		Template:  release.Template{Name: "wordpress", Version: "5.1.0"},
	}
	store := eventlog.NewMemoryStore(eventlog.DefaultTags)
	require.NoError(t, store.Append(ctx, "abc", 0,
		release.Event{Type: release.EventInstalling, Timestamp: at, Release: rel, InstanceID: "oscm-abc"},
		release.Event{Type: release.EventPending, Timestamp: at.Add(time.Second)},
		release.Event{Type: release.EventDeployed, Timestamp: at.Add(2 * time.Second), Endpoints: map[string]string{"site": "http://203.0.113.5"}},
	))

	pub := &recordingPublisher{}
	fwd := &Forwarder{Log: store, Publisher: pub}
	records, err := store.Load(ctx, "abc")
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, fwd.Handle(ctx, rec))
	}

	require.Len(t, pub.published, 3)
	var statuses []release.PublicStatus
	for _, p := range pub.published {
		assert.Equal(t, "abc", p.ID)
		assert.Equal(t, "oscm-abc", p.InstanceID)
		statuses = append(statuses, p.Status)
	}
	assert.Equal(t, []release.PublicStatus{release.PublicPending, release.PublicPending, release.PublicDeployed}, statuses)
	assert.Empty(t, pub.published[0].Endpoints)
	assert.Equal(t, at.Add(time.Second), pub.published[1].Timestamp)
	assert.Equal(t, map[string]string{"site": "http://203.0.113.5"}, pub.published[2].Endpoints)
}

func TestForwarderPublishErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	store := eventlog.NewMemoryStore(eventlog.DefaultTags)
	require.NoError(t, store.Append(ctx, "abc", 0, release.Event{Type: release.EventInstalling, Release: &release.Release{}}))
	records, err := store.Load(ctx, "abc")
	require.NoError(t, err)

	fwd := &Forwarder{Log: store, Publisher: &recordingPublisher{err: errors.New("bus down")}}
	err = fwd.Handle(ctx, records[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus down")
}
