package index

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/eventlog"
	"github.com/fluxcd/provisioner/pkg/release"
)

var epoch = time.Date(2019, 11, 1, 12, 0, 0, 0, time.UTC)

func record(id string, pos int64, t release.EventType) eventlog.Record {
	return eventlog.Record{
		Position:  pos,
		ReleaseID: id,
		Tag:       "provisioning1",
		Event:     release.Event{Type: t, Timestamp: epoch.Add(time.Duration(pos) * time.Second)},
	}
}

func TestProjectorFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryStore()
	p := &Projector{Index: idx}

	require.NoError(t, p.Handle(ctx, record("a", 1, release.EventInstalling)))
	row, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, release.StatusInstalling, row.Status)
	assert.Equal(t, "provisioning1", row.Tag)

	require.NoError(t, p.Handle(ctx, record("a", 2, release.EventPending)))
	require.NoError(t, p.Handle(ctx, record("a", 3, release.EventDeployed)))
	row, _ = idx.Get("a")
	assert.Equal(t, release.StatusDeployed, row.Status)
	assert.Equal(t, epoch.Add(3*time.Second), row.UpdatedAt)

	require.NoError(t, p.Handle(ctx, record("a", 4, release.EventDeleted)))
	_, ok = idx.Get("a")
	assert.False(t, ok)
}

func TestProjectorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log := []eventlog.Record{
		record("a", 1, release.EventInstalling),
		record("a", 2, release.EventFailed),
		record("b", 3, release.EventInstalling),
		record("b", 4, release.EventPending),
	}

	once := NewMemoryStore()
	twice := NewMemoryStore()
	for _, rec := range log {
		require.NoError(t, (&Projector{Index: once}).Handle(ctx, rec))
	}
	for i := 0; i < 2; i++ {
		for _, rec := range log {
			require.NoError(t, (&Projector{Index: twice}).Handle(ctx, rec))
		}
	}
	all := []release.Status{release.StatusInstalling, release.StatusPending, release.StatusFailed}
	rowsOnce, _ := once.Candidates(ctx, all, []string{"provisioning1"})
	rowsTwice, _ := twice.Candidates(ctx, all, []string{"provisioning1"})
	assert.Equal(t, rowsOnce, rowsTwice)
	require.Len(t, rowsOnce, 1)
	assert.Equal(t, "b", rowsOnce[0].ReleaseID)
}

func TestUpdateWithoutRowIsNoop(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryStore()
	require.NoError(t, (&Projector{Index: idx}).Handle(ctx, record("ghost", 1, release.EventPending)))
	_, ok := idx.Get("ghost")
	assert.False(t, ok)
}

func TestMemoryCandidates(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryStore()
	for _, row := range []Row{
		{ReleaseID: "c", Tag: "provisioning0", Status: release.StatusPending},
		{ReleaseID: "a", Tag: "provisioning0", Status: release.StatusInstalling},
		{ReleaseID: "b", Tag: "provisioning1", Status: release.StatusInstalling},
		{ReleaseID: "d", Tag: "provisioning0", Status: release.StatusDeployed},
	} {
		require.NoError(t, idx.Upsert(ctx, row))
	}

	rows, err := idx.Candidates(ctx, []release.Status{release.StatusInstalling, release.StatusPending}, []string{"provisioning0"})
	require.NoError(t, err)
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ReleaseID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(sqlx.NewDb(conn, "postgres")), mock
}

func TestSQLUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO release_schedule (release_id,tag,status,updated_at) VALUES ($1,$2,$3,$4) ON CONFLICT (release_id) DO UPDATE")).
		WithArgs("a", "provisioning1", "INSTALLING", epoch).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Upsert(context.Background(), Row{ReleaseID: "a", Tag: "provisioning1", Status: release.StatusInstalling, UpdatedAt: epoch})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUpdateAndDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE release_schedule SET status = $1, updated_at = $2 WHERE release_id = $3")).
		WithArgs("DEPLOYED", epoch, "a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM release_schedule WHERE release_id = $1")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, "a", release.StatusDeployed, epoch))
	require.NoError(t, s.Delete(ctx, "a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCandidates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT release_id, tag, status, updated_at FROM release_schedule WHERE tag IN ($1,$2) AND status IN ($3) ORDER BY release_id")).
		WithArgs("provisioning0", "provisioning1", "DEPLOYED").
		WillReturnRows(sqlmock.NewRows([]string{"release_id", "tag", "status", "updated_at"}).
			AddRow("a", "provisioning1", "DEPLOYED", epoch))

	rows, err := s.Candidates(context.Background(), []release.Status{release.StatusDeployed}, []string{"provisioning0", "provisioning1"})
	require.NoError(t, err)
	assert.Equal(t, []Row{{ReleaseID: "a", Tag: "provisioning1", Status: release.StatusDeployed, UpdatedAt: epoch}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
