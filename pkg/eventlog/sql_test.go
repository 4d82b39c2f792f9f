package eventlog

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/provisioner/pkg/release"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(sqlx.NewDb(conn, "postgres"), DefaultTags), mock
}

func TestSQLAppend(t *testing.T) {
	s, mock := newMockStore(t)
	tag := DefaultTags.For("r1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTagSQL)).
		WithArgs(tag).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq_nr), 0) FROM release_events WHERE release_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO release_events (release_id,seq_nr,tag,type,body) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10)")).
		WithArgs(
			"r1", 2, tag, "PendingRelease", sqlmock.AnyArg(),
			"r1", 3, tag, "DeployedRelease", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.Append(context.Background(), "r1", 1, ev(release.EventPending), ev(release.EventDeployed))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAppendStaleSeq(t *testing.T) {
	s, mock := newMockStore(t)
	tag := DefaultTags.For("r1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTagSQL)).
		WithArgs(tag).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectRollback()

	err := s.Append(context.Background(), "r1", 1, ev(release.EventPending))
	assert.Equal(t, ErrConflict, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAppendUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	tag := DefaultTags.For("r1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockTagSQL)).
		WithArgs(tag).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec("INSERT INTO release_events").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := s.Append(context.Background(), "r1", 0, ev(release.EventInstalling))
	assert.Equal(t, ErrConflict, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAppendLocksTagBeforeReadingSeq(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs(DefaultTags.For("r1")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := s.Append(context.Background(), "r1", 0, ev(release.EventInstalling))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locking tag")
	// nothing was read or written without the lock
	assert.NoError(t, mock.ExpectationsWereMet())
}

func eventBody(t *testing.T, e release.Event) string {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return string(b)
}

func TestSQLLoad(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"position", "release_id", "seq_nr", "tag", "type", "body"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT position, release_id, seq_nr, tag, type, body FROM release_events WHERE release_id = $1 ORDER BY seq_nr")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(4, "r1", 1, "provisioning1", "InstallingRelease", eventBody(t, ev(release.EventInstalling))).
			AddRow(9, "r1", 2, "provisioning1", "PendingRelease", eventBody(t, ev(release.EventPending))))

	recs, err := s.Load(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(9), recs[1].Position)
	assert.Equal(t, release.EventPending, recs[1].Event.Type)
	assert.Equal(t, epoch, recs[1].Event.Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLoadUndecodableBody(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"position", "release_id", "seq_nr", "tag", "type", "body"}

	mock.ExpectQuery("FROM release_events").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "r1", 1, "provisioning1", "Mystery", `{"type":"Mystery"}`))

	_, err := s.Load(context.Background(), "r1")
	assert.Error(t, err)
}

func TestSQLReadTag(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"position", "release_id", "seq_nr", "tag", "type", "body"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM release_events WHERE tag = $1 AND position > $2 ORDER BY position LIMIT 10")).
		WithArgs("provisioning2", 40).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(41, "x", 3, "provisioning2", "DeployedRelease", eventBody(t, ev(release.EventDeployed))))

	recs, err := s.ReadTag(context.Background(), "provisioning2", 40, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].ReleaseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOffsets(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT position FROM release_offsets WHERE consumer = $1 AND tag = $2")).
		WithArgs("release-schedule", "provisioning0").
		WillReturnRows(sqlmock.NewRows([]string{"position"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO release_offsets (consumer,tag,position) VALUES ($1,$2,$3) ON CONFLICT (consumer, tag) DO UPDATE")).
		WithArgs("release-schedule", "provisioning0", 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT position FROM release_offsets").
		WithArgs("release-schedule", "provisioning0").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(12))

	off, err := s.Offset(ctx, "release-schedule", "provisioning0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)

	require.NoError(t, s.SetOffset(ctx, "release-schedule", "provisioning0", 12))

	off, err = s.Offset(ctx, "release-schedule", "provisioning0")
	require.NoError(t, err)
	assert.Equal(t, int64(12), off)
	assert.NoError(t, mock.ExpectationsWereMet())
}
