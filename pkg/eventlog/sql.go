package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/fluxcd/provisioner/pkg/release"
)

const (
	eventsTable  = "release_events"
	offsetsTable = "release_offsets"

	uniqueViolation = "23505"
)

// SQLStore keeps the log and offsets in postgres. The schema is
// created by db.Migrate.
type SQLStore struct {
	db   *sqlx.DB
	tags Tags
	psql sq.StatementBuilderType
}

var (
	_ Store       = &SQLStore{}
	_ OffsetStore = &SQLStore{}
)

func NewSQLStore(db *sqlx.DB, tags Tags) *SQLStore {
	return &SQLStore{
		db:   db,
		tags: tags,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

type eventRow struct {
	Position  int64  `db:"position"`
	ReleaseID string `db:"release_id"`
	Seq       int64  `db:"seq_nr"`
	Tag       string `db:"tag"`
	Type      string `db:"type"`
	Body      string `db:"body"`
}

func (r eventRow) record() (Record, error) {
	rec := Record{
		Position:  r.Position,
		ReleaseID: r.ReleaseID,
		Seq:       r.Seq,
		Tag:       r.Tag,
	}
	if err := json.Unmarshal([]byte(r.Body), &rec.Event); err != nil {
		return Record{}, errors.Wrapf(err, "decoding event %d of release %s", r.Seq, r.ReleaseID)
	}
	return rec, nil
}

func (s *SQLStore) Append(ctx context.Context, id string, expectedSeq int64, events ...release.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	tag := s.tags.For(id)
	insert := s.psql.Insert(eventsTable).Columns("release_id", "seq_nr", "tag", "type", "body")
	for i, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "encoding event")
		}
		insert = insert.Values(id, expectedSeq+int64(i)+1, tag, string(e.Type), string(body))
	}
	insertSQL, insertArgs, err := insert.ToSql()
	if err != nil {
		return err
	}
	lastSQL, lastArgs, err := s.psql.Select("COALESCE(MAX(seq_nr), 0)").
		From(eventsTable).
		Where(sq.Eq{"release_id": id}).
		ToSql()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Positions are drawn at insert but become visible at commit.
	// Holding the tag's lock until commit keeps the two in the same
	// order, so a consumer reading past an offset cannot skip a record
	// still being written.
	if _, err = tx.ExecContext(ctx, lockTagSQL, tag); err != nil {
		return errors.Wrap(err, "locking tag")
	}
	var last int64
	if err = tx.GetContext(ctx, &last, lastSQL, lastArgs...); err != nil {
		return errors.Wrap(err, "reading last sequence number")
	}
	if last != expectedSeq {
		return ErrConflict
	}
	if _, err = tx.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return errors.Wrap(err, "appending events")
	}
	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return errors.Wrap(err, "committing events")
	}
	return nil
}

const lockTagSQL = "SELECT pg_advisory_xact_lock(hashtext($1))"

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

func (s *SQLStore) Load(ctx context.Context, id string) ([]Record, error) {
	query := s.psql.Select("position", "release_id", "seq_nr", "tag", "type", "body").
		From(eventsTable).
		Where(sq.Eq{"release_id": id}).
		OrderBy("seq_nr")
	return s.selectRecords(ctx, query)
}

func (s *SQLStore) ReadTag(ctx context.Context, tag string, after int64, limit int) ([]Record, error) {
	query := s.psql.Select("position", "release_id", "seq_nr", "tag", "type", "body").
		From(eventsTable).
		Where(sq.Eq{"tag": tag}).
		Where(sq.Gt{"position": after}).
		OrderBy("position")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	return s.selectRecords(ctx, query)
}

func (s *SQLStore) selectRecords(ctx context.Context, query sq.SelectBuilder) ([]Record, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "reading events")
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLStore) Offset(ctx context.Context, consumer, tag string) (int64, error) {
	q, args, err := s.psql.Select("position").
		From(offsetsTable).
		Where(sq.Eq{"consumer": consumer, "tag": tag}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var position int64
	err = s.db.GetContext(ctx, &position, q, args...)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		return 0, errors.Wrapf(err, "reading offset of %s for %s", consumer, tag)
	}
	return position, nil
}

func (s *SQLStore) SetOffset(ctx context.Context, consumer, tag string, position int64) error {
	q, args, err := s.psql.Insert(offsetsTable).
		Columns("consumer", "tag", "position").
		Values(consumer, tag, position).
		Suffix("ON CONFLICT (consumer, tag) DO UPDATE SET position = EXCLUDED.position").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrapf(err, "storing offset of %s for %s", consumer, tag)
	}
	return nil
}
