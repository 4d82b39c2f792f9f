package index

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fluxcd/provisioner/pkg/release"
)

const scheduleTable = "release_schedule"

// SQLStore keeps the index in postgres, in the table created by
// db.Migrate.
type SQLStore struct {
	db   *sqlx.DB
	psql sq.StatementBuilderType
}

var _ Store = &SQLStore{}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *SQLStore) exec(ctx context.Context, b sq.Sqlizer, what string) error {
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, what)
	}
	return nil
}

func (s *SQLStore) Upsert(ctx context.Context, row Row) error {
	insert := s.psql.Insert(scheduleTable).
		Columns("release_id", "tag", "status", "updated_at").
		Values(row.ReleaseID, row.Tag, string(row.Status), row.UpdatedAt).
		Suffix("ON CONFLICT (release_id) DO UPDATE SET tag = EXCLUDED.tag, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at")
	return s.exec(ctx, insert, "upserting schedule row")
}

func (s *SQLStore) Update(ctx context.Context, id string, status release.Status, at time.Time) error {
	update := s.psql.Update(scheduleTable).
		Set("status", string(status)).
		Set("updated_at", at).
		Where(sq.Eq{"release_id": id})
	return s.exec(ctx, update, "updating schedule row")
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	del := s.psql.Delete(scheduleTable).Where(sq.Eq{"release_id": id})
	return s.exec(ctx, del, "deleting schedule row")
}

func (s *SQLStore) Candidates(ctx context.Context, statuses []release.Status, tags []string) ([]Row, error) {
	if len(statuses) == 0 || len(tags) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	q, args, err := s.psql.Select("release_id", "tag", "status", "updated_at").
		From(scheduleTable).
		Where(sq.Eq{"tag": tags}).
		Where(sq.Eq{"status": names}).
		OrderBy("release_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting candidates")
	}
	return rows, nil
}
