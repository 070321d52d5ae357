package store

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/fancylads/bespoke/internal/models"
	bkErrors "github.com/fancylads/bespoke/pkg/errors"
)

type RunStore struct {
	db QueryInterceptor
}

func NewRunStore(db QueryInterceptor) *RunStore {
	return &RunStore{db: db}
}

// Create persists a freshly started run. FinishedAt is ignored, Finish
// fills it in once the run completes.
func (s *RunStore) Create(ctx context.Context, run models.RunRecord) error {
	query, args, err := sq.Insert("test_runs").
		Columns("id", "name", "status", "message", "started_at").
		Values(run.ID, run.Name, string(run.Status), run.Message, run.StartedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Finish records the terminal status of a run.
func (s *RunStore) Finish(ctx context.Context, run models.RunRecord) error {
	query, args, err := sq.Update("test_runs").
		Set("status", string(run.Status)).
		Set("message", run.Message).
		Set("finished_at", run.FinishedAt).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return bkErrors.NewResourceNotFoundError("test run", run.ID)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	query, args, err := sq.Select("id", "name", "status", "message", "started_at", "finished_at").
		From("test_runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		run        models.RunRecord
		status     string
		finishedAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &run.Name, &status, &run.Message, &run.StartedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bkErrors.NewResourceNotFoundError("test run", id)
	}
	if err != nil {
		return nil, err
	}

	run.Status = models.Status(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// List returns runs newest first.
func (s *RunStore) List(ctx context.Context) ([]models.RunRecord, error) {
	query, args, err := sq.Select("id", "name", "status", "message", "started_at", "finished_at").
		From("test_runs").
		OrderBy("started_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var (
			run        models.RunRecord
			status     string
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Name, &status, &run.Message, &run.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.Status = models.Status(status)
		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
