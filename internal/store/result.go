package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/fancylads/bespoke/internal/models"
)

type ResultStore struct {
	db QueryInterceptor
}

func NewResultStore(db QueryInterceptor) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) Add(ctx context.Context, record models.ResultRecord) error {
	query, args, err := sq.Insert("test_results").
		Columns("id", "run_id", "plan_name", "case_name", "unit_name", "unit_kind",
			"status", "message", "results_path", "recorded_at").
		Values(record.ID, record.RunID, record.PlanName, record.CaseName, record.UnitName,
			record.UnitKind, string(record.Status), record.Message, record.ResultsPath,
			record.RecordedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// AddAll persists a batch of unit results belonging to one run.
func (s *ResultStore) AddAll(ctx context.Context, records []models.ResultRecord) error {
	for _, record := range records {
		if err := s.Add(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// ListByRun returns a run's unit results in recording order.
func (s *ResultStore) ListByRun(ctx context.Context, runID string) ([]models.ResultRecord, error) {
	query, args, err := sq.Select("id", "run_id", "plan_name", "case_name", "unit_name",
		"unit_kind", "status", "message", "results_path", "recorded_at").
		From("test_results").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("recorded_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ResultRecord
	for rows.Next() {
		var (
			record models.ResultRecord
			status string
		)
		if err := rows.Scan(&record.ID, &record.RunID, &record.PlanName, &record.CaseName,
			&record.UnitName, &record.UnitKind, &status, &record.Message,
			&record.ResultsPath, &record.RecordedAt); err != nil {
			return nil, err
		}
		record.Status = models.Status(status)
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountByStatus tallies a run's unit results per status.
func (s *ResultStore) CountByStatus(ctx context.Context, runID string) (map[models.Status]int, error) {
	query, args, err := sq.Select("status", "COUNT(*)").
		From("test_results").
		Where(sq.Eq{"run_id": runID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.Status]int{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.Status(status)] = count
	}

	return counts, rows.Err()
}
