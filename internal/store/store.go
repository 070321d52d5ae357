package store

import "database/sql"

// Store provides access to all storage repositories.
type Store struct {
	db      *sql.DB
	runs    *RunStore
	results *ResultStore
}

func NewStore(db *sql.DB) *Store {
	interceptor := newQueryInterceptor(db)
	return &Store{
		db:      db,
		runs:    NewRunStore(interceptor),
		results: NewResultStore(interceptor),
	}
}

func (s *Store) Runs() *RunStore {
	return s.runs
}

func (s *Store) Results() *ResultStore {
	return s.results
}

func (s *Store) Close() error {
	return s.db.Close()
}
