package models

import "time"

// RunRecord is the persisted outcome of one test run execution.
type RunRecord struct {
	ID         string
	Name       string
	Status     Status
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResultRecord is the persisted outcome of a single test unit within a
// run, addressed by the plan and case that contained it.
type ResultRecord struct {
	ID          string
	RunID       string
	PlanName    string
	CaseName    string
	UnitName    string
	UnitKind    string
	Status      Status
	Message     string
	ResultsPath string
	RecordedAt  time.Time
}
