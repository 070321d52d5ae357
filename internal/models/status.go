package models

// Status represents the execution status of a test unit or container.
type Status string

const (
	StatusNotRan  Status = "NotRan"
	StatusRunning Status = "Running"
	StatusPaused  Status = "Paused"
	StatusPass    Status = "Pass"
	StatusFail    Status = "Fail"
	StatusFatal   Status = "Fatal"
	// StatusCritical is part of the declared status vocabulary but no code
	// path ever produces it. It is accepted as a valid terminal value.
	StatusCritical Status = "Critical"
)

// Terminal reports whether the status is a final outcome.
func (s Status) Terminal() bool {
	switch s {
	case StatusPass, StatusFail, StatusFatal, StatusCritical:
		return true
	default:
		return false
	}
}
