package persistence

import "time"

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PhaseRun is one phase of one deck in one language
type PhaseRun struct {
	ID         string
	Deck       string
	Language   string
	Phase      string
	RetryMode  bool
	Status     RunStatus
	Success    int
	Error      int
	Skipped    int
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SlideEvent is the outcome of one slide within a phase run
type SlideEvent struct {
	RunID      string
	SlideIndex int
	Key        string
	Mode       string
	Status     string
	Detail     string
	CreatedAt  time.Time
}
