package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ad-dashboard/internal/progress"
)

// Outcome values stored on a finished run.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Run is the last observed progress of one generation run.
type Run struct {
	RunID         uuid.UUID  `json:"run_id"`
	Owner         string     `json:"owner"`
	Percent       int        `json:"percent"`
	CurrentStep   string     `json:"current_step"`
	Outcome       *string    `json:"outcome,omitempty"`
	FinalVideoURI *string    `json:"final_video_uri,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Steps         []RunStep  `json:"steps,omitempty"`
}

// Finished reports whether an outcome has been recorded.
func (r *Run) Finished() bool {
	return r.Outcome != nil
}

// RunStep is the history of one stage of a run.
type RunStep struct {
	Position    int                `json:"position"`
	Stage       string             `json:"stage"`
	Status      progress.StepState `json:"status"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	DurationMs  *int64             `json:"duration_ms,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// fillDuration sets DurationMs once the stage has both timestamps.
func (s *RunStep) fillDuration() {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return
	}
	ms := s.CompletedAt.Sub(*s.StartedAt).Milliseconds()
	s.DurationMs = &ms
}

// StepInput is one stage row derived from a snapshot.
type StepInput struct {
	Position int
	Stage    string
	Status   progress.StepState
}

// StageName returns the storage name of a stage, e.g. "script_generation".
func StageName(s progress.Stage) string {
	return strings.TrimSuffix(s.Key(), "_status")
}

// StepInputs maps a snapshot's steps onto stage rows in pipeline order.
func StepInputs(snap progress.Snapshot) []StepInput {
	out := make([]StepInput, 0, len(snap.Steps))
	for i, step := range snap.Steps {
		if i >= progress.StageCount {
			break
		}
		stage := progress.Stages[i]
		out = append(out, StepInput{Position: int(stage), Stage: StageName(stage), Status: step.State})
	}
	return out
}

// OutcomeName maps a terminal state to its stored outcome. It returns false
// for a state that is not terminal.
func OutcomeName(t progress.Terminal) (string, bool) {
	switch t {
	case progress.TerminalSucceeded:
		return OutcomeSucceeded, true
	case progress.TerminalFailed:
		return OutcomeFailed, true
	default:
		return "", false
	}
}
