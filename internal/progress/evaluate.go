package progress

import "math"

// Terminal classifies whether a job has finished.
type Terminal string

// Terminal values
const (
	TerminalNone      Terminal = "NONE"
	TerminalSucceeded Terminal = "SUCCEEDED"
	TerminalFailed    Terminal = "FAILED"
)

// State is the progress derived from one status record. It is recomputed on
// every poll and replaces the previous state as a whole.
type State struct {
	// StageIndex is the current stage position, -1 before any stage started.
	StageIndex int `json:"stage_index"`
	// StageActive is true when the stage at StageIndex is still running.
	StageActive bool     `json:"stage_active"`
	Terminal    Terminal `json:"terminal"`
}

// Initial returns the state that exists before the first successful fetch.
func Initial() State {
	return State{StageIndex: -1, StageActive: false, Terminal: TerminalNone}
}

// Evaluate derives the progress state from a status record. It never fails:
// a nil or empty record yields the initial state.
func Evaluate(rec *Record) State {
	state := Initial()
	if rec == nil {
		return state
	}

	lastCompleted, active := -1, -1
	for _, stage := range Stages {
		status := rec.Status(stage)
		if status == StatusCompleted && stage == Editing && !rec.HasArtifact() {
			// Editing is only credited once the final video exists.
			status = StatusPending
		}

		if status == StatusCompleted {
			lastCompleted = int(stage)
			continue
		}
		if status == StatusInProgress {
			active = int(stage)
		}
		break
	}

	switch {
	case active >= 0:
		state.StageIndex = active
		state.StageActive = true
	case lastCompleted >= 0:
		state.StageIndex = lastCompleted
	}

	state.Terminal = detectTerminal(rec)
	return state
}

// detectTerminal inspects every stage independently of the progress walk.
// Failure of any stage wins over success.
func detectTerminal(rec *Record) Terminal {
	for _, stage := range Stages {
		if rec.Status(stage) == StatusFailed {
			return TerminalFailed
		}
	}
	if rec.Status(Editing) == StatusCompleted && rec.HasArtifact() {
		return TerminalSucceeded
	}
	return TerminalNone
}

// Percent returns overall completion in whole percent. A running stage earns
// half a step of credit.
func (s State) Percent() int {
	if s.StageIndex < 0 {
		return 0
	}
	steps := float64(s.StageIndex + 1)
	if s.StageActive {
		steps = float64(s.StageIndex) + 0.5
	}
	return int(math.Round(steps / StageCount * 100))
}

// Stage returns the stage at StageIndex and whether one has started.
func (s State) Stage() (Stage, bool) {
	if s.StageIndex < 0 || s.StageIndex >= StageCount {
		return 0, false
	}
	return Stage(s.StageIndex), true
}

// IsTerminal reports whether the job has finished either way.
func (s State) IsTerminal() bool {
	return s.Terminal == TerminalSucceeded || s.Terminal == TerminalFailed
}
