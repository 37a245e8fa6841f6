package progress

// StepState is how a single stage should be displayed.
type StepState string

// StepState values
const (
	StepPending   StepState = "pending"
	StepActive    StepState = "active"
	StepCompleted StepState = "completed"
	StepFailed    StepState = "failed"
)

// StepStates returns the display state of every stage. A stage that has not
// reported anything yet is shown as active as soon as its predecessor is
// complete, so the next step lights up before the backend picks it up.
func StepStates(rec *Record) [StageCount]StepState {
	var out [StageCount]StepState
	for i := range out {
		out[i] = StepPending
	}
	if rec == nil {
		return out
	}

	for _, stage := range Stages {
		out[stage] = stepState(rec, stage)
	}
	return out
}

func stepState(rec *Record, stage Stage) StepState {
	status := rec.Status(stage)

	if stage == Editing {
		switch {
		case status == StatusCompleted && rec.HasArtifact():
			return StepCompleted
		case status == StatusInProgress:
			return StepActive
		case status == StatusFailed:
			return StepFailed
		}
		for _, prev := range Stages[:Editing] {
			if rec.Status(prev) != StatusCompleted {
				return StepPending
			}
		}
		return StepActive
	}

	switch status {
	case StatusCompleted:
		return StepCompleted
	case StatusInProgress:
		return StepActive
	case StatusFailed:
		return StepFailed
	}

	notStarted := status == StatusUnset || status == StatusPending
	if stage == ScriptGeneration {
		if notStarted {
			return StepActive
		}
		return StepPending
	}
	if notStarted && rec.Status(stage-1) == StatusCompleted {
		return StepActive
	}
	return StepPending
}

// Step is the display view of one stage.
type Step struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	State       StepState `json:"state"`
}

// Snapshot bundles everything a progress view renders for one poll.
type Snapshot struct {
	RunID            string `json:"run_id,omitempty"`
	State            State  `json:"state"`
	Percent          int    `json:"percent"`
	CurrentStep      string `json:"current_step"`
	StepNumber       int    `json:"step_number"`
	Steps            []Step `json:"steps"`
	FinalArtifactRef string `json:"final_video_uri,omitempty"`
}

// NewSnapshot evaluates rec and assembles its display snapshot.
func NewSnapshot(runID string, rec *Record) Snapshot {
	state := Evaluate(rec)
	states := StepStates(rec)

	snap := Snapshot{
		RunID:       runID,
		State:       state,
		Percent:     state.Percent(),
		CurrentStep: "Getting Ready...",
		StepNumber:  1,
		Steps:       make([]Step, 0, StageCount),
	}
	if stage, ok := state.Stage(); ok {
		snap.CurrentStep = stage.Name()
		snap.StepNumber = int(stage) + 1
	}
	for _, stage := range Stages {
		snap.Steps = append(snap.Steps, Step{
			Name:        stage.Name(),
			Description: stage.Description(),
			State:       states[stage],
		})
	}
	if rec != nil {
		snap.FinalArtifactRef = rec.Artifact()
	}
	return snap
}
