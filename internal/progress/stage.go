// Package progress tracks a video-ad generation job through its five
// sequential stages: it polls the job's status record, derives a single
// progress position from it and detects terminal success or failure.
package progress

import "strings"

// StageStatus is the normalized status of one pipeline stage.
type StageStatus string

// StageStatus values
const (
	StatusUnset      StageStatus = "UNSET"
	StatusPending    StageStatus = "PENDING"
	StatusInProgress StageStatus = "IN_PROGRESS"
	StatusCompleted  StageStatus = "COMPLETED"
	StatusFailed     StageStatus = "FAILED"
)

// NormalizeStatus maps a raw status string reported by the backend onto the
// closed StageStatus set. STARTED and RUNNING are synonyms of IN_PROGRESS.
// Empty values are UNSET; unrecognised non-empty values are PENDING.
func NormalizeStatus(raw string) StageStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return StatusUnset
	case "IN_PROGRESS", "STARTED", "RUNNING":
		return StatusInProgress
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Stage identifies one of the pipeline stages. The numeric value is the
// stage's position in the fixed execution order.
type Stage int

// Stages in execution order
const (
	ScriptGeneration Stage = iota
	ScriptEvaluation
	VideoGeneration
	AudioGeneration
	Editing
)

// StageCount is the number of pipeline stages.
const StageCount = 5

// Stages lists every stage in execution order.
var Stages = [StageCount]Stage{
	ScriptGeneration,
	ScriptEvaluation,
	VideoGeneration,
	AudioGeneration,
	Editing,
}

type stageInfo struct {
	key         string
	name        string
	description string
}

var stageInfos = [StageCount]stageInfo{
	{"script_generation_status", "Script Generation", "AI is writing your compelling ad script"},
	{"script_evaluation_status", "Script Review", "Reviewing and optimizing the script"},
	{"video_generation_status", "Video Creation", "Generating stunning video content"},
	{"audio_generation_status", "Audio Production", "Creating voiceover and background music"},
	{"editing_status", "Final Editing", "Your video is complete and ready!"},
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	return s >= ScriptGeneration && s <= Editing
}

// Key returns the field name carrying the stage's status in the status payload.
func (s Stage) Key() string {
	if !s.Valid() {
		return ""
	}
	return stageInfos[s].key
}

// Name returns the display name of the stage.
func (s Stage) Name() string {
	if !s.Valid() {
		return ""
	}
	return stageInfos[s].name
}

// Description returns a one-line description of what the stage does.
func (s Stage) Description() string {
	if !s.Valid() {
		return ""
	}
	return stageInfos[s].description
}

func (s Stage) String() string {
	return s.Name()
}
