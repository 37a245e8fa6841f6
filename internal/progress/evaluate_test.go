package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func record(statuses [StageCount]string, artifact *string) *Record {
	rec := &Record{Raw: statuses}
	rec.SetFinalArtifact(artifact)
	return rec
}

func TestEvaluate_AllUnset(t *testing.T) {
	tests := []struct {
		name string
		rec  *Record
	}{
		{name: "nil record", rec: nil},
		{name: "empty record", rec: &Record{}},
		{name: "whitespace statuses", rec: record([StageCount]string{" ", "", "", "", ""}, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Evaluate(tt.rec)
			assert.Equal(t, Initial(), state)
			assert.Equal(t, -1, state.StageIndex)
			assert.False(t, state.StageActive)
			assert.Equal(t, TerminalNone, state.Terminal)
			assert.Equal(t, 0, state.Percent())
		})
	}
}

func TestEvaluate_ActiveStageAfterCompletedPrefix(t *testing.T) {
	for _, alias := range []string{"IN_PROGRESS", "STARTED", "RUNNING", "running"} {
		for k := -1; k <= 3; k++ {
			var statuses [StageCount]string
			for i := 0; i <= k; i++ {
				statuses[i] = "COMPLETED"
			}
			statuses[k+1] = alias

			state := Evaluate(record(statuses, nil))
			assert.Equal(t, k+1, state.StageIndex, "alias %s, k=%d", alias, k)
			assert.True(t, state.StageActive, "alias %s, k=%d", alias, k)
			assert.Equal(t, TerminalNone, state.Terminal)
		}
	}
}

func TestEvaluate_WalkStopsAtFirstIncompleteStage(t *testing.T) {
	tests := []struct {
		name       string
		statuses   [StageCount]string
		wantIndex  int
		wantActive bool
	}{
		{
			name:      "later stage reports progress after a pending stage",
			statuses:  [StageCount]string{"COMPLETED", "PENDING", "IN_PROGRESS", "", ""},
			wantIndex: 0,
		},
		{
			name:       "later status ignored after active stage",
			statuses:   [StageCount]string{"IN_PROGRESS", "COMPLETED", "COMPLETED", "", ""},
			wantIndex:  0,
			wantActive: true,
		},
		{
			name:      "completed prefix then pending",
			statuses:  [StageCount]string{"COMPLETED", "COMPLETED", "PENDING", "PENDING", "PENDING"},
			wantIndex: 1,
		},
		{
			name:      "everything pending",
			statuses:  [StageCount]string{"PENDING", "PENDING", "PENDING", "PENDING", "PENDING"},
			wantIndex: -1,
		},
		{
			name:      "unknown status stops the walk",
			statuses:  [StageCount]string{"COMPLETED", "QUEUED", "", "", ""},
			wantIndex: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Evaluate(record(tt.statuses, nil))
			assert.Equal(t, tt.wantIndex, state.StageIndex)
			assert.Equal(t, tt.wantActive, state.StageActive)
		})
	}
}

func TestEvaluate_EditingNeedsArtifact(t *testing.T) {
	allDone := [StageCount]string{"COMPLETED", "COMPLETED", "COMPLETED", "COMPLETED", "COMPLETED"}

	t.Run("without artifact", func(t *testing.T) {
		state := Evaluate(record(allDone, nil))
		assert.Equal(t, 3, state.StageIndex)
		assert.False(t, state.StageActive)
		assert.Equal(t, TerminalNone, state.Terminal)
		assert.Equal(t, 80, state.Percent())
	})

	t.Run("blank artifact counts as missing", func(t *testing.T) {
		state := Evaluate(record(allDone, strPtr("  ")))
		assert.Equal(t, 3, state.StageIndex)
		assert.Equal(t, TerminalNone, state.Terminal)
	})

	t.Run("with artifact", func(t *testing.T) {
		state := Evaluate(record(allDone, strPtr("s3://x")))
		assert.Equal(t, 4, state.StageIndex)
		assert.False(t, state.StageActive)
		assert.Equal(t, TerminalSucceeded, state.Terminal)
		assert.Equal(t, 100, state.Percent())
	})

	t.Run("editing running", func(t *testing.T) {
		statuses := allDone
		statuses[Editing] = "RUNNING"
		state := Evaluate(record(statuses, nil))
		assert.Equal(t, 4, state.StageIndex)
		assert.True(t, state.StageActive)
		assert.Equal(t, 90, state.Percent())
	})
}

func TestEvaluate_AnyFailedStageIsTerminal(t *testing.T) {
	others := []string{"", "PENDING", "IN_PROGRESS", "COMPLETED", "FAILED"}
	for _, failed := range Stages {
		for _, other := range others {
			var statuses [StageCount]string
			for _, s := range Stages {
				statuses[s] = other
			}
			statuses[failed] = "FAILED"

			state := Evaluate(record(statuses, strPtr("s3://x")))
			assert.Equal(t, TerminalFailed, state.Terminal, "stage %s failed, others %q", failed, other)
		}
	}
}

func TestEvaluate_FailedFirstStageWithoutProgress(t *testing.T) {
	state := Evaluate(record([StageCount]string{"FAILED", "", "", "", ""}, nil))
	assert.Equal(t, TerminalFailed, state.Terminal)
	assert.Equal(t, -1, state.StageIndex)
	assert.False(t, state.StageActive)
}

func TestEvaluate_Idempotent(t *testing.T) {
	rec := record([StageCount]string{"COMPLETED", "STARTED", "", "", ""}, nil)
	first := Evaluate(rec)
	second := Evaluate(rec)
	assert.Equal(t, first, second)
	assert.Equal(t, [StageCount]string{"COMPLETED", "STARTED", "", "", ""}, rec.Raw)
}

func TestEvaluate_VideoInProgressScenario(t *testing.T) {
	rec := record([StageCount]string{"COMPLETED", "COMPLETED", "IN_PROGRESS", "", ""}, nil)
	state := Evaluate(rec)
	assert.Equal(t, State{StageIndex: 2, StageActive: true, Terminal: TerminalNone}, state)
	assert.Equal(t, 50, state.Percent())
}

func TestState_Percent(t *testing.T) {
	tests := []struct {
		state State
		want  int
	}{
		{State{StageIndex: -1}, 0},
		{State{StageIndex: 0, StageActive: true}, 10},
		{State{StageIndex: 0}, 20},
		{State{StageIndex: 1, StageActive: true}, 30},
		{State{StageIndex: 2, StageActive: true}, 50},
		{State{StageIndex: 3}, 80},
		{State{StageIndex: 4, Terminal: TerminalSucceeded}, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.Percent(), "%+v", tt.state)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]StageStatus{
		"":            StatusUnset,
		"   ":         StatusUnset,
		"PENDING":     StatusPending,
		"pending":     StatusPending,
		"STARTED":     StatusInProgress,
		"RUNNING":     StatusInProgress,
		"IN_PROGRESS": StatusInProgress,
		" completed ": StatusCompleted,
		"FAILED":      StatusFailed,
		"SKIPPED":     StatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), "raw %q", raw)
	}
}

func TestStage_Metadata(t *testing.T) {
	assert.Equal(t, "script_generation_status", ScriptGeneration.Key())
	assert.Equal(t, "editing_status", Editing.Key())
	assert.Equal(t, "Video Creation", VideoGeneration.Name())
	assert.Equal(t, "", Stage(7).Key())
	assert.False(t, Stage(-1).Valid())
}
