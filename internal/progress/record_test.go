package progress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_UnmarshalJSON(t *testing.T) {
	payload := `{
		"id": "run-1",
		"script_generation_status": "COMPLETED",
		"script_evaluation_status": "COMPLETED",
		"video_generation_status": "RUNNING",
		"audio_generation_status": "PENDING",
		"editing_status": "PENDING",
		"updated_at": "2025-01-02T03:04:05.123456+00:00",
		"final_video_uri": null
	}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, StatusCompleted, rec.Status(ScriptEvaluation))
	assert.Equal(t, StatusInProgress, rec.Status(VideoGeneration))
	assert.Equal(t, StatusPending, rec.Status(Editing))
	assert.False(t, rec.HasArtifact())
	require.NotNil(t, rec.UpdatedAt)
	assert.Equal(t, 2025, rec.UpdatedAt.Year())
}

func TestRecord_UnmarshalJSON_Lenient(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "null", payload: `null`},
		{name: "array", payload: `[1,2,3]`},
		{name: "empty object", payload: `{}`},
		{name: "wrong field types", payload: `{"script_generation_status": 3, "editing_status": {"x": 1}, "final_video_uri": false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec Record
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &rec))
			assert.Equal(t, Initial(), Evaluate(&rec))
			assert.False(t, rec.HasArtifact())
		})
	}
}

func TestRecord_FinalArtifact(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"editing_status":"COMPLETED","final_video_uri":"https://bucket.s3.amazonaws.com/videos/a.mp4"}`), &rec))
	assert.True(t, rec.HasArtifact())
	assert.Equal(t, "https://bucket.s3.amazonaws.com/videos/a.mp4", rec.Artifact())
}

func TestRecord_MarshalJSONShape(t *testing.T) {
	rec := NewRecord(map[Stage]string{ScriptGeneration: "COMPLETED"}, strPtr("s3://x"))

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "COMPLETED", fields["script_generation_status"])
	assert.Nil(t, fields["editing_status"])
	assert.Equal(t, "s3://x", fields["final_video_uri"])
}

func TestRecord_NilSafe(t *testing.T) {
	var rec *Record
	assert.Equal(t, StatusUnset, rec.Status(Editing))
	assert.False(t, rec.HasArtifact())
	assert.Equal(t, "", rec.Artifact())
}
