package progress

import (
	"encoding/json"
	"strings"
	"time"
)

// finalArtifactKey is the status payload field holding the finished video URI.
const finalArtifactKey = "final_video_uri"

// Record is the job status record reported by the backend for one run: a raw
// status per stage plus a pointer to the final artifact once editing is done.
//
// Decoding is lenient. Missing fields and fields of an unexpected JSON type
// decode as unset, so a partially initialized record simply reads as no
// progress.
type Record struct {
	RunID            string
	Raw              [StageCount]string
	FinalArtifactRef *string
	UpdatedAt        *time.Time
}

// NewRecord builds a record from per-stage raw statuses. A nil or empty
// artifact reference means the final video is not available.
func NewRecord(statuses map[Stage]string, artifact *string) *Record {
	rec := &Record{}
	for stage, raw := range statuses {
		if stage.Valid() {
			rec.Raw[stage] = raw
		}
	}
	rec.SetFinalArtifact(artifact)
	return rec
}

// SetFinalArtifact sets the artifact reference, treating blank values as absent.
func (r *Record) SetFinalArtifact(ref *string) {
	if ref == nil || strings.TrimSpace(*ref) == "" {
		r.FinalArtifactRef = nil
		return
	}
	v := *ref
	r.FinalArtifactRef = &v
}

// Status returns the normalized status of the given stage.
func (r *Record) Status(s Stage) StageStatus {
	if r == nil || !s.Valid() {
		return StatusUnset
	}
	return NormalizeStatus(r.Raw[s])
}

// HasArtifact reports whether the final artifact reference is set.
func (r *Record) HasArtifact() bool {
	return r != nil && r.FinalArtifactRef != nil
}

// Artifact returns the final artifact reference or an empty string.
func (r *Record) Artifact() string {
	if !r.HasArtifact() {
		return ""
	}
	return *r.FinalArtifactRef
}

// UnmarshalJSON decodes the crew status payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object (null, array, scalar): no progress yet.
		*r = Record{}
		return nil
	}

	out := Record{RunID: stringField(fields, "id")}
	if out.RunID == "" {
		out.RunID = stringField(fields, "run_id")
	}
	for _, stage := range Stages {
		out.Raw[stage] = stringField(fields, stage.Key())
	}
	if uri := stringField(fields, finalArtifactKey); uri != "" {
		out.SetFinalArtifact(&uri)
	}
	if ts := stringField(fields, "updated_at"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			out.UpdatedAt = &parsed
		}
	}

	*r = out
	return nil
}

// MarshalJSON encodes the record in the same shape the backend reports it.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, StageCount+3)
	for _, stage := range Stages {
		if r.Raw[stage] != "" {
			out[stage.Key()] = r.Raw[stage]
		} else {
			out[stage.Key()] = nil
		}
	}
	if r.FinalArtifactRef != nil {
		out[finalArtifactKey] = *r.FinalArtifactRef
	} else {
		out[finalArtifactKey] = nil
	}
	if r.RunID != "" {
		out["id"] = r.RunID
	}
	if r.UpdatedAt != nil {
		out["updated_at"] = r.UpdatedAt.Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// stringField returns the string value of key, or "" when absent or not a string.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
