// Package types provides request and response types exchanged with the ad
// generation API, together with their form validation rules.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/ad-dashboard/internal/progress"
)

// AdStatus is the lifecycle status of an advertisement record.
type AdStatus string

// AdStatus values
const (
	AdStatusDraft      AdStatus = "DRAFT"
	AdStatusInProgress AdStatus = "IN_PROGRESS"
	AdStatusGenerated  AdStatus = "GENERATED"
	AdStatusFailed     AdStatus = "FAILED"
)

// ParseAdStatus parses a status case-insensitively.
func ParseAdStatus(s string) (AdStatus, error) {
	switch AdStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case AdStatusDraft:
		return AdStatusDraft, nil
	case AdStatusInProgress:
		return AdStatusInProgress, nil
	case AdStatusGenerated:
		return AdStatusGenerated, nil
	case AdStatusFailed:
		return AdStatusFailed, nil
	default:
		return "", fmt.Errorf("unknown ad status %q", s)
	}
}

// Is reports whether s equals other, ignoring case.
func (s AdStatus) Is(other AdStatus) bool {
	return strings.EqualFold(string(s), string(other))
}

// MinDescriptionLength is the shortest accepted product description.
const MinDescriptionLength = 10

// CreateAdRequest is the product brief submitted to start a generation run.
type CreateAdRequest struct {
	Name string `json:"name" validate:"required"`
	Desc string `json:"desc" validate:"required,min=10"`
}

// Normalize trims surrounding whitespace from every field.
func (r *CreateAdRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Desc = strings.TrimSpace(r.Desc)
}

// Validate normalizes and validates the request.
func (r *CreateAdRequest) Validate() error {
	r.Normalize()
	return validate.Struct(r)
}

// CreateAdResponse is returned when a run has been started.
type CreateAdResponse struct {
	RunID  string   `json:"run_id"`
	Status AdStatus `json:"status"`
}

// Ad is an advertisement record owned by the current user.
type Ad struct {
	RunID         string    `json:"run_id"`
	Name          string    `json:"name"`
	Desc          string    `json:"desc"`
	Status        AdStatus  `json:"status"`
	FinalVideoURI *string   `json:"final_video_uri"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnmarshalJSON accepts the backend's timestamps, which may lack a zone.
func (a *Ad) UnmarshalJSON(data []byte) error {
	type alias Ad
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if a.CreatedAt, err = ParseTimestamp(aux.CreatedAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if a.UpdatedAt, err = ParseTimestamp(aux.UpdatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO 8601 timestamp with or without a zone offset.
// Timestamps without an offset are taken as UTC. An empty string is the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// VideoURI returns the final video URI or an empty string.
func (a *Ad) VideoURI() string {
	if a.FinalVideoURI == nil {
		return ""
	}
	return *a.FinalVideoURI
}

// UpdateAdRequest changes an ad's status and/or final video. Nil fields are
// left untouched by the backend.
type UpdateAdRequest struct {
	Status        *AdStatus `json:"status,omitempty"`
	FinalVideoURI *string   `json:"final_video_uri,omitempty"`
}

// GeneratedUpdate marks an ad as generated with its final video.
func GeneratedUpdate(videoURI string) UpdateAdRequest {
	status := AdStatusGenerated
	return UpdateAdRequest{Status: &status, FinalVideoURI: &videoURI}
}

// FailedUpdate marks an ad as failed.
func FailedUpdate() UpdateAdRequest {
	status := AdStatusFailed
	return UpdateAdRequest{Status: &status}
}

// AdStatusResponse carries the ad status and the raw crew status record.
// CrewStatus is nil when the backend has no stage information yet.
type AdStatusResponse struct {
	RunID      string           `json:"run_id"`
	Status     AdStatus         `json:"status"`
	CrewStatus *progress.Record `json:"crew_status"`
}

// VideoURLResponse holds a time-limited playable URL.
type VideoURLResponse struct {
	VideoURL string `json:"video_url"`
}
