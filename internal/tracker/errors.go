package tracker

import (
	"errors"
	"fmt"

	"github.com/jonathan/ad-dashboard/internal/progress"
)

// ErrGenerationFailed is returned when a job ended in failure.
var ErrGenerationFailed = errors.New("ad generation failed")

// FinalizationError means a job reached a terminal state but recording that
// outcome on the ad failed. The outcome itself is known; only the ad record
// is stale.
type FinalizationError struct {
	RunID string
	Kind  progress.Terminal
	Err   error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("failed to record %s outcome for run %s: %v", e.Kind, e.RunID, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}
