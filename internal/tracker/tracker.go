// Package tracker follows ad generation jobs to completion and records their
// outcome on the ad.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// API is the part of the API client the tracker needs.
type API interface {
	FetchRecord(ctx context.Context, runID string) (*progress.Record, error)
	GetAd(ctx context.Context, runID string) (*types.Ad, error)
	UpdateAd(ctx context.Context, runID string, update types.UpdateAdRequest) (*types.Ad, error)
	GetVideoURL(ctx context.Context, runID string) (string, error)
}

// Observer receives progress while a job is tracked. Calls for one job are
// never concurrent.
type Observer interface {
	OnProgress(snap progress.Snapshot)
	OnWarning(runID string, err error)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(snap progress.Snapshot)
	Warning  func(runID string, err error)
}

// OnProgress implements Observer.
func (o ObserverFuncs) OnProgress(snap progress.Snapshot) {
	if o.Progress != nil {
		o.Progress(snap)
	}
}

// OnWarning implements Observer.
func (o ObserverFuncs) OnWarning(runID string, err error) {
	if o.Warning != nil {
		o.Warning(runID, err)
	}
}

// Result is how a tracked job ended.
type Result struct {
	RunID    string            `json:"run_id"`
	Outcome  progress.Terminal `json:"outcome"`
	Ad       *types.Ad         `json:"ad,omitempty"`
	VideoURL string            `json:"video_url,omitempty"`
}

// Tracker tracks jobs through the API.
type Tracker struct {
	api  API
	opts []progress.Option
	log  *logrus.Entry
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.opts = append(t.opts, progress.WithInterval(d))
	}
}

// WithFetchTimeout bounds a single status fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.opts = append(t.opts, progress.WithFetchTimeout(d))
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// New creates a tracker.
func New(api API, opts ...Option) *Tracker {
	t := &Tracker{
		api: api,
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track polls runID until it reaches a terminal state, reporting every
// evaluated record to obs, then records the outcome on the ad. A failed job
// returns the result together with ErrGenerationFailed. A job whose outcome
// could not be recorded returns a *FinalizationError. Cancelling ctx stops
// tracking and returns ctx's error.
func (t *Tracker) Track(ctx context.Context, runID string, obs Observer) (*Result, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}

	poller := progress.NewPoller(t.api.FetchRecord, append([]progress.Option{progress.WithLogger(t.log)}, t.opts...)...)
	outcomes := make(chan progress.Outcome, 1)
	h := poller.Start(ctx, runID, progress.Callbacks{
		OnResult: func(r progress.Result) {
			obs.OnProgress(progress.NewSnapshot(runID, r.Record))
		},
		OnTransportError: func(err error) {
			obs.OnWarning(runID, err)
		},
		OnTerminal: func(o progress.Outcome) {
			outcomes <- o
		},
	})
	defer h.Stop()

	var outcome progress.Outcome
	select {
	case outcome = <-outcomes:
	case <-h.Done():
		select {
		case outcome = <-outcomes:
		default:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("tracking run %s stopped without an outcome", runID)
		}
	}

	return t.finalize(ctx, runID, outcome)
}

// FinalizeTimeout bounds recording an outcome on the ad.
const FinalizeTimeout = 30 * time.Second

// finalize records a terminal outcome on the ad.
func (t *Tracker) finalize(ctx context.Context, runID string, outcome progress.Outcome) (*Result, error) {
	log := t.log.WithFields(logrus.Fields{"run_id": runID, "outcome": outcome.Kind})

	var update types.UpdateAdRequest
	switch outcome.Kind {
	case progress.TerminalSucceeded:
		update = types.GeneratedUpdate(outcome.FinalArtifactRef)
	case progress.TerminalFailed:
		update = types.FailedUpdate()
	default:
		return nil, fmt.Errorf("run %s: cannot finalize non-terminal outcome %q", runID, outcome.Kind)
	}

	// The outcome is recorded even when the caller has gone away meanwhile.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FinalizeTimeout)
	defer cancel()
	ad, err := t.api.UpdateAd(ctx, runID, update)
	if err != nil {
		log.WithError(err).Error("failed to record job outcome")
		return nil, &FinalizationError{RunID: runID, Kind: outcome.Kind, Err: err}
	}
	log.Info("job outcome recorded")

	result := &Result{RunID: runID, Outcome: outcome.Kind, Ad: ad}
	if outcome.Kind == progress.TerminalFailed {
		return result, fmt.Errorf("run %s: %w", runID, ErrGenerationFailed)
	}
	return result, nil
}

// Resolve returns a playable video for runID. Generated ads resolve
// immediately, ads still in progress are tracked to completion first, and
// failed ads return ErrGenerationFailed.
func (t *Tracker) Resolve(ctx context.Context, runID string, obs Observer) (*Result, error) {
	ad, err := t.api.GetAd(ctx, runID)
	if err != nil {
		return nil, err
	}

	var result *Result
	switch {
	case ad.Status.Is(types.AdStatusGenerated):
		result = &Result{RunID: runID, Outcome: progress.TerminalSucceeded, Ad: ad}
	case ad.Status.Is(types.AdStatusFailed):
		return &Result{RunID: runID, Outcome: progress.TerminalFailed, Ad: ad}, fmt.Errorf("run %s: %w", runID, ErrGenerationFailed)
	default:
		if result, err = t.Track(ctx, runID, obs); err != nil {
			return result, err
		}
	}

	if result.VideoURL, err = t.api.GetVideoURL(ctx, runID); err != nil {
		return result, fmt.Errorf("failed to get video URL for run %s: %w", runID, err)
	}
	return result, nil
}

// JobResult pairs a run with how tracking it ended.
type JobResult struct {
	RunID  string
	Result *Result
	Err    error
}

// TrackAll tracks several runs concurrently. Every run is tracked to its end
// regardless of the others; the returned error is the first one encountered.
func (t *Tracker) TrackAll(ctx context.Context, runIDs []string, obs Observer) ([]JobResult, error) {
	results := make([]JobResult, len(runIDs))

	var g errgroup.Group
	for i, runID := range runIDs {
		g.Go(func() error {
			res, err := t.Track(ctx, runID, obs)
			results[i] = JobResult{RunID: runID, Result: res, Err: err}
			return err
		})
	}
	err := g.Wait()
	return results, err
}
