package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/dashboard"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/tracker"
	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/sirupsen/logrus"
)

// OutcomeEvent is the payload of complete and failed events.
type OutcomeEvent struct {
	RunID         string         `json:"run_id"`
	Status        types.AdStatus `json:"status"`
	FinalVideoURI string         `json:"final_video_uri,omitempty"`
	Ad            *types.Ad      `json:"ad,omitempty"`
}

// WarningEvent is the payload of warning events. Polling continues after a
// warning.
type WarningEvent struct {
	RunID     string `json:"run_id"`
	Message   string `json:"message"`
	Transient bool   `json:"transient"`
}

// runID reads and validates the run_id path parameter.
func runID(r *http.Request) (string, error) {
	id := r.PathValue("run_id")
	if _, err := uuid.Parse(id); err != nil {
		return "", &ErrValidation{Field: "run_id", Message: "must be a UUID"}
	}
	return id, nil
}

// handleDashboard returns the user's profile, ad statistics and recent ads.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	api, err := s.apiFor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	overview, err := dashboard.Load(r.Context(), api)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overview)
}

// handleListAds returns the user's ads, filtered by ?status, searched by
// ?search and ordered by ?sort.
func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q, err := dashboard.ParseQuery(query.Get("status"), query.Get("search"), query.Get("sort"))
	if err != nil {
		s.handleError(w, r, &ErrValidation{Field: "query", Message: err.Error()})
		return
	}

	api, err := s.apiFor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	ads, err := dashboard.List(r.Context(), api, q)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"ads":   ads,
		"query": q,
		"stats": dashboard.Summarize(ads),
	})
}

// handleSnapshot fetches and evaluates a run's status once.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	api, err := s.apiFor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	rec, err := api.FetchRecord(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progress.NewSnapshot(id, rec))
}

// handleProgress streams a run's progress as Server-Sent Events until the
// job ends or the client disconnects. Ads that already ended get their
// outcome event right away.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	api, err := s.apiFor(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	// Errors before the stream opens still get a proper status code.
	ad, err := api.GetAd(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log := s.log.WithField("run_id", id)
	switch {
	case ad.Status.Is(types.AdStatusGenerated):
		s.writeOutcome(sse, log, EventComplete, OutcomeEvent{RunID: id, Status: types.AdStatusGenerated, FinalVideoURI: ad.VideoURI(), Ad: ad})
		return
	case ad.Status.Is(types.AdStatusFailed):
		s.writeOutcome(sse, log, EventFailed, OutcomeEvent{RunID: id, Status: types.AdStatusFailed, Ad: ad})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		s.heartbeatLoop(ctx, sse)
	}()
	// No writes may happen after the handler returns.
	defer func() {
		cancel()
		<-heartbeatDone
	}()

	history := s.newHistoryRecorder(r, log)
	defer history.close()
	observer := tracker.ObserverFuncs{
		Progress: func(snap progress.Snapshot) {
			if err := sse.WriteEvent(EventProgress, snap); err != nil {
				cancel()
			}
			history.snapshot(snap)
		},
		Warning: func(runID string, err error) {
			log.WithError(err).Warn("status fetch failed")
			event := WarningEvent{RunID: runID, Message: err.Error(), Transient: client.IsTransient(err)}
			if err := sse.WriteEvent(EventWarning, event); err != nil {
				cancel()
			}
		},
	}

	var opts []tracker.Option
	opts = append(opts, tracker.WithLogger(log))
	if s.pollInterval > 0 {
		opts = append(opts, tracker.WithInterval(s.pollInterval))
	}
	result, err := tracker.New(api, opts...).Track(ctx, id, observer)

	switch {
	case err == nil:
		event := OutcomeEvent{RunID: id, Status: types.AdStatusGenerated, Ad: result.Ad}
		if result.Ad != nil {
			event.FinalVideoURI = result.Ad.VideoURI()
		}
		s.writeOutcome(sse, log, EventComplete, event)
		history.outcome(id, progress.TerminalSucceeded, event.FinalVideoURI)
	case errors.Is(err, tracker.ErrGenerationFailed):
		s.writeOutcome(sse, log, EventFailed, OutcomeEvent{RunID: id, Status: types.AdStatusFailed, Ad: result.Ad})
		history.outcome(id, progress.TerminalFailed, "")
	case ctx.Err() != nil:
		log.Debug("progress stream closed by client")
	default:
		log.WithError(err).Error("progress stream ended with an error")
		sse.WriteError(errorMessage(err))
	}
}

func (s *Server) writeOutcome(sse *SSEWriter, log *logrus.Entry, event string, payload OutcomeEvent) {
	if err := sse.WriteEvent(event, payload); err != nil {
		log.WithError(err).Debug("failed to write outcome event")
	}
}

// heartbeatLoop writes keep-alive comments until ctx is done.
func (s *Server) heartbeatLoop(ctx context.Context, sse *SSEWriter) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		}
	}
}
