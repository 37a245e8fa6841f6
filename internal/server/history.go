package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/db"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/server/middleware"
	"github.com/sirupsen/logrus"
)

// Listing bounds for GET /api/history.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// historyWriteTimeout bounds one history write. Writes outlive the request
// so that an outcome is stored even when the client has already gone.
const historyWriteTimeout = 5 * time.Second

// ErrNoHistory means no progress was ever recorded for the run.
var ErrNoHistory = errors.New("no progress recorded for this run")

// HistoryStore persists the progress streamed to users. *db.DB implements it.
type HistoryStore interface {
	RecordSnapshot(ctx context.Context, owner string, snap progress.Snapshot) error
	RecordOutcome(ctx context.Context, owner, runID string, kind progress.Terminal, videoURI string) error
	GetRun(ctx context.Context, owner, runID string) (*db.Run, error)
	ListRuns(ctx context.Context, owner string, limit int) ([]db.Run, error)
}

// historyQueueSize bounds the snapshots waiting to be written for one stream.
// Snapshots beyond it are dropped; a later snapshot supersedes them anyway.
const historyQueueSize = 32

// historyWrite is one queued snapshot or outcome.
type historyWrite struct {
	snap     *progress.Snapshot
	runID    string
	kind     progress.Terminal
	videoURI string
}

// historyRecorder writes one stream's progress to the store from its own
// goroutine, so a slow store never delays progress events or the poller. A
// nil recorder records nothing. Failures are logged and never interrupt the
// stream.
type historyRecorder struct {
	store HistoryStore
	owner string
	ctx   context.Context
	log   *logrus.Entry
	queue chan historyWrite
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// newHistoryRecorder starts a recorder for the caller of r. Callers must
// close it.
func (s *Server) newHistoryRecorder(r *http.Request, log *logrus.Entry) *historyRecorder {
	if s.history == nil {
		return nil
	}
	owner, err := middleware.GetSubject(r)
	if err != nil || owner == "" {
		return nil
	}
	h := &historyRecorder{
		store: s.history,
		owner: owner,
		ctx:   context.WithoutCancel(r.Context()),
		log:   log,
		queue: make(chan historyWrite, historyQueueSize),
		done:  make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *historyRecorder) run() {
	defer close(h.done)
	for w := range h.queue {
		ctx, cancel := context.WithTimeout(h.ctx, historyWriteTimeout)
		if w.snap != nil {
			if err := h.store.RecordSnapshot(ctx, h.owner, *w.snap); err != nil {
				h.log.WithError(err).Warn("failed to record progress history")
			}
		} else if err := h.store.RecordOutcome(ctx, h.owner, w.runID, w.kind, w.videoURI); err != nil {
			h.log.WithError(err).Warn("failed to record run outcome")
		}
		cancel()
	}
}

// snapshot queues snap without waiting. It is dropped when the queue is full.
func (h *historyRecorder) snapshot(snap progress.Snapshot) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- historyWrite{snap: &snap}:
	default:
		h.log.WithField("percent", snap.Percent).Debug("history queue full, dropping snapshot")
	}
}

// outcome queues the end of a run. Outcomes are never dropped.
func (h *historyRecorder) outcome(runID string, kind progress.Terminal, videoURI string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.queue <- historyWrite{runID: runID, kind: kind, videoURI: videoURI}
}

// close stops accepting writes and waits for the queued ones.
func (h *historyRecorder) close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()
	<-h.done
}

// handleHistory returns the stored progress history of one of the caller's runs.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	owner, err := middleware.GetSubject(r)
	if err != nil {
		s.handleError(w, r, client.ErrNotAuthenticated)
		return
	}

	run, err := s.history.GetRun(r.Context(), owner, id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if run == nil {
		s.handleError(w, r, ErrNoHistory)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListHistory returns the caller's most recently updated runs, without
// their steps.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetSubject(r)
	if err != nil {
		s.handleError(w, r, client.ErrNotAuthenticated)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.handleError(w, r, &ErrValidation{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxHistoryLimit)})
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), owner, limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs})
}
