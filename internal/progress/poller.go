package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the time between two status fetches.
const DefaultInterval = 5 * time.Second

// FetchFunc retrieves the current status record of a job. A nil record with a
// nil error means the backend has no status for the job yet.
type FetchFunc func(ctx context.Context, jobID string) (*Record, error)

// Result is delivered for every applied fetch.
type Result struct {
	Seq    uint64
	State  State
	Record *Record
}

// Outcome describes how a job ended.
type Outcome struct {
	Kind             Terminal
	FinalArtifactRef string
	State            State
	Record           *Record
}

// Callbacks receive poll results. All callbacks run on the poller's loop
// goroutine, one at a time. Any of them may be nil.
type Callbacks struct {
	OnResult         func(Result)
	OnTransportError func(error)
	// OnTerminal fires at most once, after polling has stopped.
	OnTerminal func(Outcome)
}

// Poller periodically fetches a job's status record and evaluates it.
type Poller struct {
	fetch    FetchFunc
	interval time.Duration
	timeout  time.Duration
	log      *logrus.Entry
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the time between fetches.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFetchTimeout bounds a single fetch. It defaults to the interval.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger used for poll diagnostics.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPoller creates a poller around fetch.
func NewPoller(fetch FetchFunc, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		interval: DefaultInterval,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout <= 0 {
		p.timeout = p.interval
	}
	return p
}

// Interval returns the configured poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Handle controls one running poll. It is the only way to stop it.
type Handle struct {
	jobID   string
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	mu    sync.RWMutex
	state State
}

// JobID returns the job being polled.
func (h *Handle) JobID() string {
	return h.jobID
}

// State returns the most recently applied progress state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Stop ends polling. It is idempotent and does not block, so it may be called
// from a callback. Results of fetches still in flight are discarded, and no
// callback is dispatched for a result the loop takes up after Stop. A callback
// the loop was already dispatching when another goroutine called Stop may
// still run; once Done is closed none is running and none will start.
func (h *Handle) Stop() {
	h.halt()
}

// Done is closed once the poll loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the poll loop has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Stopped reports whether polling has been stopped, by the caller or because
// the job reached a terminal state.
func (h *Handle) Stopped() bool {
	return h.stopped.Load()
}

// halt flips the stopped flag and reports whether this call did so.
func (h *Handle) halt() bool {
	first := h.stopped.CompareAndSwap(false, true)
	h.cancel()
	return first
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

type fetchResult struct {
	seq uint64
	rec *Record
	err error
}

// Start begins polling jobID. The first fetch is issued immediately, then one
// every interval until the handle is stopped, ctx is cancelled or the job
// reaches a terminal state.
func (p *Poller) Start(ctx context.Context, jobID string, cb Callbacks) *Handle {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  Initial(),
	}
	go p.run(loopCtx, h, cb)
	return h
}

func (p *Poller) run(ctx context.Context, h *Handle, cb Callbacks) {
	defer close(h.done)
	defer h.cancel()

	log := p.log.WithField("run_id", h.jobID)
	results := make(chan fetchResult)

	var seq, applied uint64
	issue := func() {
		seq++
		n := seq
		go func() {
			fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			rec, err := p.fetch(fetchCtx, h.jobID)
			select {
			case results <- fetchResult{seq: n, rec: rec, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	issue()
	for {
		select {
		case <-ctx.Done():
			h.halt()
			return

		case <-ticker.C:
			issue()

		case r := <-results:
			if h.Stopped() {
				return
			}
			if r.seq <= applied {
				log.WithField("seq", r.seq).Debug("dropping out-of-order status result")
				continue
			}

			if r.err != nil {
				log.WithError(r.err).WithField("seq", r.seq).Warn("status fetch failed")
				if cb.OnTransportError != nil && !h.Stopped() {
					cb.OnTransportError(r.err)
				}
				continue
			}
			if r.rec == nil {
				log.WithField("seq", r.seq).Debug("no status reported yet")
				continue
			}

			applied = r.seq
			state := Evaluate(r.rec)
			h.setState(state)

			if cb.OnResult != nil && !h.Stopped() {
				cb.OnResult(Result{Seq: r.seq, State: state, Record: r.rec})
			}

			if state.IsTerminal() {
				if !h.halt() {
					return
				}
				log.WithField("terminal", state.Terminal).Info("job reached terminal state")
				if cb.OnTerminal != nil {
					outcome := Outcome{Kind: state.Terminal, State: state, Record: r.rec}
					if state.Terminal == TerminalSucceeded {
						outcome.FinalArtifactRef = r.rec.Artifact()
					}
					cb.OnTerminal(outcome)
				}
				return
			}
		}
	}
}
