package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonathan/ad-dashboard/internal/observability"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/tracker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watchSteps    bool
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <run_id>...",
	Short: "Follow generation runs until they finish",
	Long: `Polls each run's crew status, printing progress as it changes, and records the
final outcome on the ad once the run completes or fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchSteps, "steps", false, "Print the full step list on every change")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Time between status polls (overrides poll_interval)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.cfg.PollInterval.Std()
	if cmd.Flags().Changed("interval") {
		interval = watchInterval
	}
	return a.watch(cmd.Context(), args, interval, watchSteps)
}

// watch tracks runIDs to their end and prints one line per finished run.
func (a *app) watch(ctx context.Context, runIDs []string, interval time.Duration, steps bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := tracker.New(a.api,
		tracker.WithInterval(interval),
		tracker.WithLogger(logrus.NewEntry(a.log)),
	)
	results, _ := t.TrackAll(ctx, runIDs, newProgressObserver(a.out, steps))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tracking interrupted: %w", err)
	}

	var failed int
	for _, res := range results {
		var uri string
		if res.Err != nil {
			failed++
		} else if res.Result != nil && res.Result.Ad != nil {
			uri = res.Result.Ad.VideoURI()
		}
		a.out.PrintResult(res.RunID, uri, res.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not complete", failed, len(results))
	}
	return nil
}

// progressObserver prints snapshots that differ from the last one printed
// for the same run. Runs tracked together report concurrently.
type progressObserver struct {
	out   *observability.Printer
	steps bool

	mu   sync.Mutex
	last map[string]string
}

func newProgressObserver(out *observability.Printer, steps bool) *progressObserver {
	return &progressObserver{out: out, steps: steps, last: make(map[string]string)}
}

func (o *progressObserver) OnProgress(snap progress.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sig := signature(snap)
	if o.last[snap.RunID] == sig {
		return
	}
	o.last[snap.RunID] = sig

	if o.steps {
		o.out.PrintSteps(snap)
		return
	}
	o.out.PrintProgressLine(snap)
}

func (o *progressObserver) OnWarning(runID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.out.PrintWarning("%s: %v (retrying)", runID, err)
}

func signature(snap progress.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s", snap.Percent, snap.CurrentStep)
	for _, step := range snap.Steps {
		sb.WriteString("|" + string(step.State))
	}
	return sb.String()
}
