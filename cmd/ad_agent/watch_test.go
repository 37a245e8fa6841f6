package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jonathan/ad-dashboard/internal/observability"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_Completes(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	runID := env.backend.AddAd(owner, types.Ad{Name: "Glow Serum"})
	env.backend.QueueCrewStatus(runID, scriptRunning(), scriptRunning(), allCompleted(videoURI))

	out, err := execute(t, "watch", "--interval", "10ms", runID)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "Script Generation"), "unchanged snapshots are printed once")
	assert.Contains(t, out, "ready: "+videoURI)

	ad, _ := env.backend.Ad(runID)
	assert.Equal(t, types.AdStatusGenerated, ad.Status)
	assert.Equal(t, videoURI, ad.VideoURI())
}

func TestWatch_Steps(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	runID := env.backend.AddAd(owner, types.Ad{Name: "Glow Serum"})
	env.backend.QueueCrewStatus(runID, scriptRunning(), allCompleted(videoURI))

	out, err := execute(t, "watch", "--steps", "--interval", "10ms", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "GENERATION PROGRESS")
	assert.Contains(t, out, "Step 1 of 5: Script Generation")
}

func TestWatch_Failed(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	runID := env.backend.AddAd(owner, types.Ad{Name: "Glow Serum"})
	env.backend.QueueCrewStatus(runID, rec(map[progress.Stage]string{
		progress.ScriptGeneration: "COMPLETED",
		progress.ScriptEvaluation: "FAILED",
	}, ""))

	out, err := execute(t, "watch", "--interval", "10ms", runID)
	require.Error(t, err)
	assert.Equal(t, "1 of 1 runs did not complete", err.Error())
	assert.Contains(t, out, "ad generation failed")

	updates := env.backend.Updates(runID)
	require.Len(t, updates, 1)
	assert.Equal(t, types.AdStatusFailed, *updates[0].Status)
}

func TestWatch_SeveralRuns(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)
	done := env.backend.AddAd(owner, types.Ad{Name: "Glow Serum"})
	env.backend.QueueCrewStatus(done, scriptRunning(), allCompleted(videoURI))
	failed := env.backend.AddAd(owner, types.Ad{Name: "Cold Brew"})
	env.backend.QueueCrewStatus(failed, rec(map[progress.Stage]string{progress.ScriptGeneration: "FAILED"}, ""))

	out, err := execute(t, "watch", "--interval", "10ms", done, failed)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 runs did not complete", err.Error())
	assert.Contains(t, out, "ready: "+videoURI)

	ad, _ := env.backend.Ad(done)
	assert.Equal(t, types.AdStatusGenerated, ad.Status)
	ad, _ = env.backend.Ad(failed)
	assert.Equal(t, types.AdStatusFailed, ad.Status)
}

func TestWatch_RequiresRunID(t *testing.T) {
	newCLIEnv(t)

	_, err := execute(t, "watch")
	require.Error(t, err)
}

func TestProgressObserver_Warning(t *testing.T) {
	var buf bytes.Buffer
	obs := newProgressObserver(observability.NewPrinter(&buf), false)
	obs.OnWarning("run-1", errors.New("connection refused"))
	assert.Equal(t, "! run-1: connection refused (retrying)\n", buf.String())
}
