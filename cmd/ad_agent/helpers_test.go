package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/jonathan/ad-dashboard/internal/client/clienttest"
	"github.com/jonathan/ad-dashboard/internal/config"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const (
	owner    = "creator@example.com"
	pass     = "password123"
	videoURI = "https://bucket.s3.amazonaws.com/videos/out.mp4"
)

type cliEnv struct {
	backend     *clienttest.Backend
	sessionFile string
}

// newCLIEnv points the CLI at a fake backend and a temporary session file.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	backend := clienttest.NewBackend(t)
	backend.AddUser(owner, pass, "Creator")

	sessionFile := filepath.Join(t.TempDir(), "session.json")
	t.Setenv(config.EnvAPIBaseURL, backend.URL())
	t.Setenv(config.EnvSessionFile, sessionFile)
	t.Setenv(config.EnvPollInterval, "100ms")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv("RATE_LIMIT_CLIENT_ENABLED", "false")
	t.Setenv(passwordEnv, "")

	return &cliEnv{backend: backend, sessionFile: sessionFile}
}

// login saves a session for owner without going through the login command.
func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	access, refresh := e.backend.IssueTokens(owner)
	require.NoError(t, session.NewStore(e.sessionFile).SetTokens(access, refresh))
}

// execute runs the CLI in process and returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func rec(statuses map[progress.Stage]string, artifact string) *progress.Record {
	var ref *string
	if artifact != "" {
		ref = &artifact
	}
	return progress.NewRecord(statuses, ref)
}

func scriptRunning() *progress.Record {
	return rec(map[progress.Stage]string{progress.ScriptGeneration: "IN_PROGRESS"}, "")
}

func allCompleted(artifact string) *progress.Record {
	return rec(map[progress.Stage]string{
		progress.ScriptGeneration: "COMPLETED",
		progress.ScriptEvaluation: "COMPLETED",
		progress.VideoGeneration:  "COMPLETED",
		progress.AudioGeneration:  "COMPLETED",
		progress.Editing:          "COMPLETED",
	}, artifact)
}
