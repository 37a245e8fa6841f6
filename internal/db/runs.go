package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ad-dashboard/internal/progress"
)

// ErrForeignRun is returned when a run is recorded for a different owner than
// the one who first recorded it.
var ErrForeignRun = errors.New("run belongs to another user")

// -----------------------------------------------------------------------------
// Recording
// -----------------------------------------------------------------------------

const upsertRunSQL = `INSERT INTO ad_runs (run_id, owner, percent, current_step)
	 VALUES ($1, $2, $3, $4)
	 ON CONFLICT (run_id) DO UPDATE
	 SET percent = EXCLUDED.percent, current_step = EXCLUDED.current_step, updated_at = NOW()
	 WHERE ad_runs.owner = EXCLUDED.owner
	 RETURNING run_id`

// A stage keeps the first time it was seen active and the first time it was
// seen finished.
const upsertStepSQL = `INSERT INTO ad_run_steps (run_id, position, stage, status, started_at, completed_at)
	 VALUES ($1, $2, $3, $4::text,
	         CASE WHEN $4::text IN ('active', 'completed', 'failed') THEN NOW() END,
	         CASE WHEN $4::text IN ('completed', 'failed') THEN NOW() END)
	 ON CONFLICT (run_id, stage) DO UPDATE
	 SET status = EXCLUDED.status,
	     started_at = COALESCE(ad_run_steps.started_at, EXCLUDED.started_at),
	     completed_at = COALESCE(ad_run_steps.completed_at, EXCLUDED.completed_at),
	     updated_at = NOW()`

// RecordSnapshot stores the progress in snap for a run owned by owner.
func (db *DB) RecordSnapshot(ctx context.Context, owner string, snap progress.Snapshot) error {
	runID, err := uuid.Parse(snap.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", snap.RunID, err)
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, upsertRunSQL, runID, owner, snap.Percent, snap.CurrentStep).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrForeignRun
		}
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, step := range StepInputs(snap) {
			batch.Queue(upsertStepSQL, runID, step.Position, step.Stage, string(step.Status))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to record run steps: %w", err)
		}
		return nil
	})
}

// RecordOutcome marks a run as finished.
func (db *DB) RecordOutcome(ctx context.Context, owner, runID string, kind progress.Terminal, videoURI string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	outcome, ok := OutcomeName(kind)
	if !ok {
		return fmt.Errorf("cannot record non-terminal outcome %q", kind)
	}

	var uri *string
	if videoURI != "" {
		uri = &videoURI
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO ad_runs (run_id, owner, outcome, final_video_uri, completed_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (run_id) DO UPDATE
		 SET outcome = EXCLUDED.outcome, final_video_uri = EXCLUDED.final_video_uri,
		     completed_at = COALESCE(ad_runs.completed_at, EXCLUDED.completed_at), updated_at = NOW()
		 WHERE ad_runs.owner = EXCLUDED.owner`,
		id, owner, outcome, uri,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrForeignRun
	}
	return nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

const runColumns = `run_id, owner, percent, current_step, outcome, final_video_uri,
	        created_at, updated_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.RunID, &run.Owner, &run.Percent, &run.CurrentStep, &run.Outcome,
		&run.FinalVideoURI, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run with its steps. It returns nil when owner has no
// such run.
func (db *DB) GetRun(ctx context.Context, owner, runID string) (*Run, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM ad_runs WHERE run_id = $1 AND owner = $2`,
		id, owner,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Steps, err = db.listRunSteps(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (db *DB) listRunSteps(ctx context.Context, runID uuid.UUID) ([]RunStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT position, stage, status, started_at, completed_at, updated_at
		 FROM ad_run_steps WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		var step RunStep
		var status string
		if err := rows.Scan(&step.Position, &step.Stage, &status, &step.StartedAt, &step.CompletedAt, &step.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		step.Status = progress.StepState(status)
		step.fillDuration()
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ListRuns retrieves owner's most recently updated runs, without steps.
func (db *DB) ListRuns(ctx context.Context, owner string, limit int) ([]Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM ad_runs WHERE owner = $1 ORDER BY updated_at DESC LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
