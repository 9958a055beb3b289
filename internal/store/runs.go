package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// StartRun records a new pipeline run in the running state.
func (db *DB) StartRun(ctx context.Context, id string, athletes int, config string) (*Run, error) {
	run := &Run{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    RunStatusRunning,
		Athletes:  athletes,
		Config:    config,
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status, athletes, config)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), run.Status, run.Athletes, run.Config)
	if err != nil {
		return nil, eris.Wrapf(err, "starting run %s", id)
	}
	return run, nil
}

// FinishRun marks a run completed or failed.
func (db *DB) FinishRun(ctx context.Context, id, status string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, status, formatTime(time.Now()), id)
	if err != nil {
		return eris.Wrapf(err, "finishing run %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "finishing run")
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	return db.scanRun(db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, athletes, config
		FROM runs WHERE id = ?
	`, id))
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun(ctx context.Context) (*Run, error) {
	return db.scanRun(db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status, athletes, config
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`))
}

func (db *DB) scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var started, finished, config sql.NullString
	err := row.Scan(&run.ID, &started, &finished, &run.Status, &run.Athletes, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scanning run")
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished)
		run.FinishedAt = &t
	}
	run.Config = config.String
	return &run, nil
}
