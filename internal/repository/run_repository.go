// internal/repository/run_repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gnss-configurator/internal/database"
	"gnss-configurator/internal/model"
)

// runRepository implements RunRepository on the journal database
type runRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.DB, logger *zap.Logger) RunRepository {
	return &runRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRun inserts a new run
func (r *runRepository) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	diagnostics, err := encodeDiagnostics(run.Diagnostics)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO provision_runs (
			id, source, port, dry_run, status, started_at,
			frames_total, frames_failed, diagnostics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Source, run.Port, run.DryRun, string(run.Status),
		run.StartedAt.UTC(), run.FramesTotal, run.FramesFailed, diagnostics,
	)
	if err != nil {
		r.logger.Error("Failed to create run", zap.Error(err))
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun stores the final status and counters of a run
func (r *runRepository) CompleteRun(ctx context.Context, run *model.Run) error {
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	query := `
		UPDATE provision_runs SET
			status = $1, completed_at = $2, frames_total = $3,
			frames_failed = $4, error_message = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		string(run.Status), completedAt, run.FramesTotal,
		run.FramesFailed, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	return nil
}

// AddFrame appends a frame result to its run
func (r *runRepository) AddFrame(ctx context.Context, frame *model.FrameResult) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO provision_frames (
			id, run_id, sequence, record, command_code, hex,
			status, error, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		frame.ID, frame.RunID, frame.Sequence, frame.Record, int(frame.CommandCode),
		frame.Hex, string(frame.Status), frame.Error, frame.DurationMs, frame.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to add frame", zap.String("record", frame.Record), zap.Error(err))
		return fmt.Errorf("failed to add frame: %w", err)
	}

	return nil
}

// GetRun retrieves a run together with its frames
func (r *runRepository) GetRun(ctx context.Context, id uuid.UUID) (*model.Run, error) {
	query := `
		SELECT id, source, port, dry_run, status, started_at, completed_at,
			   frames_total, frames_failed, error_message, diagnostics
		FROM provision_runs WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	frames, err := r.listFrames(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Frames = frames

	return run, nil
}

// ListRuns retrieves runs, newest first, without their frames
func (r *runRepository) ListRuns(ctx context.Context, filter *RunFilter) ([]*model.Run, int, error) {
	if filter == nil {
		filter = &RunFilter{}
	}
	filter.Normalize()

	whereConditions := []string{}
	args := []any{}
	argIndex := 1

	if filter.Status != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}

	if filter.Port != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("port = $%d", argIndex))
		args = append(args, *filter.Port)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM provision_runs %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, source, port, dry_run, status, started_at, completed_at,
			   frames_total, frames_failed, error_message, diagnostics
		FROM provision_runs %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, total, nil
}

// DeleteOldRuns removes runs started before the given time along with their frames
func (r *runRepository) DeleteOldRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoff := olderThan.UTC()

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM provision_frames
		WHERE run_id IN (SELECT id FROM provision_runs WHERE started_at < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old frames: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM provision_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Old runs deleted", zap.Int64("count", rowsAffected), zap.Time("older_than", cutoff))
	return rowsAffected, nil
}

func (r *runRepository) listFrames(ctx context.Context, runID uuid.UUID) ([]*model.FrameResult, error) {
	query := `
		SELECT id, run_id, sequence, record, command_code, hex,
			   status, error, duration_ms, created_at
		FROM provision_frames WHERE run_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer rows.Close()

	var frames []*model.FrameResult
	for rows.Next() {
		var (
			frame       model.FrameResult
			status      string
			commandCode int
		)
		if err := rows.Scan(
			&frame.ID, &frame.RunID, &frame.Sequence, &frame.Record, &commandCode,
			&frame.Hex, &status, &frame.Error, &frame.DurationMs, &frame.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frame.CommandCode = byte(commandCode)
		frame.Status = model.FrameStatus(status)
		frames = append(frames, &frame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frames: %w", err)
	}

	return frames, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run         model.Run
		status      string
		diagnostics string
	)
	if err := row.Scan(
		&run.ID, &run.Source, &run.Port, &run.DryRun, &status, &run.StartedAt,
		&run.CompletedAt, &run.FramesTotal, &run.FramesFailed, &run.ErrorMessage,
		&diagnostics,
	); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)

	if diagnostics != "" {
		if err := json.Unmarshal([]byte(diagnostics), &run.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
		}
	}

	return &run, nil
}

func encodeDiagnostics(diags []model.Diagnostic) (string, error) {
	if len(diags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(diags)
	if err != nil {
		return "", fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	return string(data), nil
}
