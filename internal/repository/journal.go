package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adx-agent/backend/internal/model"
)

// DefaultListLimit bounds list queries when the caller gives no limit.
const DefaultListLimit = 100

// Journal records sandbox lifecycle events and command executions. It is an
// audit trail only: registries are never rebuilt from it.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a new Journal.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordSandboxEvent appends a lifecycle event.
func (j *Journal) RecordSandboxEvent(ctx context.Context, event *model.SandboxEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO sandbox_events (sandbox_id, event, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := j.db.ExecContext(ctx, query,
		event.SandboxID,
		event.Event,
		event.Status,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sandbox event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	event.ID = id

	return nil
}

// ListSandboxEvents returns the events of a sandbox in insertion order.
func (j *Journal) ListSandboxEvents(ctx context.Context, sandboxID string) ([]*model.SandboxEvent, error) {
	query := `
		SELECT id, sandbox_id, event, status, detail, created_at
		FROM sandbox_events
		WHERE sandbox_id = ?
		ORDER BY id ASC
	`

	rows, err := j.db.QueryContext(ctx, query, sandboxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sandbox events: %w", err)
	}
	defer rows.Close()

	var events []*model.SandboxEvent
	for rows.Next() {
		event := &model.SandboxEvent{}
		var detail sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.SandboxID,
			&event.Event,
			&event.Status,
			&detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sandbox event: %w", err)
		}

		if detail.Valid {
			event.Detail = detail.String
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sandbox events: %w", err)
	}

	return events, nil
}

// RecordExecution stores the result of a command execution.
func (j *Journal) RecordExecution(ctx context.Context, result *model.ExecResult) error {
	query := `
		INSERT INTO executions (id, sandbox_id, command, status, exit_code, stdout, stderr, execution_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		result.ExecutionID,
		result.SandboxID,
		result.Command,
		result.Status,
		result.ExitCode,
		result.Stdout,
		result.Stderr,
		result.ExecutionTime,
		result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	return nil
}

// GetExecution retrieves an execution by id.
func (j *Journal) GetExecution(ctx context.Context, id string) (*model.ExecResult, error) {
	query := `
		SELECT id, sandbox_id, command, status, exit_code, stdout, stderr, execution_time, created_at
		FROM executions
		WHERE id = ?
	`

	result, err := scanExecution(j.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.NewError(model.KindNotFound, "execution not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return result, nil
}

// ListExecutions returns the most recent executions, newest first. An empty
// sandboxID lists executions of every sandbox.
func (j *Journal) ListExecutions(ctx context.Context, sandboxID string, limit int) ([]*model.ExecResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, sandbox_id, command, status, exit_code, stdout, stderr, execution_time, created_at
		FROM executions
		WHERE (? = '' OR sandbox_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, query, sandboxID, sandboxID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var results []*model.ExecResult
	for rows.Next() {
		result, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*model.ExecResult, error) {
	result := &model.ExecResult{}
	var stdout, stderr sql.NullString

	err := row.Scan(
		&result.ExecutionID,
		&result.SandboxID,
		&result.Command,
		&result.Status,
		&result.ExitCode,
		&stdout,
		&stderr,
		&result.ExecutionTime,
		&result.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	result.Stdout = stdout.String
	result.Stderr = stderr.String
	return result, nil
}
