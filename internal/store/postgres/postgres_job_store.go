package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

const jobColumns = `id, kind, payload, status, attempts_made, max_attempts,
		       backoff_type, backoff_base_ms, priority, available_at,
		       last_error, locked_by, created_at, updated_at, finished_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{
		db: db,
	}
}

func (s *PostgresJobStore) Insert(ctx context.Context, job *types.Job) (bool, error) {
	// A conflicting id only takes the new values when the existing job is terminal.
	query := `
		INSERT INTO taskfire.jobs (
			id,
			kind,
			payload,
			status,
			attempts_made,
			max_attempts,
			backoff_type,
			backoff_base_ms,
			priority,
			available_at,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			payload = EXCLUDED.payload,
			status = EXCLUDED.status,
			attempts_made = 0,
			max_attempts = EXCLUDED.max_attempts,
			backoff_type = EXCLUDED.backoff_type,
			backoff_base_ms = EXCLUDED.backoff_base_ms,
			priority = EXCLUDED.priority,
			available_at = EXCLUDED.available_at,
			last_error = NULL,
			locked_by = NULL,
			locked_at = NULL,
			finished_at = NULL,
			updated_at = now()
		WHERE taskfire.jobs.status IN ($10, $11)
		RETURNING id
	`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		job.ID,
		job.Kind,
		[]byte(job.Payload),
		state.StatusPending,
		job.MaxAttempts,
		job.Backoff.Type,
		job.Backoff.Base.Milliseconds(),
		job.Priority,
		job.AvailableAt,
		state.StatusCompleted,
		state.StatusFailed,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return true, nil
}

func (s *PostgresJobStore) Claim(ctx context.Context, workerID string, now time.Time) (*types.Job, error) {
	query := `
		UPDATE taskfire.jobs
		SET status = $1,
		    locked_by = $2,
		    locked_at = $3,
		    updated_at = $3
		WHERE id = (
			SELECT id FROM taskfire.jobs
			WHERE status = $4 AND available_at <= $3
			ORDER BY priority DESC, available_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := s.db.QueryRowContext(ctx, query, state.StatusActive, workerID, now, state.StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) Complete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE taskfire.jobs
		SET status = $1,
		    locked_by = NULL,
		    locked_at = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $2 AND status = $3
	`, state.StatusCompleted, id, state.StatusActive)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return expectOneRow(res, "complete", id)
}

func (s *PostgresJobStore) Retry(ctx context.Context, id string, attempts int, availableAt time.Time, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE taskfire.jobs
		SET status = $1,
		    attempts_made = $2,
		    available_at = $3,
		    last_error = $4,
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = now()
		WHERE id = $5 AND status = $6
	`, state.StatusPending, attempts, availableAt, errMsg, id, state.StatusActive)
	if err != nil {
		return fmt.Errorf("retry job %s: %w", id, err)
	}
	return expectOneRow(res, "retry", id)
}

func (s *PostgresJobStore) Fail(ctx context.Context, id string, attempts int, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE taskfire.jobs
		SET status = $1,
		    attempts_made = $2,
		    last_error = $3,
		    locked_by = NULL,
		    locked_at = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $4 AND status = $5
	`, state.StatusFailed, attempts, errMsg, id, state.StatusActive)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return expectOneRow(res, "fail", id)
}

func (s *PostgresJobStore) FindByID(ctx context.Context, id string) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM taskfire.jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresJobStore) List(ctx context.Context, page, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := "1=1"
	args := []any{}
	if status != "" {
		where += " AND status = $1"
		args = append(args, status)
	}

	var totalItems int
	countQuery := `SELECT COUNT(*) FROM taskfire.jobs WHERE ` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	selectQuery := `SELECT ` + jobColumns + ` FROM taskfire.jobs WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (s *PostgresJobStore) CountByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM taskfire.jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	return result, rows.Err()
}

func (s *PostgresJobStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE taskfire.jobs
		SET status = $1,
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = now()
		WHERE status = $2 AND locked_at < $3
	`, state.StatusPending, state.StatusActive, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job        types.Job
		payload    []byte
		baseMs     int64
		lastError  sql.NullString
		lockedBy   sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&payload,
		&job.Status,
		&job.AttemptsMade,
		&job.MaxAttempts,
		&job.Backoff.Type,
		&baseMs,
		&job.Priority,
		&job.AvailableAt,
		&lastError,
		&lockedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	job.Payload = payload
	job.Backoff.Base = time.Duration(baseMs) * time.Millisecond
	job.LastError = lastError.String
	job.LockedBy = lockedBy.String
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

// expectOneRow turns a zero-row status update into ErrInvalidTransition:
// the job is missing or not active.
func expectOneRow(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s job %s: %w", op, id, store.ErrInvalidTransition)
	}
	return nil
}
