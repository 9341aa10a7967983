package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/lib/pq"
)

// PostgresTaskStore reads the tasks table owned by the CRUD layer.
type PostgresTaskStore struct {
	db *sql.DB
}

func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

func (s *PostgresTaskStore) FetchOverdue(ctx context.Context, cutoff time.Time, statuses []string, limit, offset int) ([]types.WorkItem, error) {
	query := `
		SELECT id, title, status, owner_id, due_date
		FROM tasks
		WHERE due_date < $1 AND status = ANY($2)
		ORDER BY due_date ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff, pq.Array(statuses), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch overdue tasks: %w", err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *PostgresTaskStore) FindByID(ctx context.Context, id string) (*types.WorkItem, error) {
	item, err := scanWorkItem(s.db.QueryRowContext(ctx, `
		SELECT id, title, status, owner_id, due_date
		FROM tasks
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	return item, nil
}

// scanWorkItem tolerates tasks without a due date; DueAt stays zero for them.
func scanWorkItem(row rowScanner) (*types.WorkItem, error) {
	var (
		item  types.WorkItem
		dueAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Status, &item.OwnerID, &dueAt); err != nil {
		return nil, err
	}
	item.DueAt = dueAt.Time
	return &item, nil
}
