package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/loopyluu007/anime-ai/internal/model"
)

// PostgresStore implements TaskStore on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const taskColumns = `id, owner_id, conversation_id, type, status, progress, current_step,
params, result, error_message, created_at, updated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, task *model.Task) error {
	query := `
INSERT INTO tasks (` + taskColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err := s.pool.Exec(ctx, query,
		task.ID,
		task.OwnerID,
		nullableString(task.ConversationID),
		task.Type,
		task.Status,
		task.Progress,
		task.CurrentStep,
		[]byte(task.Params),
		nullableBytes(task.Result),
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrTaskExists
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1;`
	return scanTask(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*model.Task, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE owner_id = $1;`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	start, end := offset(page, pageSize)
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := s.pool.Query(ctx, query, ownerID, end-start, start)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

// Update locks the row for the duration of mutate.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate MutateFunc) (*model.Task, error) {
	var updated *model.Task

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE;`
		task, err := scanTask(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		if err := mutate(task); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
UPDATE tasks
SET status = $2,
    progress = $3,
    current_step = $4,
    result = $5,
    error_message = $6,
    updated_at = $7,
    completed_at = $8
WHERE id = $1;
`,
			task.ID,
			task.Status,
			task.Progress,
			task.CurrentStep,
			nullableBytes(task.Result),
			task.Error,
			task.UpdatedAt,
			task.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		task           model.Task
		conversationID *string
		params, result []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&conversationID,
		&task.Type,
		&task.Status,
		&task.Progress,
		&task.CurrentStep,
		&params,
		&result,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if conversationID != nil {
		task.ConversationID = *conversationID
	}
	task.Params = params
	if len(result) > 0 {
		task.Result = result
	}
	return &task, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
