package reminders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/store"
)

// Store persists reminders and todos in the shared SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store on s. Migrations have already been applied by
// store.Open.
func NewStore(s *store.Store) *Store {
	return &Store{db: s.DB()}
}

// Create stores a pending reminder and returns it with a fresh id.
func (s *Store) Create(ctx context.Context, msg envelope.InboundMessage, task string, at time.Time) (Reminder, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return Reminder{}, errors.New("reminders: task must not be empty")
	}
	r := Reminder{
		ID:       uuid.New(),
		UserID:   msg.UserID,
		ChatID:   msg.ChatID,
		Platform: msg.Platform,
		RemindAt: at,
		Task:     task,
		Status:   StatusPending,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, user_id, chat_id, platform, remind_at, task, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID.String(), r.UserID, r.ChatID, string(r.Platform), at.Unix(), r.Task, string(r.Status), time.Now().UTC())
	if err != nil {
		return Reminder{}, fmt.Errorf("reminders: create: %w", err)
	}
	return r, nil
}

// Due returns pending reminders with remind_at <= now whose retry time has
// passed, oldest first, at most limit rows.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, chat_id, platform, remind_at, task, status, attempts
		FROM reminders
		WHERE status = ? AND remind_at <= ? AND next_attempt_at <= ?
		ORDER BY remind_at, created_at
		LIMIT ?
	`, string(StatusPending), now.Unix(), now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: query due: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r                    Reminder
			id, platform, status string
			at                   int64
		)
		if err := rows.Scan(&id, &r.UserID, &r.ChatID, &platform, &at, &r.Task, &status, &r.Attempts); err != nil {
			return nil, fmt.Errorf("reminders: scan due: %w", err)
		}
		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("reminders: bad id %q: %w", id, err)
		}
		r.Platform = envelope.Platform(platform)
		r.Status = Status(status)
		r.RemindAt = time.Unix(at, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSent flips a reminder to sent. Marking an already-sent reminder is a
// no-op; an unknown id is ErrNotFound.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, "mark sent", `
		UPDATE reminders SET status = ?, sent_at = COALESCE(sent_at, ?) WHERE id = ?
	`, string(StatusSent), at.UTC(), id.String())
}

// RecordFailure counts a failed delivery and hides the reminder from Due
// until retryAt.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, retryAt time.Time) error {
	return s.update(ctx, "record failure", `
		UPDATE reminders SET attempts = attempts + 1, next_attempt_at = ?
		WHERE id = ? AND status = ?
	`, retryAt.Unix(), id.String(), string(StatusPending))
}

// MarkFailed gives up on a pending reminder.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, "mark failed", `
		UPDATE reminders SET status = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?
	`, string(StatusFailed), id.String(), string(StatusPending))
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reminders: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reminders: %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Status returns the delivery state and failed attempt count of id.
func (s *Store) Status(ctx context.Context, id uuid.UUID) (Status, int, error) {
	var (
		status   string
		attempts int
	)
	err := s.db.QueryRowContext(ctx, `SELECT status, attempts FROM reminders WHERE id = ?`, id.String()).Scan(&status, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("reminders: status: %w", err)
	}
	return Status(status), attempts, nil
}

// AddTodo stores a new open todo for userID.
func (s *Store) AddTodo(ctx context.Context, userID, task string) (Todo, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return Todo{}, errors.New("reminders: todo must not be empty")
	}
	t := Todo{ID: uuid.New(), UserID: userID, Task: task, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (id, user_id, task, done, created_at) VALUES (?, ?, ?, 0, ?)
	`, t.ID.String(), t.UserID, t.Task, t.CreatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("reminders: add todo: %w", err)
	}
	return t, nil
}

// OpenTodos lists userID's open todos in creation order. The 1-based
// position in this list is the index /done accepts.
func (s *Store) OpenTodos(ctx context.Context, userID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, created_at FROM todos
		WHERE user_id = ? AND done = 0
		ORDER BY created_at, rowid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("reminders: list todos: %w", err)
	}
	defer rows.Close()

	var out []Todo
	for rows.Next() {
		var (
			t  Todo
			id string
		)
		if err := rows.Scan(&id, &t.Task, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan todo: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("reminders: bad todo id %q: %w", id, err)
		}
		t.UserID = userID
		out = append(out, t)
	}
	return out, rows.Err()
}

// CompleteTodo marks the n-th (1-based) open todo of userID as done and
// returns it.
func (s *Store) CompleteTodo(ctx context.Context, userID string, n int) (Todo, error) {
	open, err := s.OpenTodos(ctx, userID)
	if err != nil {
		return Todo{}, err
	}
	if n < 1 || n > len(open) {
		return Todo{}, ErrNotFound
	}
	t := open[n-1]
	if _, err := s.db.ExecContext(ctx, `UPDATE todos SET done = 1 WHERE id = ?`, t.ID.String()); err != nil {
		return Todo{}, fmt.Errorf("reminders: complete todo: %w", err)
	}
	t.Done = true
	return t, nil
}

// PendingCount returns the number of reminders not yet delivered.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders WHERE status = ?`, string(StatusPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reminders: count pending: %w", err)
	}
	return n, nil
}
