package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slacklater/slacklater/internal/scheduler/domain"
)

// Querier is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgScheduledMessageRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgScheduledMessageRepository(db Querier, logger *slog.Logger) *PgScheduledMessageRepository {
	return &PgScheduledMessageRepository{db: db, logger: logger}
}

const messageColumns = `id, principal_id, workspace_id, channel_id, channel_label, body, due_at, status, sent_at, last_error, created_at, updated_at`

func (r *PgScheduledMessageRepository) Create(ctx context.Context, msg *domain.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages (id, principal_id, workspace_id, channel_id, channel_label, body, due_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.PrincipalID, msg.WorkspaceID, msg.ChannelID, msg.ChannelLabel,
		msg.Body, msg.DueAt, msg.Status, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating scheduled message", "error", err, "message_id", msg.ID)
		return err
	}
	r.logger.InfoContext(ctx, "Scheduled message created", "message_id", msg.ID, "due_at", msg.DueAt)
	return nil
}

func (r *PgScheduledMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM scheduled_messages WHERE id = $1`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting scheduled message by ID", "error", err, "message_id", id)
		return nil, err
	}
	return msg, nil
}

func (r *PgScheduledMessageRepository) FindDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.ScheduledMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE status = $1 AND due_at <= $2
		ORDER BY due_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.StatusPending, dueTime, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error finding due messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.ScheduledMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning due message row", "error", err)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating due message rows", "error", err)
		return nil, err
	}

	if len(msgs) == 0 {
		return nil, domain.ErrNoDueMessages
	}
	return msgs, nil
}

// Claim is the single concurrency guard between the poller, force-sends and
// cancellations: the WHERE status clause means only one of two racing
// writers observes a matched row.
func (r *PgScheduledMessageRepository) Claim(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	query := `
		UPDATE scheduled_messages
		SET status = $1, sent_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusSent, sentAt, time.Now().UTC(), id, domain.StatusPending)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming scheduled message", "error", err, "message_id", id)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgScheduledMessageRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE scheduled_messages
		SET status = $1, last_error = $2, sent_at = NULL, updated_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusFailed, reason, time.Now().UTC(), id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking scheduled message failed", "error", err, "message_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Scheduled message not found for failure update", "message_id", id)
		return domain.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Scheduled message marked failed", "message_id", id, "reason", reason)
	return nil
}

func (r *PgScheduledMessageRepository) Cancel(ctx context.Context, id uuid.UUID, principalID string) (bool, error) {
	query := `
		UPDATE scheduled_messages
		SET status = $1, updated_at = $2
		WHERE id = $3 AND principal_id = $4 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusCancelled, time.Now().UTC(), id, principalID, domain.StatusPending)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error cancelling scheduled message", "error", err, "message_id", id)
		return false, err
	}
	cancelled := tag.RowsAffected() == 1
	if cancelled {
		r.logger.InfoContext(ctx, "Scheduled message cancelled", "message_id", id, "principal_id", principalID)
	}
	return cancelled, nil
}

func (r *PgScheduledMessageRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.ScheduledMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE principal_id = $1
		ORDER BY due_at DESC
	`
	rows, err := r.db.Query(ctx, query, principalID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing scheduled messages", "error", err, "principal_id", principalID)
		return nil, err
	}
	defer rows.Close()

	msgs := []*domain.ScheduledMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning scheduled message row during list", "error", err)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating scheduled message rows during list", "error", err)
		return nil, err
	}
	return msgs, nil
}

func scanMessage(row pgx.Row) (*domain.ScheduledMessage, error) {
	msg := &domain.ScheduledMessage{}
	err := row.Scan(
		&msg.ID, &msg.PrincipalID, &msg.WorkspaceID, &msg.ChannelID, &msg.ChannelLabel,
		&msg.Body, &msg.DueAt, &msg.Status, &msg.SentAt, &msg.LastError,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
