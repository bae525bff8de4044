package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduledMessageRepository defines the interface for managing
// ScheduledMessage data. All mutations are single-record, single-statement
// updates; the conditional ones (Claim, Cancel) are the concurrency guard
// between the poller, force-sends, and cancellations.
type ScheduledMessageRepository interface {
	Create(ctx context.Context, msg *ScheduledMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledMessage, error)

	// FindDue returns pending messages with due_at <= dueTime, earliest due
	// first so worst-case staleness is bounded. Returns ErrNoDueMessages
	// when nothing is due.
	FindDue(ctx context.Context, dueTime time.Time, limit int) ([]*ScheduledMessage, error)

	// Claim atomically flips a pending message to 'sent' and stamps
	// sent_at. It reports false when the message was no longer pending, in
	// which case the caller must not deliver. Exactly one of two racing
	// claimers observes true.
	Claim(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)

	// MarkFailed overwrites a provisional claim with a terminal failure,
	// recording the diagnostic and clearing sent_at.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// Cancel flips a pending message to 'cancelled' if the principal owns
	// it. Reports false when the message is missing, foreign, or already
	// processed.
	Cancel(ctx context.Context, id uuid.UUID, principalID string) (bool, error)

	// ListByPrincipal returns all messages owned by the principal, newest
	// due time first.
	ListByPrincipal(ctx context.Context, principalID string) ([]*ScheduledMessage, error)
}
