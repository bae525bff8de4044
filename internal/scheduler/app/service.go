package app

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/slacklater/slacklater/internal/scheduler/domain"
)

// TokenProvider yields a currently-valid access token for a principal, or an
// auth error that makes delivery impossible.
type TokenProvider interface {
	EnsureValid(ctx context.Context, principalID, workspaceID string) (string, error)
}

// MessageSender performs the external Slack send.
type MessageSender interface {
	PostMessage(ctx context.Context, accessToken, channelID, text string) error
}

// DeliveryOutcome classifies what Deliver did with a message.
type DeliveryOutcome string

const (
	OutcomeSent    DeliveryOutcome = "sent"
	OutcomeFailed  DeliveryOutcome = "failed"
	OutcomeSkipped DeliveryOutcome = "skipped" // Lost the claim race; someone else handled it
)

// ScheduleInput carries a new delivery intent from the caller.
type ScheduleInput struct {
	PrincipalID  string
	WorkspaceID  string
	ChannelID    string
	ChannelLabel string
	Body         string
	DueAt        time.Time
}

// Stats is a per-principal aggregation over all scheduled messages.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// SchedulerService is the narrow interface the rest of the system uses to
// talk to the delivery engine: intake, listing, cancellation, force-send and
// the shared delivery path the poller drives.
type SchedulerService struct {
	messages domain.ScheduledMessageRepository
	tokens   TokenProvider
	sender   MessageSender
	logger   *slog.Logger
}

func NewSchedulerService(
	messages domain.ScheduledMessageRepository,
	tokens TokenProvider,
	sender MessageSender,
	logger *slog.Logger,
) *SchedulerService {
	return &SchedulerService{
		messages: messages,
		tokens:   tokens,
		sender:   sender,
		logger:   logger,
	}
}

// Schedule validates and records a delivery intent, returning its ID.
func (s *SchedulerService) Schedule(ctx context.Context, in ScheduleInput) (uuid.UUID, error) {
	if in.ChannelID == "" {
		return uuid.Nil, &domain.ValidationError{Field: "channel_id", Reason: "must not be empty"}
	}
	if in.Body == "" {
		return uuid.Nil, &domain.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(in.Body) > domain.MaxBodyLength {
		return uuid.Nil, &domain.ValidationError{Field: "body", Reason: "exceeds 4000 characters"}
	}
	if !in.DueAt.After(time.Now()) {
		return uuid.Nil, &domain.ValidationError{Field: "due_at", Reason: "must be in the future"}
	}

	msg := domain.NewScheduledMessage(in.PrincipalID, in.WorkspaceID, in.ChannelID, in.ChannelLabel, in.Body, in.DueAt.UTC())
	if err := s.messages.Create(ctx, msg); err != nil {
		return uuid.Nil, err
	}
	return msg.ID, nil
}

// List returns the principal's messages, newest due time first.
func (s *SchedulerService) List(ctx context.Context, principalID string) ([]*domain.ScheduledMessage, error) {
	return s.messages.ListByPrincipal(ctx, principalID)
}

// Cancel withdraws a pending message owned by the principal. It reports
// false when the message is missing, foreign, or already processed, so a
// repeated cancel is a harmless no-op.
func (s *SchedulerService) Cancel(ctx context.Context, id uuid.UUID, principalID string) (bool, error) {
	return s.messages.Cancel(ctx, id, principalID)
}

// SendNow executes a message immediately through the same per-record path
// the poller uses. A second call observes the non-pending claim and no-ops.
// Delivery failures are recorded on the row, not returned.
func (s *SchedulerService) SendNow(ctx context.Context, id uuid.UUID) error {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.Terminal() {
		s.logger.InfoContext(ctx, "SendNow on already-processed message; nothing to do", "message_id", id, "status", msg.Status)
		return nil
	}
	_, err = s.Deliver(ctx, msg)
	return err
}

// Stats aggregates the principal's messages by status.
func (s *SchedulerService) Stats(ctx context.Context, principalID string) (Stats, error) {
	msgs, err := s.messages.ListByPrincipal(ctx, principalID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(msgs)}
	for _, msg := range msgs {
		switch msg.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusSent:
			stats.Sent++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// Deliver drives one message through claim, token resolution and the Slack
// send. The claim is written first so a concurrent tick or force-send cannot
// re-process the message while the network call is in flight; auth or send
// failures overwrite it with a terminal failure. Only storage errors are
// returned — delivery failures are terminal per message and recorded on the
// row.
func (s *SchedulerService) Deliver(ctx context.Context, msg *domain.ScheduledMessage) (DeliveryOutcome, error) {
	claimed, err := s.messages.Claim(ctx, msg.ID, time.Now().UTC())
	if err != nil {
		return OutcomeSkipped, err
	}
	if !claimed {
		s.logger.InfoContext(ctx, "Message no longer pending; skipping delivery", "message_id", msg.ID)
		return OutcomeSkipped, nil
	}

	accessToken, err := s.tokens.EnsureValid(ctx, msg.PrincipalID, msg.WorkspaceID)
	if err != nil {
		s.logger.WarnContext(ctx, "Delivery abandoned: no valid credential", "message_id", msg.ID, "error", err)
		s.markFailed(ctx, msg.ID, err.Error())
		return OutcomeFailed, nil
	}

	if err := s.sender.PostMessage(ctx, accessToken, msg.ChannelID, msg.Body); err != nil {
		s.logger.WarnContext(ctx, "Slack send failed", "message_id", msg.ID, "channel_id", msg.ChannelID, "error", err)
		s.markFailed(ctx, msg.ID, err.Error())
		return OutcomeFailed, nil
	}

	// The claim already wrote the terminal 'sent' status and sent_at.
	s.logger.InfoContext(ctx, "Message delivered", "message_id", msg.ID, "channel_id", msg.ChannelID)
	return OutcomeSent, nil
}

func (s *SchedulerService) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if err := s.messages.MarkFailed(ctx, id, reason); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record delivery failure", "message_id", id, "error", err)
	}
}
