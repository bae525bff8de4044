package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MessageStatus represents the lifecycle state of a scheduled message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"   // Waiting for its due time
	StatusSent      MessageStatus = "sent"      // Delivered to Slack (terminal)
	StatusFailed    MessageStatus = "failed"    // Delivery abandoned (terminal)
	StatusCancelled MessageStatus = "cancelled" // Withdrawn by the owner before pickup (terminal)
)

// MaxBodyLength is Slack's own limit for chat.postMessage text. Messages
// over the limit are rejected at intake, never truncated.
const MaxBodyLength = 4000

// ScheduledMessage represents a single delivery intent: one Slack message to
// be posted on behalf of a principal once its due time arrives.
type ScheduledMessage struct {
	ID           uuid.UUID      `json:"id"`
	PrincipalID  string         `json:"principal_id"` // Slack user ID of the owner
	WorkspaceID  string         `json:"workspace_id"` // Slack team ID
	ChannelID    string         `json:"channel_id"`
	ChannelLabel string         `json:"channel_label"` // Display name snapshot taken at creation
	Body         string         `json:"body"`
	DueAt        time.Time      `json:"due_at"`
	Status       MessageStatus  `json:"status"`
	SentAt       sql.NullTime   `json:"sent_at,omitempty"`
	LastError    sql.NullString `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewScheduledMessage creates a pending ScheduledMessage. Input validation
// is the caller's job; this only fills in the bookkeeping fields.
func NewScheduledMessage(principalID, workspaceID, channelID, channelLabel, body string, dueAt time.Time) *ScheduledMessage {
	now := time.Now().UTC()
	return &ScheduledMessage{
		ID:           uuid.New(),
		PrincipalID:  principalID,
		WorkspaceID:  workspaceID,
		ChannelID:    channelID,
		ChannelLabel: channelLabel,
		Body:         body,
		DueAt:        dueAt,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Terminal reports whether the message has reached a final state. No
// transition ever leaves a terminal state.
func (m *ScheduledMessage) Terminal() bool {
	return m.Status != StatusPending
}
