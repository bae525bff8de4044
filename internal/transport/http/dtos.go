package http

import "time"

// --- Request DTOs ---

// ScheduleMessageRequestDTO is used for scheduling a new message.
type ScheduleMessageRequestDTO struct {
	ChannelID    string    `json:"channel_id" validate:"required,max=64"`
	ChannelLabel string    `json:"channel_label" validate:"max=256"`
	Body         string    `json:"body" validate:"required,max=4000"`
	PostAt       time.Time `json:"post_at" validate:"required"` // Must be in the future
}

// --- Response DTOs ---

// ScheduledMessageDTO represents a scheduled message in API responses.
type ScheduledMessageDTO struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channel_id"`
	ChannelLabel string     `json:"channel_label,omitempty"`
	Body         string     `json:"body"`
	PostAt       time.Time  `json:"post_at"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// ScheduleMessageResponseDTO is returned after a successful intake.
type ScheduleMessageResponseDTO struct {
	ID string `json:"id"`
}

// ListMessagesResponseDTO is the response for listing scheduled messages.
type ListMessagesResponseDTO struct {
	Messages []ScheduledMessageDTO `json:"messages"`
}

// StatsResponseDTO aggregates the caller's messages by status.
type StatsResponseDTO struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// ConnectionStatusResponseDTO reports whether the stored credential is still
// accepted by Slack.
type ConnectionStatusResponseDTO struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
}
