package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/slacklater/slacklater/internal/scheduler/app"
	"github.com/slacklater/slacklater/internal/scheduler/domain"
	"github.com/slacklater/slacklater/internal/transport/http/middleware"
)

// LivenessProber checks whether an access token is still accepted by Slack.
type LivenessProber interface {
	AuthTest(ctx context.Context, accessToken string) error
}

// MessageHandler exposes the scheduler engine over HTTP. Everything here is
// thin request/response glue; the engine semantics live in the app packages.
type MessageHandler struct {
	scheduler *app.SchedulerService
	tokens    app.TokenProvider
	prober    LivenessProber
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewMessageHandler(
	scheduler *app.SchedulerService,
	tokens app.TokenProvider,
	prober LivenessProber,
	logger *slog.Logger,
	validate *validator.Validate,
) *MessageHandler {
	return &MessageHandler{
		scheduler: scheduler,
		tokens:    tokens,
		prober:    prober,
		logger:    logger,
		validate:  validate,
	}
}

// RegisterRoutes mounts the message routes on the given router. The router
// is expected to already carry the session auth middleware.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.ScheduleMessage)
	r.Get("/messages", h.ListMessages)
	r.Get("/messages/stats", h.MessageStats)
	r.Delete("/messages/{messageID}", h.CancelMessage)
	r.Post("/messages/{messageID}/send", h.SendMessageNow)
	r.Get("/connection", h.ConnectionStatus)
}

func (h *MessageHandler) ScheduleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "Authentication details not found", http.StatusUnauthorized)
		return
	}

	var reqDTO ScheduleMessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body for ScheduleMessage", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		h.logger.WarnContext(ctx, "Validation failed for ScheduleMessage", "error", err)
		http.Error(w, fmt.Sprintf("Validation error: %s", err.Error()), http.StatusBadRequest)
		return
	}

	id, err := h.scheduler.Schedule(ctx, app.ScheduleInput{
		PrincipalID:  principal.PrincipalID,
		WorkspaceID:  principal.WorkspaceID,
		ChannelID:    reqDTO.ChannelID,
		ChannelLabel: reqDTO.ChannelLabel,
		Body:         reqDTO.Body,
		DueAt:        reqDTO.PostAt,
	})
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			http.Error(w, validationErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "Failed to schedule message", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, ScheduleMessageResponseDTO{ID: id.String()})
}

func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "Authentication details not found", http.StatusUnauthorized)
		return
	}

	msgs, err := h.scheduler.List(ctx, principal.PrincipalID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list messages", "error", err, "principal_id", principal.PrincipalID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := ListMessagesResponseDTO{Messages: make([]ScheduledMessageDTO, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, toMessageDTO(msg))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) MessageStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "Authentication details not found", http.StatusUnauthorized)
		return
	}

	stats, err := h.scheduler.Stats(ctx, principal.PrincipalID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to compute stats", "error", err, "principal_id", principal.PrincipalID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponseDTO{
		Total:     stats.Total,
		Pending:   stats.Pending,
		Sent:      stats.Sent,
		Failed:    stats.Failed,
		Cancelled: stats.Cancelled,
	})
}

func (h *MessageHandler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "Authentication details not found", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	cancelled, err := h.scheduler.Cancel(ctx, id, principal.PrincipalID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to cancel message", "error", err, "message_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, "Message not found or already processed", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) SendMessageNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	if err := h.scheduler.SendNow(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "Failed to force-send message", "error", err, "message_id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *MessageHandler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "Authentication details not found", http.StatusUnauthorized)
		return
	}

	accessToken, err := h.tokens.EnsureValid(ctx, principal.PrincipalID, principal.WorkspaceID)
	if err != nil {
		writeJSON(w, http.StatusOK, ConnectionStatusResponseDTO{Connected: false, Detail: err.Error()})
		return
	}
	if err := h.prober.AuthTest(ctx, accessToken); err != nil {
		writeJSON(w, http.StatusOK, ConnectionStatusResponseDTO{Connected: false, Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ConnectionStatusResponseDTO{Connected: true})
}

func toMessageDTO(msg *domain.ScheduledMessage) ScheduledMessageDTO {
	dto := ScheduledMessageDTO{
		ID:           msg.ID.String(),
		ChannelID:    msg.ChannelID,
		ChannelLabel: msg.ChannelLabel,
		Body:         msg.Body,
		PostAt:       msg.DueAt,
		Status:       string(msg.Status),
		CreatedAt:    msg.CreatedAt,
	}
	if msg.SentAt.Valid {
		sentAt := msg.SentAt.Time
		dto.SentAt = &sentAt
	}
	if msg.LastError.Valid {
		dto.Error = msg.LastError.String
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
