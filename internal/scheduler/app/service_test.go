package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slacklater/slacklater/internal/scheduler/domain"
)

// --- Mocks ---

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.ScheduledMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledMessage), args.Error(1)
}

func (m *MockMessageRepository) FindDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.ScheduledMessage, error) {
	args := m.Called(ctx, dueTime, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledMessage), args.Error(1)
}

func (m *MockMessageRepository) Claim(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	args := m.Called(ctx, id, sentAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockMessageRepository) Cancel(ctx context.Context, id uuid.UUID, principalID string) (bool, error) {
	args := m.Called(ctx, id, principalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.ScheduledMessage, error) {
	args := m.Called(ctx, principalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledMessage), args.Error(1)
}

type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) EnsureValid(ctx context.Context, principalID, workspaceID string) (string, error) {
	args := m.Called(ctx, principalID, workspaceID)
	return args.String(0), args.Error(1)
}

type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) PostMessage(ctx context.Context, accessToken, channelID, text string) error {
	args := m.Called(ctx, accessToken, channelID, text)
	return args.Error(0)
}

// --- Test setup ---

type serviceTestComponents struct {
	service *SchedulerService
	repo    *MockMessageRepository
	tokens  *MockTokenProvider
	sender  *MockMessageSender
}

func setupServiceTest(t *testing.T) serviceTestComponents {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := new(MockMessageRepository)
	tokens := new(MockTokenProvider)
	sender := new(MockMessageSender)
	return serviceTestComponents{
		service: NewSchedulerService(repo, tokens, sender, logger),
		repo:    repo,
		tokens:  tokens,
		sender:  sender,
	}
}

func pendingMessage() *domain.ScheduledMessage {
	return domain.NewScheduledMessage("U123", "T456", "C789", "#general", "hello", time.Now().Add(-time.Second).UTC())
}

// --- Schedule ---

func TestSchedulerService_Schedule(t *testing.T) {
	ctx := context.Background()

	validInput := func() ScheduleInput {
		return ScheduleInput{
			PrincipalID:  "U123",
			WorkspaceID:  "T456",
			ChannelID:    "C789",
			ChannelLabel: "#general",
			Body:         "hello",
			DueAt:        time.Now().Add(time.Hour),
		}
	}

	t.Run("Valid", func(t *testing.T) {
		comps := setupServiceTest(t)
		comps.repo.On("Create", ctx, mock.MatchedBy(func(msg *domain.ScheduledMessage) bool {
			return msg.Status == domain.StatusPending && msg.PrincipalID == "U123" && msg.Body == "hello"
		})).Return(nil).Once()

		id, err := comps.service.Schedule(ctx, validInput())
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
		comps.repo.AssertExpectations(t)
	})

	t.Run("DueAtInPast", func(t *testing.T) {
		comps := setupServiceTest(t)
		in := validInput()
		in.DueAt = time.Now().Add(-time.Second)

		_, err := comps.service.Schedule(ctx, in)
		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "due_at", validationErr.Field)
		comps.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("EmptyBody", func(t *testing.T) {
		comps := setupServiceTest(t)
		in := validInput()
		in.Body = ""

		_, err := comps.service.Schedule(ctx, in)
		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "body", validationErr.Field)
	})

	t.Run("BodyOverLimit", func(t *testing.T) {
		comps := setupServiceTest(t)
		in := validInput()
		body := make([]rune, domain.MaxBodyLength+1)
		for i := range body {
			body[i] = 'x'
		}
		in.Body = string(body)

		_, err := comps.service.Schedule(ctx, in)
		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "body", validationErr.Field)
	})

	t.Run("MissingChannel", func(t *testing.T) {
		comps := setupServiceTest(t)
		in := validInput()
		in.ChannelID = ""

		_, err := comps.service.Schedule(ctx, in)
		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "channel_id", validationErr.Field)
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		comps := setupServiceTest(t)
		comps.repo.On("Create", ctx, mock.Anything).Return(nil).Twice()

		first, err := comps.service.Schedule(ctx, validInput())
		require.NoError(t, err)
		second, err := comps.service.Schedule(ctx, validInput())
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
}

// --- Deliver ---

func TestSchedulerService_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		comps.tokens.On("EnsureValid", ctx, "U123", "T456").Return("xoxe-token", nil).Once()
		comps.sender.On("PostMessage", ctx, "xoxe-token", "C789", "hello").Return(nil).Once()

		outcome, err := comps.service.Deliver(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, outcome)
		comps.repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
		comps.repo.AssertExpectations(t)
		comps.sender.AssertExpectations(t)
	})

	t.Run("LostClaimSkips", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(false, nil).Once()

		outcome, err := comps.service.Deliver(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSkipped, outcome)
		comps.tokens.AssertNotCalled(t, "EnsureValid", mock.Anything, mock.Anything, mock.Anything)
		comps.sender.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AuthErrorMarksFailed", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		comps.tokens.On("EnsureValid", ctx, "U123", "T456").
			Return("", errors.New("credential expired and no refresh token available")).Once()
		comps.repo.On("MarkFailed", ctx, msg.ID, mock.MatchedBy(func(reason string) bool {
			return reason != ""
		})).Return(nil).Once()

		outcome, err := comps.service.Deliver(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, outcome)
		comps.sender.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		comps.repo.AssertExpectations(t)
	})

	t.Run("SendErrorMarksFailed", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		comps.tokens.On("EnsureValid", ctx, "U123", "T456").Return("xoxe-token", nil).Once()
		comps.sender.On("PostMessage", ctx, "xoxe-token", "C789", "hello").
			Return(errors.New("slack chat.postMessage failed: channel_not_found")).Once()
		comps.repo.On("MarkFailed", ctx, msg.ID, "slack chat.postMessage failed: channel_not_found").Return(nil).Once()

		outcome, err := comps.service.Deliver(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, outcome)
		comps.repo.AssertExpectations(t)
	})

	t.Run("ClaimStorageErrorPropagates", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		dbErr := errors.New("connection lost")
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(false, dbErr).Once()

		_, err := comps.service.Deliver(ctx, msg)
		require.ErrorIs(t, err, dbErr)
		comps.tokens.AssertNotCalled(t, "EnsureValid", mock.Anything, mock.Anything, mock.Anything)
	})
}

// --- SendNow ---

func TestSchedulerService_SendNow(t *testing.T) {
	ctx := context.Background()

	t.Run("PendingMessageIsDelivered", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		comps.repo.On("GetByID", ctx, msg.ID).Return(msg, nil).Once()
		comps.repo.On("Claim", ctx, msg.ID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		comps.tokens.On("EnsureValid", ctx, "U123", "T456").Return("xoxe-token", nil).Once()
		comps.sender.On("PostMessage", ctx, "xoxe-token", "C789", "hello").Return(nil).Once()

		err := comps.service.SendNow(ctx, msg.ID)
		require.NoError(t, err)
		comps.sender.AssertNumberOfCalls(t, "PostMessage", 1)
	})

	t.Run("SecondCallIsNoOp", func(t *testing.T) {
		comps := setupServiceTest(t)
		msg := pendingMessage()
		msg.Status = domain.StatusSent
		msg.SentAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		comps.repo.On("GetByID", ctx, msg.ID).Return(msg, nil).Once()

		err := comps.service.SendNow(ctx, msg.ID)
		require.NoError(t, err)
		comps.repo.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
		comps.sender.AssertNotCalled(t, "PostMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownID", func(t *testing.T) {
		comps := setupServiceTest(t)
		id := uuid.New()
		comps.repo.On("GetByID", ctx, id).Return(nil, domain.ErrNotFound).Once()

		err := comps.service.SendNow(ctx, id)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// --- Cancel ---

func TestSchedulerService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnedPending", func(t *testing.T) {
		comps := setupServiceTest(t)
		id := uuid.New()
		comps.repo.On("Cancel", ctx, id, "U123").Return(true, nil).Once()

		cancelled, err := comps.service.Cancel(ctx, id, "U123")
		require.NoError(t, err)
		assert.True(t, cancelled)
	})

	t.Run("RepeatIsNoOp", func(t *testing.T) {
		comps := setupServiceTest(t)
		id := uuid.New()
		comps.repo.On("Cancel", ctx, id, "U123").Return(false, nil).Once()

		cancelled, err := comps.service.Cancel(ctx, id, "U123")
		require.NoError(t, err)
		assert.False(t, cancelled)
	})
}

// --- Stats ---

func TestSchedulerService_Stats(t *testing.T) {
	ctx := context.Background()
	comps := setupServiceTest(t)

	var msgs []*domain.ScheduledMessage
	addWithStatus := func(status domain.MessageStatus, n int) {
		for i := 0; i < n; i++ {
			msg := pendingMessage()
			msg.Status = status
			msgs = append(msgs, msg)
		}
	}
	addWithStatus(domain.StatusPending, 3)
	addWithStatus(domain.StatusSent, 2)
	addWithStatus(domain.StatusFailed, 1)
	addWithStatus(domain.StatusCancelled, 1)

	comps.repo.On("ListByPrincipal", ctx, "U123").Return(msgs, nil).Once()

	stats, err := comps.service.Stats(ctx, "U123")
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 7, Pending: 3, Sent: 2, Failed: 1, Cancelled: 1}, stats)
}
