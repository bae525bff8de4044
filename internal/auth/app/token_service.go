package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slacklater/slacklater/internal/auth/domain"
	"github.com/slacklater/slacklater/internal/slackapi"
)

// TokenRefresher is the slice of the Slack client the TokenService needs.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*slackapi.TokenResponse, error)
}

// TokenService mediates access to credentials: callers always receive a
// currently-valid access token, with expired ones refreshed and persisted
// transparently.
type TokenService struct {
	creds     domain.CredentialRepository
	refresher TokenRefresher
	logger    *slog.Logger

	// Per-(principal, workspace) locks serialize refresh so a force-send
	// racing the poller cannot issue two refresh calls and have one
	// invalidate the other's rotated refresh token.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewTokenService(creds domain.CredentialRepository, refresher TokenRefresher, logger *slog.Logger) *TokenService {
	return &TokenService{
		creds:     creds,
		refresher: refresher,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// EnsureValid returns an access token usable right now for the principal in
// the workspace, refreshing and persisting a new one if the stored token has
// expired. On any error the caller must not attempt delivery.
func (s *TokenService) EnsureValid(ctx context.Context, principalID, workspaceID string) (string, error) {
	cred, err := s.creds.Get(ctx, principalID, workspaceID)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if !cred.Expired(now) {
		return cred.AccessToken, nil
	}

	lock := s.lockFor(principalID, workspaceID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have refreshed while
	// we waited.
	cred, err = s.creds.Get(ctx, principalID, workspaceID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(now) {
		return cred.AccessToken, nil
	}

	if !cred.RefreshToken.Valid || cred.RefreshToken.String == "" {
		s.logger.WarnContext(ctx, "Credential expired with no refresh token", "principal_id", principalID, "workspace_id", workspaceID)
		return "", domain.ErrExpiredNoRefresh
	}

	s.logger.InfoContext(ctx, "Refreshing expired access token", "principal_id", principalID, "workspace_id", workspaceID)
	token, err := s.refresher.RefreshAccessToken(ctx, cred.RefreshToken.String)
	if err != nil {
		s.logger.ErrorContext(ctx, "Token refresh failed", "error", err, "principal_id", principalID, "workspace_id", workspaceID)
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	cred.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cred.RefreshToken = sql.NullString{String: token.RefreshToken, Valid: true}
	}
	if token.ExpiresIn > 0 {
		cred.ExpiresAt = sql.NullTime{Time: now.Add(token.ExpiresIn), Valid: true}
	} else {
		cred.ExpiresAt = sql.NullTime{}
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	return cred.AccessToken, nil
}

func (s *TokenService) lockFor(principalID, workspaceID string) *sync.Mutex {
	key := principalID + "|" + workspaceID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
