package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slacklater/slacklater/internal/auth/domain"
)

// Querier is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgCredentialRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgCredentialRepository(db Querier, logger *slog.Logger) *PgCredentialRepository {
	return &PgCredentialRepository{db: db, logger: logger}
}

func (r *PgCredentialRepository) Get(ctx context.Context, principalID, workspaceID string) (*domain.Credential, error) {
	query := `
		SELECT principal_id, workspace_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM slack_credentials
		WHERE principal_id = $1 AND workspace_id = $2
	`
	cred := &domain.Credential{}
	err := r.db.QueryRow(ctx, query, principalID, workspaceID).Scan(
		&cred.PrincipalID, &cred.WorkspaceID, &cred.AccessToken,
		&cred.RefreshToken, &cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotAuthorized
		}
		r.logger.ErrorContext(ctx, "Error getting credential", "error", err, "principal_id", principalID, "workspace_id", workspaceID)
		return nil, err
	}
	return cred, nil
}

func (r *PgCredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	query := `
		INSERT INTO slack_credentials (principal_id, workspace_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (principal_id, workspace_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		cred.PrincipalID, cred.WorkspaceID, cred.AccessToken,
		cred.RefreshToken, cred.ExpiresAt, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting credential", "error", err, "principal_id", cred.PrincipalID, "workspace_id", cred.WorkspaceID)
		return err
	}
	r.logger.InfoContext(ctx, "Credential upserted", "principal_id", cred.PrincipalID, "workspace_id", cred.WorkspaceID)
	return nil
}
