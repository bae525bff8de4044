package domain

import "context"

// CredentialRepository defines the interface for managing Credential data.
// It is a plain key-value table with a uniqueness invariant on the
// (principal, workspace) pair; no business logic and no internal retries.
type CredentialRepository interface {
	Get(ctx context.Context, principalID, workspaceID string) (*Credential, error)
	Upsert(ctx context.Context, cred *Credential) error
}
