package domain

import (
	"database/sql"
	"time"
)

// Credential holds the Slack tokens authorizing calls on behalf of one
// principal in one workspace. There is at most one row per
// (principal_id, workspace_id); refresh mutates it in place and the engine
// never deletes it.
type Credential struct {
	PrincipalID  string         `json:"principal_id"`
	WorkspaceID  string         `json:"workspace_id"`
	AccessToken  string         `json:"-"`
	RefreshToken sql.NullString `json:"-"`
	// ExpiresAt is NULL for tokens Slack issued without rotation; those are
	// treated as non-expiring.
	ExpiresAt sql.NullTime `json:"expires_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Expired reports whether the access token has passed its expiry. A
// credential without an expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt.Valid && !c.ExpiresAt.Time.After(now)
}
