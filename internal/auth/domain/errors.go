package domain

import "errors"

var (
	// ErrNotAuthorized indicates the principal has no stored credential for
	// the workspace; they never completed the OAuth install or it was revoked.
	ErrNotAuthorized = errors.New("principal has not authorized the workspace")
	// ErrExpiredNoRefresh indicates the stored access token is expired and
	// no refresh token is available to replace it.
	ErrExpiredNoRefresh = errors.New("credential expired and no refresh token available")
)
