package authkit

import "errors"

var (
	// ErrUnsupportedProvider indicates a provider identifier outside the supported set.
	ErrUnsupportedProvider = errors.New("auth.unsupported_provider")
	// ErrIncompleteProviderIdentity indicates the provider payload lacked a subject identifier.
	ErrIncompleteProviderIdentity = errors.New("auth.incomplete_provider_identity")
	// ErrRevokedToken indicates a structurally valid token that has been blacklisted.
	ErrRevokedToken = errors.New("auth.revoked_token")
	// ErrUserNotFound indicates no user record exists for the handle.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrDuplicateHandle indicates a create raced with another create for the same handle.
	ErrDuplicateHandle = errors.New("user_store.duplicate_handle")
	// ErrEmptyHandle indicates that an empty handle was supplied to the user store.
	ErrEmptyHandle = errors.New("user_store.empty_handle")
)
