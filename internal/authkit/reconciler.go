package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// RoleUser is assigned to every user on first login.
	RoleUser = "USER"
	// RoleAdmin may change other users' roles.
	RoleAdmin = "ADMIN"
)

// User is the persisted application user keyed by its provider-qualified handle.
type User struct {
	Handle       string
	DisplayName  string
	Email        string
	Role         string
	ProfileImage string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileUpdate names the self-service profile fields to change. Nil fields are left as stored.
type ProfileUpdate struct {
	DisplayName  *string
	Phone        *string
	ProfileImage *string
}

// UserStore persists and retrieves application users. Handles are unique.
// Each update method writes only its own columns, so concurrent updates of different fields never
// overwrite one another. Updates of a missing handle return ErrUserNotFound.
type UserStore interface {
	// FindUserByHandle returns ErrUserNotFound when no record exists.
	FindUserByHandle(ctx context.Context, handle string) (User, error)
	// CreateUser returns ErrDuplicateHandle when the handle is already taken.
	CreateUser(ctx context.Context, user User) (User, error)
	// UpdateLoginAttributes overwrites the provider-sourced display name and email.
	UpdateLoginAttributes(ctx context.Context, handle string, displayName string, email string) (User, error)
	// UpdateProfile applies the non-nil fields of update.
	UpdateProfile(ctx context.Context, handle string, update ProfileUpdate) (User, error)
	// UpdateRole sets the user's role.
	UpdateRole(ctx context.Context, handle string, role string) (User, error)
}

// ReconciledUser is the subset of a user record embedded in tokens.
type ReconciledUser struct {
	Handle      string
	DisplayName string
	Role        string
}

func reconciledFrom(user User) ReconciledUser {
	return ReconciledUser{Handle: user.Handle, DisplayName: user.DisplayName, Role: user.Role}
}

// Reconciler finds or creates the local user behind a provider identity.
type Reconciler struct {
	users UserStore
}

// NewReconciler constructs a Reconciler over the user store.
func NewReconciler(users UserStore) *Reconciler {
	if users == nil {
		panic("user store is required")
	}
	return &Reconciler{users: users}
}

// Reconcile refreshes name and email of an existing user or creates a USER-role record.
// A concurrent create for the same handle is resolved by falling back to lookup-then-update.
func (reconciler *Reconciler) Reconcile(ctx context.Context, identity ProviderIdentity) (ReconciledUser, error) {
	handle := identity.Handle()
	existing, findErr := reconciler.users.FindUserByHandle(ctx, handle)
	if findErr == nil {
		return reconciler.refresh(ctx, existing, identity)
	}
	if !errors.Is(findErr, ErrUserNotFound) {
		return ReconciledUser{}, fmt.Errorf("reconciler.find: %w", findErr)
	}

	created, createErr := reconciler.users.CreateUser(ctx, User{
		Handle:      handle,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		Role:        RoleUser,
	})
	if createErr == nil {
		return reconciledFrom(created), nil
	}
	if !errors.Is(createErr, ErrDuplicateHandle) {
		return ReconciledUser{}, fmt.Errorf("reconciler.create: %w", createErr)
	}

	winner, refindErr := reconciler.users.FindUserByHandle(ctx, handle)
	if refindErr != nil {
		return ReconciledUser{}, fmt.Errorf("reconciler.refind: %w", refindErr)
	}
	return reconciler.refresh(ctx, winner, identity)
}

func (reconciler *Reconciler) refresh(ctx context.Context, user User, identity ProviderIdentity) (ReconciledUser, error) {
	saved, saveErr := reconciler.users.UpdateLoginAttributes(ctx, user.Handle, identity.DisplayName, identity.Email)
	if saveErr != nil {
		return ReconciledUser{}, fmt.Errorf("reconciler.save: %w", saveErr)
	}
	return reconciledFrom(saved), nil
}
