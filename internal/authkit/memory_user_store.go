package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory user store intended for tests and dev.
type MemoryUserStore struct {
	mutex    sync.Mutex
	byHandle map[string]User
	now      func() time.Time
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byHandle: make(map[string]User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindUserByHandle returns the user stored under handle.
func (store *MemoryUserStore) FindUserByHandle(ctx context.Context, handle string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byHandle[handle]
	if !ok {
		return User{}, fmt.Errorf("user_store.find.memory: %w", ErrUserNotFound)
	}
	return user, nil
}

// CreateUser inserts a new user; the handle must not exist yet.
func (store *MemoryUserStore) CreateUser(ctx context.Context, user User) (User, error) {
	if strings.TrimSpace(user.Handle) == "" {
		return User{}, fmt.Errorf("user_store.create.memory: %w", ErrEmptyHandle)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byHandle[user.Handle]; exists {
		return User{}, fmt.Errorf("user_store.create.memory: %w", ErrDuplicateHandle)
	}
	nowTime := store.now()
	user.CreatedAt = nowTime
	user.UpdatedAt = nowTime
	store.byHandle[user.Handle] = user
	return user, nil
}

// UpdateLoginAttributes overwrites display name and email only.
func (store *MemoryUserStore) UpdateLoginAttributes(ctx context.Context, handle string, displayName string, email string) (User, error) {
	return store.update("login_attributes", handle, func(user *User) {
		user.DisplayName = displayName
		user.Email = email
	})
}

// UpdateProfile applies the non-nil profile fields.
func (store *MemoryUserStore) UpdateProfile(ctx context.Context, handle string, update ProfileUpdate) (User, error) {
	return store.update("profile", handle, func(user *User) {
		if update.DisplayName != nil {
			user.DisplayName = *update.DisplayName
		}
		if update.Phone != nil {
			user.Phone = *update.Phone
		}
		if update.ProfileImage != nil {
			user.ProfileImage = *update.ProfileImage
		}
	})
}

// UpdateRole sets the role only.
func (store *MemoryUserStore) UpdateRole(ctx context.Context, handle string, role string) (User, error) {
	return store.update("role", handle, func(user *User) {
		user.Role = role
	})
}

func (store *MemoryUserStore) update(operation string, handle string, mutate func(user *User)) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	existing, ok := store.byHandle[handle]
	if !ok {
		return User{}, fmt.Errorf("user_store.update_%s.memory: %w", operation, ErrUserNotFound)
	}
	mutate(&existing)
	existing.UpdatedAt = store.now()
	store.byHandle[handle] = existing
	return existing, nil
}

// Count returns the number of stored users.
func (store *MemoryUserStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byHandle)
}
