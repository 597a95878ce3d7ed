package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("user_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("user_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("user_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("user_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("user_store.unsupported_no_scheme")
)

// DatabaseUserStore persists users using GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

type userRecord struct {
	ID           uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Handle       string `gorm:"column:handle;uniqueIndex;not null"`
	DisplayName  string `gorm:"column:display_name;not null;default:''"`
	Email        string `gorm:"column:email;not null;default:''"`
	Role         string `gorm:"column:role;not null"`
	ProfileImage string `gorm:"column:profile_image;not null;default:''"`
	Phone        string `gorm:"column:phone;not null;default:''"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string {
	return "users"
}

func (record userRecord) toUser() User {
	return User{
		Handle:       record.Handle,
		DisplayName:  record.DisplayName,
		Email:        record.Email,
		Role:         record.Role,
		ProfileImage: record.ProfileImage,
		Phone:        record.Phone,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// NewDatabaseUserStore constructs a GORM-backed store and migrates the users table.
func NewDatabaseUserStore(ctx context.Context, databaseURL string) (*DatabaseUserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("user_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if openErr != nil {
		return nil, fmt.Errorf("user_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseUserStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// FindUserByHandle loads a user by handle.
func (store *DatabaseUserStore) FindUserByHandle(ctx context.Context, handle string) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("handle = ?", handle).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.find.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

// CreateUser inserts a user, relying on the unique handle index to reject duplicates.
func (store *DatabaseUserStore) CreateUser(ctx context.Context, user User) (User, error) {
	if strings.TrimSpace(user.Handle) == "" {
		return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrEmptyHandle)
	}
	record := userRecord{
		Handle:       user.Handle,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		ProfileImage: user.ProfileImage,
		Phone:        user.Phone,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, ErrDuplicateHandle)
		}
		return User{}, fmt.Errorf("user_store.create.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

// UpdateLoginAttributes writes the display_name and email columns only.
func (store *DatabaseUserStore) UpdateLoginAttributes(ctx context.Context, handle string, displayName string, email string) (User, error) {
	return store.updateColumns(ctx, "login_attributes", handle, map[string]interface{}{
		"display_name": displayName,
		"email":        email,
	})
}

// UpdateProfile writes the columns of the non-nil profile fields.
func (store *DatabaseUserStore) UpdateProfile(ctx context.Context, handle string, update ProfileUpdate) (User, error) {
	columns := make(map[string]interface{}, 3)
	if update.DisplayName != nil {
		columns["display_name"] = *update.DisplayName
	}
	if update.Phone != nil {
		columns["phone"] = *update.Phone
	}
	if update.ProfileImage != nil {
		columns["profile_image"] = *update.ProfileImage
	}
	return store.updateColumns(ctx, "profile", handle, columns)
}

// UpdateRole writes the role column only.
func (store *DatabaseUserStore) UpdateRole(ctx context.Context, handle string, role string) (User, error) {
	return store.updateColumns(ctx, "role", handle, map[string]interface{}{"role": role})
}

func (store *DatabaseUserStore) updateColumns(ctx context.Context, operation string, handle string, columns map[string]interface{}) (User, error) {
	columns["updated_at"] = time.Now().UTC()
	result := store.db.WithContext(ctx).Model(&userRecord{}).
		Where("handle = ?", handle).
		Updates(columns)
	if result.Error != nil {
		return User{}, fmt.Errorf("user_store.update_%s.%s: %w", operation, store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, fmt.Errorf("user_store.update_%s.%s: %w", operation, store.driverLabel, ErrUserNotFound)
	}
	return store.FindUserByHandle(ctx, handle)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("user_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("user_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("user_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("user_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
