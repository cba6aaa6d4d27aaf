package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pushrelay/pushrelay/internal/models"
	apperrors "github.com/pushrelay/pushrelay/pkg/errors"
)

// UserService is the registry of recipient identities and their live
// connection bindings.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Upsert creates a user on first sight of the username+email pair, otherwise
// refreshes the connection binding and marks the user online.
func (s *UserService) Upsert(ctx context.Context, username, email, connectionID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return nil, apperrors.NewValidation("username is required")
	}
	if email == "" {
		return nil, apperrors.NewValidation("email is required")
	}

	now := time.Now().UTC()
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("username = ? AND email = ?", username, email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Username:     username,
				Email:        email,
				ConnectionID: connectionID,
				IsOnline:     connectionID != "",
				LastSeen:     now,
			}
			return tx.Create(&user).Error
		case err != nil:
			return err
		}

		user.ConnectionID = connectionID
		user.IsOnline = connectionID != ""
		user.LastSeen = now
		return tx.Model(&user).Updates(map[string]any{
			"connection_id": connectionID,
			"is_online":     user.IsOnline,
			"last_seen":     now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("user service: upsert %q: %w", username, err)
	}

	return &user, nil
}

// SetConnectionStatus updates the online state of whichever user currently
// holds the connection id. Going offline clears the stored binding. The
// single UPDATE keeps the transition atomic with respect to concurrent joins:
// a join that already rebound the user leaves nothing for the WHERE clause to
// match. Unknown or repeated connection ids are a no-op.
func (s *UserService) SetConnectionStatus(ctx context.Context, connectionID string, online bool) error {
	ctx = ensureContext(ctx)

	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil
	}

	updates := map[string]any{
		"is_online": online,
		"last_seen": time.Now().UTC(),
	}
	if !online {
		updates["connection_id"] = ""
	}

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("connection_id = ?", connectionID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("user service: set connection status: %w", err)
	}
	return nil
}

// MarkAllOffline clears every online flag and connection binding. Run at
// start-up: the connection directory is rebuilt empty, so any persisted
// online state is stale by definition.
func (s *UserService) MarkAllOffline(ctx context.Context) error {
	ctx = ensureContext(ctx)

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_online = ?", true).
		Updates(map[string]any{
			"connection_id": "",
			"is_online":     false,
		}).Error; err != nil {
		return fmt.Errorf("user service: mark all offline: %w", err)
	}
	return nil
}

// GetByID loads a single user.
func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// ListOnline returns users with a live connection binding.
func (s *UserService) ListOnline(ctx context.Context) ([]models.User, error) {
	return s.list(ctx, true)
}

// ListAll returns every known user.
func (s *UserService) ListAll(ctx context.Context) ([]models.User, error) {
	return s.list(ctx, false)
}

func (s *UserService) list(ctx context.Context, onlineOnly bool) ([]models.User, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Order("username ASC")
	if onlineOnly {
		query = query.Where("is_online = ?", true)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}
