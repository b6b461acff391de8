package services

import (
	"context"
	"fmt"
	"time"

	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"
)

// SettingsService manages the per-user notification and privacy blobs.
type SettingsService struct {
	users store.Users
	pub   realtime.Publisher
	now   func() time.Time
}

func NewSettingsService(st *store.Store, pub realtime.Publisher) *SettingsService {
	return &SettingsService{users: st.Users, pub: pub, now: time.Now}
}

func (s *SettingsService) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user settings: %w", err)
	}
	settings := user.Settings
	return &settings, nil
}

// UpdateUserSettings replaces the whole settings blob.
func (s *SettingsService) UpdateUserSettings(ctx context.Context, userID string, settings models.UserSettings) (*models.UserSettings, error) {
	if errs := utils.ValidateStruct(settings); len(errs) > 0 {
		return nil, invalid("%s: %s", errs[0].Field, errs[0].Message)
	}
	return s.save(ctx, userID, settings)
}

// ResetUserSettings restores the defaults applied at registration.
func (s *SettingsService) ResetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	return s.save(ctx, userID, models.DefaultSettings())
}

func (s *SettingsService) save(ctx context.Context, userID string, settings models.UserSettings) (*models.UserSettings, error) {
	user, err := s.users.Update(ctx, userID, store.UserUpdate{Settings: &settings, UpdatedAt: s.now()})
	if err != nil {
		logger.LogError(err, "Failed to update user settings", map[string]interface{}{"user_id": userID})
		return nil, fmt.Errorf("failed to update user settings: %w", err)
	}
	publish(ctx, s.pub, realtime.UserTopic(userID), realtime.Updated, userID, user)
	logger.LogUserAction(userID, "update_settings", nil)
	return &user.Settings, nil
}
