package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"campuschat/internal/media"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/pkg/logger"
)

// Uploader stores a file on the media CDN and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, f media.File, folder string) (string, error)
}

type UserService struct {
	store    *store.Store
	pub      realtime.Publisher
	uploader Uploader
	now      func() time.Time
}

type ProfileUpdate struct {
	Name  *string `json:"name" binding:"omitempty,min=2,max=80"`
	Class *string `json:"class" binding:"omitempty,max=40"`
}

func NewUserService(st *store.Store, pub realtime.Publisher, uploader Uploader) *UserService {
	return &UserService{
		store:    st,
		pub:      pub,
		uploader: uploader,
		now:      time.Now,
	}
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List returns users matching term on name, class or phone, sorted by name.
func (s *UserService) List(ctx context.Context, term string) ([]*models.User, error) {
	users, err := s.store.Users.List(ctx)
	if err != nil {
		logger.LogError(err, "Failed to list users", nil)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.MatchesTerm(term) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	patch := store.UserUpdate{UpdatedAt: s.now()}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		patch.Name = &name
	}
	if upd.Class != nil {
		class := strings.TrimSpace(*upd.Class)
		patch.Class = &class
	}

	return s.update(ctx, userID, patch, "update_profile")
}

// SetAvatar uploads f and stores the resulting URL as the user's avatar.
func (s *UserService) SetAvatar(ctx context.Context, userID string, f media.File) (*models.User, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("media uploads are not configured")
	}
	url, err := s.uploader.Upload(ctx, f, "avatars")
	if err != nil {
		logger.LogError(err, "Failed to upload avatar", map[string]interface{}{"user_id": userID})
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}
	return s.update(ctx, userID, store.UserUpdate{Avatar: &url, UpdatedAt: s.now()}, "set_avatar")
}

// SetOnline flips the online flag and stamps lastSeen.
func (s *UserService) SetOnline(ctx context.Context, userID string, online bool) (*models.User, error) {
	now := s.now()
	return s.update(ctx, userID, store.UserUpdate{IsOnline: &online, LastSeen: &now, UpdatedAt: now}, "")
}

// Touch refreshes lastSeen without changing the online flag.
func (s *UserService) Touch(ctx context.Context, userID string) error {
	now := s.now()
	_, err := s.update(ctx, userID, store.UserUpdate{LastSeen: &now, UpdatedAt: now}, "")
	return err
}

// SetAdmin grants or revokes admin rights. Only admins may call it and an
// admin cannot demote themselves.
func (s *UserService) SetAdmin(ctx context.Context, actorID, userID string, admin bool) (*models.User, error) {
	actor, err := loadActor(ctx, s.store.Users, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		return nil, forbidden("only admins can change admin rights")
	}
	if actorID == userID && !admin {
		return nil, invalid("admins cannot revoke their own rights")
	}

	user, err := s.update(ctx, userID, store.UserUpdate{IsAdmin: &admin, UpdatedAt: s.now()}, "")
	if err != nil {
		return nil, err
	}
	logger.LogAdminAction(actorID, "set_admin", userID, map[string]interface{}{"admin": admin})
	return user, nil
}

func (s *UserService) update(ctx context.Context, userID string, patch store.UserUpdate, action string) (*models.User, error) {
	user, err := s.store.Users.Update(ctx, userID, patch)
	if err != nil {
		logger.LogError(err, "Failed to update user", map[string]interface{}{"user_id": userID})
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	publishUser(ctx, s.pub, user)
	if action != "" {
		logger.LogUserAction(userID, action, nil)
	}
	return user, nil
}
