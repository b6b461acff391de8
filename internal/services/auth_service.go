package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"campuschat/internal/config"
	"campuschat/internal/models"
	"campuschat/internal/realtime"
	"campuschat/internal/store"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/google/uuid"
)

type AuthService struct {
	store       *store.Store
	tokens      *utils.TokenIssuer
	pub         realtime.Publisher
	session     config.SessionConfig
	baseURL     string
	now         func() time.Time
	newDeviceID func() string
}

type RegisterRequest struct {
	Name   string `json:"name" binding:"required,min=2,max=80"`
	Class  string `json:"class" binding:"required,max=40"`
	Phone  string `json:"phone" binding:"required,phone"`
	Avatar string `json:"avatar" binding:"omitempty,url"`
}

type LoginRequest struct {
	Name  string `json:"name" binding:"required"`
	Class string `json:"class" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// Session is an authenticated login. Token must be presented as a bearer
// token on later requests.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	DeviceID  string       `json:"device_id"`
	User      *models.User `json:"user"`
}

// MagicLink is a messenger deep link whose text carries a login URL.
type MagicLink struct {
	URL       string    `json:"url"`
	LoginURL  string    `json:"login_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MagicLinkParams are the query parameters of a magic login URL.
type MagicLinkParams struct {
	UID   string `form:"uid"`
	Name  string `form:"name"`
	Class string `form:"class"`
	Phone string `form:"phone"`
	TS    string `form:"ts"`
}

// MagicLinkError is returned when a magic link is rejected. The client is
// sent to RedirectTo after RedirectAfter.
type MagicLinkError struct {
	Reason        string
	RedirectTo    string
	RedirectAfter time.Duration
}

func (e *MagicLinkError) Error() string {
	return fmt.Sprintf("%s: %s", models.ErrLinkInvalid, e.Reason)
}

func (e *MagicLinkError) Unwrap() error { return models.ErrLinkInvalid }

func NewAuthService(st *store.Store, tokens *utils.TokenIssuer, pub realtime.Publisher, cfg *config.Config) *AuthService {
	return &AuthService{
		store:       st,
		tokens:      tokens,
		pub:         pub,
		session:     cfg.Session,
		baseURL:     cfg.App.BaseURL,
		now:         time.Now,
		newDeviceID: uuid.NewString,
	}
}

// Register creates a user. The phone number must not be in use.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	phone := models.NormalizePhone(req.Phone)
	if !utils.ValidatePhone(phone) {
		return nil, invalid("phone %q", req.Phone)
	}

	now := s.now()
	user := &models.User{
		ID:        models.NewID(),
		Name:      strings.TrimSpace(req.Name),
		Class:     strings.TrimSpace(req.Class),
		Phone:     phone,
		Avatar:    req.Avatar,
		LastSeen:  now,
		Settings:  models.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			logger.LogSecurityEvent("duplicate_registration", "", "", map[string]interface{}{"phone": phone})
			return nil, fmt.Errorf("phone number already registered: %w", err)
		}
		logger.LogError(err, "Failed to register user", map[string]interface{}{"phone": phone})
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	publish(ctx, s.pub, realtime.UsersTopic, realtime.Created, user.ID, user)
	logger.LogUserAction(user.ID, "register", nil)
	return user, nil
}

// Login matches the identity tuple against the stored user and opens a new
// session, replacing any session on another device.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	user, err := s.store.Users.GetByPhone(ctx, models.NormalizePhone(req.Phone))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.LogSecurityEvent("login_unknown_user", "", "", nil)
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.MatchesIdentity(req.Name, req.Class, req.Phone) {
		logger.LogSecurityEvent("login_identity_mismatch", user.ID, "", nil)
		return nil, models.ErrInvalidCredentials
	}

	return s.openSession(ctx, user)
}

func (s *AuthService) openSession(ctx context.Context, user *models.User) (*Session, error) {
	deviceID := user.DeviceID
	if s.session.SingleDevice || deviceID == "" {
		deviceID = s.newDeviceID()
	}

	now := s.now()
	online := true
	updated, err := s.store.Users.Update(ctx, user.ID, store.UserUpdate{
		DeviceID:  &deviceID,
		IsOnline:  &online,
		LastSeen:  &now,
		UpdatedAt: now,
	})
	if err != nil {
		logger.LogError(err, "Failed to open session", map[string]interface{}{"user_id": user.ID})
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	token, expires, err := s.tokens.Issue(updated.ID, deviceID)
	if err != nil {
		return nil, err
	}

	publishUser(ctx, s.pub, updated)
	logger.LogUserAction(updated.ID, "login", map[string]interface{}{"device_id": deviceID})
	return &Session{Token: token, ExpiresAt: expires, DeviceID: deviceID, User: updated}, nil
}

// ValidateSession verifies the token and that its device is still the
// user's active device.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}

	user, err := s.store.Users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionRevoked
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user.DeviceID != claims.DeviceID {
		return nil, models.ErrSessionRevoked
	}
	return user, nil
}

// Logout ends the user's session on every device.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	now := s.now()
	empty := ""
	offline := false
	user, err := s.store.Users.Update(ctx, userID, store.UserUpdate{
		DeviceID:  &empty,
		IsOnline:  &offline,
		LastSeen:  &now,
		UpdatedAt: now,
	})
	if err != nil {
		logger.LogError(err, "Failed to log out", map[string]interface{}{"user_id": userID})
		return fmt.Errorf("failed to log out: %w", err)
	}

	publishUser(ctx, s.pub, user)
	logger.LogUserAction(userID, "logout", nil)
	return nil
}

// BuildMagicLink builds the messenger hand-off link for userID. The actor
// must be the user or an admin.
func (s *AuthService) BuildMagicLink(ctx context.Context, actorID, userID string) (*MagicLink, error) {
	if actorID != userID {
		actor, err := loadActor(ctx, s.store.Users, actorID)
		if err != nil {
			return nil, err
		}
		if !actor.IsAdmin {
			return nil, forbidden("only admins can build links for other users")
		}
	}

	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	q := url.Values{}
	q.Set("uid", user.ID)
	q.Set("name", user.Name)
	q.Set("class", user.Class)
	q.Set("phone", user.Phone)
	q.Set("ts", strconv.FormatInt(now.Unix(), 10))
	loginURL := s.baseURL + "/magic-login?" + q.Encode()

	text := url.Values{}
	text.Set("text", "Sign in to Campus Chat: "+loginURL)
	target := strings.TrimPrefix(user.Phone, "+")
	messenger := strings.TrimRight(s.session.MessengerURL, "/") + "/" + target + "?" + text.Encode()

	if actorID != userID {
		logger.LogAdminAction(actorID, "build_magic_link", userID, nil)
	}
	return &MagicLink{URL: messenger, LoginURL: loginURL, ExpiresAt: now.Add(s.session.MagicLinkTTL)}, nil
}

// MagicLogin re-validates the identity fields embedded in a magic link and
// opens a session. Rejections are *MagicLinkError.
func (s *AuthService) MagicLogin(ctx context.Context, p MagicLinkParams) (*Session, error) {
	reject := func(reason string) error {
		logger.LogSecurityEvent("magic_link_rejected", p.UID, "", map[string]interface{}{"reason": reason})
		return &MagicLinkError{Reason: reason, RedirectTo: "/login", RedirectAfter: s.session.RedirectTimeout}
	}

	if p.UID == "" || p.Name == "" || p.Class == "" || p.Phone == "" {
		return nil, reject("missing fields")
	}

	ts, err := strconv.ParseInt(p.TS, 10, 64)
	if err != nil {
		return nil, reject("malformed timestamp")
	}
	issued := time.Unix(ts, 0)
	now := s.now()
	if issued.After(now.Add(time.Minute)) || now.Sub(issued) > s.session.MagicLinkTTL {
		return nil, reject("expired")
	}

	user, err := s.store.Users.Get(ctx, p.UID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, reject("unknown user")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.MatchesIdentity(p.Name, p.Class, p.Phone) {
		return nil, reject("identity mismatch")
	}

	return s.openSession(ctx, user)
}
