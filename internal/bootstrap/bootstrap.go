// Package bootstrap builds the storage, realtime feed and services shared by
// the server and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campuschat/internal/catalog"
	"campuschat/internal/config"
	"campuschat/internal/media"
	"campuschat/internal/realtime"
	"campuschat/internal/services"
	"campuschat/internal/store"
	"campuschat/internal/store/memory"
	"campuschat/internal/store/mongostore"
	"campuschat/internal/utils"
	"campuschat/pkg/database"
	"campuschat/pkg/logger"
)

// App holds the wired services. Close releases the connections it opened.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Feed     realtime.Feed
	Tokens   *utils.TokenIssuer
	Auth     *services.AuthService
	Users    *services.UserService
	Settings *services.SettingsService
	Presence *services.PresenceService
	Chats    *services.ChatService
	Calls    *services.CallService
	Catalog  *catalog.Service

	// Health reports database status; nil for the memory store.
	Health func(ctx context.Context) map[string]interface{}

	closers []func() error
}

// New connects the configured store and feed and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}
	if err := app.openFeed(); err != nil {
		app.Close()
		return nil, err
	}

	expiry := time.Duration(cfg.Security.JWT.ExpiryHour) * time.Hour
	app.Tokens = utils.NewTokenIssuer(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, expiry)

	uploader := media.NewUploader(cfg.Media)
	app.Auth = services.NewAuthService(app.Store, app.Tokens, app.Feed, cfg)
	app.Users = services.NewUserService(app.Store, app.Feed, uploader)
	app.Settings = services.NewSettingsService(app.Store, app.Feed)
	app.Presence = services.NewPresenceService(app.Store, app.Feed)
	app.Chats = services.NewChatService(app.Store, app.Feed, uploader)
	app.Calls = services.NewCallService(app.Store, app.Feed, cfg.Calls)
	app.Catalog = catalog.NewService(catalog.NewSpotifyClient(cfg.Spotify), app.Store, cfg.Spotify)

	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; data is lost on restart")
		a.Store = memory.New()
		return nil
	case "mongo":
		db, err := database.InitMongoDB(a.Config.Database.MongoDB)
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		a.closers = append(a.closers, database.Disconnect)

		setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := database.EnsureCollections(setupCtx, db); err != nil {
			a.Close()
			return err
		}
		if err := database.CreateIndexes(setupCtx, db); err != nil {
			a.Close()
			return err
		}

		a.Store = mongostore.New(db)
		a.Health = database.HealthCheck
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.Store.Driver)
	}
}

func (a *App) openFeed() error {
	redisCfg := a.Config.Database.Redis
	if !redisCfg.Enabled {
		a.Feed = realtime.NewBus(realtime.DefaultBuffer)
		return nil
	}

	rdb, err := database.InitRedis(redisCfg)
	if err != nil {
		return err
	}
	a.Feed = realtime.NewRedisFeed(rdb, redisCfg.Channel)
	a.closers = append(a.closers, a.Feed.Close)
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
