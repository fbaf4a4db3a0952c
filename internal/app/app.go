// Package app wires configuration, session, API client and views together
// for the feedsync command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"feedsync/internal/api"
	"feedsync/internal/cache"
	"feedsync/internal/config"
	"feedsync/internal/featureflags"
	"feedsync/internal/feed"
	"feedsync/internal/media"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/server"
	"feedsync/internal/session"

	"github.com/redis/go-redis/v9"
)

// Version is reported as the tracing service version.
var Version = "dev"

// ErrSignedOut is returned by commands that need a session when there is none.
var ErrSignedOut = errors.New("not signed in; run `feedsync login` first")

// App is the set of long-lived collaborators one command invocation uses.
type App struct {
	Config  *config.Config
	Session *session.Session
	Client  *api.Client
	Flags   *featureflags.Manager
	Media   *media.Fetcher

	redis           *redis.Client
	shutdownTracing func(context.Context) error
}

// New builds the App from cfg. Logs go to logOut.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	observability.InitLogging(logOut, cfg.Env, cfg.LogLevel)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "feedsync",
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &App{Config: cfg, shutdownTracing: shutdownTracing}

	store, err := a.sessionStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Session = session.New(store)
	if err := a.Session.Restore(ctx); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "could not restore session, starting signed out", slog.String("error", err.Error()))
	}

	a.Flags = featureflags.NewManager(cfg.FeatureFlags)
	a.Client = api.New(api.Options{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.RequestTimeout(),
		Session:        a.Session,
		OnUnauthorized: a.onUnauthorized,
	})

	var mediaCache *redis.Client
	for _, name := range a.Flags.Unknown() {
		observability.GlobalLogger.WarnContext(ctx, "unknown feature flag", slog.String("flag", name))
	}
	if a.Flags.Enabled(featureflags.MediaCache, featureflags.ViewMedia, a.Session.UserID()) {
		if a.redis == nil {
			a.redis = cache.ConnectOptional(ctx, cfg.RedisURL)
		}
		mediaCache = a.redis
	}
	a.Media = media.NewFetcher(a.Client, mediaCache, cfg.MediaCacheTTL())

	return a, nil
}

func (a *App) sessionStore(ctx context.Context) (session.Store, error) {
	switch a.Config.SessionStore {
	case config.SessionStoreRedis:
		rdb, err := cache.Connect(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect session store: %w", err)
		}
		a.redis = rdb
		return session.NewRedisStore(rdb, a.Config.SessionProfile), nil
	default:
		return session.NewFileStore(a.Config.SessionFile), nil
	}
}

// onUnauthorized signs the user out once the service rejects the credential.
func (a *App) onUnauthorized(ctx context.Context, err error) {
	observability.GlobalLogger.WarnContext(ctx, "credential rejected, clearing session", slog.String("error", err.Error()))
	if cerr := a.Session.Clear(context.WithoutCancel(ctx)); cerr != nil {
		observability.GlobalLogger.ErrorContext(ctx, "failed to clear session", slog.String("error", cerr.Error()))
	}
}

// Close releases Redis and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

// Login authenticates and establishes the session.
func (a *App) Login(ctx context.Context, email, password string) (models.User, error) {
	auth, err := a.Client.Login(ctx, email, password)
	if err != nil {
		return models.User{}, err
	}
	if err := a.Session.Establish(ctx, *auth); err != nil {
		return models.User{}, err
	}
	return a.Session.User(), nil
}

// Register creates an account and signs in with it.
func (a *App) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	auth, err := a.Client.Register(ctx, req)
	if err != nil {
		return models.User{}, err
	}
	if err := a.Session.Establish(ctx, *auth); err != nil {
		return models.User{}, err
	}
	return a.Session.User(), nil
}

// Logout forgets the credential.
func (a *App) Logout(ctx context.Context) error {
	return a.Session.Clear(ctx)
}

// RequireSession fails with ErrSignedOut unless a usable credential is held.
func (a *App) RequireSession() error {
	if !a.Session.Valid() {
		return ErrSignedOut
	}
	return nil
}

// Context tags ctx with the signed-in user for logging.
func (a *App) Context(ctx context.Context) context.Context {
	if id := a.Session.UserID(); id != "" {
		ctx = observability.WithUserID(ctx, id)
	}
	return ctx
}

// ViewOptions returns the options every view is built with.
func (a *App) ViewOptions() feed.Options {
	return feed.Options{
		UserID: a.Session.UserID(),
		Flags:  a.Flags.For(a.Session.UserID()),
		Limits: media.Limits{MaxBytes: a.Config.MaxUploadBytes()},
	}
}

// Feed builds the home or following feed.
func (a *App) Feed(source feed.Source) *feed.Feed {
	return feed.NewFeed(a.Client, source, a.ViewOptions())
}

// Comments builds the comment thread for postID.
func (a *App) Comments(postID string) *feed.CommentThread {
	return feed.NewCommentThread(a.Client, postID, a.ViewOptions())
}

// Notifications builds the notification center.
func (a *App) Notifications() *feed.NotificationCenter {
	return feed.NewNotificationCenter(a.Client, a.ViewOptions())
}

// LearningPlans builds the learning-plan list.
func (a *App) LearningPlans() *feed.LearningPlans {
	return feed.NewLearningPlans(a.Client, a.ViewOptions())
}

// StatusServer builds the watch-mode status server over center and badge.
func (a *App) StatusServer(center *feed.NotificationCenter, badge *feed.UnreadBadge) *server.Server {
	return server.New(server.Config{
		Addr:   a.Config.StatusAddr,
		UserID: a.Session.UserID(),
		Flags:  a.Flags,
	}, center, badge)
}
