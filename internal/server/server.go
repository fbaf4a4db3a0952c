// Package server exposes the local status endpoints served while
// `feedsync watch` runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/featureflags"
	"feedsync/internal/feed"
	"feedsync/internal/observability"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultAddr is where the status server listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:8975"

// Config holds what the status server needs besides the views.
type Config struct {
	Addr   string
	UserID string
	Flags  *featureflags.Manager
	// Registerer receives the HTTP metrics. Nil means the default registry.
	Registerer prometheus.Registerer
}

// Server is a small fiber app over a notification center and unread badge.
type Server struct {
	config         Config
	center         *feed.NotificationCenter
	badge          *feed.UnreadBadge
	promMiddleware *fiberprometheus.FiberPrometheus
	app            *fiber.App
}

// New builds the server and its routes. badge may be nil, in which case the
// center's counter is reported.
func New(cfg Config, center *feed.NotificationCenter, badge *feed.UnreadBadge) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		config:         cfg,
		center:         center,
		badge:          badge,
		promMiddleware: fiberprometheus.NewWithRegistry(reg, "feedsync", "status", "http", nil),
	}

	app := fiber.New(fiber.Config{
		AppName:               "feedsync status",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(errorBody{Error: fe.Message})
			}
			observability.GlobalLogger.ErrorContext(c.UserContext(), "unhandled status server error", slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: err.Error()})
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return s
}

// App returns the underlying fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(contextMiddleware(s.config.UserID))
	app.Use(s.promMiddleware.Middleware)
	app.Use(structuredLogger())
}

// SetupRoutes registers every status endpoint.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	app.Get("/badge", s.GetBadge)
	app.Get("/flags", s.GetFeatureFlags)

	n := app.Group("/notifications")
	n.Get("/", s.ListNotifications)
	n.Post("/refresh", s.RefreshNotifications)
	n.Post("/read-all", s.MarkAllRead)
	n.Post("/:id/read", s.MarkRead)

	s.promMiddleware.RegisterAt(app, "/metrics")
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	observability.GlobalLogger.Info("status server listening", slog.String("addr", s.config.Addr))
	if err := s.app.Listen(s.config.Addr); err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// contextMiddleware carries the fiber request id into the user context so
// log lines and outgoing API calls share it.
func contextMiddleware(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = observability.WithCorrelationID(ctx, rid)
		}
		if userID != "" {
			ctx = observability.WithUserID(ctx, userID)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func structuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Duration("latency", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.GlobalLogger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.GlobalLogger.DebugContext(c.UserContext(), "request processed", fields...)
		}
		return err
	}
}
