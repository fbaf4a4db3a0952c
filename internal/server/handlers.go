package server

import (
	"errors"

	"feedsync/internal/models"
	"feedsync/internal/readstate"

	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type notificationsResponse struct {
	Filter        string                `json:"filter"`
	Unread        int                   `json:"unread"`
	Notifications []models.Notification `json:"notifications"`
}

// HealthCheck reports that the watcher is alive.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// GetBadge returns the displayed unread counter.
func (s *Server) GetBadge(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"unread": s.unread()})
}

// GetFeatureFlags returns configured feature flags and their evaluated state for the signed-in user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.config.Flags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}
	return c.JSON(fiber.Map{
		"raw":       s.config.Flags.Raw(),
		"evaluated": s.config.Flags.Snapshot(s.config.UserID),
	})
}

// ListNotifications returns notifications for ?filter=unread|all, falling back
// to the center's active filter.
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	filter := s.center.Filter()
	if q := c.Query("filter"); q != "" {
		filter = readstate.ParseFilter(q)
	}
	items := s.center.Tracker().Items(filter)
	if items == nil {
		items = []models.Notification{}
	}
	return c.JSON(notificationsResponse{
		Filter:        filter.String(),
		Unread:        s.center.UnreadCount(),
		Notifications: items,
	})
}

// RefreshNotifications reloads the list from the feed service.
func (s *Server) RefreshNotifications(c *fiber.Ctx) error {
	if err := s.center.Refresh(c.UserContext()); err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{"unread": s.center.UnreadCount()})
}

// MarkRead marks one notification read.
func (s *Server) MarkRead(c *fiber.Ctx) error {
	if err := s.center.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{"unread": s.center.UnreadCount()})
}

// MarkAllRead marks every notification read.
func (s *Server) MarkAllRead(c *fiber.Ctx) error {
	if err := s.center.MarkAllRead(c.UserContext()); err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{"unread": s.center.UnreadCount()})
}

func (s *Server) unread() int {
	if s.badge != nil {
		return s.badge.Count()
	}
	return s.center.UnreadCount()
}

// respondWithError maps client errors onto status codes. Remote failures
// surface as 502 since the status server is only a proxy for the feed service.
func respondWithError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Error = appErr.Message
		switch appErr.Code {
		case models.CodeNotFound:
			status = fiber.StatusNotFound
		case models.CodeConflict:
			status = fiber.StatusConflict
		case models.CodeValidation:
			status = fiber.StatusBadRequest
		case models.CodeUnauthorized:
			status = fiber.StatusUnauthorized
		case models.CodeTransport, models.CodeHTTP:
			status = fiber.StatusBadGateway
		}
	}
	return c.Status(status).JSON(body)
}
