package api

import (
	"context"
	"net/http"
	"net/url"

	"feedsync/internal/models"
)

// Notifications lists all notifications of the caller.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var items []models.Notification
	err := c.getJSON(ctx, "/api/notifications", "/api/notifications", &items)
	return items, err
}

// UnreadNotifications lists only unread notifications.
func (c *Client) UnreadNotifications(ctx context.Context) ([]models.Notification, error) {
	var items []models.Notification
	err := c.getJSON(ctx, "/api/notifications/unread", "/api/notifications/unread", &items)
	return items, err
}

// UnreadCount returns the server's unread counter.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var n int64
	if err := c.getJSON(ctx, "/api/notifications/unread-count", "/api/notifications/unread-count", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return int(n), nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPut, "/api/notifications/{id}/read",
		"/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead marks every notification of the caller as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPut, "/api/notifications/read-all", "/api/notifications/read-all", nil, nil)
}
