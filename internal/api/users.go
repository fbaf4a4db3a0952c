package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"feedsync/internal/models"
)

// Login exchanges credentials for a token. The caller establishes the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}
	var out models.AuthResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/auth/login", "/api/auth/login",
		models.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, models.NewValidationError("Name, email and password are required")
	}
	var out models.AuthResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/api/auth/register", "/api/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecommendedUsers lists users suggested to follow.
func (c *Client) RecommendedUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.getJSON(ctx, "/api/users/recommendations", "/api/users/recommendations", &users)
	return users, err
}

// FollowUser follows the user with id.
func (c *Client) FollowUser(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/users/follow/{id}", "/api/users/follow/"+url.PathEscape(id), nil, nil)
}

// UnfollowUser stops following the user with id.
func (c *Client) UnfollowUser(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/users/unfollow/{id}", "/api/users/unfollow/"+url.PathEscape(id), nil, nil)
}
