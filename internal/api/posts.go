package api

import (
	"context"
	"net/http"
	"net/url"

	"feedsync/internal/models"
)

// ListPosts returns every post, newest first as ordered by the server.
func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := c.getJSON(ctx, "/api/posts", "/api/posts", &posts)
	return posts, err
}

// FollowingPosts returns posts by users the caller follows.
func (c *Client) FollowingPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := c.getJSON(ctx, "/api/posts/following", "/api/posts/following", &posts)
	return posts, err
}

// CreatePost uploads form as a new post.
func (c *Client) CreatePost(ctx context.Context, form *Form) (*models.Post, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/posts", "/api/posts", form.Reader(), form.ContentType)
	if err != nil {
		return nil, err
	}
	var post models.Post
	if err := decode("/api/posts", data, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost replaces the content of a post.
func (c *Client) UpdatePost(ctx context.Context, id, content string) (*models.Post, error) {
	var post models.Post
	err := c.sendJSON(ctx, http.MethodPut, "/api/posts/{id}", "/api/posts/"+url.PathEscape(id),
		models.UpdatePostRequest{Content: content}, &post)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/posts/{id}", "/api/posts/"+url.PathEscape(id), nil, nil)
}

// LikePost adds the caller to the post's likers.
func (c *Client) LikePost(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/posts/{id}/like", "/api/posts/"+url.PathEscape(id)+"/like", nil, nil)
}

// UnlikePost removes the caller from the post's likers.
func (c *Client) UnlikePost(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/posts/{id}/unlike", "/api/posts/"+url.PathEscape(id)+"/unlike", nil, nil)
}

// MediaPath is the API path serving a stored media file.
func MediaPath(fileID string) string {
	return "/api/posts/media/" + url.PathEscape(fileID)
}

// MediaURL is the absolute URL of a stored media file.
func (c *Client) MediaURL(fileID string) string {
	return c.URL(MediaPath(fileID))
}

// FetchMedia downloads a media file.
func (c *Client) FetchMedia(ctx context.Context, fileID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/posts/media/{fileId}", MediaPath(fileID), nil, "")
}
