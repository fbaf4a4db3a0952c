package api

import (
	"context"
	"net/http"
	"net/url"

	"feedsync/internal/models"
)

// CreateComment adds a comment to a post.
func (c *Client) CreateComment(ctx context.Context, postID, content string) (*models.Comment, error) {
	var cm models.Comment
	err := c.sendJSON(ctx, http.MethodPost, "/api/comments", "/api/comments",
		models.CreateCommentRequest{PostID: postID, Content: content}, &cm)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// PostComments lists the comments of a post in server order.
func (c *Client) PostComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := c.getJSON(ctx, "/api/comments/post/{postId}", "/api/comments/post/"+url.PathEscape(postID), &comments)
	return comments, err
}

// UpdateComment replaces the content of a comment.
func (c *Client) UpdateComment(ctx context.Context, id, content string) (*models.Comment, error) {
	var cm models.Comment
	err := c.sendJSON(ctx, http.MethodPut, "/api/comments/{id}", "/api/comments/"+url.PathEscape(id),
		models.UpdateCommentRequest{Content: content}, &cm)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/comments/{id}", "/api/comments/"+url.PathEscape(id), nil, nil)
}
