package models

// Comment represents a comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	UserPhoto string    `json:"userPhoto,omitempty"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
}

// CreateCommentRequest is the body of POST /api/comments.
type CreateCommentRequest struct {
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

// UpdateCommentRequest is the body of PUT /api/comments/{id}.
type UpdateCommentRequest struct {
	Content string `json:"content"`
}
