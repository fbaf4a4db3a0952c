package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"feedsync/internal/collection"
	"feedsync/internal/models"
)

// CommentAPI is the slice of the API a comment thread calls.
type CommentAPI interface {
	PostComments(ctx context.Context, postID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, postID, content string) (*models.Comment, error)
	UpdateComment(ctx context.Context, id, content string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

// CommentThread is the comment list of one post plus the composer. Every
// mutation is followed by a reload.
type CommentThread struct {
	api    CommentAPI
	opts   Options
	postID string
	list   *collection.Synchronizer[string, models.Comment]

	mu        sync.Mutex
	draft     string
	editingID string
}

// NewCommentThread creates an unloaded thread for postID.
func NewCommentThread(client CommentAPI, postID string, opts Options) *CommentThread {
	t := &CommentThread{api: client, opts: opts, postID: postID}
	t.list = collection.New("comments",
		func(c models.Comment) string { return c.ID },
		func(ctx context.Context) ([]models.Comment, error) {
			return client.PostComments(ctx, postID)
		},
		opts.reporter())
	t.list.OnChange(t.dropVanishedEdit)
	return t
}

// dropVanishedEdit leaves edit mode when the comment being edited is no
// longer in the list.
func (t *CommentThread) dropVanishedEdit(items []models.Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editingID == "" {
		return
	}
	for _, c := range items {
		if c.ID == t.editingID {
			return
		}
	}
	t.editingID = ""
	t.draft = ""
}

// PostID returns the post the thread belongs to.
func (t *CommentThread) PostID() string {
	return t.postID
}

// Open fetches the thread fresh.
func (t *CommentThread) Open(ctx context.Context) error {
	return t.list.Load(ctx)
}

// Comments returns the loaded comments in server order.
func (t *CommentThread) Comments() []models.Comment {
	return t.list.Items()
}

// Draft returns the composer text.
func (t *CommentThread) Draft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draft
}

// SetDraft replaces the composer text.
func (t *CommentThread) SetDraft(text string) {
	t.mu.Lock()
	t.draft = text
	t.mu.Unlock()
}

// EditingID returns the id of the comment being edited, or "".
func (t *CommentThread) EditingID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.editingID
}

func (t *CommentThread) ownComment(id string) (models.Comment, error) {
	c, ok := t.list.Get(id)
	if !ok {
		return models.Comment{}, models.NewNotFoundError("Comment", id)
	}
	if t.opts.UserID == "" || c.UserID != t.opts.UserID {
		return models.Comment{}, models.NewValidationError("You can only change your own comments")
	}
	return c, nil
}

// StartEdit loads the comment into the composer. Author only.
func (t *CommentThread) StartEdit(id string) error {
	c, err := t.ownComment(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.editingID = c.ID
	t.draft = c.Content
	t.mu.Unlock()
	return nil
}

// CancelEdit leaves edit mode and clears the composer.
func (t *CommentThread) CancelEdit() {
	t.mu.Lock()
	t.editingID = ""
	t.draft = ""
	t.mu.Unlock()
}

// Submit sends the composer: an update while editing, otherwise a new
// comment. Empty text is rejected without a request. The composer is kept
// when the server rejects the comment and cleared once it is accepted, even
// if the reload after it fails.
func (t *CommentThread) Submit(ctx context.Context) error {
	t.mu.Lock()
	draft, editingID := t.draft, t.editingID
	t.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return models.NewValidationError("Comment cannot be empty")
	}

	err := t.list.Mutate(ctx, func(ctx context.Context) error {
		if editingID != "" {
			if _, err := t.api.UpdateComment(ctx, editingID, draft); err != nil {
				return fmt.Errorf("update comment: %w", err)
			}
			return nil
		}
		if _, err := t.api.CreateComment(ctx, t.postID, draft); err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
	if !collection.MutationApplied(err) {
		return err
	}

	t.mu.Lock()
	if t.draft == draft {
		t.draft = ""
	}
	if t.editingID == editingID {
		t.editingID = ""
	}
	t.mu.Unlock()
	return err
}

// Delete removes a comment and reloads. Author only.
func (t *CommentThread) Delete(ctx context.Context, id string) error {
	if _, err := t.ownComment(id); err != nil {
		return err
	}
	return t.list.Mutate(ctx, func(ctx context.Context) error {
		if err := t.api.DeleteComment(ctx, id); err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		return nil
	})
}
