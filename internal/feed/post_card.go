package feed

import (
	"context"
	"strings"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"

	"go.opentelemetry.io/otel/attribute"
)

// PostAPI is the slice of the API a post card calls.
type PostAPI interface {
	LikePost(ctx context.Context, id string) error
	UnlikePost(ctx context.Context, id string) error
	UpdatePost(ctx context.Context, id, content string) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// LikeState is the like flag and count shown on a card. Both change together.
type LikeState struct {
	Liked bool
	Count int
}

// PostCard is one view's copy of a post with its like toggle and edit mode.
type PostCard struct {
	api    PostAPI
	opts   Options
	postID string

	like    *optimistic.Field[LikeState]
	content *optimistic.Field[string]

	mu       sync.Mutex
	post     models.Post
	editing  bool
	draft    string
	queued   *bool
	draining bool
}

// NewPostCard builds a card from post for the signed-in user.
func NewPostCard(api PostAPI, post models.Post, opts Options) *PostCard {
	rep := opts.reporter()
	return &PostCard{
		api:     api,
		opts:    opts,
		postID:  post.ID,
		post:    post,
		like:    optimistic.NewField("post.like", LikeState{Liked: post.LikedByUser(opts.UserID), Count: max(post.LikesCount, 0)}, rep),
		content: optimistic.NewField("post.content", post.Content, rep),
	}
}

// ID returns the post id.
func (c *PostCard) ID() string {
	return c.postID
}

// Post returns the post as currently displayed.
func (c *PostCard) Post() models.Post {
	c.mu.Lock()
	p := c.post
	c.mu.Unlock()

	st := c.like.Value()
	p.Content = c.content.Value()
	p.LikesCount = st.Count
	return p
}

// Likes returns the displayed like state.
func (c *PostCard) Likes() LikeState {
	return c.like.Value()
}

// Content returns the displayed content.
func (c *PostCard) Content() string {
	return c.content.Value()
}

// IsAuthor reports whether the signed-in user wrote the post.
func (c *PostCard) IsAuthor() bool {
	return c.opts.UserID != "" && c.post.UserID == c.opts.UserID
}

// OnChange registers fn to run after any like or content transition.
func (c *PostCard) OnChange(fn func()) {
	c.like.OnChange(func(LikeState, optimistic.Phase) { fn() })
	c.content.OnChange(func(string, optimistic.Phase) { fn() })
}

// Like marks the post liked. No-op when already liked.
func (c *PostCard) Like(ctx context.Context) error {
	return c.setLiked(ctx, true)
}

// Unlike removes the like. No-op when not liked.
func (c *PostCard) Unlike(ctx context.Context) error {
	return c.setLiked(ctx, false)
}

// ToggleLike flips the like relative to the latest requested state.
func (c *PostCard) ToggleLike(ctx context.Context) error {
	c.mu.Lock()
	want := !c.like.Value().Liked
	if c.queued != nil {
		want = !*c.queued
	}
	c.mu.Unlock()
	return c.setLiked(ctx, want)
}

// setLiked sends one like or unlike. While one is in flight a new intent is
// either rejected or, with coalescing on, queued; only the latest queued
// intent is sent once the current request settles. A failure drops the queue.
func (c *PostCard) setLiked(ctx context.Context, want bool) error {
	c.mu.Lock()
	if c.like.Pending() || c.draining {
		if !c.opts.coalesceLikes() {
			c.mu.Unlock()
			observability.OptimisticRejected.WithLabelValues("post.like").Inc()
			return optimistic.ErrPending
		}
		c.queued = &want
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	for {
		if err := c.sendLike(ctx, want); err != nil {
			c.mu.Lock()
			c.queued = nil
			c.mu.Unlock()
			return err
		}

		c.mu.Lock()
		next := c.queued
		c.queued = nil
		c.mu.Unlock()
		if next == nil {
			return nil
		}
		want = *next
	}
}

func (c *PostCard) sendLike(ctx context.Context, want bool) error {
	if c.like.Value().Liked == want {
		return nil
	}

	span, ctx := observability.StartSpan(ctx, "post.like",
		attribute.String("post.id", c.postID), attribute.Bool("liked", want))
	defer span.End()

	m, err := c.like.Begin(func(cur LikeState) LikeState {
		if want {
			return LikeState{Liked: true, Count: cur.Count + 1}
		}
		return LikeState{Liked: false, Count: max(cur.Count-1, 0)}
	})
	if err != nil {
		return err
	}

	if want {
		err = c.api.LikePost(ctx, c.postID)
	} else {
		err = c.api.UnlikePost(ctx, c.postID)
	}
	if err != nil {
		span.SetError(err)
		m.Fail(ctx, err)
		return err
	}
	m.Keep()
	return nil
}

// Editing reports whether the card is in edit mode.
func (c *PostCard) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing
}

// Draft returns the unsaved edit text.
func (c *PostCard) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// StartEdit enters edit mode with the displayed content as draft. Only the
// author may edit.
func (c *PostCard) StartEdit() error {
	if !c.IsAuthor() {
		return models.NewValidationError("You can only edit your own posts")
	}
	content := c.content.Value()
	c.mu.Lock()
	c.editing = true
	c.draft = content
	c.mu.Unlock()
	return nil
}

// SetDraft replaces the edit text.
func (c *PostCard) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// CancelEdit leaves edit mode and discards the draft.
func (c *PostCard) CancelEdit() {
	c.mu.Lock()
	c.editing = false
	c.draft = ""
	c.mu.Unlock()
}

// SaveEdit shows the draft as the content immediately and sends it. An
// empty draft is rejected without a request. On failure the content reverts
// and edit mode follows the configured EditPolicy.
func (c *PostCard) SaveEdit(ctx context.Context) error {
	c.mu.Lock()
	if !c.editing {
		c.mu.Unlock()
		return models.NewValidationError("Post is not being edited")
	}
	draft := c.draft
	c.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return models.NewValidationError("Post content cannot be empty")
	}

	span, ctx := observability.StartSpan(ctx, "post.edit", attribute.String("post.id", c.postID))
	defer span.End()

	m, err := c.content.Begin(func(string) string { return draft })
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.editing = false
	c.mu.Unlock()

	updated, err := c.api.UpdatePost(ctx, c.postID, draft)
	if err != nil {
		span.SetError(err)
		m.Fail(ctx, err)
		c.mu.Lock()
		if c.opts.EditPolicy == StayEditing {
			c.editing = true
		} else {
			c.draft = ""
		}
		c.mu.Unlock()
		return err
	}

	confirmed := draft
	if updated != nil && updated.Content != "" {
		confirmed = updated.Content
	}
	m.Succeed(confirmed)

	c.mu.Lock()
	c.draft = ""
	c.mu.Unlock()
	return nil
}

// Delete removes the post on the server. Only the author may delete.
func (c *PostCard) Delete(ctx context.Context) error {
	if !c.IsAuthor() {
		return models.NewValidationError("You can only delete your own posts")
	}
	return c.api.DeletePost(ctx, c.postID)
}
