package feed

import (
	"context"
	"fmt"

	"feedsync/internal/api"
	"feedsync/internal/collection"
	"feedsync/internal/models"
)

// FeedAPI is the slice of the API a feed calls.
type FeedAPI interface {
	PostAPI
	ListPosts(ctx context.Context) ([]models.Post, error)
	FollowingPosts(ctx context.Context) ([]models.Post, error)
	CreatePost(ctx context.Context, form *api.Form) (*models.Post, error)
}

// Source selects which posts a feed shows.
type Source int

const (
	SourceAll Source = iota
	SourceFollowing
)

func (s Source) String() string {
	if s == SourceFollowing {
		return "following"
	}
	return "all"
}

// Feed is a list of posts kept in step with the server.
type Feed struct {
	api    FeedAPI
	opts   Options
	source Source
	posts  *collection.Synchronizer[string, models.Post]
}

// NewFeed creates an unloaded feed. Its cards evaluate flags in the view
// named after source unless opts names one.
func NewFeed(client FeedAPI, source Source, opts Options) *Feed {
	if opts.View == "" {
		opts.View = source.String()
	}
	fetch := client.ListPosts
	if source == SourceFollowing {
		fetch = client.FollowingPosts
	}
	return &Feed{
		api:    client,
		opts:   opts,
		source: source,
		posts: collection.New("posts."+source.String(),
			func(p models.Post) string { return p.ID },
			fetch,
			opts.reporter()),
	}
}

// Source returns which posts the feed shows.
func (f *Feed) Source() Source {
	return f.source
}

// Load replaces the feed with the server's list.
func (f *Feed) Load(ctx context.Context) error {
	return f.posts.Load(ctx)
}

// Posts returns the loaded posts in server order.
func (f *Feed) Posts() []models.Post {
	return f.posts.Items()
}

// OnChange registers fn to run after every reload or local change.
func (f *Feed) OnChange(fn func(posts []models.Post)) {
	f.posts.OnChange(fn)
}

// Card returns a fresh card for the post with id. Cards are independent
// copies; a reload does not update cards already handed out.
func (f *Feed) Card(id string) (*PostCard, error) {
	p, ok := f.posts.Get(id)
	if !ok {
		return nil, models.NewNotFoundError("Post", id)
	}
	return NewPostCard(f.api, p, f.opts), nil
}

// Create validates the attachments, uploads the post and reloads.
func (f *Feed) Create(ctx context.Context, content string, images []api.Attachment, video *api.Attachment) error {
	checked := make([]api.Attachment, 0, len(images))
	for _, img := range images {
		mime, err := f.opts.Limits.ValidateImage(img.Name, img.Data)
		if err != nil {
			return err
		}
		img.ContentType = mime
		checked = append(checked, img)
	}
	if video != nil {
		v := *video
		mime, err := f.opts.Limits.ValidateVideo(v.Name, v.Data)
		if err != nil {
			return err
		}
		v.ContentType = mime
		video = &v
	}

	form, err := api.NewPostForm(content, checked, video)
	if err != nil {
		return err
	}

	return f.posts.Mutate(ctx, func(ctx context.Context) error {
		if _, err := f.api.CreatePost(ctx, form); err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		return nil
	})
}

// Delete removes the post with id and reloads. Only the author may delete.
func (f *Feed) Delete(ctx context.Context, id string) error {
	card, err := f.Card(id)
	if err != nil {
		return err
	}
	if !card.IsAuthor() {
		return models.NewValidationError("You can only delete your own posts")
	}
	return f.posts.Mutate(ctx, card.Delete)
}

// SaveCard reloads the feed after a card's edit settles so the list shows
// the server's copy.
func (f *Feed) SaveCard(ctx context.Context, card *PostCard) error {
	return f.posts.Mutate(ctx, card.SaveEdit)
}
