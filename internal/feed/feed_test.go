package feed

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/featureflags"
	"feedsync/internal/models"
	"feedsync/internal/optimistic"
	"feedsync/internal/session"
	"feedsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	backend *testutil.Backend
	client  *api.Client
	me      models.User
	opts    Options

	mu       sync.Mutex
	reported []error
}

func newEnv(t *testing.T, flags string) *env {
	t.Helper()
	b := testutil.NewBackend(t)
	me := testutil.FakeUser()
	token := b.AddUser(me, "pw")

	s := session.New(nil)
	require.NoError(t, s.Establish(context.Background(), models.AuthResponse{Token: token, User: me}))

	e := &env{backend: b, client: api.New(api.Options{BaseURL: b.URL, Session: s}), me: me}
	e.opts = Options{
		UserID: me.ID,
		Flags:  featureflags.NewManager(flags).For(me.ID),
		Reporter: optimistic.ReporterFunc(func(_ context.Context, _ string, err error) {
			e.mu.Lock()
			e.reported = append(e.reported, err)
			e.mu.Unlock()
		}),
	}
	return e
}

func (e *env) reports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reported)
}

func (e *env) seedPost(author models.User, likes int, likedByMe bool) models.Post {
	p := testutil.FakePost(author)
	p.LikesCount = likes
	for i := 0; i < likes; i++ {
		p.LikedBy = append(p.LikedBy, testutil.NextID("liker"))
	}
	if likedByMe {
		p.LikedBy[0] = e.me.ID
	}
	e.backend.Lock()
	e.backend.Posts = append(e.backend.Posts, p)
	e.backend.Unlock()
	return p
}

func TestPostCard_LikeIsOptimistic(t *testing.T) {
	e := newEnv(t, "")
	post := e.seedPost(testutil.FakeUser(), 3, false)
	card := NewPostCard(e.client, post, e.opts)

	release := e.backend.Hold("POST /api/posts/" + post.ID + "/like")
	done := make(chan error, 1)
	go func() { done <- card.Like(context.Background()) }()

	require.Eventually(t, func() bool { return card.Likes() == LikeState{Liked: true, Count: 4} }, time.Second, time.Millisecond)
	assert.ErrorIs(t, card.ToggleLike(context.Background()), optimistic.ErrPending, "without coalescing a second toggle is rejected")

	release()
	require.NoError(t, <-done)
	assert.Equal(t, LikeState{Liked: true, Count: 4}, card.Likes())
}

func TestPostCard_LikeFailureReverts(t *testing.T) {
	e := newEnv(t, "")
	post := e.seedPost(testutil.FakeUser(), 1, true)
	card := NewPostCard(e.client, post, e.opts)
	require.Equal(t, LikeState{Liked: true, Count: 1}, card.Likes())

	e.backend.FailNext("POST /api/posts/"+post.ID+"/unlike", http.StatusInternalServerError)
	err := card.Unlike(context.Background())
	assert.Equal(t, http.StatusInternalServerError, models.StatusOf(err))
	assert.Equal(t, LikeState{Liked: true, Count: 1}, card.Likes())
	assert.Equal(t, 1, e.reports())
}

func TestPostCard_UnlikeNeverGoesNegative(t *testing.T) {
	e := newEnv(t, "")
	post := e.seedPost(testutil.FakeUser(), 1, true)
	post.LikesCount = 0
	card := NewPostCard(e.client, post, e.opts)

	require.NoError(t, card.Unlike(context.Background()))
	assert.Equal(t, LikeState{Liked: false, Count: 0}, card.Likes())
}

func TestPostCard_CoalescedTogglesConverge(t *testing.T) {
	e := newEnv(t, "coalesce_likes=on")
	post := e.seedPost(testutil.FakeUser(), 5, false)
	card := NewPostCard(e.client, post, e.opts)
	ctx := context.Background()

	release := e.backend.Hold("POST /api/posts/" + post.ID + "/like")
	done := make(chan error, 1)
	go func() { done <- card.ToggleLike(ctx) }()
	require.Eventually(t, card.like.Pending, time.Second, time.Millisecond)

	// like (in flight), unlike, like, unlike: net zero.
	require.NoError(t, card.ToggleLike(ctx))
	require.NoError(t, card.ToggleLike(ctx))
	require.NoError(t, card.ToggleLike(ctx))

	release()
	require.NoError(t, <-done)

	assert.Equal(t, LikeState{Liked: false, Count: 5}, card.Likes())

	e.backend.Lock()
	server := e.backend.Posts[0]
	e.backend.Unlock()
	assert.Equal(t, 5, server.LikesCount)
	assert.False(t, server.LikedByUser(e.me.ID))
}

func TestPostCard_CoalescedOddTogglesEndLiked(t *testing.T) {
	e := newEnv(t, "coalesce_likes=on")
	post := e.seedPost(testutil.FakeUser(), 2, false)
	card := NewPostCard(e.client, post, e.opts)
	ctx := context.Background()

	release := e.backend.Hold("POST /api/posts/" + post.ID + "/like")
	done := make(chan error, 1)
	go func() { done <- card.ToggleLike(ctx) }()
	require.Eventually(t, card.like.Pending, time.Second, time.Millisecond)

	require.NoError(t, card.ToggleLike(ctx))
	require.NoError(t, card.ToggleLike(ctx))

	release()
	require.NoError(t, <-done)
	assert.Equal(t, LikeState{Liked: true, Count: 3}, card.Likes())
	assert.Equal(t, 1, e.backend.CallCount("POST /api/posts/"+post.ID+"/like"))
	assert.Zero(t, e.backend.CallCount("POST /api/posts/"+post.ID+"/unlike"))
}

func TestPostCard_EditShowsDraftThenConfirms(t *testing.T) {
	e := newEnv(t, "")
	post := e.seedPost(e.me, 0, false)
	card := NewPostCard(e.client, post, e.opts)

	require.NoError(t, card.StartEdit())
	assert.Equal(t, post.Content, card.Draft())
	card.SetDraft("new text")

	release := e.backend.Hold("PUT /api/posts/" + post.ID)
	done := make(chan error, 1)
	go func() { done <- card.SaveEdit(context.Background()) }()

	require.Eventually(t, func() bool { return card.Content() == "new text" }, time.Second, time.Millisecond)
	assert.False(t, card.Editing())

	release()
	require.NoError(t, <-done)
	assert.Equal(t, "new text", card.Content())
	assert.Empty(t, card.Draft())
}

func TestPostCard_EditFailureReverts(t *testing.T) {
	tests := []struct {
		name        string
		policy      EditPolicy
		wantEditing bool
		wantDraft   string
	}{
		{"stay editing", StayEditing, true, "broken"},
		{"exit editing", ExitEditing, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "")
			post := e.seedPost(e.me, 0, false)
			opts := e.opts
			opts.EditPolicy = tt.policy
			card := NewPostCard(e.client, post, opts)

			require.NoError(t, card.StartEdit())
			card.SetDraft("broken")
			e.backend.FailNext("PUT /api/posts/"+post.ID, http.StatusBadGateway)

			err := card.SaveEdit(context.Background())
			assert.Equal(t, http.StatusBadGateway, models.StatusOf(err))
			assert.Equal(t, post.Content, card.Content())
			assert.Equal(t, tt.wantEditing, card.Editing())
			assert.Equal(t, tt.wantDraft, card.Draft())
		})
	}
}

func TestPostCard_EditRules(t *testing.T) {
	e := newEnv(t, "")
	mine := NewPostCard(e.client, e.seedPost(e.me, 0, false), e.opts)
	theirs := NewPostCard(e.client, e.seedPost(testutil.FakeUser(), 0, false), e.opts)

	assert.True(t, models.IsValidation(theirs.StartEdit()))
	assert.True(t, models.IsValidation(mine.SaveEdit(context.Background())), "save outside edit mode")

	require.NoError(t, mine.StartEdit())
	mine.SetDraft("   ")
	assert.True(t, models.IsValidation(mine.SaveEdit(context.Background())))
	assert.Zero(t, e.backend.CallCount("PUT /api/posts/"+mine.ID()), "empty drafts are never sent")

	mine.CancelEdit()
	assert.False(t, mine.Editing())
	assert.Empty(t, mine.Draft())
}

func TestFeed_LoadCreateDelete(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	e.seedPost(testutil.FakeUser(), 0, false)

	f := NewFeed(e.client, SourceAll, e.opts)
	require.NoError(t, f.Load(ctx))
	require.Len(t, f.Posts(), 1)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	require.NoError(t, f.Create(ctx, "with picture", []api.Attachment{{Name: "p.png", Data: buf.Bytes()}}, nil))

	posts := f.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "with picture", posts[0].Content)
	assert.Len(t, posts[0].ImageURLs, 1)

	err := f.Create(ctx, "bad", []api.Attachment{{Name: "x.png", Data: []byte("not an image")}}, nil)
	assert.True(t, models.IsValidation(err))
	assert.Len(t, f.Posts(), 2)

	assert.True(t, models.IsValidation(f.Delete(ctx, posts[1].ID)), "cannot delete someone else's post")
	require.NoError(t, f.Delete(ctx, posts[0].ID))
	assert.Len(t, f.Posts(), 1)

	_, err = f.Card("missing")
	assert.Error(t, err)
}

func TestFeed_DeleteFailureStillReloads(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	mine := e.seedPost(e.me, 0, false)

	f := NewFeed(e.client, SourceAll, e.opts)
	require.NoError(t, f.Load(ctx))

	other := e.seedPost(testutil.FakeUser(), 0, false)
	e.backend.FailNext("DELETE /api/posts/"+mine.ID, http.StatusInternalServerError)

	err := f.Delete(ctx, mine.ID)
	assert.Equal(t, http.StatusInternalServerError, models.StatusOf(err))
	assert.Len(t, f.Posts(), 2, "the reload after a failed delete shows the server's list")
	_, ok := f.posts.Get(other.ID)
	assert.True(t, ok)
}

func TestFeed_Following(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	friend := testutil.FakeUser()
	e.backend.AddUser(friend, "pw")
	e.seedPost(friend, 0, false)
	e.seedPost(testutil.FakeUser(), 0, false)
	require.NoError(t, e.client.FollowUser(ctx, friend.ID))

	f := NewFeed(e.client, SourceFollowing, e.opts)
	require.NoError(t, f.Load(ctx))
	require.Len(t, f.Posts(), 1)
	assert.Equal(t, friend.ID, f.Posts()[0].UserID)
	assert.Equal(t, "following", f.Source().String())
}

func TestFeed_CardsAreIndependentCopies(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	post := e.seedPost(testutil.FakeUser(), 0, false)

	f := NewFeed(e.client, SourceAll, e.opts)
	require.NoError(t, f.Load(ctx))

	a, err := f.Card(post.ID)
	require.NoError(t, err)
	b, err := f.Card(post.ID)
	require.NoError(t, err)

	require.NoError(t, a.Like(ctx))
	assert.Equal(t, 1, a.Likes().Count)
	assert.Equal(t, 0, b.Likes().Count, "other views keep their copy until they reload")
}

func TestFeed_CardsUseViewScopedFlags(t *testing.T) {
	e := newEnv(t, "coalesce_likes=on,coalesce_likes@all=off")
	post := e.seedPost(testutil.FakeUser(), 0, false)
	other := e.seedPost(testutil.FakeUser(), 0, false)
	ctx := context.Background()

	f := NewFeed(e.client, SourceAll, e.opts)
	require.NoError(t, f.Load(ctx))
	inFeed, err := f.Card(post.ID)
	require.NoError(t, err)
	standalone := NewPostCard(e.client, other, e.opts)

	releaseFeed := e.backend.Hold("POST /api/posts/" + post.ID + "/like")
	releaseOther := e.backend.Hold("POST /api/posts/" + other.ID + "/like")
	done := make(chan error, 2)
	go func() { done <- inFeed.ToggleLike(ctx) }()
	go func() { done <- standalone.ToggleLike(ctx) }()
	require.Eventually(t, func() bool { return inFeed.like.Pending() && standalone.like.Pending() }, time.Second, time.Millisecond)

	assert.ErrorIs(t, inFeed.ToggleLike(ctx), optimistic.ErrPending, "the all view turns coalescing off")
	assert.NoError(t, standalone.ToggleLike(ctx), "outside a view the unscoped rule applies")

	releaseFeed()
	releaseOther()
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.Equal(t, LikeState{Liked: true, Count: 1}, inFeed.Likes())
	assert.Equal(t, LikeState{Liked: false, Count: 0}, standalone.Likes())
}
