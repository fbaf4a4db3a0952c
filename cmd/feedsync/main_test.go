package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"feedsync/internal/app"
	"feedsync/internal/config"
	"feedsync/internal/models"
	"feedsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	backend *testutil.Backend
	app     *app.App
	me      models.User
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	b := testutil.NewBackend(t)
	me := testutil.FakeUser()
	b.AddUser(me, "hunter2")

	cfg := &config.Config{
		APIBaseURL:            b.URL,
		Env:                   "test",
		LogLevel:              "error",
		RequestTimeoutSeconds: 5,
		PollIntervalSeconds:   1,
		SessionStore:          config.SessionStoreFile,
		SessionFile:           filepath.Join(t.TempDir(), "session.yml"),
		MaxUploadMB:           1,
		FeatureFlags:          "coalesce_likes=off",
	}
	a, err := app.New(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return &cli{backend: b, app: a, me: me}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), c.app, &out, args)
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	_, err := c.run(t, "login", "--email", c.me.Email, "--password", "hunter2")
	require.NoError(t, err)
}

func TestRun_Usage(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run(t, "bogus")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run(t, "feed")
	assert.ErrorIs(t, err, app.ErrSignedOut)

	c.login(t)
	_, err = c.run(t, "like")
	assert.ErrorIs(t, err, errUsage)

	_, err = c.run(t, "feed", "--nope")
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_LoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "login", "--email", c.me.Email, "--password", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, c.me.Email)

	out, err = c.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, c.me.ID)

	_, err = c.run(t, "logout")
	require.NoError(t, err)
	_, err = c.run(t, "whoami")
	assert.ErrorIs(t, err, app.ErrSignedOut)
}

func TestRun_PostLikeEditDelete(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	out, err := c.run(t, "post", "--content", "hello from the terminal")
	require.NoError(t, err)
	assert.Contains(t, out, "1 posts")

	c.backend.Lock()
	postID := c.backend.Posts[0].ID
	c.backend.Unlock()

	out, err = c.run(t, "like", postID)
	require.NoError(t, err)
	assert.Equal(t, "liked=true likes=1\n", out)

	out, err = c.run(t, "feed")
	require.NoError(t, err)
	assert.Contains(t, out, "♥ 1")
	assert.Contains(t, out, "hello from the terminal")

	_, err = c.run(t, "edit", postID, "--content", "edited")
	require.NoError(t, err)
	c.backend.Lock()
	assert.Equal(t, "edited", c.backend.Posts[0].Content)
	c.backend.Unlock()

	_, err = c.run(t, "delete", postID)
	require.NoError(t, err)
	out, err = c.run(t, "feed")
	require.NoError(t, err)
	assert.Equal(t, "No posts yet\n", out)
}

func TestRun_DeleteOthersPostRejected(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	other := testutil.FakeUser()
	post := testutil.FakePost(other)
	c.backend.Lock()
	c.backend.Posts = append(c.backend.Posts, post)
	c.backend.Unlock()

	_, err := c.run(t, "delete", post.ID)
	assert.True(t, models.IsValidation(err))
	assert.Zero(t, c.backend.CallCount("DELETE /api/posts/"+post.ID))
}

func TestRun_Comments(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	post := testutil.FakePost(c.me)
	c.backend.Lock()
	c.backend.Posts = append(c.backend.Posts, post)
	c.backend.Unlock()

	out, err := c.run(t, "comment", post.ID, "--content", "first!")
	require.NoError(t, err)
	assert.Contains(t, out, "first!")

	c.backend.Lock()
	commentID := c.backend.Comments[0].ID
	c.backend.Unlock()

	out, err = c.run(t, "comment-edit", post.ID, commentID, "--content", "second")
	require.NoError(t, err)
	assert.Contains(t, out, "second")

	out, err = c.run(t, "comment-delete", post.ID, commentID)
	require.NoError(t, err)
	assert.Equal(t, "No comments yet\n", out)
}

func TestRun_Notifications(t *testing.T) {
	c := newCLI(t)
	c.login(t)
	c.backend.Lock()
	unread := testutil.FakeNotification(c.me.ID, false)
	c.backend.Notifications = append(c.backend.Notifications,
		unread,
		testutil.FakeNotification(c.me.ID, false),
		testutil.FakeNotification(c.me.ID, true),
	)
	c.backend.Unlock()

	out, err := c.run(t, "notifications", "--unread")
	require.NoError(t, err)
	assert.Contains(t, out, "2 unread")

	out, err = c.run(t, "read", unread.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "1 unread")

	out, err = c.run(t, "read-all")
	require.NoError(t, err)
	assert.Contains(t, out, "0 unread")
}

func TestRun_Plans(t *testing.T) {
	c := newCLI(t)
	c.login(t)

	_, err := c.run(t, "plan-create", "--name", "Go")
	assert.True(t, models.IsValidation(err))

	out, err := c.run(t, "plan-create", "--name", "Go", "--description", "learn go",
		"--topics", "generics, channels", "--resources", "tour.golang.org")
	require.NoError(t, err)
	assert.Contains(t, out, "generics, channels")

	c.backend.Lock()
	planID := c.backend.Plans[0].ID
	c.backend.Unlock()

	out, err = c.run(t, "plan-update", planID, "--name", "Go deep dive")
	require.NoError(t, err)
	assert.Contains(t, out, "Go deep dive")
	assert.Contains(t, out, "learn go")

	out, err = c.run(t, "plans", "--search", "deep")
	require.NoError(t, err)
	assert.Contains(t, out, planID)

	out, err = c.run(t, "plan-delete", planID)
	require.NoError(t, err)
	assert.Equal(t, "No learning plans\n", out)
}
