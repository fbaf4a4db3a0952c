package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/session"
	"feedsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn(t *testing.T, b *testutil.Backend) (*Client, *session.Session, models.User) {
	t.Helper()
	u := testutil.FakeUser()
	token := b.AddUser(u, "secret")
	s := session.New(nil)
	require.NoError(t, s.Establish(context.Background(), models.AuthResponse{Token: token, User: u}))
	return New(Options{BaseURL: b.URL, Session: s}), s, u
}

func TestDo_SendsCredentialAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := session.New(nil)
	require.NoError(t, s.Establish(context.Background(), models.AuthResponse{Token: testutil.MintToken("u1", time.Hour)}))
	c := New(Options{BaseURL: srv.URL + "/", Session: s})

	ctx := observability.WithCorrelationID(context.Background(), "req-123")
	body, err := c.Do(ctx, http.MethodGet, "ping", nil, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "Bearer "+s.Token(), gotAuth)
	assert.Equal(t, "req-123", gotRequestID)
}

func TestDo_NoCredentialIsNotAnError(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Session: session.New(nil)})
	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil, "")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestDo_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"message field", http.StatusBadRequest, `{"message":"Content is required"}`, "Content is required"},
		{"error field", http.StatusForbidden, `{"error":"Forbidden resource"}`, "Forbidden resource"},
		{"raw text", http.StatusInternalServerError, "boom", "boom"},
		{"empty body", http.StatusNotFound, "", "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Options{BaseURL: srv.URL}).Do(context.Background(), http.MethodGet, "/x", nil, "")
			require.Error(t, err)

			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeHTTP, appErr.Code)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestDo_NeverRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL}).Do(context.Background(), http.MethodPost, "/x", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, models.StatusOf(err))
	assert.EqualValues(t, 1, hits.Load())
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(Options{BaseURL: url}).Do(context.Background(), http.MethodGet, "/x", nil, "")
	assert.True(t, models.IsTransport(err))
	assert.Zero(t, models.StatusOf(err))
}

func TestDo_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}).Do(context.Background(), http.MethodGet, "/slow", nil, "")
	assert.True(t, models.IsTransport(err))
}

func TestDo_UnauthorizedHandler(t *testing.T) {
	b := testutil.NewBackend(t)
	s := session.New(nil)
	require.NoError(t, s.Establish(context.Background(), models.AuthResponse{Token: "a.b.c"}))

	var called atomic.Int32
	c := New(Options{
		BaseURL: b.URL,
		Session: s,
		OnUnauthorized: func(ctx context.Context, err error) {
			called.Add(1)
			assert.True(t, models.IsUnauthorized(err))
			_ = s.Clear(ctx)
		},
	})

	_, err := c.ListPosts(context.Background())
	assert.True(t, models.IsUnauthorized(err))
	assert.EqualValues(t, 1, called.Load())
	assert.Empty(t, s.Token())
}

func TestURL(t *testing.T) {
	c := New(Options{BaseURL: "http://localhost:4043/"})
	assert.Equal(t, "http://localhost:4043/api/posts", c.URL("/api/posts"))
	assert.Equal(t, "http://localhost:4043/api/posts", c.URL("api/posts"))
	assert.Equal(t, "https://cdn.example.com/a.png", c.URL("https://cdn.example.com/a.png"))
	assert.Equal(t, "http://localhost:4043/api/posts/media/f%2F1", c.MediaURL("f/1"))
}
