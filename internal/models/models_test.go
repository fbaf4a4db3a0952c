package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2024-05-01T10:00:00Z"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"local datetime with millis", `"2024-05-01T10:00:00.123"`, time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC)},
		{"local datetime", `"2024-05-01T10:00:00"`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestNotification_ReadFlagSpellings(t *testing.T) {
	t.Parallel()

	var a, b, c Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","message":"m","read":true}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"2","message":"m","isRead":true}`), &b))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"3","message":"m","isRead":false,"createdAt":"2024-05-01T10:00:00"}`), &c))

	assert.True(t, a.Read)
	assert.True(t, b.Read)
	assert.False(t, c.Read)
	assert.Equal(t, "3", c.ID)
	assert.Equal(t, 2024, c.CreatedAt.Year())
	assert.Equal(t, 1, CountUnread([]Notification{a, b, c}))
}

func TestPost_LikedByUser(t *testing.T) {
	t.Parallel()

	p := &Post{LikedBy: []string{"u1", "u2"}}
	assert.True(t, p.LikedByUser("u2"))
	assert.False(t, p.LikedByUser("u3"))
	assert.False(t, p.LikedByUser(""))
}

func TestAppError_Classification(t *testing.T) {
	t.Parallel()

	unauthorized := fmt.Errorf("list posts: %w", NewHTTPError(http.StatusUnauthorized, ""))
	assert.True(t, IsUnauthorized(unauthorized))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(unauthorized))
	assert.Contains(t, unauthorized.Error(), "Unauthorized")

	notFound := NewHTTPError(http.StatusNotFound, "Comment not found")
	assert.False(t, IsUnauthorized(notFound))
	assert.Equal(t, CodeHTTP, notFound.Code)

	transport := NewTransportError(errors.New("connection refused"))
	assert.True(t, IsTransport(transport))
	assert.Equal(t, 0, StatusOf(transport))
	assert.ErrorContains(t, transport, "connection refused")

	assert.True(t, IsValidation(NewValidationError("Content is required")))
	assert.True(t, IsConflict(NewConflictError("busy")))
	assert.False(t, IsValidation(errors.New("plain")))
}

func TestLearningPlan_Validate(t *testing.T) {
	t.Parallel()

	plan := LearningPlan{Name: "Go", Description: "Learn Go", Topics: SplitList("syntax, , tooling"), Resources: SplitList("tour")}
	require.NoError(t, plan.Validate())
	assert.Equal(t, []string{"syntax", "tooling"}, plan.Topics)

	plan.Resources = SplitList(" , ")
	assert.True(t, IsValidation(plan.Validate()))

	assert.Equal(t, "alice", User{Email: "alice@example.com"}.Handle())
}
