// Package testutil holds fixtures and an in-memory backend for tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"feedsync/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
)

// TokenSecret signs tokens minted by MintToken. The client never verifies
// signatures so any value works.
const TokenSecret = "feedsync-test-secret"

var seq atomic.Int64

// NextID returns a unique id with the given prefix.
func NextID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, seq.Add(1))
}

// MintToken returns an HS256 JWT for userID expiring after ttl.
func MintToken(userID string, ttl time.Duration) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TokenSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// FakeUser builds a user with random profile data.
func FakeUser() models.User {
	return models.User{
		ID:    NextID("u"),
		Name:  gofakeit.Name(),
		Email: gofakeit.Email(),
		Photo: gofakeit.URL(),
	}
}

// FakePost builds a post authored by author.
func FakePost(author models.User) models.Post {
	a := author
	return models.Post{
		ID:        NextID("p"),
		UserID:    author.ID,
		User:      &a,
		Content:   gofakeit.Sentence(8),
		CreatedAt: models.Timestamp{Time: time.Now().UTC().Truncate(time.Second)},
		LikedBy:   []string{},
	}
}

// FakeComment builds a comment on postID by author.
func FakeComment(postID string, author models.User) models.Comment {
	return models.Comment{
		ID:        NextID("c"),
		PostID:    postID,
		UserID:    author.ID,
		Username:  author.Name,
		UserPhoto: author.Photo,
		Content:   gofakeit.Sentence(5),
		CreatedAt: models.Timestamp{Time: time.Now().UTC().Truncate(time.Second)},
	}
}

// FakeNotification builds a notification for recipient with the given read flag.
func FakeNotification(recipient string, read bool) models.Notification {
	return models.Notification{
		ID:              NextID("n"),
		UserID:          recipient,
		SenderName:      gofakeit.Name(),
		Type:            models.NotificationTypeLike,
		Message:         gofakeit.Sentence(4),
		RelatedEntityID: NextID("p"),
		Read:            read,
		CreatedAt:       models.Timestamp{Time: time.Now().UTC().Truncate(time.Second)},
	}
}

// FakePlan builds a valid learning plan owned by owner.
func FakePlan(owner string) models.LearningPlan {
	return models.LearningPlan{
		ID:          NextID("lp"),
		UserID:      owner,
		Name:        gofakeit.BuzzWord() + " basics",
		Description: gofakeit.Sentence(6),
		Topics:      []string{gofakeit.Noun(), gofakeit.Noun()},
		Resources:   []string{gofakeit.URL()},
	}
}
