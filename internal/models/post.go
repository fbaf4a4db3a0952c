package models

// Post represents a post in the feed.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	User      *User     `json:"user,omitempty"`
	Content   string    `json:"content"`
	ImageURLs []string  `json:"imageUrls,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
	// LikesCount is maintained server-side; the client only adjusts it optimistically.
	LikesCount int      `json:"likesCount"`
	LikedBy    []string `json:"likedBy"`
	Comments   []string `json:"comments,omitempty"`
}

// LikedByUser reports whether userID is in the liker set.
func (p *Post) LikedByUser(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// UpdatePostRequest is the body of PUT /api/posts/{id}.
type UpdatePostRequest struct {
	Content string `json:"content"`
}
