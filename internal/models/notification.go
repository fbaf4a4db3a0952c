package models

import "encoding/json"

// Notification types emitted by the service.
const (
	NotificationTypeLike    = "like"
	NotificationTypeComment = "comment"
	NotificationTypeFollow  = "follow"
)

// Notification is addressed to the current user. The client may only move
// Read from false to true.
type Notification struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	SenderName      string    `json:"senderName,omitempty"`
	SenderPhoto     string    `json:"senderPhoto,omitempty"`
	Type            string    `json:"type,omitempty"`
	Message         string    `json:"message"`
	RelatedEntityID string    `json:"relatedEntityId,omitempty"`
	Read            bool      `json:"read"`
	CreatedAt       Timestamp `json:"createdAt"`
}

// UnmarshalJSON accepts the read flag as either "read" or "isRead"; the
// service has shipped both spellings.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	aux := struct {
		*plain
		IsRead *bool `json:"isRead"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.IsRead != nil && *aux.IsRead {
		n.Read = true
	}
	return nil
}

// CountUnread returns the number of unread notifications in items.
func CountUnread(items []Notification) int {
	n := 0
	for i := range items {
		if !items[i].Read {
			n++
		}
	}
	return n
}
