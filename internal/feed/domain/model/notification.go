package model

import (
	"time"
)

// NotificationType classifies a notification. The set of values is owned by
// the backend; unknown values are carried through untouched.
type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeSuccess NotificationType = "success"
	TypeWarning NotificationType = "warning"
	TypeError   NotificationType = "error"
	TypeSystem  NotificationType = "system"
)

// NotificationPriority is the backend-owned priority tag.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationChannel is the backend-owned delivery channel tag.
type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "in_app"
	ChannelEmail NotificationChannel = "email"
	ChannelPush  NotificationChannel = "push"
)

// Notification is the central feed entity. It is created server-side and
// arrives either via a REST page or a live push; the client only reflects it
// and never constructs new ones, apart from mutating the read state.
type Notification struct {
	ID                string               `json:"id"`
	UserID            string               `json:"userId"`
	UserName          string               `json:"userName"`
	Type              NotificationType     `json:"type"`
	Priority          NotificationPriority `json:"priority"`
	Channel           NotificationChannel  `json:"channel"`
	Title             string               `json:"title"`
	Message           string               `json:"message"`
	Data              string               `json:"data,omitempty"`
	IsRead            bool                 `json:"isRead"`
	ReadAt            *time.Time           `json:"readAt,omitempty"`
	SentAt            *time.Time           `json:"sentAt,omitempty"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	ModifiedAt        time.Time            `json:"modifiedAt"`
	RelatedEntityID   string               `json:"relatedEntityId,omitempty"`
	RelatedEntityType string               `json:"relatedEntityType,omitempty"`
}

// IsExpired reports whether the notification has expired at the given time.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return now.After(*n.ExpiresAt)
}

// MarkRead flips the read state one way. Already-read notifications keep
// their original readAt.
func (n *Notification) MarkRead(at time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &at
	n.ModifiedAt = at
}
