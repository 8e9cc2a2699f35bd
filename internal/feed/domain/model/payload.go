package model

import (
	"time"

	"github.com/google/uuid"
)

// The stream backend is inconsistent about field casing: depending on the
// serializer in front of it, a pushed notification payload may carry
// PascalCase or camelCase keys. Lookup order is PascalCase first, then
// camelCase, then a safe default, so a notification built from a partial
// payload still has every required field populated.

// FromStreamPayload builds a Notification from a decoded push payload.
func FromStreamPayload(payload map[string]interface{}) Notification {
	now := time.Now().UTC()

	n := Notification{
		ID:                stringField(payload, []string{"Id", "ID", "id"}, uuid.New().String()),
		UserID:            stringField(payload, []string{"UserId", "userId"}, ""),
		UserName:          stringField(payload, []string{"UserName", "userName"}, ""),
		Type:              NotificationType(stringField(payload, []string{"Type", "type"}, string(TypeInfo))),
		Priority:          NotificationPriority(stringField(payload, []string{"Priority", "priority"}, string(PriorityNormal))),
		Channel:           NotificationChannel(stringField(payload, []string{"Channel", "channel"}, string(ChannelInApp))),
		Title:             stringField(payload, []string{"Title", "title"}, ""),
		Message:           stringField(payload, []string{"Message", "message"}, ""),
		Data:              stringField(payload, []string{"Data", "data"}, ""),
		IsRead:            boolField(payload, []string{"IsRead", "isRead"}, false),
		ReadAt:            timePtrField(payload, []string{"ReadAt", "readAt"}),
		SentAt:            timePtrField(payload, []string{"SentAt", "sentAt"}),
		ExpiresAt:         timePtrField(payload, []string{"ExpiresAt", "expiresAt"}),
		CreatedAt:         timeField(payload, []string{"CreatedAt", "createdAt"}, now),
		ModifiedAt:        timeField(payload, []string{"ModifiedAt", "modifiedAt"}, now),
		RelatedEntityID:   stringField(payload, []string{"RelatedEntityId", "relatedEntityId"}, ""),
		RelatedEntityType: stringField(payload, []string{"RelatedEntityType", "relatedEntityType"}, ""),
	}

	return n
}

// firstDefined returns the first non-nil value among the given keys.
func firstDefined(payload map[string]interface{}, keys []string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := payload[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(payload map[string]interface{}, keys []string, def string) string {
	v, ok := firstDefined(payload, keys)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func boolField(payload map[string]interface{}, keys []string, def bool) bool {
	v, ok := firstDefined(payload, keys)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func timeField(payload map[string]interface{}, keys []string, def time.Time) time.Time {
	if t, ok := parseTime(payload, keys); ok {
		return t
	}
	return def
}

func timePtrField(payload map[string]interface{}, keys []string) *time.Time {
	if t, ok := parseTime(payload, keys); ok {
		return &t
	}
	return nil
}

func parseTime(payload map[string]interface{}, keys []string) (time.Time, bool) {
	v, ok := firstDefined(payload, keys)
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
