package storage

import "time"

// ProfileChangedEvent 档案创建或编辑后发布，消费者据此重算匹配结果
type ProfileChangedEvent struct {
	UserID    string    `json:"user_id"`
	ProfileID string    `json:"profile_id"`
	Version   int       `json:"version"`
	ChangedAt time.Time `json:"changed_at"`
}
