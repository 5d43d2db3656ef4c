package models

import "time"

// Comment is a user remark on a song. Comments are moderated before they become public.
type Comment struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	SongID      uint        `gorm:"index;not null" json:"song_id"`
	UserID      uint        `gorm:"index;not null" json:"user_id"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	LikeCount   int         `gorm:"not null;default:0" json:"like_count"`
	AuditStatus AuditStatus `gorm:"type:tinyint;index;not null;default:0" json:"audit_status"`
	AuditReason string      `gorm:"size:255" json:"audit_reason"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Author      *UserBrief  `gorm:"-" json:"author,omitempty"`
}
