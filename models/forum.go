package models

import "time"

// ForumPost is a forum thread. Requirement posts carry the extra fields describing the
// commissioned work and accept orders from other users.
type ForumPost struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`
	UserID              uint         `gorm:"index;not null" json:"user_id"`
	Title               string       `gorm:"size:255;not null" json:"title"`
	Content             string       `gorm:"type:text;not null" json:"content"`
	Type                PostType     `gorm:"type:tinyint;not null;default:0;index" json:"type"`
	Status              RecordStatus `gorm:"type:tinyint;not null;default:0" json:"status"`
	AuditStatus         AuditStatus  `gorm:"type:tinyint;index;not null;default:0" json:"audit_status"`
	AuditReason         string       `gorm:"size:255" json:"audit_reason"`
	RequirementType     string       `gorm:"size:64" json:"requirement_type"`
	TimeRequirement     string       `gorm:"size:128" json:"time_requirement"`
	Budget              string       `gorm:"size:64" json:"budget"`
	StyleDescription    string       `gorm:"type:text" json:"style_description"`
	ReferenceAttachment string       `gorm:"size:512" json:"reference_attachment"`
	IsAccepted          bool         `gorm:"not null;default:false" json:"is_accepted"`
	IsTop               bool         `gorm:"not null;default:false" json:"is_top"`
	ViewCount           int          `gorm:"not null;default:0" json:"view_count"`
	ReplyCount          int          `gorm:"not null;default:0" json:"reply_count"`
	LikeCount           int          `gorm:"not null;default:0" json:"like_count"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	Author              *UserBrief   `gorm:"-" json:"author,omitempty"`
}

// ForumReply is a reply to a post; ParentID points at another reply for nested answers.
type ForumReply struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	PostID      uint         `gorm:"index;not null" json:"post_id"`
	UserID      uint         `gorm:"index;not null" json:"user_id"`
	ParentID    *uint        `gorm:"index" json:"parent_id"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	LikeCount   int          `gorm:"not null;default:0" json:"like_count"`
	Status      RecordStatus `gorm:"type:tinyint;not null;default:0" json:"status"`
	AuditStatus AuditStatus  `gorm:"type:tinyint;index;not null;default:0" json:"audit_status"`
	AuditReason string       `gorm:"size:255" json:"audit_reason"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Author      *UserBrief   `gorm:"-" json:"author,omitempty"`
	Children    []ForumReply `gorm:"-" json:"children,omitempty"`
}

// ForumOrder is an application by AccepterID to fulfil a requirement post. At most one row
// exists per (post, accepter); re-applying after a rejection replaces the rejected row.
type ForumOrder struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	PostID      uint        `gorm:"not null;uniqueIndex:idx_order_post_accepter" json:"post_id"`
	PosterID    uint        `gorm:"not null;index" json:"poster_id"`
	AccepterID  uint        `gorm:"not null;uniqueIndex:idx_order_post_accepter;index" json:"accepter_id"`
	Status      OrderStatus `gorm:"type:tinyint;not null;default:0;index" json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StatusLabel string      `gorm:"-" json:"status_label"`
	PostTitle   string      `gorm:"-" json:"post_title,omitempty"`
	Poster      *UserBrief  `gorm:"-" json:"poster,omitempty"`
	Accepter    *UserBrief  `gorm:"-" json:"accepter,omitempty"`
}

// AllModels lists every persisted model, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Artist{}, &Song{}, &SongPlayDaily{}, &Playlist{}, &PlaylistSong{},
		&Favorite{}, &Comment{}, &ForumPost{}, &ForumReply{}, &ForumOrder{},
	}
}
