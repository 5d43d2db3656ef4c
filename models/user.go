package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultUserScore is the credit a fresh account starts with. A score of zero or below
// blocks posting, replying and uploading.
const DefaultUserScore = 100

// User represents a platform account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string         `gorm:"size:255" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	Introduction string         `gorm:"size:512" json:"introduction"`
	Area         string         `gorm:"size:64" json:"area"`
	Birth        *time.Time     `gorm:"type:date" json:"birth"`
	Score        int            `gorm:"not null;default:100" json:"score"`
	Status       int8           `gorm:"not null;default:0" json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProfileComplete reports whether the fields mirrored into an original-artist profile are filled.
func (u *User) ProfileComplete() bool {
	return u.Birth != nil && strings.TrimSpace(u.Area) != "" && strings.TrimSpace(u.Introduction) != ""
}

// CanPublish reports whether the account may create posts, replies, comments and uploads.
func (u *User) CanPublish() bool {
	return u.Score > 0 && u.Status == UserEnabled
}

// UserBrief is the public author summary attached to listed content.
type UserBrief struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Brief returns the public summary of u.
func (u *User) Brief() *UserBrief {
	return &UserBrief{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}
