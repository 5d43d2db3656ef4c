package models

import (
	"time"

	"gorm.io/gorm"
)

// Artist is a catalog artist. Profiles with Category ArtistOriginal are maintained from the
// uploading user's account each time one of their original songs is approved.
type Artist struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:128;not null;index:idx_artist_name_category" json:"name"`
	Category     ArtistCategory `gorm:"type:tinyint;not null;default:0;index:idx_artist_name_category" json:"category"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	Birth        *time.Time     `gorm:"type:date" json:"birth"`
	Area         string         `gorm:"size:64" json:"area"`
	Introduction string         `gorm:"type:text" json:"introduction"`
	// Name for original artists, NULL otherwise; the unique index keeps one profile per creator.
	OriginalName *string        `gorm:"size:128;uniqueIndex:uk_artists_original_name" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// BeforeSave keeps OriginalName in step with Name and Category.
func (a *Artist) BeforeSave(*gorm.DB) error {
	a.OriginalName = nil
	if a.Category == ArtistOriginal {
		name := a.Name
		a.OriginalName = &name
	}
	return nil
}

// Song is either a catalog track or a user uploaded original work.
type Song struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	ArtistID      *uint       `gorm:"index" json:"artist_id"`
	Name          string      `gorm:"size:255;not null" json:"name"`
	Style         string      `gorm:"size:64;index" json:"style"`
	Lyric         string      `gorm:"type:text" json:"lyric"`
	Duration      string      `gorm:"size:16" json:"duration"`
	CoverURL      string      `gorm:"size:512" json:"cover_url"`
	AudioURL      string      `gorm:"size:512" json:"audio_url"`
	ReleaseDate   *time.Time  `gorm:"type:date" json:"release_date"`
	CreatorID     *uint       `gorm:"index" json:"creator_id"`
	IsOriginal    bool        `gorm:"not null;default:false" json:"is_original"`
	RewardEnabled bool        `gorm:"not null;default:false" json:"reward_enabled"`
	RewardQRURL   string      `gorm:"column:reward_qr_url;size:512" json:"reward_qr_url"`
	AuditStatus   AuditStatus `gorm:"type:tinyint;index;not null;default:0" json:"audit_status"`
	AuditReason   string      `gorm:"size:255" json:"audit_reason"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ArtistName    string      `gorm:"-" json:"artist_name,omitempty"`
	Creator       *UserBrief  `gorm:"-" json:"creator,omitempty"`
	IsFavorite    bool        `gorm:"-" json:"is_favorite"`
}

// SongPlayDaily aggregates play counts per song and day.
type SongPlayDaily struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"uniqueIndex:idx_play_date_song;type:date;not null" json:"date"`
	SongID    uint      `gorm:"uniqueIndex:idx_play_date_song;index;not null" json:"song_id"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Playlist is an editorial collection of songs.
type Playlist struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	CoverURL     string    `gorm:"size:512" json:"cover_url"`
	Introduction string    `gorm:"type:text" json:"introduction"`
	Style        string    `gorm:"size:64;index" json:"style"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PlaylistSong links songs to playlists.
type PlaylistSong struct {
	PlaylistID uint      `gorm:"primaryKey" json:"playlist_id"`
	SongID     uint      `gorm:"primaryKey;index" json:"song_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Favorite records a user liking a song.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_fav_user_song;not null" json:"user_id"`
	SongID    uint      `gorm:"uniqueIndex:idx_fav_user_song;index;not null" json:"song_id"`
	CreatedAt time.Time `json:"created_at"`
}
