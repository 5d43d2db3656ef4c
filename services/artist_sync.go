package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
)

// ArtistSync keeps the original-artist profile of a creator in step with their account.
type ArtistSync struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewArtistSync(db *gorm.DB, log *zap.Logger) *ArtistSync {
	return &ArtistSync{db: db, log: loggerOrNop(log)}
}

// HandleSongApproved creates or refreshes the profile named after the creator's username.
func (a *ArtistSync) HandleSongApproved(ctx context.Context, ev SongApproved) error {
	var user models.User
	if err := a.db.WithContext(ctx).First(&user, ev.CreatorID).Error; err != nil {
		return notFound(err, "creator")
	}

	artist, err := a.findOriginal(ctx, user.Username)
	if err != nil {
		return err
	}
	if artist.ID == 0 {
		if artist, err = a.create(ctx, &user); err != nil {
			return err
		}
		a.log.Info("original artist synced", zap.Uint("artist_id", artist.ID), zap.String("name", artist.Name), zap.Uint("song_id", ev.SongID))
	} else if err := a.refresh(ctx, &artist, &user); err != nil {
		return err
	}

	// Attach the song to the profile so it shows up on the artist page.
	if err := a.db.WithContext(ctx).Model(&models.Song{}).
		Where("id = ? AND artist_id IS NULL", ev.SongID).
		Update("artist_id", artist.ID).Error; err != nil {
		return fmt.Errorf("link song to artist: %w", err)
	}
	return nil
}

func (a *ArtistSync) findOriginal(ctx context.Context, name string) (models.Artist, error) {
	var artist models.Artist
	err := a.db.WithContext(ctx).
		Where("name = ? AND category = ?", name, models.ArtistOriginal).
		Limit(1).Find(&artist).Error
	if err != nil {
		return artist, fmt.Errorf("find original artist: %w", err)
	}
	return artist, nil
}

// create inserts the profile of user. When a concurrent approval inserted it first, the unique
// original name rejects this row and the existing profile is refreshed instead.
func (a *ArtistSync) create(ctx context.Context, user *models.User) (models.Artist, error) {
	artist := models.Artist{
		Name:         user.Username,
		Category:     models.ArtistOriginal,
		AvatarURL:    user.AvatarURL,
		Birth:        user.Birth,
		Area:         user.Area,
		Introduction: user.Introduction,
	}
	err := a.db.WithContext(ctx).Create(&artist).Error
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return artist, fmt.Errorf("create original artist: %w", err)
	}
	existing, err := a.findOriginal(ctx, user.Username)
	if err != nil {
		return existing, err
	}
	if existing.ID == 0 {
		return existing, fmt.Errorf("original artist %q missing after duplicate insert", user.Username)
	}
	return existing, a.refresh(ctx, &existing, user)
}

// refresh copies the mirrored account fields; an empty avatar keeps the current one.
func (a *ArtistSync) refresh(ctx context.Context, artist *models.Artist, user *models.User) error {
	updates := map[string]interface{}{
		"birth":        user.Birth,
		"area":         user.Area,
		"introduction": user.Introduction,
	}
	if user.AvatarURL != "" {
		updates["avatar_url"] = user.AvatarURL
	}
	if err := a.db.WithContext(ctx).Model(artist).Updates(updates).Error; err != nil {
		return fmt.Errorf("update original artist: %w", err)
	}
	a.log.Info("original artist refreshed", zap.Uint("artist_id", artist.ID), zap.String("name", artist.Name))
	return nil
}
