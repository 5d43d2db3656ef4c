package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

// Cache tags.
const (
	TagArtists   = "artists"
	TagRecommend = "recommend"
)

// CacheInvalidator drops every cached entry filed under a tag.
type CacheInvalidator interface {
	InvalidateTag(ctx context.Context, tag string) error
}

// Cache is a best-effort JSON cache whose entries are grouped by tag.
type Cache interface {
	CacheInvalidator
	GetJSON(ctx context.Context, tag, key string, out interface{}) bool
	SetJSON(ctx context.Context, tag, key string, v interface{}, ttl time.Duration)
}

// ObjectStore persists uploaded files and returns their public URL.
type ObjectStore interface {
	Upload(ctx context.Context, folder string, file Upload) (string, error)
	Delete(ctx context.Context, url string) error
}

// Upload is a file received from a client.
type Upload = utils.UploadFile

// Object store folders.
const (
	FolderCovers                 = "covers"
	FolderSongs                  = "songs"
	FolderRewardQR               = "reward-qr"
	FolderAvatars                = "avatars"
	FolderPostAttachments        = "post-attachments"
	FolderRequirementAttachments = "requirement-attachments"
)

type nopCache struct{}

func (nopCache) InvalidateTag(context.Context, string) error                        { return nil }
func (nopCache) GetJSON(context.Context, string, string, interface{}) bool           { return false }
func (nopCache) SetJSON(context.Context, string, string, interface{}, time.Duration) {}

func cacheOrNop(c Cache) Cache {
	if c == nil {
		return nopCache{}
	}
	return c
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, "%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// loadUserBriefs batch loads author summaries for ids.
func loadUserBriefs(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]*models.UserBrief, error) {
	out := make(map[uint]*models.UserBrief)
	ids = utils.UniqueUint(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.WithContext(ctx).Unscoped().Select("id", "username", "avatar_url").Find(&users, ids).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = users[i].Brief()
	}
	return out, nil
}

// loadPublisher loads the caller's account and checks it may publish content.
func loadPublisher(ctx context.Context, db *gorm.DB, caller Caller) (*models.User, error) {
	if caller.Anonymous() {
		return nil, newError(ErrForbidden, "login required")
	}
	var user models.User
	if err := db.WithContext(ctx).First(&user, caller.UserID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	if !user.CanPublish() {
		return nil, newError(ErrForbidden, "account score too low to publish")
	}
	return &user, nil
}

// deleteObjects removes stored files best-effort.
func deleteObjects(ctx context.Context, store ObjectStore, log *zap.Logger, urls ...string) {
	if store == nil {
		return
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := store.Delete(ctx, u); err != nil {
			log.Warn("delete object failed", zap.String("url", u), zap.Error(err))
		}
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
