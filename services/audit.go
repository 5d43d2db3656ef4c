package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/metrics"
	"github.com/cppla/vibemusic/models"
)

// ContentKind names a moderated content type.
type ContentKind string

const (
	KindSong    ContentKind = "song"
	KindPost    ContentKind = "post"
	KindReply   ContentKind = "reply"
	KindComment ContentKind = "comment"
)

// ContentKinds lists every moderated kind.
var ContentKinds = []ContentKind{KindSong, KindPost, KindReply, KindComment}

// ParseContentKind validates a kind received from a client.
func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSong, KindPost, KindReply, KindComment:
		return k, nil
	}
	return "", newError(ErrInvalidRequest, "unknown content kind %q", s)
}

func (k ContentKind) model() interface{} {
	switch k {
	case KindSong:
		return &models.Song{}
	case KindPost:
		return &models.ForumPost{}
	case KindReply:
		return &models.ForumReply{}
	case KindComment:
		return &models.Comment{}
	}
	return nil
}

// AuditService applies moderation decisions. Approve and reject overwrite the current status
// whatever it is, so a moderator can revise an earlier decision.
type AuditService struct {
	db       *gorm.DB
	log      *zap.Logger
	cache    CacheInvalidator
	handlers []SongApprovedHandler
}

func NewAuditService(db *gorm.DB, cache CacheInvalidator, log *zap.Logger) *AuditService {
	if cache == nil {
		cache = nopCache{}
	}
	return &AuditService{db: db, cache: cache, log: loggerOrNop(log)}
}

// OnSongApproved registers a handler run after each committed original song approval.
func (s *AuditService) OnSongApproved(h SongApprovedHandler) {
	s.handlers = append(s.handlers, h)
}

// Approve marks content as approved and clears any rejection reason.
func (s *AuditService) Approve(ctx context.Context, kind ContentKind, id uint) error {
	if err := s.setStatus(ctx, kind, id, models.AuditApproved, ""); err != nil {
		return err
	}
	if kind == KindSong {
		s.afterSongApproved(ctx, id)
	}
	return nil
}

// Reject marks content as rejected, storing reason in place of any earlier one.
func (s *AuditService) Reject(ctx context.Context, kind ContentKind, id uint, reason string) error {
	return s.setStatus(ctx, kind, id, models.AuditRejected, strings.TrimSpace(reason))
}

func (s *AuditService) setStatus(ctx context.Context, kind ContentKind, id uint, status models.AuditStatus, reason string) error {
	model := kind.model()
	if model == nil {
		return newError(ErrInvalidRequest, "unknown content kind %q", kind)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(model, id).Error; err != nil {
			return notFound(err, string(kind))
		}
		res := tx.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
			"audit_status": status,
			"audit_reason": reason,
		})
		if res.Error != nil {
			return fmt.Errorf("update %s audit status: %w", kind, res.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordAuditDecision(string(kind), status.String())
	s.log.Info("content audited", zap.String("kind", string(kind)), zap.Uint("id", id), zap.String("status", status.String()))
	return nil
}

// afterSongApproved runs outside the approval transaction; nothing here can undo the approval.
func (s *AuditService) afterSongApproved(ctx context.Context, songID uint) {
	var song models.Song
	if err := s.db.WithContext(ctx).Select("id", "is_original", "creator_id").First(&song, songID).Error; err != nil {
		s.log.Warn("reload approved song failed", zap.Uint("song_id", songID), zap.Error(err))
		return
	}
	if song.IsOriginal && song.CreatorID != nil && *song.CreatorID != 0 {
		ev := SongApproved{SongID: song.ID, CreatorID: *song.CreatorID}
		for _, h := range s.handlers {
			if err := h.HandleSongApproved(ctx, ev); err != nil {
				metrics.RecordSideEffectFailure("artist_sync")
				s.log.Error("song approved handler failed",
					zap.Uint("song_id", ev.SongID),
					zap.Uint("creator_id", ev.CreatorID),
					zap.Error(err))
			}
		}
	}
	if err := s.cache.InvalidateTag(ctx, TagArtists); err != nil {
		metrics.RecordSideEffectFailure("cache_invalidation")
		s.log.Warn("invalidate artist cache failed", zap.Error(err))
	}
}

// PendingItem is one row of the moderation queue.
type PendingItem struct {
	Kind       ContentKind `json:"kind"`
	ID         uint        `json:"id"`
	OwnerID    uint        `json:"owner_id"`
	Username   string      `json:"username"`
	UserAvatar string      `json:"user_avatar"`
	Summary    string      `json:"summary"`
	CreatedAt  time.Time   `json:"created_at"`
	Content    interface{} `json:"content"`
}

// ListPending returns content of kind awaiting moderation, newest first. Only original songs
// are queued; catalog songs are managed by editors.
func (s *AuditService) ListPending(ctx context.Context, kind ContentKind, req PageRequest) (Page[PendingItem], error) {
	req = req.normalize()
	db := s.db.WithContext(ctx)
	var (
		items []PendingItem
		total int64
		err   error
	)
	switch kind {
	case KindSong:
		var rows []models.Song
		total, err = pageQuery(db.Model(&models.Song{}).Where("audit_status = ? AND is_original = ?", models.AuditPending, true), req, &rows)
		for _, r := range rows {
			owner := uint(0)
			if r.CreatorID != nil {
				owner = *r.CreatorID
			}
			items = append(items, PendingItem{Kind: kind, ID: r.ID, OwnerID: owner, Summary: r.Name, CreatedAt: r.CreatedAt, Content: r})
		}
	case KindPost:
		var rows []models.ForumPost
		total, err = pageQuery(db.Model(&models.ForumPost{}).Where("audit_status = ? AND status = ?", models.AuditPending, models.RecordActive), req, &rows)
		for _, r := range rows {
			items = append(items, PendingItem{Kind: kind, ID: r.ID, OwnerID: r.UserID, Summary: r.Title, CreatedAt: r.CreatedAt, Content: r})
		}
	case KindReply:
		var rows []models.ForumReply
		total, err = pageQuery(db.Model(&models.ForumReply{}).Where("audit_status = ? AND status = ?", models.AuditPending, models.RecordActive), req, &rows)
		for _, r := range rows {
			items = append(items, PendingItem{Kind: kind, ID: r.ID, OwnerID: r.UserID, Summary: summarize(r.Content), CreatedAt: r.CreatedAt, Content: r})
		}
	case KindComment:
		var rows []models.Comment
		total, err = pageQuery(db.Model(&models.Comment{}).Where("audit_status = ?", models.AuditPending), req, &rows)
		for _, r := range rows {
			items = append(items, PendingItem{Kind: kind, ID: r.ID, OwnerID: r.UserID, Summary: summarize(r.Content), CreatedAt: r.CreatedAt, Content: r})
		}
	default:
		return Page[PendingItem]{}, newError(ErrInvalidRequest, "unknown content kind %q", kind)
	}
	if err != nil {
		return Page[PendingItem]{}, err
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.OwnerID)
	}
	users, err := loadUserBriefs(ctx, s.db, ids)
	if err != nil {
		return Page[PendingItem]{}, err
	}
	for i := range items {
		if u, ok := users[items[i].OwnerID]; ok {
			items[i].Username = u.Username
			items[i].UserAvatar = u.AvatarURL
		}
	}
	return newPage(items, total, req), nil
}

// PendingCounts returns the size of each moderation queue.
func (s *AuditService) PendingCounts(ctx context.Context) (map[ContentKind]int64, error) {
	db := s.db.WithContext(ctx)
	queries := map[ContentKind]*gorm.DB{
		KindSong:    db.Model(&models.Song{}).Where("audit_status = ? AND is_original = ?", models.AuditPending, true),
		KindPost:    db.Model(&models.ForumPost{}).Where("audit_status = ? AND status = ?", models.AuditPending, models.RecordActive),
		KindReply:   db.Model(&models.ForumReply{}).Where("audit_status = ? AND status = ?", models.AuditPending, models.RecordActive),
		KindComment: db.Model(&models.Comment{}).Where("audit_status = ?", models.AuditPending),
	}
	out := make(map[ContentKind]int64, len(queries))
	for kind, q := range queries {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count pending %s: %w", kind, err)
		}
		out[kind] = n
	}
	return out, nil
}

// pageQuery counts q and loads one page of it, newest first, into dest.
func pageQuery(q *gorm.DB, req PageRequest, dest interface{}) (int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Offset(req.offset()).Limit(req.PageSize).Find(dest).Error; err != nil {
		return 0, fmt.Errorf("list: %w", err)
	}
	return total, nil
}

func summarize(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return string(r)
}
