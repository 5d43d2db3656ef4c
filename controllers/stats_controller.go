package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// StatsController provides dashboard statistics such as counts and the moderation backlog.
type StatsController struct {
	db    *gorm.DB
	audit *services.AuditService
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, audit *services.AuditService) *StatsController {
	return &StatsController{db: db, audit: audit}
}

// GetStats returns aggregate statistics for the admin dashboard.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	count := func(model interface{}, where ...interface{}) int64 {
		var n int64
		q := db.Model(model)
		if len(where) > 0 {
			q = q.Where(where[0], where[1:]...)
		}
		if err := q.Count(&n).Error; err != nil {
			// Fallback to 0 instead of failing the whole endpoint
			return 0
		}
		return n
	}

	pending, err := s.audit.PendingCounts(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{
		"user_count":     count(&models.User{}),
		"song_count":     count(&models.Song{}),
		"original_count": count(&models.Song{}, "is_original = ?", true),
		"artist_count":   count(&models.Artist{}),
		"playlist_count": count(&models.Playlist{}),
		"post_count":     count(&models.ForumPost{}, "status = ?", models.RecordActive),
		"pending":        pending,
	})
}
