package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// CatalogController serves songs, artists, playlists, favourites and song comments.
type CatalogController struct {
	catalog     *services.CatalogService
	uploadMaxMB int
}

func NewCatalogController(catalog *services.CatalogService, uploadMaxMB int) *CatalogController {
	return &CatalogController{catalog: catalog, uploadMaxMB: uploadMaxMB}
}

func (c *CatalogController) songFilter(ctx *gin.Context) services.SongFilter {
	return services.SongFilter{
		Keyword:     strings.TrimSpace(ctx.Query("keyword")),
		Style:       strings.TrimSpace(ctx.Query("style")),
		ArtistID:    queryUint(ctx, "artist_id"),
		PageRequest: pageRequest(ctx),
	}
}

// ListSongs returns approved songs.
func (c *CatalogController) ListSongs(ctx *gin.Context) {
	page, err := c.catalog.ListSongs(ctx.Request.Context(), callerFrom(ctx), c.songFilter(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ListOriginalSongs returns approved user uploads.
func (c *CatalogController) ListOriginalSongs(ctx *gin.Context) {
	filter := c.songFilter(ctx)
	filter.OriginalOnly = true
	page, err := c.catalog.ListSongs(ctx.Request.Context(), callerFrom(ctx), filter)
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// RecommendedSongs returns songs picked from the caller's favourite styles.
func (c *CatalogController) RecommendedSongs(ctx *gin.Context) {
	songs, err := c.catalog.RecommendedSongs(ctx.Request.Context(), callerFrom(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, songs)
}

// GetSong returns one song with its play count.
func (c *CatalogController) GetSong(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	song, err := c.catalog.GetSong(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	plays, err := c.catalog.PlayCount(ctx.Request.Context(), id)
	if err != nil {
		// Play counts are decorative; keep serving the song
		plays = 0
	}
	utils.Success(ctx, gin.H{"song": song, "play_count": plays})
}

// RecordPlay counts one play.
func (c *CatalogController) RecordPlay(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.catalog.RecordPlay(ctx.Request.Context(), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

type songUploadRequest struct {
	Name          string `form:"name" binding:"required"`
	Style         string `form:"style"`
	Lyric         string `form:"lyric"`
	Duration      string `form:"duration"`
	ReleaseDate   string `form:"release_date"`
	RewardEnabled bool   `form:"reward_enabled"`
}

// UploadSong accepts a multipart form with "audio", "cover" and optional "reward_qr" files.
func (c *CatalogController) UploadSong(ctx *gin.Context) {
	var req songUploadRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	in := services.SongUploadInput{
		Name:          req.Name,
		Style:         req.Style,
		Lyric:         req.Lyric,
		Duration:      req.Duration,
		RewardEnabled: req.RewardEnabled,
	}
	if strings.TrimSpace(req.ReleaseDate) != "" {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.ReleaseDate), time.Local)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40003, "release_date must be YYYY-MM-DD")
			return
		}
		in.ReleaseDate = &d
	}

	files := newUploads(ctx, c.uploadMaxMB)
	defer files.Close()
	var err error
	if in.Audio, err = files.file("audio"); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	if in.Cover, err = files.file("cover"); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	if in.RewardQR, err = files.file("reward_qr"); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}

	song, err := c.catalog.UploadOriginalSong(ctx.Request.Context(), callerFrom(ctx), in)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, song)
}

// DeleteSong removes an original song.
func (c *CatalogController) DeleteSong(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.catalog.DeleteOriginalSong(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "song deleted"})
}

// ListUserSongs returns the original songs of a user.
func (c *CatalogController) ListUserSongs(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, err := c.catalog.UserOriginalSongs(ctx.Request.Context(), callerFrom(ctx), userContentFilter(ctx, id))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ListArtists returns artists filtered by name and category.
func (c *CatalogController) ListArtists(ctx *gin.Context) {
	filter := services.ArtistFilter{Name: strings.TrimSpace(ctx.Query("name")), PageRequest: pageRequest(ctx)}
	if v, ok := queryInt8(ctx, "category"); ok {
		cat := models.ArtistCategory(v)
		filter.Category = &cat
	}
	page, err := c.catalog.ListArtists(ctx.Request.Context(), filter)
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// GetArtist returns an artist with approved songs.
func (c *CatalogController) GetArtist(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.catalog.GetArtist(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, detail)
}

// ListPlaylists returns playlists filtered by keyword and style.
func (c *CatalogController) ListPlaylists(ctx *gin.Context) {
	page, err := c.catalog.ListPlaylists(ctx.Request.Context(), strings.TrimSpace(ctx.Query("keyword")), strings.TrimSpace(ctx.Query("style")), pageRequest(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// GetPlaylist returns a playlist with approved songs.
func (c *CatalogController) GetPlaylist(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.catalog.GetPlaylist(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, detail)
}

// AddFavorite marks a song as liked.
func (c *CatalogController) AddFavorite(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.catalog.AddFavorite(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

// RemoveFavorite unmarks a liked song.
func (c *CatalogController) RemoveFavorite(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.catalog.RemoveFavorite(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

// ListFavorites returns the caller's liked songs.
func (c *CatalogController) ListFavorites(ctx *gin.Context) {
	page, err := c.catalog.ListFavorites(ctx.Request.Context(), callerFrom(ctx), pageRequest(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ListComments returns approved comments of a song plus the caller's own.
func (c *CatalogController) ListComments(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, err := c.catalog.ListSongComments(ctx.Request.Context(), callerFrom(ctx), id, pageRequest(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// AddComment submits a comment for moderation.
func (c *CatalogController) AddComment(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	comment, err := c.catalog.AddComment(ctx.Request.Context(), callerFrom(ctx), id, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, comment)
}

// DeleteComment removes a comment.
func (c *CatalogController) DeleteComment(ctx *gin.Context) {
	id, ok := paramID(ctx, "commentId")
	if !ok {
		return
	}
	if err := c.catalog.DeleteComment(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "comment deleted"})
}
