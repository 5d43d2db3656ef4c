package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

const (
	recommendCount      = 20
	recommendCandidates = 80
	recommendTTL        = 30 * time.Minute
	artistListTTL       = time.Hour
	maxDailyUploads     = 10
	randomSongPoolLimit = 1000
)

// CatalogService serves songs, artists, playlists, favourites and song comments.
type CatalogService struct {
	db    *gorm.DB
	store ObjectStore
	cache Cache
	log   *zap.Logger
	now   func() time.Time
}

func NewCatalogService(db *gorm.DB, store ObjectStore, cache Cache, log *zap.Logger) *CatalogService {
	return &CatalogService{db: db, store: store, cache: cacheOrNop(cache), log: loggerOrNop(log), now: time.Now}
}

// SongFilter narrows song listings.
type SongFilter struct {
	Keyword      string
	Style        string
	ArtistID     uint
	OriginalOnly bool
	PageRequest
}

// ListSongs lists approved songs, newest first.
func (s *CatalogService) ListSongs(ctx context.Context, caller Caller, f SongFilter) (Page[models.Song], error) {
	req := f.PageRequest.normalize()
	q := s.db.WithContext(ctx).Model(&models.Song{}).Where("audit_status = ?", models.AuditApproved)
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		q = q.Where("name LIKE ?", "%"+kw+"%")
	}
	if st := strings.TrimSpace(f.Style); st != "" {
		q = q.Where("style = ?", st)
	}
	if f.ArtistID != 0 {
		q = q.Where("artist_id = ?", f.ArtistID)
	}
	if f.OriginalOnly {
		q = q.Where("is_original = ?", true)
	}
	var songs []models.Song
	total, err := pageQuery(q, req, &songs)
	if err != nil {
		return Page[models.Song]{}, err
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return Page[models.Song]{}, err
	}
	return newPage(songs, total, req), nil
}

// GetSong returns a song visible to the caller: approved songs to everyone, others only to
// their creator and admins.
func (s *CatalogService) GetSong(ctx context.Context, caller Caller, id uint) (*models.Song, error) {
	song, err := s.visibleSong(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	songs := []models.Song{*song}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return nil, err
	}
	return &songs[0], nil
}

// RecordPlay counts one play of an approved song for today.
func (s *CatalogService) RecordPlay(ctx context.Context, songID uint) error {
	if err := s.requireApprovedSong(ctx, songID); err != nil {
		return err
	}
	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "song_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
	}).Create(&models.SongPlayDaily{Date: day, SongID: songID, Count: 1}).Error
	if err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// PlayCount returns the total number of plays of a song.
func (s *CatalogService) PlayCount(ctx context.Context, songID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SongPlayDaily{}).Where("song_id = ?", songID).
		Select("COALESCE(SUM(count),0)").Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("sum plays: %w", err)
	}
	return n, nil
}

// RecommendedSongs picks songs in the styles the caller favours most. Anonymous callers and
// callers without favourites get a random selection.
func (s *CatalogService) RecommendedSongs(ctx context.Context, caller Caller) ([]models.Song, error) {
	if caller.Anonymous() {
		return s.randomSongs(ctx, caller, recommendCount, nil)
	}
	var favIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Favorite{}).Where("user_id = ?", caller.UserID).Pluck("song_id", &favIDs).Error; err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	if len(favIDs) == 0 {
		return s.randomSongs(ctx, caller, recommendCount, nil)
	}

	tag := recommendTag(caller.UserID)
	var candidates []uint
	if !s.cache.GetJSON(ctx, tag, "candidates", &candidates) {
		var err error
		candidates, err = s.recommendCandidates(ctx, favIDs)
		if err != nil {
			return nil, err
		}
		s.cache.SetJSON(ctx, tag, "candidates", candidates, recommendTTL)
	}

	picked := append([]uint(nil), candidates...)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	if len(picked) > recommendCount {
		picked = picked[:recommendCount]
	}
	var songs []models.Song
	if len(picked) > 0 {
		if err := s.db.WithContext(ctx).Where("audit_status = ?", models.AuditApproved).Find(&songs, picked).Error; err != nil {
			return nil, fmt.Errorf("load recommended songs: %w", err)
		}
	}
	if len(songs) < recommendCount {
		exclude := append(append([]uint(nil), favIDs...), idsOf(songs)...)
		extra, err := s.randomSongs(ctx, caller, recommendCount-len(songs), exclude)
		if err != nil {
			return nil, err
		}
		songs = append(songs, extra...)
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return nil, err
	}
	return songs, nil
}

func recommendTag(userID uint) string {
	return fmt.Sprintf("%s:%d", TagRecommend, userID)
}

// recommendCandidates ranks the styles of favIDs by frequency and collects approved songs
// of those styles that are not already favourites.
func (s *CatalogService) recommendCandidates(ctx context.Context, favIDs []uint) ([]uint, error) {
	var styles []string
	if err := s.db.WithContext(ctx).Model(&models.Song{}).Where("id IN ? AND style <> ''", favIDs).Pluck("style", &styles).Error; err != nil {
		return nil, fmt.Errorf("load favorite styles: %w", err)
	}
	freq := make(map[string]int)
	for _, st := range styles {
		freq[st]++
	}
	ranked := make([]string, 0, len(freq))
	for st := range freq {
		ranked = append(ranked, st)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	out := make([]uint, 0, recommendCandidates)
	for _, st := range ranked {
		if len(out) >= recommendCandidates {
			break
		}
		var ids []uint
		err := s.db.WithContext(ctx).Model(&models.Song{}).
			Where("audit_status = ? AND style = ? AND id NOT IN ?", models.AuditApproved, st, favIDs).
			Order("id DESC").Limit(recommendCandidates-len(out)).Pluck("id", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
		out = append(out, ids...)
	}
	return out, nil
}

// randomSongs samples n approved songs from the most recent part of the catalogue.
func (s *CatalogService) randomSongs(ctx context.Context, caller Caller, n int, exclude []uint) ([]models.Song, error) {
	q := s.db.WithContext(ctx).Model(&models.Song{}).Where("audit_status = ?", models.AuditApproved)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var ids []uint
	if err := q.Order("id DESC").Limit(randomSongPoolLimit).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load song pool: %w", err)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > n {
		ids = ids[:n]
	}
	songs := []models.Song{}
	if len(ids) == 0 {
		return songs, nil
	}
	if err := s.db.WithContext(ctx).Find(&songs, ids).Error; err != nil {
		return nil, fmt.Errorf("load random songs: %w", err)
	}
	return songs, s.decorateSongs(ctx, caller, songs)
}

// SongUploadInput carries the metadata of an original song upload.
type SongUploadInput struct {
	Name          string
	Style         string
	Lyric         string
	Duration      string
	ReleaseDate   *time.Time
	RewardEnabled bool
	Audio         *Upload
	Cover         *Upload
	RewardQR      *Upload
}

// UploadOriginalSong stores a user's original song for moderation. The uploader needs a
// complete profile, since it seeds their artist page, and may upload a limited number of
// songs per day.
func (s *CatalogService) UploadOriginalSong(ctx context.Context, caller Caller, in SongUploadInput) (*models.Song, error) {
	user, err := loadPublisher(ctx, s.db, caller)
	if err != nil {
		return nil, err
	}
	if !user.ProfileComplete() {
		return nil, newError(ErrInvalidRequest, "complete birth, area and introduction in your profile before uploading")
	}
	name := utils.PlainText(in.Name)
	if name == "" {
		return nil, newError(ErrInvalidRequest, "song name cannot be empty")
	}
	if in.Audio == nil || in.Cover == nil {
		return nil, newError(ErrInvalidRequest, "audio and cover files are required")
	}
	if in.RewardEnabled && in.RewardQR == nil {
		return nil, newError(ErrInvalidRequest, "reward QR code is required when rewards are enabled")
	}
	if s.store == nil {
		return nil, newError(ErrInvalidRequest, "uploads are not supported")
	}

	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var today int64
	if err := s.db.WithContext(ctx).Model(&models.Song{}).
		Where("creator_id = ? AND created_at >= ?", caller.UserID, dayStart).Count(&today).Error; err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}
	if today >= maxDailyUploads {
		return nil, newError(ErrConflict, "daily upload limit of %d songs reached", maxDailyUploads)
	}

	var uploaded []string
	upload := func(folder string, f *Upload) (string, error) {
		if f == nil {
			return "", nil
		}
		url, err := s.store.Upload(ctx, folder, *f)
		if err != nil {
			deleteObjects(ctx, s.store, s.log, uploaded...)
			return "", fmt.Errorf("upload to %s: %w", folder, err)
		}
		uploaded = append(uploaded, url)
		return url, nil
	}
	audioURL, err := upload(FolderSongs, in.Audio)
	if err != nil {
		return nil, err
	}
	coverURL, err := upload(FolderCovers, in.Cover)
	if err != nil {
		return nil, err
	}
	qrURL, err := upload(FolderRewardQR, in.RewardQR)
	if err != nil {
		return nil, err
	}

	creator := caller.UserID
	song := models.Song{
		Name:          name,
		Style:         utils.PlainText(in.Style),
		Lyric:         utils.Sanitize(in.Lyric),
		Duration:      strings.TrimSpace(in.Duration),
		ReleaseDate:   in.ReleaseDate,
		CreatorID:     &creator,
		IsOriginal:    true,
		RewardEnabled: in.RewardEnabled,
		RewardQRURL:   qrURL,
		AudioURL:      audioURL,
		CoverURL:      coverURL,
		AuditStatus:   models.AuditPending,
	}
	if err := s.db.WithContext(ctx).Create(&song).Error; err != nil {
		deleteObjects(ctx, s.store, s.log, uploaded...)
		return nil, fmt.Errorf("create song: %w", err)
	}
	if err := s.cache.InvalidateTag(ctx, TagRecommend); err != nil {
		s.log.Warn("invalidate recommendations failed", zap.Error(err))
	}
	s.log.Info("original song uploaded", zap.Uint("song_id", song.ID), zap.Uint("user_id", caller.UserID))
	return &song, nil
}

// UserOriginalSongs lists original songs created by a user. Other visitors only see approved songs.
func (s *CatalogService) UserOriginalSongs(ctx context.Context, caller Caller, f UserContentFilter) (Page[models.Song], error) {
	req := f.PageRequest.normalize()
	q := s.db.WithContext(ctx).Model(&models.Song{}).Where("creator_id = ? AND is_original = ?", f.UserID, true)
	q = scopeAudit(q, caller, f.UserID, f.AuditStatus)
	var songs []models.Song
	total, err := pageQuery(q, req, &songs)
	if err != nil {
		return Page[models.Song]{}, err
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return Page[models.Song]{}, err
	}
	return newPage(songs, total, req), nil
}

// DeleteOriginalSong removes an original song with its favourites, comments and playlist links.
func (s *CatalogService) DeleteOriginalSong(ctx context.Context, caller Caller, id uint) error {
	var song models.Song
	if err := s.db.WithContext(ctx).Where("is_original = ?", true).First(&song, id).Error; err != nil {
		return notFound(err, "song")
	}
	if song.CreatorID == nil || !caller.Owns(*song.CreatorID) {
		return newError(ErrForbidden, "you can only delete your own songs")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.Favorite{}, &models.Comment{}, &models.PlaylistSong{}, &models.SongPlayDaily{}} {
			if err := tx.Where("song_id = ?", song.ID).Delete(m).Error; err != nil {
				return fmt.Errorf("delete song dependents: %w", err)
			}
		}
		if err := tx.Delete(&models.Song{}, song.ID).Error; err != nil {
			return fmt.Errorf("delete song: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	deleteObjects(ctx, s.store, s.log, song.AudioURL, song.CoverURL, song.RewardQRURL)
	if err := s.cache.InvalidateTag(ctx, TagRecommend); err != nil {
		s.log.Warn("invalidate recommendations failed", zap.Error(err))
	}
	return nil
}

// ArtistFilter narrows artist listings.
type ArtistFilter struct {
	Name     string
	Category *models.ArtistCategory
	PageRequest
}

// ListArtists lists artists by name. Pages are cached under the artists tag.
func (s *CatalogService) ListArtists(ctx context.Context, f ArtistFilter) (Page[models.Artist], error) {
	req := f.PageRequest.normalize()
	name := strings.TrimSpace(f.Name)
	cat := "all"
	if f.Category != nil {
		cat = fmt.Sprint(int8(*f.Category))
	}
	key := fmt.Sprintf("list:name=%s:cat=%s:page=%d:size=%d", name, cat, req.Page, req.PageSize)
	var cached Page[models.Artist]
	if s.cache.GetJSON(ctx, TagArtists, key, &cached) {
		return cached, nil
	}

	q := s.db.WithContext(ctx).Model(&models.Artist{})
	if name != "" {
		q = q.Where("name LIKE ?", "%"+name+"%")
	}
	if f.Category != nil {
		q = q.Where("category = ?", *f.Category)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[models.Artist]{}, fmt.Errorf("count artists: %w", err)
	}
	var artists []models.Artist
	if err := q.Order("name ASC").Order("id ASC").Offset(req.offset()).Limit(req.PageSize).Find(&artists).Error; err != nil {
		return Page[models.Artist]{}, fmt.Errorf("list artists: %w", err)
	}
	page := newPage(artists, total, req)
	s.cache.SetJSON(ctx, TagArtists, key, page, artistListTTL)
	return page, nil
}

// ArtistDetail is an artist with their approved songs.
type ArtistDetail struct {
	Artist models.Artist `json:"artist"`
	Songs  []models.Song `json:"songs"`
}

func (s *CatalogService) GetArtist(ctx context.Context, caller Caller, id uint) (*ArtistDetail, error) {
	var artist models.Artist
	if err := s.db.WithContext(ctx).First(&artist, id).Error; err != nil {
		return nil, notFound(err, "artist")
	}
	songs := []models.Song{}
	if err := s.db.WithContext(ctx).Where("artist_id = ? AND audit_status = ?", id, models.AuditApproved).
		Order("created_at DESC").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("list artist songs: %w", err)
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return nil, err
	}
	return &ArtistDetail{Artist: artist, Songs: songs}, nil
}

// ListPlaylists lists playlists by title and style.
func (s *CatalogService) ListPlaylists(ctx context.Context, keyword, style string, req PageRequest) (Page[models.Playlist], error) {
	req = req.normalize()
	q := s.db.WithContext(ctx).Model(&models.Playlist{})
	if kw := strings.TrimSpace(keyword); kw != "" {
		q = q.Where("title LIKE ?", "%"+kw+"%")
	}
	if st := strings.TrimSpace(style); st != "" {
		q = q.Where("style = ?", st)
	}
	var playlists []models.Playlist
	total, err := pageQuery(q, req, &playlists)
	if err != nil {
		return Page[models.Playlist]{}, err
	}
	return newPage(playlists, total, req), nil
}

// PlaylistDetail is a playlist with its approved songs.
type PlaylistDetail struct {
	Playlist models.Playlist `json:"playlist"`
	Songs    []models.Song   `json:"songs"`
}

func (s *CatalogService) GetPlaylist(ctx context.Context, caller Caller, id uint) (*PlaylistDetail, error) {
	var pl models.Playlist
	if err := s.db.WithContext(ctx).First(&pl, id).Error; err != nil {
		return nil, notFound(err, "playlist")
	}
	var songIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.PlaylistSong{}).Where("playlist_id = ?", id).
		Order("created_at ASC").Pluck("song_id", &songIDs).Error; err != nil {
		return nil, fmt.Errorf("load playlist songs: %w", err)
	}
	songs := []models.Song{}
	if len(songIDs) > 0 {
		if err := s.db.WithContext(ctx).Where("audit_status = ?", models.AuditApproved).Find(&songs, songIDs).Error; err != nil {
			return nil, fmt.Errorf("load playlist songs: %w", err)
		}
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return nil, err
	}
	return &PlaylistDetail{Playlist: pl, Songs: songs}, nil
}

// AddFavorite marks an approved song as a favourite of the caller. Adding twice is a no-op.
func (s *CatalogService) AddFavorite(ctx context.Context, caller Caller, songID uint) error {
	if caller.Anonymous() {
		return newError(ErrForbidden, "login required")
	}
	if err := s.requireApprovedSong(ctx, songID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Favorite{UserID: caller.UserID, SongID: songID}).Error
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	s.dropRecommendations(ctx, caller.UserID)
	return nil
}

// RemoveFavorite drops a favourite of the caller.
func (s *CatalogService) RemoveFavorite(ctx context.Context, caller Caller, songID uint) error {
	if caller.Anonymous() {
		return newError(ErrForbidden, "login required")
	}
	res := s.db.WithContext(ctx).Where("user_id = ? AND song_id = ?", caller.UserID, songID).Delete(&models.Favorite{})
	if res.Error != nil {
		return fmt.Errorf("remove favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(ErrNotFound, "favorite not found")
	}
	s.dropRecommendations(ctx, caller.UserID)
	return nil
}

// ListFavorites lists the caller's favourite songs, most recently added first.
func (s *CatalogService) ListFavorites(ctx context.Context, caller Caller, req PageRequest) (Page[models.Song], error) {
	req = req.normalize()
	if caller.Anonymous() {
		return Page[models.Song]{}, newError(ErrForbidden, "login required")
	}
	q := s.db.WithContext(ctx).Model(&models.Favorite{}).Where("user_id = ?", caller.UserID)
	var favs []models.Favorite
	total, err := pageQuery(q, req, &favs)
	if err != nil {
		return Page[models.Song]{}, err
	}
	ids := make([]uint, 0, len(favs))
	for _, f := range favs {
		ids = append(ids, f.SongID)
	}
	var found []models.Song
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Find(&found, ids).Error; err != nil {
			return Page[models.Song]{}, fmt.Errorf("load favorite songs: %w", err)
		}
	}
	byID := make(map[uint]models.Song, len(found))
	for _, song := range found {
		byID[song.ID] = song
	}
	songs := make([]models.Song, 0, len(ids))
	for _, id := range ids {
		if song, ok := byID[id]; ok {
			songs = append(songs, song)
		}
	}
	if err := s.decorateSongs(ctx, caller, songs); err != nil {
		return Page[models.Song]{}, err
	}
	return newPage(songs, total, req), nil
}

func (s *CatalogService) dropRecommendations(ctx context.Context, userID uint) {
	if err := s.cache.InvalidateTag(ctx, recommendTag(userID)); err != nil {
		s.log.Warn("invalidate recommendations failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// AddComment stores a comment on an approved song, pending moderation.
func (s *CatalogService) AddComment(ctx context.Context, caller Caller, songID uint, content string) (*models.Comment, error) {
	if _, err := loadPublisher(ctx, s.db, caller); err != nil {
		return nil, err
	}
	if err := s.requireApprovedSong(ctx, songID); err != nil {
		return nil, err
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, newError(ErrInvalidRequest, "content cannot be empty")
	}
	c := models.Comment{SongID: songID, UserID: caller.UserID, Content: content, AuditStatus: models.AuditPending}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return &c, nil
}

// ListSongComments lists approved comments of a song plus the caller's own pending ones.
func (s *CatalogService) ListSongComments(ctx context.Context, caller Caller, songID uint, req PageRequest) (Page[models.Comment], error) {
	req = req.normalize()
	if _, err := s.visibleSong(ctx, caller, songID); err != nil {
		return Page[models.Comment]{}, err
	}
	q := s.db.WithContext(ctx).Model(&models.Comment{}).Where("song_id = ?", songID)
	if caller.Anonymous() {
		q = q.Where("audit_status = ?", models.AuditApproved)
	} else {
		q = q.Where("audit_status = ? OR user_id = ?", models.AuditApproved, caller.UserID)
	}
	var comments []models.Comment
	total, err := pageQuery(q, req, &comments)
	if err != nil {
		return Page[models.Comment]{}, err
	}
	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
	}
	users, err := loadUserBriefs(ctx, s.db, ids)
	if err != nil {
		return Page[models.Comment]{}, err
	}
	for i := range comments {
		comments[i].Author = users[comments[i].UserID]
	}
	return newPage(comments, total, req), nil
}

// DeleteComment removes a comment of the caller; admins may remove any comment.
func (s *CatalogService) DeleteComment(ctx context.Context, caller Caller, id uint) error {
	var c models.Comment
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return notFound(err, "comment")
	}
	if !caller.Owns(c.UserID) {
		return newError(ErrForbidden, "you can only delete your own comments")
	}
	if err := s.db.WithContext(ctx).Delete(&c).Error; err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// visibleSong loads a song the caller may see: approved songs for everyone, the rest only for
// admins and the creator.
func (s *CatalogService) visibleSong(ctx context.Context, caller Caller, id uint) (*models.Song, error) {
	var song models.Song
	if err := s.db.WithContext(ctx).First(&song, id).Error; err != nil {
		return nil, notFound(err, "song")
	}
	if song.AuditStatus == models.AuditApproved || caller.IsAdmin() {
		return &song, nil
	}
	if song.CreatorID == nil || caller.Anonymous() || *song.CreatorID != caller.UserID {
		return nil, newError(ErrNotFound, "song not found")
	}
	return &song, nil
}

func (s *CatalogService) requireApprovedSong(ctx context.Context, songID uint) error {
	var song models.Song
	if err := s.db.WithContext(ctx).Select("id").Where("audit_status = ?", models.AuditApproved).First(&song, songID).Error; err != nil {
		return notFound(err, "song")
	}
	return nil
}

// decorateSongs fills artist names, creators and the caller's favourite flags.
func (s *CatalogService) decorateSongs(ctx context.Context, caller Caller, songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}
	var artistIDs, creatorIDs []uint
	for _, song := range songs {
		if song.ArtistID != nil {
			artistIDs = append(artistIDs, *song.ArtistID)
		}
		if song.CreatorID != nil {
			creatorIDs = append(creatorIDs, *song.CreatorID)
		}
	}
	names := make(map[uint]string)
	if len(artistIDs) > 0 {
		var artists []models.Artist
		if err := s.db.WithContext(ctx).Select("id", "name").Find(&artists, utils.UniqueUint(artistIDs)).Error; err != nil {
			return fmt.Errorf("load artists: %w", err)
		}
		for _, a := range artists {
			names[a.ID] = a.Name
		}
	}
	creators, err := loadUserBriefs(ctx, s.db, creatorIDs)
	if err != nil {
		return err
	}
	favs := make(map[uint]bool)
	if !caller.Anonymous() {
		var favIDs []uint
		if err := s.db.WithContext(ctx).Model(&models.Favorite{}).
			Where("user_id = ? AND song_id IN ?", caller.UserID, idsOf(songs)).Pluck("song_id", &favIDs).Error; err != nil {
			return fmt.Errorf("load favorite flags: %w", err)
		}
		for _, id := range favIDs {
			favs[id] = true
		}
	}
	for i := range songs {
		if songs[i].ArtistID != nil {
			songs[i].ArtistName = names[*songs[i].ArtistID]
		}
		if songs[i].CreatorID != nil {
			songs[i].Creator = creators[*songs[i].CreatorID]
		}
		songs[i].IsFavorite = favs[songs[i].ID]
	}
	return nil
}

func idsOf(songs []models.Song) []uint {
	ids := make([]uint, 0, len(songs))
	for _, song := range songs {
		ids = append(ids, song.ID)
	}
	return ids
}
