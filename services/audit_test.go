package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
)

func createSong(t *testing.T, db *gorm.DB, creatorID uint, original bool, status models.AuditStatus) *models.Song {
	t.Helper()
	s := &models.Song{
		Name:        "tide",
		Style:       "pop",
		AudioURL:    "http://files.local/songs/tide.mp3",
		IsOriginal:  original,
		AuditStatus: status,
	}
	if creatorID != 0 {
		s.CreatorID = &creatorID
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func newAuditWithSync(t *testing.T, db *gorm.DB, cache CacheInvalidator) *AuditService {
	t.Helper()
	svc := NewAuditService(db, cache, nil)
	svc.OnSongApproved(NewArtistSync(db, nil))
	return svc
}

func TestAudit_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db, nil, nil)
	ctx := context.Background()

	for _, kind := range ContentKinds {
		assert.ErrorIs(t, svc.Approve(ctx, kind, 404), ErrNotFound, string(kind))
		assert.ErrorIs(t, svc.Reject(ctx, kind, 404, "nope"), ErrNotFound, string(kind))
	}
	assert.ErrorIs(t, svc.Approve(ctx, ContentKind("video"), 1), ErrInvalidRequest)
}

func TestAudit_OverwritesAnyStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db, nil, nil)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	post := createPost(t, db, u.ID, models.PostDiscussion)

	load := func() models.ForumPost {
		var p models.ForumPost
		require.NoError(t, db.First(&p, post.ID).Error)
		return p
	}

	require.NoError(t, svc.Approve(ctx, KindPost, post.ID), "approving approved content still succeeds")
	assert.Equal(t, models.AuditApproved, load().AuditStatus)

	require.NoError(t, svc.Reject(ctx, KindPost, post.ID, "spam"))
	got := load()
	assert.Equal(t, models.AuditRejected, got.AuditStatus)
	assert.Equal(t, "spam", got.AuditReason)

	require.NoError(t, svc.Reject(ctx, KindPost, post.ID, "off topic"))
	assert.Equal(t, "off topic", load().AuditReason, "a new reason replaces the old one")

	require.NoError(t, svc.Approve(ctx, KindPost, post.ID))
	got = load()
	assert.Equal(t, models.AuditApproved, got.AuditStatus)
	assert.Empty(t, got.AuditReason)
}

func TestAudit_ReplyAndComment(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db, nil, nil)
	ctx := context.Background()
	u := createUser(t, db, "writer")
	post := createPost(t, db, u.ID, models.PostDiscussion)

	reply := models.ForumReply{PostID: post.ID, UserID: u.ID, Content: "nice"}
	require.NoError(t, db.Create(&reply).Error)
	song := createSong(t, db, 0, false, models.AuditApproved)
	comment := models.Comment{SongID: song.ID, UserID: u.ID, Content: "great chorus"}
	require.NoError(t, db.Create(&comment).Error)

	require.NoError(t, svc.Approve(ctx, KindReply, reply.ID))
	require.NoError(t, svc.Reject(ctx, KindComment, comment.ID, ""))

	require.NoError(t, db.First(&reply, reply.ID).Error)
	require.NoError(t, db.First(&comment, comment.ID).Error)
	assert.Equal(t, models.AuditApproved, reply.AuditStatus)
	assert.Equal(t, models.AuditRejected, comment.AuditStatus)
}

func TestAudit_ApproveOriginalSongSyncsArtistOnce(t *testing.T) {
	db := newTestDB(t)
	cache := newRecordingCache()
	svc := newAuditWithSync(t, db, cache)
	ctx := context.Background()

	birth := time.Date(1995, 3, 14, 0, 0, 0, 0, time.UTC)
	alice := createUser(t, db, "alice")
	require.NoError(t, db.Model(alice).Updates(map[string]interface{}{
		"area":         "Shanghai",
		"introduction": "indie songwriter",
		"birth":        birth,
		"avatar_url":   "http://files.local/avatars/alice.png",
	}).Error)

	first := createSong(t, db, alice.ID, true, models.AuditPending)
	require.NoError(t, svc.Approve(ctx, KindSong, first.ID))

	var artists []models.Artist
	require.NoError(t, db.Where("name = ? AND category = ?", "alice", models.ArtistOriginal).Find(&artists).Error)
	require.Len(t, artists, 1)
	assert.Equal(t, "Shanghai", artists[0].Area)
	assert.Equal(t, "indie songwriter", artists[0].Introduction)
	assert.Equal(t, "http://files.local/avatars/alice.png", artists[0].AvatarURL)
	require.NotNil(t, artists[0].Birth)
	assert.Equal(t, birth.Format("2006-01-02"), artists[0].Birth.Format("2006-01-02"))

	var linked models.Song
	require.NoError(t, db.First(&linked, first.ID).Error)
	require.NotNil(t, linked.ArtistID)
	assert.Equal(t, artists[0].ID, *linked.ArtistID)
	assert.Contains(t, cache.tags(), TagArtists)

	// Profile edits flow into the same row on the next approval; an empty avatar keeps the old one.
	require.NoError(t, db.Model(alice).Updates(map[string]interface{}{"area": "Hangzhou", "avatar_url": ""}).Error)
	second := createSong(t, db, alice.ID, true, models.AuditPending)
	require.NoError(t, svc.Approve(ctx, KindSong, second.ID))

	artists = nil
	require.NoError(t, db.Where("name = ? AND category = ?", "alice", models.ArtistOriginal).Find(&artists).Error)
	require.Len(t, artists, 1, "no duplicate profile")
	assert.Equal(t, "Hangzhou", artists[0].Area)
	assert.Equal(t, "http://files.local/avatars/alice.png", artists[0].AvatarURL)
}

func TestAudit_NonOriginalSongSkipsSync(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db, nil, nil)
	called := 0
	svc.OnSongApproved(SongApprovedFunc(func(context.Context, SongApproved) error {
		called++
		return nil
	}))
	u := createUser(t, db, "bob")
	ctx := context.Background()

	catalog := createSong(t, db, u.ID, false, models.AuditPending)
	require.NoError(t, svc.Approve(ctx, KindSong, catalog.ID))
	orphan := createSong(t, db, 0, true, models.AuditPending)
	require.NoError(t, svc.Approve(ctx, KindSong, orphan.ID))
	require.NoError(t, svc.Reject(ctx, KindSong, catalog.ID, "low quality"))

	assert.Zero(t, called)
}

func TestAudit_SideEffectFailuresDoNotUndoApproval(t *testing.T) {
	db := newTestDB(t)
	cache := newRecordingCache()
	cache.fail = true
	svc := NewAuditService(db, cache, nil)
	var got SongApproved
	svc.OnSongApproved(SongApprovedFunc(func(_ context.Context, ev SongApproved) error {
		got = ev
		return errors.New("artist sync exploded")
	}))
	u := createUser(t, db, "carol")
	song := createSong(t, db, u.ID, true, models.AuditPending)

	require.NoError(t, svc.Approve(context.Background(), KindSong, song.ID))

	var reloaded models.Song
	require.NoError(t, db.First(&reloaded, song.ID).Error)
	assert.Equal(t, models.AuditApproved, reloaded.AuditStatus)
	assert.Equal(t, SongApproved{SongID: song.ID, CreatorID: u.ID}, got)
	assert.Equal(t, []string{TagArtists}, cache.tags())
}

func TestArtistSync_MissingCreator(t *testing.T) {
	db := newTestDB(t)
	sync := NewArtistSync(db, nil)
	err := sync.HandleSongApproved(context.Background(), SongApproved{SongID: 1, CreatorID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAudit_ListPendingAndCounts(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db, nil, nil)
	ctx := context.Background()
	u := createUser(t, db, "dave")
	require.NoError(t, db.Model(u).Update("avatar_url", "http://files.local/avatars/dave.png").Error)

	createSong(t, db, u.ID, true, models.AuditPending)
	createSong(t, db, u.ID, true, models.AuditApproved)
	createSong(t, db, 0, false, models.AuditPending)
	p := createPost(t, db, u.ID, models.PostDiscussion)
	require.NoError(t, db.Model(p).Update("audit_status", models.AuditPending).Error)
	deleted := createPost(t, db, u.ID, models.PostDiscussion)
	require.NoError(t, db.Model(deleted).Updates(map[string]interface{}{
		"audit_status": models.AuditPending,
		"status":       models.RecordDeleted,
	}).Error)

	songs, err := svc.ListPending(ctx, KindSong, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), songs.Total, "only original songs are queued")
	require.Len(t, songs.Items, 1)
	assert.Equal(t, "dave", songs.Items[0].Username)
	assert.Equal(t, "http://files.local/avatars/dave.png", songs.Items[0].UserAvatar)
	assert.Equal(t, "tide", songs.Items[0].Summary)

	posts, err := svc.ListPending(ctx, KindPost, PageRequest{Page: 1, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, posts.Items, 1)
	assert.Equal(t, p.ID, posts.Items[0].ID)

	counts, err := svc.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[ContentKind]int64{KindSong: 1, KindPost: 1, KindReply: 0, KindComment: 0}, counts)

	_, err = svc.ListPending(ctx, ContentKind("video"), PageRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseContentKind(t *testing.T) {
	k, err := ParseContentKind(" Song ")
	require.NoError(t, err)
	assert.Equal(t, KindSong, k)

	_, err = ParseContentKind("playlist")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestArtistSync_ConcurrentApprovalKeepsOneProfile(t *testing.T) {
	db := newTestDB(t)
	sync := NewArtistSync(db, nil)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	require.NoError(t, db.Model(alice).Update("area", "Suzhou").Error)
	song := createSong(t, db, alice.ID, true, models.AuditApproved)

	// A rival approval inserts the profile between this sync's lookup and its insert.
	afterFirstRead(t, db, "artists", func() {
		require.NoError(t, db.Create(&models.Artist{Name: "alice", Category: models.ArtistOriginal, Area: "stale"}).Error)
	})
	require.NoError(t, sync.HandleSongApproved(ctx, SongApproved{SongID: song.ID, CreatorID: alice.ID}))

	var artists []models.Artist
	require.NoError(t, db.Where("name = ? AND category = ?", "alice", models.ArtistOriginal).Find(&artists).Error)
	require.Len(t, artists, 1)
	assert.Equal(t, "Suzhou", artists[0].Area, "the existing profile is refreshed")

	var linked models.Song
	require.NoError(t, db.First(&linked, song.ID).Error)
	require.NotNil(t, linked.ArtistID)
	assert.Equal(t, artists[0].ID, *linked.ArtistID)
}

func TestArtist_OriginalNameUnique(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Create(&models.Artist{Name: "alice", Category: models.ArtistOriginal}).Error)
	err := db.Create(&models.Artist{Name: "alice", Category: models.ArtistOriginal}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Catalog artists may share a name with each other and with an original artist.
	require.NoError(t, db.Create(&models.Artist{Name: "alice", Category: models.ArtistFemale}).Error)
	require.NoError(t, db.Create(&models.Artist{Name: "alice", Category: models.ArtistFemale}).Error)
}
