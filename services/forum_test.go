package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
)

func newForum(t *testing.T) (*ForumService, *memStore, func(c Caller, id uint) *models.ForumPost) {
	t.Helper()
	db := newTestDB(t)
	store := newMemStore()
	svc := NewForumService(db, NewOrderService(db, nil), store, nil)
	approve := func(c Caller, id uint) *models.ForumPost {
		require.NoError(t, db.Model(&models.ForumPost{}).Where("id = ?", id).Update("audit_status", models.AuditApproved).Error)
		var p models.ForumPost
		require.NoError(t, db.First(&p, id).Error)
		return &p
	}
	return svc, store, approve
}

func TestForumCreatePost_Pending(t *testing.T) {
	svc, store, _ := newForum(t)
	ctx := context.Background()
	u := createUser(t, svc.db, "writer")

	post, err := svc.CreatePost(ctx, callerOf(u), PostInput{
		Title:           "  <b>Need</b> a vocalist ",
		Content:         `<p>hello</p><script>alert(1)</script>`,
		Type:            models.PostRequirement,
		RequirementType: "vocal",
		Budget:          "500",
	}, &Upload{Filename: "ref.mp3", Reader: strings.NewReader("x"), Size: 1})
	require.NoError(t, err)

	assert.Equal(t, "Need a vocalist", post.Title)
	assert.NotContains(t, post.Content, "script")
	assert.Equal(t, models.AuditPending, post.AuditStatus)
	assert.Equal(t, "vocal", post.RequirementType)
	assert.True(t, strings.HasPrefix(post.ReferenceAttachment, "http://files.local/"+FolderRequirementAttachments+"/"))
	assert.Len(t, store.objects, 1)

	page, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "pending posts are not listed")
}

func TestForumCreatePost_Validation(t *testing.T) {
	svc, _, _ := newForum(t)
	ctx := context.Background()
	u := createUser(t, svc.db, "writer")

	_, err := svc.CreatePost(ctx, callerOf(u), PostInput{Title: " ", Content: "x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreatePost(ctx, callerOf(u), PostInput{Title: "t", Content: "x", Type: models.PostType(7)}, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.CreatePost(ctx, Caller{}, PostInput{Title: "t", Content: "x"}, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.db.Model(u).Update("score", 0).Error)
	_, err = svc.CreatePost(ctx, callerOf(u), PostInput{Title: "t", Content: "x"}, nil)
	assert.ErrorIs(t, err, ErrForbidden, "low score blocks publishing")
}

func TestForumDiscussionDropsRequirementFields(t *testing.T) {
	svc, _, _ := newForum(t)
	u := createUser(t, svc.db, "writer")
	post, err := svc.CreatePost(context.Background(), callerOf(u), PostInput{
		Title: "chat", Content: "hi", Type: models.PostDiscussion, Budget: "100",
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, post.Budget)
}

func TestForumGetPost_Visibility(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	other := createUser(t, svc.db, "other")

	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c", Type: models.PostRequirement}, nil)
	require.NoError(t, err)

	_, err = svc.GetPost(ctx, callerOf(other), post.ID)
	assert.ErrorIs(t, err, ErrNotFound, "pending posts are hidden from others")
	own, err := svc.GetPost(ctx, callerOf(author), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, own.Post.ViewCount)
	_, err = svc.GetPost(ctx, adminCaller, post.ID)
	require.NoError(t, err)

	approve(callerOf(author), post.ID)
	detail, err := svc.GetPost(ctx, Caller{}, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Post.ViewCount)
	assert.Equal(t, "author", detail.Post.Author.Username)

	_, err = svc.orders.Apply(ctx, callerOf(other), post.ID)
	require.NoError(t, err)

	mine, err := svc.GetPost(ctx, callerOf(other), post.ID)
	require.NoError(t, err)
	assert.True(t, mine.HasApplied)
	require.NotNil(t, mine.MyOrder)

	asPoster, err := svc.GetPost(ctx, callerOf(author), post.ID)
	require.NoError(t, err)
	require.Len(t, asPoster.Applications, 1)
	assert.Equal(t, "other", asPoster.Applications[0].Accepter.Username)
}

func TestForumUpdatePost_Resubmits(t *testing.T) {
	svc, store, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	other := createUser(t, svc.db, "other")

	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"},
		&Upload{Filename: "a.png", Reader: strings.NewReader("a"), Size: 1})
	require.NoError(t, err)
	approve(callerOf(author), post.ID)

	_, err = svc.UpdatePost(ctx, callerOf(other), post.ID, PostInput{Title: "x", Content: "y"}, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := svc.UpdatePost(ctx, callerOf(author), post.ID, PostInput{Title: "t2", Content: "c2", Type: models.PostRequirement},
		&Upload{Filename: "b.png", Reader: strings.NewReader("b"), Size: 1})
	require.NoError(t, err)
	assert.Equal(t, models.AuditPending, updated.AuditStatus)
	assert.Equal(t, models.PostDiscussion, updated.Type, "type is fixed at creation")
	assert.Equal(t, []string{post.ReferenceAttachment}, store.deleted)
}

func TestForumDeletePost(t *testing.T) {
	svc, _, _ := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	other := createUser(t, svc.db, "other")
	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeletePost(ctx, callerOf(other), post.ID), ErrForbidden)
	require.NoError(t, svc.DeletePost(ctx, adminCaller, post.ID))
	assert.ErrorIs(t, svc.DeletePost(ctx, callerOf(author), post.ID), ErrNotFound)
}

func TestForumReplies(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	other := createUser(t, svc.db, "other")

	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"}, nil)
	require.NoError(t, err)
	_, err = svc.AddReply(ctx, callerOf(other), post.ID, nil, "first")
	assert.ErrorIs(t, err, ErrNotFound, "cannot reply to an unapproved post")
	approve(callerOf(author), post.ID)

	top, err := svc.AddReply(ctx, callerOf(other), post.ID, nil, "first")
	require.NoError(t, err)
	child, err := svc.AddReply(ctx, callerOf(author), post.ID, &top.ID, "thanks")
	require.NoError(t, err)

	audit := NewAuditService(svc.db, nil, nil)
	require.NoError(t, audit.Approve(ctx, KindReply, top.ID))
	require.NoError(t, audit.Approve(ctx, KindReply, child.ID))

	page, err := svc.ListReplies(ctx, post.ID, PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Children, 1)
	assert.Equal(t, "thanks", page.Items[0].Children[0].Content)
	assert.Equal(t, "author", page.Items[0].Children[0].Author.Username)

	var p models.ForumPost
	require.NoError(t, svc.db.First(&p, post.ID).Error)
	assert.Equal(t, 2, p.ReplyCount)

	_, err = svc.UpdateReply(ctx, callerOf(author), top.ID, "hijack")
	assert.ErrorIs(t, err, ErrForbidden)
	edited, err := svc.UpdateReply(ctx, callerOf(other), top.ID, "first, edited")
	require.NoError(t, err)
	assert.Equal(t, models.AuditPending, edited.AuditStatus)

	require.NoError(t, svc.DeleteReply(ctx, callerOf(author), child.ID))
	require.NoError(t, svc.db.First(&p, post.ID).Error)
	assert.Equal(t, 1, p.ReplyCount)

	other2 := createPost(t, svc.db, author.ID, models.PostDiscussion)
	_, err = svc.AddReply(ctx, callerOf(other), other2.ID, &top.ID, "wrong thread")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestForumLikes(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"}, nil)
	require.NoError(t, err)
	approve(callerOf(author), post.ID)

	require.NoError(t, svc.LikePost(ctx, post.ID, true))
	require.NoError(t, svc.LikePost(ctx, post.ID, false))
	require.NoError(t, svc.LikePost(ctx, post.ID, false))

	var p models.ForumPost
	require.NoError(t, svc.db.First(&p, post.ID).Error)
	assert.Equal(t, 0, p.LikeCount, "likes never go negative")
	assert.ErrorIs(t, svc.LikeReply(ctx, 999, true), ErrNotFound)
}

func TestForumUserPosts_Scope(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	other := createUser(t, svc.db, "other")

	a, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "a", Content: "c"}, nil)
	require.NoError(t, err)
	_, err = svc.CreatePost(ctx, callerOf(author), PostInput{Title: "b", Content: "c"}, nil)
	require.NoError(t, err)
	approve(callerOf(author), a.ID)

	visible, err := svc.UserPosts(ctx, callerOf(other), UserContentFilter{UserID: author.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), visible.Total)

	all, err := svc.UserPosts(ctx, callerOf(author), UserContentFilter{UserID: author.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	pending := models.AuditPending
	onlyPending, err := svc.UserPosts(ctx, callerOf(author), UserContentFilter{UserID: author.ID, AuditStatus: &pending})
	require.NoError(t, err)
	require.Len(t, onlyPending.Items, 1)
	assert.Equal(t, "b", onlyPending.Items[0].Title)
}

func TestForumListPosts_Filters(t *testing.T) {
	svc, _, _ := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	createPost(t, svc.db, author.ID, models.PostRequirement)
	d := createPost(t, svc.db, author.ID, models.PostDiscussion)
	require.NoError(t, svc.db.Model(d).Updates(map[string]interface{}{"title": "jam session", "is_top": true}).Error)

	page, err := svc.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, d.ID, page.Items[0].ID, "pinned first")

	req := models.PostRequirement
	page, err = svc.ListPosts(ctx, PostFilter{Type: &req})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = svc.ListPosts(ctx, PostFilter{Keyword: "jam"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "jam session", page.Items[0].Title)
}

// acceptedRequirement returns an approved requirement post of poster with an accepted order by helper.
func acceptedRequirement(t *testing.T, svc *ForumService, approve func(Caller, uint) *models.ForumPost, poster, helper *models.User) *models.ForumPost {
	t.Helper()
	ctx := context.Background()
	post, err := svc.CreatePost(ctx, callerOf(poster), PostInput{Title: "need a mix", Content: "stems attached", Type: models.PostRequirement, Budget: "300"}, nil)
	require.NoError(t, err)
	approve(callerOf(poster), post.ID)
	o, err := svc.orders.Apply(ctx, callerOf(helper), post.ID)
	require.NoError(t, err)
	_, err = svc.orders.Accept(ctx, callerOf(poster), o.ID)
	require.NoError(t, err)
	return post
}

func TestForumWritesKeepAcceptedOrder(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	poster := createUser(t, svc.db, "poster")
	helper := createUser(t, svc.db, "helper")
	post := acceptedRequirement(t, svc, approve, poster, helper)
	require.NoError(t, svc.LikePost(ctx, post.ID, true))

	reload := func() models.ForumPost {
		var p models.ForumPost
		require.NoError(t, svc.db.First(&p, post.ID).Error)
		return p
	}

	updated, err := svc.UpdatePost(ctx, callerOf(poster), post.ID, PostInput{Title: "need a mix, v2", Content: "new stems", Budget: "400"}, nil)
	require.NoError(t, err)
	assert.True(t, updated.IsAccepted)
	got := reload()
	assert.True(t, got.IsAccepted, "editing keeps the claim")
	assert.Equal(t, 1, got.LikeCount)
	assert.Equal(t, "400", got.Budget)
	assert.Equal(t, models.AuditPending, got.AuditStatus)
	assert.Equal(t, int64(1), claimedOrders(t, svc.db, post.ID))

	approve(callerOf(poster), post.ID)
	_, err = svc.AddReply(ctx, callerOf(helper), post.ID, nil, "mix is on its way")
	require.NoError(t, err)
	got = reload()
	assert.True(t, got.IsAccepted)
	assert.Equal(t, 1, got.ReplyCount)
	assert.Equal(t, int64(1), claimedOrders(t, svc.db, post.ID))

	require.NoError(t, svc.DeletePost(ctx, callerOf(poster), post.ID))
	var deleted models.ForumPost
	require.NoError(t, svc.db.First(&deleted, post.ID).Error)
	assert.Equal(t, models.RecordDeleted, deleted.Status)
	assert.True(t, deleted.IsAccepted)
	assert.Equal(t, int64(1), claimedOrders(t, svc.db, post.ID))
}

func TestForumUpdatePost_AcceptDuringEdit(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	poster := createUser(t, svc.db, "poster")
	helper := createUser(t, svc.db, "helper")
	post, err := svc.CreatePost(ctx, callerOf(poster), PostInput{Title: "t", Content: "c", Type: models.PostRequirement}, nil)
	require.NoError(t, err)
	approve(callerOf(poster), post.ID)
	o, err := svc.orders.Apply(ctx, callerOf(helper), post.ID)
	require.NoError(t, err)

	afterFirstRead(t, svc.db, "forum_posts", func() {
		_, err := svc.orders.Accept(ctx, callerOf(poster), o.ID)
		require.NoError(t, err)
	})
	_, err = svc.UpdatePost(ctx, callerOf(poster), post.ID, PostInput{Title: "t2", Content: "c2"}, nil)
	require.NoError(t, err)

	var p models.ForumPost
	require.NoError(t, svc.db.First(&p, post.ID).Error)
	assert.True(t, p.IsAccepted, "the edit must not overwrite a concurrent accept")
	assert.Equal(t, "t2", p.Title)
	assert.Equal(t, int64(1), claimedOrders(t, svc.db, post.ID))
}

func TestForumUpdateReply_LikeDuringEdit(t *testing.T) {
	svc, _, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"}, nil)
	require.NoError(t, err)
	approve(callerOf(author), post.ID)
	reply, err := svc.AddReply(ctx, callerOf(author), post.ID, nil, "draft")
	require.NoError(t, err)

	afterFirstRead(t, svc.db, "forum_replies", func() {
		require.NoError(t, svc.LikeReply(ctx, reply.ID, true))
	})
	edited, err := svc.UpdateReply(ctx, callerOf(author), reply.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.Equal(t, 1, edited.LikeCount, "the like landing mid-edit survives")
}

func TestForumUpdatePost_FailedWriteRemovesNewAttachment(t *testing.T) {
	svc, store, approve := newForum(t)
	ctx := context.Background()
	author := createUser(t, svc.db, "author")
	post, err := svc.CreatePost(ctx, callerOf(author), PostInput{Title: "t", Content: "c"},
		&Upload{Filename: "a.png", Reader: strings.NewReader("a"), Size: 1})
	require.NoError(t, err)
	approve(callerOf(author), post.ID)

	require.NoError(t, svc.db.Callback().Update().Before("gorm:update").Register("test:fail_post_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "forum_posts" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	_, err = svc.UpdatePost(ctx, callerOf(author), post.ID, PostInput{Title: "t2", Content: "c2"},
		&Upload{Filename: "b.png", Reader: strings.NewReader("b"), Size: 1})
	require.Error(t, err)

	require.Len(t, store.deleted, 1)
	assert.Contains(t, store.deleted[0], "b.png", "the new upload is removed")
	assert.Contains(t, store.objects, post.ReferenceAttachment, "the old attachment stays")
}
