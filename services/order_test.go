package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
)

type orderFixture struct {
	db     *gorm.DB
	svc    *OrderService
	poster *models.User
	u2     *models.User
	u3     *models.User
	post   *models.ForumPost
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := newTestDB(t)
	f := &orderFixture{
		db:     db,
		svc:    NewOrderService(db, nil),
		poster: createUser(t, db, "poster"),
		u2:     createUser(t, db, "u2"),
		u3:     createUser(t, db, "u3"),
	}
	f.post = createPost(t, db, f.poster.ID, models.PostRequirement)
	return f
}

func createPost(t *testing.T, db *gorm.DB, userID uint, typ models.PostType) *models.ForumPost {
	t.Helper()
	p := &models.ForumPost{
		UserID:      userID,
		Title:       "need a mix",
		Content:     "looking for someone to mix a demo",
		Type:        typ,
		Status:      models.RecordActive,
		AuditStatus: models.AuditApproved,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func (f *orderFixture) reloadPost(t *testing.T) models.ForumPost {
	t.Helper()
	var p models.ForumPost
	require.NoError(t, f.db.First(&p, f.post.ID).Error)
	return p
}

func (f *orderFixture) claimedCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.ForumOrder{}).
		Where("post_id = ? AND status IN ?", f.post.ID, models.ClaimedOrderStatuses).Count(&n).Error)
	return n
}

func TestOrderLifecycle_HelpRequestScenario(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	poster := callerOf(f.poster)

	first, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingAgreement, first.Status)
	assert.Equal(t, f.poster.ID, first.PosterID)

	rejected, err := f.svc.Reject(ctx, poster, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, rejected.Status)
	assert.False(t, f.reloadPost(t).IsAccepted)

	second, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingAgreement, second.Status)

	var rows []models.ForumOrder
	require.NoError(t, f.db.Where("post_id = ? AND accepter_id = ?", f.post.ID, f.u2.ID).Find(&rows).Error)
	require.Len(t, rows, 1, "the rejected order is replaced")
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, models.OrderPendingAgreement, rows[0].Status)

	accepted, err := f.svc.Accept(ctx, poster, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, accepted.Status)
	assert.True(t, f.reloadPost(t).IsAccepted)
	assert.Equal(t, int64(1), f.claimedCount(t))

	_, err = f.svc.Apply(ctx, callerOf(f.u3), f.post.ID)
	assert.ErrorIs(t, err, ErrConflict)

	completed, err := f.svc.Complete(ctx, poster, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)
	assert.Equal(t, "completed", completed.StatusLabel)
	assert.True(t, f.reloadPost(t).IsAccepted)
	assert.Equal(t, int64(1), f.claimedCount(t))
}

func TestOrderApply_DuplicatePendingConflicts(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOrderApply_Guards(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, callerOf(f.poster), f.post.ID)
	assert.ErrorIs(t, err, ErrForbidden, "poster cannot apply to own post")

	_, err = f.svc.Apply(ctx, Caller{}, f.post.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Apply(ctx, callerOf(f.u2), 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	discussion := createPost(t, f.db, f.poster.ID, models.PostDiscussion)
	_, err = f.svc.Apply(ctx, callerOf(f.u2), discussion.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	require.NoError(t, f.db.Model(&models.ForumPost{}).Where("id = ?", f.post.ID).Update("status", models.RecordDeleted).Error)
	_, err = f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	assert.ErrorIs(t, err, ErrNotFound, "deleted posts take no applications")
}

func TestOrderAccept_SecondApplicantConflicts(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	poster := callerOf(f.poster)

	a, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)
	b, err := f.svc.Apply(ctx, callerOf(f.u3), f.post.ID)
	require.NoError(t, err, "several applications may be pending at once")

	_, err = f.svc.Accept(ctx, poster, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, poster, b.ID)
	assert.ErrorIs(t, err, ErrConflict)

	var still models.ForumOrder
	require.NoError(t, f.db.First(&still, b.ID).Error)
	assert.Equal(t, models.OrderPendingAgreement, still.Status)
	assert.Equal(t, int64(1), f.claimedCount(t))

	// The losing application can still be declined.
	_, err = f.svc.Reject(ctx, poster, b.ID)
	assert.NoError(t, err)
}

func TestOrderTransitions_InvalidState(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	poster := callerOf(f.poster)

	pending, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, poster, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "pending orders cannot complete")

	_, err = f.svc.Reject(ctx, poster, pending.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, poster, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "rejected orders cannot complete")
	_, err = f.svc.Accept(ctx, poster, pending.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	other, err := f.svc.Apply(ctx, callerOf(f.u3), f.post.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, poster, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, poster, other.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Reject(ctx, poster, other.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Complete(ctx, poster, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, poster, other.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOrderTransitions_OnlyPoster(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	o, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, callerOf(f.u2), o.ID)
	assert.ErrorIs(t, err, ErrForbidden, "applicant cannot accept")
	_, err = f.svc.Reject(ctx, callerOf(f.u3), o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Accept(ctx, adminCaller, o.ID)
	assert.ErrorIs(t, err, ErrForbidden, "admins do not act for the poster")

	_, err = f.svc.Accept(ctx, callerOf(f.poster), 777)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderListings(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)
	o3, err := f.svc.Apply(ctx, callerOf(f.u3), f.post.ID)
	require.NoError(t, err)

	page, err := f.svc.ListApplicationsForPoster(ctx, callerOf(f.poster), OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "need a mix", page.Items[0].PostTitle)
	require.NotNil(t, page.Items[0].Accepter)
	assert.Equal(t, "pending agreement", page.Items[0].StatusLabel)

	mine, err := f.svc.ListOrdersForAccepter(ctx, callerOf(f.u3), OrderFilter{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, o3.ID, mine.Items[0].ID)
	assert.Equal(t, "poster", mine.Items[0].Poster.Username)

	rejected := models.OrderRejected
	none, err := f.svc.ListOrdersForAccepter(ctx, callerOf(f.u3), OrderFilter{Status: &rejected})
	require.NoError(t, err)
	assert.Empty(t, none.Items)

	_, err = f.svc.ListOrdersForAccepter(ctx, Caller{}, OrderFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOrderDetail_Visibility(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	o, err := f.svc.Apply(ctx, callerOf(f.u2), f.post.ID)
	require.NoError(t, err)

	for _, c := range []Caller{callerOf(f.poster), callerOf(f.u2), adminCaller} {
		got, err := f.svc.GetOrderDetail(ctx, c, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
	}
	_, err = f.svc.GetOrderDetail(ctx, callerOf(f.u3), o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetOrderDetail(ctx, callerOf(f.u2), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := f.svc.OrderOf(ctx, f.post.ID, f.u2.ID)
	require.NoError(t, err)
	require.NotNil(t, mine)
	none, err := f.svc.OrderOf(ctx, f.post.ID, f.u3.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}
