package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/vibemusic/metrics"
	"github.com/cppla/vibemusic/models"
)

// OrderService runs the order matching workflow of requirement posts: users apply, the poster
// accepts or rejects an application, and an accepted order is later completed.
type OrderService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewOrderService(db *gorm.DB, log *zap.Logger) *OrderService {
	return &OrderService{db: db, log: loggerOrNop(log)}
}

// Apply files an application by the caller for post postID. A previously rejected application
// of the same caller is replaced by a fresh one.
func (s *OrderService) Apply(ctx context.Context, caller Caller, postID uint) (*models.ForumOrder, error) {
	if caller.Anonymous() {
		return nil, newError(ErrForbidden, "login required")
	}
	var order models.ForumOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.ForumPost
		if err := tx.Where("status = ?", models.RecordActive).First(&post, postID).Error; err != nil {
			return notFound(err, "post")
		}
		if post.Type != models.PostRequirement {
			return newError(ErrInvalidRequest, "only requirement posts accept applications")
		}
		if post.UserID == caller.UserID {
			return newError(ErrForbidden, "cannot apply to your own post")
		}

		var existing models.ForumOrder
		if err := tx.Where("post_id = ? AND accepter_id = ?", post.ID, caller.UserID).Limit(1).Find(&existing).Error; err != nil {
			return fmt.Errorf("load existing order: %w", err)
		}
		if existing.ID != 0 && existing.Status != models.OrderRejected {
			return newError(ErrConflict, "you have already applied to this post")
		}

		claimed, err := countClaimed(tx, post.ID, 0)
		if err != nil {
			return err
		}
		if claimed > 0 {
			return newError(ErrConflict, "post has already been accepted")
		}

		if existing.ID != 0 {
			if err := tx.Delete(&models.ForumOrder{}, existing.ID).Error; err != nil {
				return fmt.Errorf("delete rejected order: %w", err)
			}
		}

		order = models.ForumOrder{
			PostID:     post.ID,
			PosterID:   post.UserID,
			AccepterID: caller.UserID,
			Status:     models.OrderPendingAgreement,
		}
		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(ErrConflict, "you have already applied to this post")
			}
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOrderTransition("applied")
	s.log.Info("order applied", zap.Uint("order_id", order.ID), zap.Uint("post_id", postID), zap.Uint("accepter_id", caller.UserID))
	order.StatusLabel = order.Status.Label()
	return &order, nil
}

// Accept moves a pending order to accepted and marks its post as taken. The claim check is
// repeated here because several applications may be pending at once.
func (s *OrderService) Accept(ctx context.Context, caller Caller, orderID uint) (*models.ForumOrder, error) {
	return s.transition(ctx, caller, orderID, models.OrderAccepted, func(tx *gorm.DB, order *models.ForumOrder) error {
		var post models.ForumPost
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, order.PostID).Error; err != nil {
			return notFound(err, "post")
		}
		claimed, err := countClaimed(tx, order.PostID, order.ID)
		if err != nil {
			return err
		}
		if claimed > 0 {
			return newError(ErrConflict, "post has already been accepted")
		}
		return nil
	}, func(tx *gorm.DB, order *models.ForumOrder) error {
		if err := tx.Model(&models.ForumPost{}).Where("id = ?", order.PostID).Update("is_accepted", true).Error; err != nil {
			return fmt.Errorf("mark post accepted: %w", err)
		}
		return nil
	})
}

// Reject declines a pending order. The post stays open for other applicants.
func (s *OrderService) Reject(ctx context.Context, caller Caller, orderID uint) (*models.ForumOrder, error) {
	return s.transition(ctx, caller, orderID, models.OrderRejected, nil, nil)
}

// Complete closes an accepted order. The post keeps is_accepted set.
func (s *OrderService) Complete(ctx context.Context, caller Caller, orderID uint) (*models.ForumOrder, error) {
	return s.transition(ctx, caller, orderID, models.OrderCompleted, nil, nil)
}

type orderHook func(tx *gorm.DB, order *models.ForumOrder) error

func (s *OrderService) transition(ctx context.Context, caller Caller, orderID uint, next models.OrderStatus, guard, after orderHook) (*models.ForumOrder, error) {
	var order models.ForumOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
			return notFound(err, "order")
		}
		if caller.Anonymous() || order.PosterID != caller.UserID {
			return newError(ErrForbidden, "only the poster can change this order")
		}
		if !order.Status.CanTransition(next) {
			return newError(ErrInvalidState, "order is %s", order.Status.Label())
		}
		if guard != nil {
			if err := guard(tx, &order); err != nil {
				return err
			}
		}

		res := tx.Model(&models.ForumOrder{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("status", next)
		if res.Error != nil {
			return fmt.Errorf("update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(ErrInvalidState, "order status changed concurrently")
		}
		order.Status = next

		if after != nil {
			return after(tx, &order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOrderTransition(next.Label())
	s.log.Info("order transition",
		zap.Uint("order_id", order.ID),
		zap.Uint("post_id", order.PostID),
		zap.String("status", next.Label()))
	order.StatusLabel = order.Status.Label()
	return &order, nil
}

// countClaimed counts accepted or completed orders of postID, ignoring excludeID.
func countClaimed(tx *gorm.DB, postID, excludeID uint) (int64, error) {
	q := tx.Model(&models.ForumOrder{}).Where("post_id = ? AND status IN ?", postID, models.ClaimedOrderStatuses)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count claimed orders: %w", err)
	}
	return n, nil
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	PostID uint
	Status *models.OrderStatus
	PageRequest
}

// ListApplicationsForPoster lists orders received on the caller's posts.
func (s *OrderService) ListApplicationsForPoster(ctx context.Context, caller Caller, f OrderFilter) (Page[models.ForumOrder], error) {
	return s.list(ctx, caller, "poster_id", f)
}

// ListOrdersForAccepter lists the caller's own applications.
func (s *OrderService) ListOrdersForAccepter(ctx context.Context, caller Caller, f OrderFilter) (Page[models.ForumOrder], error) {
	return s.list(ctx, caller, "accepter_id", f)
}

func (s *OrderService) list(ctx context.Context, caller Caller, owner string, f OrderFilter) (Page[models.ForumOrder], error) {
	req := f.PageRequest.normalize()
	if caller.Anonymous() {
		return Page[models.ForumOrder]{}, newError(ErrForbidden, "login required")
	}
	q := s.db.WithContext(ctx).Model(&models.ForumOrder{}).Where(owner+" = ?", caller.UserID)
	if f.PostID != 0 {
		q = q.Where("post_id = ?", f.PostID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[models.ForumOrder]{}, fmt.Errorf("count orders: %w", err)
	}
	var orders []models.ForumOrder
	if err := q.Order("created_at DESC").Order("id DESC").Offset(req.offset()).Limit(req.PageSize).Find(&orders).Error; err != nil {
		return Page[models.ForumOrder]{}, fmt.Errorf("list orders: %w", err)
	}
	if err := s.enrich(ctx, orders); err != nil {
		return Page[models.ForumOrder]{}, err
	}
	return newPage(orders, total, req), nil
}

// GetOrderDetail returns one order to its poster, its accepter or an admin.
func (s *OrderService) GetOrderDetail(ctx context.Context, caller Caller, orderID uint) (*models.ForumOrder, error) {
	var order models.ForumOrder
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		return nil, notFound(err, "order")
	}
	if !caller.IsAdmin() && (caller.Anonymous() || (caller.UserID != order.PosterID && caller.UserID != order.AccepterID)) {
		return nil, newError(ErrForbidden, "not a party of this order")
	}
	orders := []models.ForumOrder{order}
	if err := s.enrich(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// OrdersForPost returns every order of a post, newest first.
func (s *OrderService) OrdersForPost(ctx context.Context, postID uint) ([]models.ForumOrder, error) {
	var orders []models.ForumOrder
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list post orders: %w", err)
	}
	if err := s.enrich(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// OrderOf returns the caller's order on a post, or nil when there is none.
func (s *OrderService) OrderOf(ctx context.Context, postID, accepterID uint) (*models.ForumOrder, error) {
	var order models.ForumOrder
	if err := s.db.WithContext(ctx).Where("post_id = ? AND accepter_id = ?", postID, accepterID).Limit(1).Find(&order).Error; err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.ID == 0 {
		return nil, nil
	}
	order.StatusLabel = order.Status.Label()
	return &order, nil
}

func (s *OrderService) enrich(ctx context.Context, orders []models.ForumOrder) error {
	if len(orders) == 0 {
		return nil
	}
	var userIDs, postIDs []uint
	for _, o := range orders {
		userIDs = append(userIDs, o.PosterID, o.AccepterID)
		postIDs = append(postIDs, o.PostID)
	}
	users, err := loadUserBriefs(ctx, s.db, userIDs)
	if err != nil {
		return err
	}
	var posts []models.ForumPost
	if err := s.db.WithContext(ctx).Select("id", "title").Find(&posts, postIDs).Error; err != nil {
		return fmt.Errorf("load order posts: %w", err)
	}
	titles := make(map[uint]string, len(posts))
	for _, p := range posts {
		titles[p.ID] = p.Title
	}
	for i := range orders {
		orders[i].StatusLabel = orders[i].Status.Label()
		orders[i].PostTitle = titles[orders[i].PostID]
		orders[i].Poster = users[orders[i].PosterID]
		orders[i].Accepter = users[orders[i].AccepterID]
	}
	return nil
}
