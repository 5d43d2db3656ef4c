package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

// ForumService manages forum posts and replies. Every write sends the content back to the
// moderation queue.
type ForumService struct {
	db     *gorm.DB
	orders *OrderService
	store  ObjectStore
	log    *zap.Logger
}

func NewForumService(db *gorm.DB, orders *OrderService, store ObjectStore, log *zap.Logger) *ForumService {
	return &ForumService{db: db, orders: orders, store: store, log: loggerOrNop(log)}
}

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title            string
	Content          string
	Type             models.PostType
	RequirementType  string
	TimeRequirement  string
	Budget           string
	StyleDescription string
}

func (in PostInput) clean() (PostInput, error) {
	in.Title = utils.PlainText(in.Title)
	in.Content = utils.Sanitize(in.Content)
	if in.Title == "" {
		return in, newError(ErrInvalidRequest, "title cannot be empty")
	}
	if strings.TrimSpace(in.Content) == "" {
		return in, newError(ErrInvalidRequest, "content cannot be empty")
	}
	if !in.Type.Valid() {
		return in, newError(ErrInvalidRequest, "invalid post type")
	}
	if in.Type == models.PostRequirement {
		in.RequirementType = utils.PlainText(in.RequirementType)
		in.TimeRequirement = utils.PlainText(in.TimeRequirement)
		in.Budget = utils.PlainText(in.Budget)
		in.StyleDescription = utils.Sanitize(in.StyleDescription)
	} else {
		in.RequirementType, in.TimeRequirement, in.Budget, in.StyleDescription = "", "", "", ""
	}
	return in, nil
}

func attachmentFolder(t models.PostType) string {
	if t == models.PostRequirement {
		return FolderRequirementAttachments
	}
	return FolderPostAttachments
}

// PostFilter narrows the public post listing.
type PostFilter struct {
	Keyword string
	Type    *models.PostType
	PageRequest
}

// ListPosts lists active approved posts, pinned first then newest.
func (s *ForumService) ListPosts(ctx context.Context, f PostFilter) (Page[models.ForumPost], error) {
	req := f.PageRequest.normalize()
	q := s.db.WithContext(ctx).Model(&models.ForumPost{}).
		Where("status = ? AND audit_status = ?", models.RecordActive, models.AuditApproved)
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		q = q.Where("title LIKE ? OR content LIKE ?", "%"+kw+"%", "%"+kw+"%")
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[models.ForumPost]{}, fmt.Errorf("count posts: %w", err)
	}
	var posts []models.ForumPost
	if err := q.Order("is_top DESC").Order("created_at DESC").Order("id DESC").Offset(req.offset()).Limit(req.PageSize).Find(&posts).Error; err != nil {
		return Page[models.ForumPost]{}, fmt.Errorf("list posts: %w", err)
	}
	if err := s.attachPostAuthors(ctx, posts); err != nil {
		return Page[models.ForumPost]{}, err
	}
	return newPage(posts, total, req), nil
}

// PostDetail is a post as seen by one caller.
type PostDetail struct {
	Post         models.ForumPost    `json:"post"`
	Applications []models.ForumOrder `json:"applications,omitempty"`
	HasApplied   bool                `json:"has_applied"`
	MyOrder      *models.ForumOrder  `json:"my_order,omitempty"`
}

// GetPost returns a post. Admins see any post, authors see their own whatever its moderation
// state, everyone else only approved posts. Viewing an approved post counts one view.
func (s *ForumService) GetPost(ctx context.Context, caller Caller, id uint) (*PostDetail, error) {
	var post models.ForumPost
	if err := s.db.WithContext(ctx).Where("status = ?", models.RecordActive).First(&post, id).Error; err != nil {
		return nil, notFound(err, "post")
	}
	if post.AuditStatus != models.AuditApproved && !caller.Owns(post.UserID) {
		return nil, newError(ErrNotFound, "post not found")
	}
	if post.AuditStatus == models.AuditApproved {
		if err := s.db.WithContext(ctx).Model(&models.ForumPost{}).Where("id = ?", post.ID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
			s.log.Warn("increment post views failed", zap.Uint("post_id", post.ID), zap.Error(err))
		} else {
			post.ViewCount++
		}
	}
	posts := []models.ForumPost{post}
	if err := s.attachPostAuthors(ctx, posts); err != nil {
		return nil, err
	}
	detail := &PostDetail{Post: posts[0]}

	if post.Type == models.PostRequirement && !caller.Anonymous() {
		if caller.UserID == post.UserID {
			apps, err := s.orders.OrdersForPost(ctx, post.ID)
			if err != nil {
				return nil, err
			}
			detail.Applications = apps
		} else {
			mine, err := s.orders.OrderOf(ctx, post.ID, caller.UserID)
			if err != nil {
				return nil, err
			}
			detail.MyOrder = mine
			detail.HasApplied = mine != nil && mine.Status != models.OrderRejected
		}
	}
	return detail, nil
}

// CreatePost stores a new post awaiting moderation.
func (s *ForumService) CreatePost(ctx context.Context, caller Caller, in PostInput, attachment *Upload) (*models.ForumPost, error) {
	if _, err := loadPublisher(ctx, s.db, caller); err != nil {
		return nil, err
	}
	in, err := in.clean()
	if err != nil {
		return nil, err
	}
	post := models.ForumPost{
		UserID:           caller.UserID,
		Title:            in.Title,
		Content:          in.Content,
		Type:             in.Type,
		Status:           models.RecordActive,
		AuditStatus:      models.AuditPending,
		RequirementType:  in.RequirementType,
		TimeRequirement:  in.TimeRequirement,
		Budget:           in.Budget,
		StyleDescription: in.StyleDescription,
	}
	if attachment != nil {
		if s.store == nil {
			return nil, newError(ErrInvalidRequest, "attachments are not supported")
		}
		url, err := s.store.Upload(ctx, attachmentFolder(in.Type), *attachment)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		post.ReferenceAttachment = url
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		deleteObjects(ctx, s.store, s.log, post.ReferenceAttachment)
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.log.Info("post created", zap.Uint("post_id", post.ID), zap.Uint("user_id", caller.UserID), zap.Int8("type", int8(post.Type)))
	return &post, nil
}

// UpdatePost edits a post of the caller and resubmits it for moderation. The post type is fixed
// at creation.
func (s *ForumService) UpdatePost(ctx context.Context, caller Caller, id uint, in PostInput, attachment *Upload) (*models.ForumPost, error) {
	var post models.ForumPost
	if err := s.db.WithContext(ctx).Where("status = ?", models.RecordActive).First(&post, id).Error; err != nil {
		return nil, notFound(err, "post")
	}
	if caller.Anonymous() || post.UserID != caller.UserID {
		return nil, newError(ErrForbidden, "you can only update your own posts")
	}
	in.Type = post.Type
	in, err := in.clean()
	if err != nil {
		return nil, err
	}

	oldAttachment := ""
	if attachment != nil {
		if s.store == nil {
			return nil, newError(ErrInvalidRequest, "attachments are not supported")
		}
		url, err := s.store.Upload(ctx, attachmentFolder(post.Type), *attachment)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		oldAttachment = post.ReferenceAttachment
		post.ReferenceAttachment = url
	}

	// Only the editable columns are written; counters and is_accepted belong to other flows.
	updates := map[string]interface{}{
		"title":                in.Title,
		"content":              in.Content,
		"requirement_type":     in.RequirementType,
		"time_requirement":     in.TimeRequirement,
		"budget":               in.Budget,
		"style_description":    in.StyleDescription,
		"reference_attachment": post.ReferenceAttachment,
		"audit_status":         models.AuditPending,
		"audit_reason":         "",
	}
	if err := s.db.WithContext(ctx).Model(&models.ForumPost{}).Where("id = ?", post.ID).Updates(updates).Error; err != nil {
		if attachment != nil {
			deleteObjects(ctx, s.store, s.log, post.ReferenceAttachment)
		}
		return nil, fmt.Errorf("update post: %w", err)
	}
	deleteObjects(ctx, s.store, s.log, oldAttachment)
	if err := s.db.WithContext(ctx).First(&post, post.ID).Error; err != nil {
		return nil, notFound(err, "post")
	}
	return &post, nil
}

// DeletePost soft deletes a post of the caller; admins may delete any post.
func (s *ForumService) DeletePost(ctx context.Context, caller Caller, id uint) error {
	var post models.ForumPost
	if err := s.db.WithContext(ctx).Where("status = ?", models.RecordActive).First(&post, id).Error; err != nil {
		return notFound(err, "post")
	}
	if !caller.Owns(post.UserID) {
		return newError(ErrForbidden, "you can only delete your own posts")
	}
	if err := s.db.WithContext(ctx).Model(&post).Update("status", models.RecordDeleted).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.log.Info("post deleted", zap.Uint("post_id", post.ID), zap.Uint("by", caller.UserID))
	return nil
}

// LikePost adjusts the like counter of an active post; unliking never goes below zero.
func (s *ForumService) LikePost(ctx context.Context, id uint, like bool) error {
	return adjustLikes(ctx, s.db, &models.ForumPost{}, "post", id, like)
}

// LikeReply adjusts the like counter of an active reply.
func (s *ForumService) LikeReply(ctx context.Context, id uint, like bool) error {
	return adjustLikes(ctx, s.db, &models.ForumReply{}, "reply", id, like)
}

func adjustLikes(ctx context.Context, db *gorm.DB, model interface{}, what string, id uint, like bool) error {
	if err := db.WithContext(ctx).Select("id").Where("status = ?", models.RecordActive).First(model, id).Error; err != nil {
		return notFound(err, what)
	}
	q := db.WithContext(ctx).Model(model).Where("id = ?", id)
	expr := gorm.Expr("like_count + 1")
	if !like {
		q = q.Where("like_count > 0")
		expr = gorm.Expr("like_count - 1")
	}
	if err := q.UpdateColumn("like_count", expr).Error; err != nil {
		return fmt.Errorf("update %s likes: %w", what, err)
	}
	return nil
}

// ListReplies returns approved top level replies of a post with their approved children.
func (s *ForumService) ListReplies(ctx context.Context, postID uint, req PageRequest) (Page[models.ForumReply], error) {
	req = req.normalize()
	var post models.ForumPost
	if err := s.db.WithContext(ctx).Select("id").
		Where("status = ? AND audit_status = ?", models.RecordActive, models.AuditApproved).
		First(&post, postID).Error; err != nil {
		return Page[models.ForumReply]{}, notFound(err, "post")
	}
	visible := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.ForumReply{}).
			Where("post_id = ? AND status = ? AND audit_status = ?", postID, models.RecordActive, models.AuditApproved)
	}
	var total int64
	if err := visible().Where("parent_id IS NULL").Count(&total).Error; err != nil {
		return Page[models.ForumReply]{}, fmt.Errorf("count replies: %w", err)
	}
	var top []models.ForumReply
	if err := visible().Where("parent_id IS NULL").Order("created_at ASC").Order("id ASC").
		Offset(req.offset()).Limit(req.PageSize).Find(&top).Error; err != nil {
		return Page[models.ForumReply]{}, fmt.Errorf("list replies: %w", err)
	}

	var children []models.ForumReply
	if len(top) > 0 {
		parentIDs := make([]uint, 0, len(top))
		for _, r := range top {
			parentIDs = append(parentIDs, r.ID)
		}
		if err := visible().Where("parent_id IN ?", parentIDs).Order("created_at ASC").Order("id ASC").Find(&children).Error; err != nil {
			return Page[models.ForumReply]{}, fmt.Errorf("list child replies: %w", err)
		}
	}

	userIDs := make([]uint, 0, len(top)+len(children))
	for _, r := range top {
		userIDs = append(userIDs, r.UserID)
	}
	for _, r := range children {
		userIDs = append(userIDs, r.UserID)
	}
	users, err := loadUserBriefs(ctx, s.db, userIDs)
	if err != nil {
		return Page[models.ForumReply]{}, err
	}
	byParent := make(map[uint][]models.ForumReply)
	for _, c := range children {
		c.Author = users[c.UserID]
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}
	for i := range top {
		top[i].Author = users[top[i].UserID]
		top[i].Children = byParent[top[i].ID]
	}
	return newPage(top, total, req), nil
}

// AddReply stores a reply awaiting moderation and bumps the post's reply counter.
func (s *ForumService) AddReply(ctx context.Context, caller Caller, postID uint, parentID *uint, content string) (*models.ForumReply, error) {
	if _, err := loadPublisher(ctx, s.db, caller); err != nil {
		return nil, err
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, newError(ErrInvalidRequest, "content cannot be empty")
	}
	reply := models.ForumReply{
		PostID:      postID,
		UserID:      caller.UserID,
		ParentID:    parentID,
		Content:     content,
		Status:      models.RecordActive,
		AuditStatus: models.AuditPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.ForumPost
		if err := tx.Select("id").Where("status = ? AND audit_status = ?", models.RecordActive, models.AuditApproved).
			First(&post, postID).Error; err != nil {
			return notFound(err, "post")
		}
		if parentID != nil {
			var parent models.ForumReply
			if err := tx.Select("id", "post_id").Where("status = ?", models.RecordActive).First(&parent, *parentID).Error; err != nil {
				return notFound(err, "parent reply")
			}
			if parent.PostID != postID {
				return newError(ErrInvalidRequest, "parent reply belongs to another post")
			}
		}
		if err := tx.Create(&reply).Error; err != nil {
			return fmt.Errorf("create reply: %w", err)
		}
		if err := tx.Model(&models.ForumPost{}).Where("id = ?", postID).
			UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).Error; err != nil {
			return fmt.Errorf("increment reply count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// UpdateReply edits a reply of the caller and resubmits it for moderation.
func (s *ForumService) UpdateReply(ctx context.Context, caller Caller, id uint, content string) (*models.ForumReply, error) {
	var reply models.ForumReply
	if err := s.db.WithContext(ctx).Where("status = ?", models.RecordActive).First(&reply, id).Error; err != nil {
		return nil, notFound(err, "reply")
	}
	if caller.Anonymous() || reply.UserID != caller.UserID {
		return nil, newError(ErrForbidden, "you can only update your own replies")
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, newError(ErrInvalidRequest, "content cannot be empty")
	}
	err := s.db.WithContext(ctx).Model(&models.ForumReply{}).Where("id = ?", reply.ID).Updates(map[string]interface{}{
		"content":      content,
		"audit_status": models.AuditPending,
		"audit_reason": "",
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update reply: %w", err)
	}
	if err := s.db.WithContext(ctx).First(&reply, reply.ID).Error; err != nil {
		return nil, notFound(err, "reply")
	}
	return &reply, nil
}

// DeleteReply soft deletes a reply of the caller (or any reply for admins).
func (s *ForumService) DeleteReply(ctx context.Context, caller Caller, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reply models.ForumReply
		if err := tx.Where("status = ?", models.RecordActive).First(&reply, id).Error; err != nil {
			return notFound(err, "reply")
		}
		if !caller.Owns(reply.UserID) {
			return newError(ErrForbidden, "you can only delete your own replies")
		}
		if err := tx.Model(&reply).Update("status", models.RecordDeleted).Error; err != nil {
			return fmt.Errorf("delete reply: %w", err)
		}
		if err := tx.Model(&models.ForumPost{}).Where("id = ? AND reply_count > 0", reply.PostID).
			UpdateColumn("reply_count", gorm.Expr("reply_count - 1")).Error; err != nil {
			return fmt.Errorf("decrement reply count: %w", err)
		}
		return nil
	})
}

// UserContentFilter narrows listings of one user's content.
type UserContentFilter struct {
	UserID      uint
	AuditStatus *models.AuditStatus
	PageRequest
}

// UserPosts lists the active posts of a user. Other visitors only see approved posts.
func (s *ForumService) UserPosts(ctx context.Context, caller Caller, f UserContentFilter) (Page[models.ForumPost], error) {
	req := f.PageRequest.normalize()
	q := s.db.WithContext(ctx).Model(&models.ForumPost{}).Where("user_id = ? AND status = ?", f.UserID, models.RecordActive)
	q = scopeAudit(q, caller, f.UserID, f.AuditStatus)
	var posts []models.ForumPost
	total, err := pageQuery(q, req, &posts)
	if err != nil {
		return Page[models.ForumPost]{}, err
	}
	if err := s.attachPostAuthors(ctx, posts); err != nil {
		return Page[models.ForumPost]{}, err
	}
	return newPage(posts, total, req), nil
}

// UserReplies lists the active replies of a user with the same visibility rules as UserPosts.
func (s *ForumService) UserReplies(ctx context.Context, caller Caller, f UserContentFilter) (Page[models.ForumReply], error) {
	req := f.PageRequest.normalize()
	q := s.db.WithContext(ctx).Model(&models.ForumReply{}).Where("user_id = ? AND status = ?", f.UserID, models.RecordActive)
	q = scopeAudit(q, caller, f.UserID, f.AuditStatus)
	var replies []models.ForumReply
	total, err := pageQuery(q, req, &replies)
	if err != nil {
		return Page[models.ForumReply]{}, err
	}
	users, err := loadUserBriefs(ctx, s.db, []uint{f.UserID})
	if err != nil {
		return Page[models.ForumReply]{}, err
	}
	for i := range replies {
		replies[i].Author = users[replies[i].UserID]
	}
	return newPage(replies, total, req), nil
}

// scopeAudit restricts q to approved rows unless the caller owns them; owners may filter by state.
func scopeAudit(q *gorm.DB, caller Caller, ownerID uint, status *models.AuditStatus) *gorm.DB {
	if !caller.Owns(ownerID) {
		return q.Where("audit_status = ?", models.AuditApproved)
	}
	if status != nil {
		return q.Where("audit_status = ?", *status)
	}
	return q
}

func (s *ForumService) attachPostAuthors(ctx context.Context, posts []models.ForumPost) error {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	users, err := loadUserBriefs(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].Author = users[posts[i].UserID]
	}
	return nil
}
