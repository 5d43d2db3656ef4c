package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// ForumController serves forum posts, replies and requirement orders.
type ForumController struct {
	forum       *services.ForumService
	orders      *services.OrderService
	uploadMaxMB int
}

// NewForumController creates a new ForumController instance.
func NewForumController(forum *services.ForumService, orders *services.OrderService, uploadMaxMB int) *ForumController {
	return &ForumController{forum: forum, orders: orders, uploadMaxMB: uploadMaxMB}
}

type postRequest struct {
	Title            string `json:"title" form:"title" binding:"required"`
	Content          string `json:"content" form:"content" binding:"required"`
	Type             int8   `json:"type" form:"type"`
	RequirementType  string `json:"requirement_type" form:"requirement_type"`
	TimeRequirement  string `json:"time_requirement" form:"time_requirement"`
	Budget           string `json:"budget" form:"budget"`
	StyleDescription string `json:"style_description" form:"style_description"`
}

func (r postRequest) input() services.PostInput {
	return services.PostInput{
		Title:            r.Title,
		Content:          r.Content,
		Type:             models.PostType(r.Type),
		RequirementType:  r.RequirementType,
		TimeRequirement:  r.TimeRequirement,
		Budget:           r.Budget,
		StyleDescription: r.StyleDescription,
	}
}

// ListPosts returns approved posts, pinned first.
func (f *ForumController) ListPosts(ctx *gin.Context) {
	filter := services.PostFilter{Keyword: strings.TrimSpace(ctx.Query("keyword")), PageRequest: pageRequest(ctx)}
	if t, ok := queryInt8(ctx, "type"); ok {
		pt := models.PostType(t)
		filter.Type = &pt
	}
	page, err := f.forum.ListPosts(ctx.Request.Context(), filter)
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// GetPost returns a post with the caller's view of its orders.
func (f *ForumController) GetPost(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	detail, err := f.forum.GetPost(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, detail)
}

// CreatePost accepts JSON or a multipart form with an optional "attachment" file.
func (f *ForumController) CreatePost(ctx *gin.Context) {
	var req postRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	files := newUploads(ctx, f.uploadMaxMB)
	defer files.Close()
	attachment, err := files.file("attachment")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	post, err := f.forum.CreatePost(ctx.Request.Context(), callerFrom(ctx), req.input(), attachment)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, post)
}

// UpdatePost edits a post and sends it back to moderation.
func (f *ForumController) UpdatePost(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req postRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	files := newUploads(ctx, f.uploadMaxMB)
	defer files.Close()
	attachment, err := files.file("attachment")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	post, err := f.forum.UpdatePost(ctx.Request.Context(), callerFrom(ctx), id, req.input(), attachment)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, post)
}

// DeletePost soft deletes a post.
func (f *ForumController) DeletePost(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := f.forum.DeletePost(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// LikePost and UnlikePost adjust the like counter.
func (f *ForumController) LikePost(ctx *gin.Context) { f.likePost(ctx, true) }
func (f *ForumController) UnlikePost(ctx *gin.Context) { f.likePost(ctx, false) }

func (f *ForumController) likePost(ctx *gin.Context, like bool) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := f.forum.LikePost(ctx.Request.Context(), id, like); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

// ListReplies returns approved top-level replies with their approved children.
func (f *ForumController) ListReplies(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.forum.ListReplies(ctx.Request.Context(), id, pageRequest(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

type replyRequest struct {
	Content  string `json:"content" binding:"required"`
	ParentID *uint  `json:"parent_id"`
}

// AddReply posts a reply, optionally nested under parent_id.
func (f *ForumController) AddReply(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req replyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	reply, err := f.forum.AddReply(ctx.Request.Context(), callerFrom(ctx), id, req.ParentID, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, reply)
}

// UpdateReply edits a reply and sends it back to moderation.
func (f *ForumController) UpdateReply(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req replyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	reply, err := f.forum.UpdateReply(ctx.Request.Context(), callerFrom(ctx), id, req.Content)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, reply)
}

// DeleteReply soft deletes a reply.
func (f *ForumController) DeleteReply(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := f.forum.DeleteReply(ctx.Request.Context(), callerFrom(ctx), id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "reply deleted"})
}

func (f *ForumController) LikeReply(ctx *gin.Context) { f.likeReply(ctx, true) }
func (f *ForumController) UnlikeReply(ctx *gin.Context) { f.likeReply(ctx, false) }

func (f *ForumController) likeReply(ctx *gin.Context, like bool) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := f.forum.LikeReply(ctx.Request.Context(), id, like); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, nil)
}

func userContentFilter(ctx *gin.Context, userID uint) services.UserContentFilter {
	filter := services.UserContentFilter{UserID: userID, PageRequest: pageRequest(ctx)}
	if v, ok := queryInt8(ctx, "audit_status"); ok {
		st := models.AuditStatus(v)
		filter.AuditStatus = &st
	}
	return filter
}

// ListUserPosts returns posts created by a specific user.
func (f *ForumController) ListUserPosts(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.forum.UserPosts(ctx.Request.Context(), callerFrom(ctx), userContentFilter(ctx, id))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ListUserReplies returns replies written by a specific user.
func (f *ForumController) ListUserReplies(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	page, err := f.forum.UserReplies(ctx.Request.Context(), callerFrom(ctx), userContentFilter(ctx, id))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ApplyOrder records the caller's application to fulfil a requirement post.
func (f *ForumController) ApplyOrder(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	order, err := f.orders.Apply(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, order)
}

// AcceptOrder, RejectOrder and CompleteOrder are the poster's decisions on an order.
func (f *ForumController) AcceptOrder(ctx *gin.Context) {
	f.transition(ctx, f.orders.Accept)
}

func (f *ForumController) RejectOrder(ctx *gin.Context) {
	f.transition(ctx, f.orders.Reject)
}

func (f *ForumController) CompleteOrder(ctx *gin.Context) {
	f.transition(ctx, f.orders.Complete)
}

type orderAction func(ctx context.Context, caller services.Caller, orderID uint) (*models.ForumOrder, error)

func (f *ForumController) transition(ctx *gin.Context, action orderAction) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	order, err := action(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, order)
}

func orderFilter(ctx *gin.Context) services.OrderFilter {
	filter := services.OrderFilter{PostID: queryUint(ctx, "post_id"), PageRequest: pageRequest(ctx)}
	if v, ok := queryInt8(ctx, "status"); ok {
		st := models.OrderStatus(v)
		filter.Status = &st
	}
	return filter
}

// ListApplications returns orders received on the caller's posts.
func (f *ForumController) ListApplications(ctx *gin.Context) {
	page, err := f.orders.ListApplicationsForPoster(ctx.Request.Context(), callerFrom(ctx), orderFilter(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// ListMyOrders returns the orders the caller applied for.
func (f *ForumController) ListMyOrders(ctx *gin.Context) {
	page, err := f.orders.ListOrdersForAccepter(ctx.Request.Context(), callerFrom(ctx), orderFilter(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}

// GetOrder returns one order to its poster, its accepter or an admin.
func (f *ForumController) GetOrder(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	order, err := f.orders.GetOrderDetail(ctx.Request.Context(), callerFrom(ctx), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, order)
}
