package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// AuditController exposes the moderation queue to admins.
type AuditController struct {
	audit *services.AuditService
}

func NewAuditController(audit *services.AuditService) *AuditController {
	return &AuditController{audit: audit}
}

func contentKind(ctx *gin.Context) (services.ContentKind, bool) {
	kind, err := services.ParseContentKind(ctx.Param("kind"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, services.Message(err, "unknown content kind"))
		return "", false
	}
	return kind, true
}

// Approve marks an item approved.
func (a *AuditController) Approve(ctx *gin.Context) {
	kind, ok := contentKind(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := a.audit.Approve(ctx.Request.Context(), kind, id); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"kind": kind, "id": id, "audit_status": "approved"})
}

// Reject marks an item rejected with an optional reason from the query or JSON body.
func (a *AuditController) Reject(ctx *gin.Context) {
	kind, ok := contentKind(ctx)
	if !ok {
		return
	}
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	reason := strings.TrimSpace(ctx.Query("reason"))
	if reason == "" && ctx.Request.ContentLength > 0 {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := ctx.ShouldBindJSON(&body); err == nil {
			reason = strings.TrimSpace(body.Reason)
		}
	}
	if err := a.audit.Reject(ctx.Request.Context(), kind, id, reason); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"kind": kind, "id": id, "audit_status": "rejected", "reason": reason})
}

// ListPending returns pending items of one kind, newest first.
func (a *AuditController) ListPending(ctx *gin.Context) {
	kind, ok := contentKind(ctx)
	if !ok {
		return
	}
	page, err := a.audit.ListPending(ctx.Request.Context(), kind, pageRequest(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	respondPage(ctx, page)
}
