package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/vibemusic/middleware"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func pageRequest(ctx *gin.Context) services.PageRequest {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	return services.PageRequest{Page: page, PageSize: pageSize}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// callerFrom builds the identity set by the auth middleware; anonymous when absent.
func callerFrom(ctx *gin.Context) services.Caller {
	id, ok := getUserID(ctx)
	if !ok {
		return services.Caller{}
	}
	return services.Caller{
		UserID:   id,
		Username: ctx.GetString(middleware.ContextUsernameKey),
		Role:     ctx.GetString(middleware.ContextRoleKey),
	}
}

// paramID parses a positive numeric path parameter, writing a 400 when it is not one.
func paramID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryUint(ctx *gin.Context, name string) uint {
	v, err := strconv.ParseUint(strings.TrimSpace(ctx.Query(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func queryInt8(ctx *gin.Context, name string) (int8, bool) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 8)
	if err != nil {
		return 0, false
	}
	return int8(v), true
}

// writeError maps a service error onto the response envelope.
func writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40400, services.Message(err, "not found"))
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40300, services.Message(err, "forbidden"))
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40900, services.Message(err, "conflict"))
	case errors.Is(err, services.ErrInvalidState):
		utils.Error(ctx, http.StatusUnprocessableEntity, 42200, services.Message(err, "operation not allowed in current state"))
	case errors.Is(err, services.ErrInvalidRequest):
		utils.Error(ctx, http.StatusBadRequest, 40000, services.Message(err, "invalid request"))
	case errors.Is(err, services.ErrUnauthenticated):
		utils.Error(ctx, http.StatusUnauthorized, 40100, services.Message(err, "unauthorized"))
	case errors.Is(err, services.ErrRateLimited):
		utils.Error(ctx, http.StatusTooManyRequests, 42900, services.Message(err, "too many requests"))
	default:
		if utils.Logger != nil {
			utils.Logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		}
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
	}
}

func respondPage[T any](ctx *gin.Context, page services.Page[T]) {
	utils.Paginated(ctx, page.Items, page.Page, page.PageSize, page.Total)
}

// uploads collects the multipart files of one request so they can be closed together.
type uploads struct {
	ctx      *gin.Context
	maxBytes int64
	closers  []io.Closer
}

func newUploads(ctx *gin.Context, maxMB int) *uploads {
	return &uploads{ctx: ctx, maxBytes: int64(maxMB) << 20}
}

// file returns the named form file, or nil when the client did not send it.
func (u *uploads) file(field string) (*services.Upload, error) {
	fh, err := u.ctx.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	f, closer, err := utils.OpenMultipart(fh, u.maxBytes)
	if err != nil {
		return nil, err
	}
	u.closers = append(u.closers, closer)
	return &f, nil
}

func (u *uploads) Close() {
	for _, c := range u.closers {
		_ = c.Close()
	}
}
