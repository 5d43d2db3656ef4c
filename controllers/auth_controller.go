package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/vibemusic/middleware"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// AuthController handles registration, login and the caller's profile.
type AuthController struct {
	accounts       *services.AccountService
	captcha        *utils.Captcha
	guard          *utils.RegisterGuard
	captchaEnabled bool
	uploadMaxMB    int
}

// AuthOptions configures AuthController.
type AuthOptions struct {
	Captcha        *utils.Captcha
	Guard          *utils.RegisterGuard
	CaptchaEnabled bool
	UploadMaxMB    int
}

// NewAuthController creates an AuthController.
func NewAuthController(accounts *services.AccountService, opts AuthOptions) *AuthController {
	if opts.Captcha == nil {
		opts.Captcha = utils.NewCaptcha(nil)
	}
	return &AuthController{
		accounts:       accounts,
		captcha:        opts.Captcha,
		guard:          opts.Guard,
		captchaEnabled: opts.CaptchaEnabled,
		uploadMaxMB:    opts.UploadMaxMB,
	}
}

// Captcha returns a fresh captcha id and base64 image (data URI).
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := a.captcha.Generate()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to generate captcha")
		return
	}
	utils.Success(ctx, gin.H{"id": id, "image": b64})
}

// SendEmailCode sends a verification code to the user's email.
func (a *AuthController) SendEmailCode(ctx *gin.Context) {
	var req struct {
		Email         string `json:"email" binding:"required"`
		CaptchaID     string `json:"captcha_id"`
		CaptchaAnswer string `json:"captcha_answer"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}
	// When enabled, captcha must be verified BEFORE sending email code
	if a.captchaEnabled && !a.captcha.Verify(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
		utils.Error(ctx, http.StatusBadRequest, 40042, "captcha is wrong or expired")
		return
	}
	if err := a.accounts.SendEmailCode(ctx.Request.Context(), req.Email); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "verification code sent"})
}

// Register creates an account and logs it in. Attempts are throttled per client IP.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Confirm  string `json:"confirm"`
		Code     string `json:"code" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	if err := a.guard.Allow(ctx.Request.Context(), ip); err != nil {
		code := 42910
		if errors.Is(err, utils.ErrRegisterBanned) {
			code = 42920
		} else if errors.Is(err, utils.ErrRegisterDailyLimit) {
			code = 42921
		}
		utils.Error(ctx, http.StatusTooManyRequests, code, err.Error())
		return
	}

	result, err := a.accounts.Register(ctx.Request.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Confirm:  req.Confirm,
		Code:     req.Code,
	})
	if err != nil {
		a.guard.Failed(ctx.Request.Context(), ip)
		writeError(ctx, err)
		return
	}
	a.guard.Succeeded(ctx.Request.Context(), ip)
	utils.Success(ctx, result)
}

// Login exchanges credentials for a token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	result, err := a.accounts.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, result)
}

// Logout forgets the caller's token so it stops authenticating.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	if err := a.accounts.Logout(ctx.Request.Context(), token); err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current user.
func (a *AuthController) Me(ctx *gin.Context) {
	user, err := a.accounts.Me(ctx.Request.Context(), callerFrom(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"user": user, "role": ctx.GetString(middleware.ContextRoleKey)})
}

// UpdateProfile edits email, introduction, area and birth (YYYY-MM-DD).
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Email        *string `json:"email"`
		Introduction *string `json:"introduction"`
		Area         *string `json:"area"`
		Birth        *string `json:"birth"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	in := services.ProfileInput{Email: req.Email, Introduction: req.Introduction, Area: req.Area}
	if req.Birth != nil && strings.TrimSpace(*req.Birth) != "" {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*req.Birth), time.Local)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40003, "birth must be YYYY-MM-DD")
			return
		}
		in.Birth = &d
	}
	user, err := a.accounts.UpdateProfile(ctx.Request.Context(), callerFrom(ctx), in)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// UpdateAvatar replaces the avatar from the multipart "avatar" file.
func (a *AuthController) UpdateAvatar(ctx *gin.Context) {
	files := newUploads(ctx, a.uploadMaxMB)
	defer files.Close()
	file, err := files.file("avatar")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, err.Error())
		return
	}
	if file == nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "avatar file is required")
		return
	}
	user, err := a.accounts.UpdateAvatar(ctx.Request.Context(), callerFrom(ctx), *file)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, user)
}

// GetUserPublic returns a user's public profile.
func (a *AuthController) GetUserPublic(ctx *gin.Context) {
	id, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	user, err := a.accounts.GetUser(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"avatar_url":   user.AvatarURL,
		"introduction": user.Introduction,
		"area":         user.Area,
		"created_at":   user.CreatedAt,
	})
}
