package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/config"
	"github.com/cppla/vibemusic/controllers"
	"github.com/cppla/vibemusic/metrics"
	"github.com/cppla/vibemusic/middleware"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config   config.AppConfig
	DB       *gorm.DB
	Accounts *services.AccountService
	Catalog  *services.CatalogService
	Forum    *services.ForumService
	Orders   *services.OrderService
	Audit    *services.AuditService
	Tokens   middleware.TokenChecker
	Captcha  *utils.Captcha
	Guard    *utils.RegisterGuard
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		status := gin.H{"status": "ok"}
		if sqlDB, err := d.DB.DB(); err != nil || sqlDB.PingContext(ctx.Request.Context()) != nil {
			utils.Error(ctx, http.StatusServiceUnavailable, 50300, "database unavailable")
			return
		}
		utils.Success(ctx, status)
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authController := controllers.NewAuthController(d.Accounts, controllers.AuthOptions{
		Captcha:        d.Captcha,
		Guard:          d.Guard,
		CaptchaEnabled: cfg.RegisterCaptchaEnabled,
		UploadMaxMB:    cfg.UploadMaxMB,
	})
	catalogController := controllers.NewCatalogController(d.Catalog, cfg.UploadMaxMB)
	forumController := controllers.NewForumController(d.Forum, d.Orders, cfg.UploadMaxMB)
	auditController := controllers.NewAuditController(d.Audit)
	statsController := controllers.NewStatsController(d.DB, d.Audit)

	authRequired := middleware.AuthRequired(d.Tokens)
	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	authGroup.POST("/captcha", authController.Captcha)
	authGroup.POST("/email-code", authController.SendEmailCode)
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", authRequired, authController.Logout)
	authGroup.GET("/me", authRequired, authController.Me)
	authGroup.PATCH("/profile", authRequired, authController.UpdateProfile)
	authGroup.POST("/avatar", authRequired, authController.UpdateAvatar)

	// Public reads; a valid token personalises the answer
	public := api.Group("")
	public.Use(middleware.OptionalAuth(d.Tokens))
	public.GET("/songs", catalogController.ListSongs)
	public.GET("/songs/recommended", catalogController.RecommendedSongs)
	public.GET("/songs/original", catalogController.ListOriginalSongs)
	public.GET("/songs/:id", catalogController.GetSong)
	public.POST("/songs/:id/play", catalogController.RecordPlay)
	public.GET("/songs/:id/comments", catalogController.ListComments)
	public.GET("/artists", catalogController.ListArtists)
	public.GET("/artists/:id", catalogController.GetArtist)
	public.GET("/playlists", catalogController.ListPlaylists)
	public.GET("/playlists/:id", catalogController.GetPlaylist)
	public.GET("/forum/posts", forumController.ListPosts)
	public.GET("/forum/posts/:id", forumController.GetPost)
	public.GET("/forum/posts/:id/replies", forumController.ListReplies)
	public.GET("/users/:id", authController.GetUserPublic)
	public.GET("/users/:id/posts", forumController.ListUserPosts)
	public.GET("/users/:id/replies", forumController.ListUserReplies)
	public.GET("/users/:id/songs", catalogController.ListUserSongs)

	protected := api.Group("")
	protected.Use(authRequired, middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	protected.POST("/songs", catalogController.UploadSong)
	protected.DELETE("/songs/:id", catalogController.DeleteSong)
	protected.POST("/songs/:id/favorite", catalogController.AddFavorite)
	protected.DELETE("/songs/:id/favorite", catalogController.RemoveFavorite)
	protected.GET("/favorites", catalogController.ListFavorites)
	protected.POST("/songs/:id/comments", catalogController.AddComment)
	protected.DELETE("/comments/:commentId", catalogController.DeleteComment)

	protected.POST("/forum/posts", forumController.CreatePost)
	protected.PUT("/forum/posts/:id", forumController.UpdatePost)
	protected.DELETE("/forum/posts/:id", forumController.DeletePost)
	protected.POST("/forum/posts/:id/like", forumController.LikePost)
	protected.DELETE("/forum/posts/:id/like", forumController.UnlikePost)
	protected.POST("/forum/posts/:id/replies", forumController.AddReply)
	protected.PUT("/forum/replies/:id", forumController.UpdateReply)
	protected.DELETE("/forum/replies/:id", forumController.DeleteReply)
	protected.POST("/forum/replies/:id/like", forumController.LikeReply)
	protected.DELETE("/forum/replies/:id/like", forumController.UnlikeReply)

	protected.POST("/forum/posts/:id/orders", forumController.ApplyOrder)
	protected.GET("/forum/orders/applications", forumController.ListApplications)
	protected.GET("/forum/orders/mine", forumController.ListMyOrders)
	protected.GET("/forum/orders/:id", forumController.GetOrder)
	protected.PATCH("/forum/orders/:id/accept", forumController.AcceptOrder)
	protected.PATCH("/forum/orders/:id/reject", forumController.RejectOrder)
	protected.PATCH("/forum/orders/:id/complete", forumController.CompleteOrder)

	admin := api.Group("/admin")
	admin.Use(authRequired, middleware.AdminRequired())
	admin.PATCH("/audit/:kind/:id/approve", auditController.Approve)
	admin.PATCH("/audit/:kind/:id/reject", auditController.Reject)
	admin.GET("/audit/pending/:kind", auditController.ListPending)
	admin.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
