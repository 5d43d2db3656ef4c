package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/config"
	"github.com/cppla/vibemusic/jobs"
	"github.com/cppla/vibemusic/migrations"
	"github.com/cppla/vibemusic/routes"
	"github.com/cppla/vibemusic/services"
	"github.com/cppla/vibemusic/utils"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(migrate bool) error {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		return err
	}
	log := utils.Logger
	defer func() { _ = log.Sync() }()

	db, err := config.InitDatabase()
	if err != nil {
		return err
	}
	if err := prepareSchema(db, migrate || cfg.AutoMigrate); err != nil {
		return err
	}

	rc := utils.GetRedis()
	cache := utils.NewTagCache(rc, log.Named("cache"))
	tokens := utils.NewLoginTokenStore(rc)
	mailer := utils.NewSMTPMailer(cfg)

	var store services.ObjectStore
	if cfg.MinioEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		objects, err := utils.NewObjectStore(ctx, cfg)
		cancel()
		if err != nil {
			return err
		}
		store = objects
	} else {
		log.Warn("object storage not configured, uploads are disabled")
	}

	orders := services.NewOrderService(db, log.Named("orders"))
	audit := services.NewAuditService(db, cache, log.Named("audit"))
	audit.OnSongApproved(services.NewArtistSync(db, log.Named("artist_sync")))
	accounts := services.NewAccountService(db, services.AccountDeps{
		Tokens:         tokens,
		Codes:          utils.NewCodeStore(rc),
		Mailer:         mailer,
		Issue:          utils.GenerateToken,
		Store:          store,
		AdminUsernames: cfg.AdminUsernames,
	}, log.Named("accounts"))

	r := routes.SetupRouter(routes.Deps{
		Config:   cfg,
		DB:       db,
		Accounts: accounts,
		Catalog:  services.NewCatalogService(db, store, cache, log.Named("catalog")),
		Forum:    services.NewForumService(db, orders, store, log.Named("forum")),
		Orders:   orders,
		Audit:    audit,
		Tokens:   tokens,
		Captcha:  utils.NewCaptcha(utils.NewCaptchaStore(rc, 10*time.Minute)),
		Guard:    utils.NewRegisterGuard(rc, utils.RegisterLimitsFrom(cfg)),
	})

	hooks := []func(context.Context){}
	if cfg.JobsEnabled {
		scheduler := jobs.New(jobs.Config{
			DigestSpec:         cfg.DigestSpec,
			RecommendFlushSpec: cfg.RecommendFlushSpec,
			AdminEmails:        cfg.AdminEmails,
		}, audit, cache, mailer, log.Named("jobs"))
		if err := scheduler.Start(); err != nil {
			return err
		}
		hooks = append(hooks, scheduler.Stop)
	}
	hooks = append(hooks, func(context.Context) {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = rc.Close()
	})

	log.Info("starting server", zap.String("port", cfg.AppPort))
	if err := utils.GraceServer(":"+cfg.AppPort, r, hooks...); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// prepareSchema applies migrations when asked to and refuses to serve an empty schema.
func prepareSchema(db *gorm.DB, migrate bool) error {
	if migrate {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := migrations.Up(sqlDB); err != nil {
			return err
		}
	}
	empty, err := config.IsDatabaseEmpty(db)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if empty {
		return fmt.Errorf("database schema is empty; run `vibemusic migrate up` or serve with --migrate")
	}
	return nil
}
