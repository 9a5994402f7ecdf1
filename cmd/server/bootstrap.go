package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/security"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisClient
	Store      cache.Store
	Sessions   *iauth.SessionIssuer
	Dispatcher *iauth.Dispatcher
	Core       *iauth.Core
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	keys, err := app.DeriveAuthKeys(cfg.Auth.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth.session.secret: %w", err)
	}

	logAuditResult(security.NewAuditService(cfg).Run(), log)

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	// Pending codes live in Redis when it is reachable; otherwise the database holds them and the
	// cleaner purges expired rows.
	var otps iauth.OTPStore
	var otpPurger cache.Purger
	otpCfg := cfg.Auth.OTPStoreConfig(keys.OTPDigest)
	if stack.Redis != nil {
		if otps, err = iauth.NewRedisOTPStore(stack.Redis.Client(), otpCfg); err != nil {
			return nil, fmt.Errorf("initialise otp store: %w", err)
		}
	} else {
		dbOTPs, dbErr := iauth.NewDBOTPStore(stack.DB, otpCfg)
		if dbErr != nil {
			return nil, fmt.Errorf("initialise otp store: %w", dbErr)
		}
		otps, otpPurger = dbOTPs, dbOTPs
	}

	resolverCfg, err := cfg.Auth.ResolverConfig()
	if err != nil {
		return nil, err
	}
	resolver, err := iauth.NewIdentityResolver(stack.DB, resolverCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise identity resolver: %w", err)
	}

	sessionCfg := cfg.Auth.SessionIssuerConfig()
	sessionCfg.Denylist = stack.Store
	stack.Sessions, err = iauth.NewSessionIssuer(sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session issuer: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; one-time codes cannot be delivered")
	}
	sender, err := iauth.NewMailSender(mailer, cfg.Email.MailSenderConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise otp mail sender: %w", err)
	}
	stack.Dispatcher, err = iauth.NewDispatcher(sender, cfg.Auth.DispatcherConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise otp dispatcher: %w", err)
	}

	catalog, err := providers.NewCatalog(
		providers.DefaultRegistry(providers.Options{}),
		cfg.Auth.ProviderConfigs(cfg.Server.PublicURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise provider catalog: %w", err)
	}
	states, err := iauth.NewStateCodec(keys.OAuthState, cfg.Auth.OAuth.StateTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise oauth state codec: %w", err)
	}

	stack.Core, err = iauth.NewCore(iauth.CoreDeps{
		OTPs:       otps,
		Identities: resolver,
		Sessions:   stack.Sessions,
		Delivery:   stack.Dispatcher,
		Throttle:   stack.Store,
		Catalog:    catalog,
		States:     states,
	}, cfg.Auth.CoreOptions())
	if err != nil {
		return nil, fmt.Errorf("initialise auth core: %w", err)
	}

	for _, meta := range catalog.EnabledMetadata() {
		log.Info("oauth provider enabled", zap.String("provider", meta.Type))
	}

	stack.Cleaner = maintenance.NewCleaner(otpPurger, dbStore,
		maintenance.WithOTPSchedule(cfg.Maintenance.OTPSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	health := monitoring.NewHealth(0)
	health.AddReadiness("database", monitoring.DatabaseProbe(stack.DB))
	if stack.Redis != nil {
		health.AddReadiness("redis", monitoring.PingProbe(stack.Redis))
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:       stack.DB,
		Config:   cfg,
		Core:     stack.Core,
		Sessions: stack.Sessions,
		Users:    resolver,
		Cache:    stack.Store,
		Health:   health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown drains pending deliveries, stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Dispatcher != nil {
		drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := s.Dispatcher.Close(drainCtx); err != nil {
			log.Warn("otp deliveries still pending at shutdown", zap.Error(err))
		}
		cancel()
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func logAuditResult(result security.Result, log *zap.Logger) {
	auditLog := log.With(zap.String("module", "security"))
	for _, check := range result.Checks {
		fields := []zap.Field{zap.String("check", check.ID), zap.String("remediation", check.Remediation)}
		switch check.Status {
		case security.StatusFail:
			auditLog.Error(check.Message, fields...)
		case security.StatusWarn:
			auditLog.Warn(check.Message, fields...)
		}
	}
	auditLog.Info("security audit complete",
		zap.Int("passed", result.Summary[string(security.StatusPass)]),
		zap.Int("warnings", result.Summary[string(security.StatusWarn)]),
		zap.Int("failures", result.Summary[string(security.StatusFail)]),
	)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyHostConfig(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyHostConfig(&dbCfg, cfg.Database.MySQL)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func applyHostConfig(dbCfg *database.Config, auth app.DBAuthConfig) {
	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
