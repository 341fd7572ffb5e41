package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"memberportal/internal/attendance"
	"memberportal/internal/config"
	"memberportal/internal/docstore"
	"memberportal/internal/httpapi"
	"memberportal/internal/httpmiddleware"
	"memberportal/internal/identity"
	"memberportal/internal/ledger"
	"memberportal/internal/logging"
	"memberportal/internal/mailer"
	"memberportal/internal/metrics"
	"memberportal/internal/session"
	"memberportal/internal/token"
	"memberportal/internal/verification"
	"memberportal/internal/whitelist"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	logger, err := logging.Init("info", cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	codec, err := token.NewCodec(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	gate := session.NewGate(codec)

	var (
		docs      docstore.Store
		ledgerSvc ledger.Service
		redis     *docstore.Redis
	)
	if cfg.DevBackends {
		logger.Warn("using in-memory backends, nothing will persist")
		docs = docstore.NewMemory()
		ledgerSvc = ledger.NewMemory()
	} else {
		redis = docstore.NewRedis(cfg.RedisAddr)
		docs = redis
		ledgerSvc = ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerID, cfg.LedgerToken)
	}

	var mail mailer.Sender
	if cfg.MailFrom != "" {
		ses, err := mailer.NewSES(context.Background(), cfg.MailRegion, cfg.MailFrom)
		if err != nil {
			return err
		}
		mail = ses
		logger.Info("mail configured", zap.String("from", cfg.MailFrom))
	} else {
		mail = mailer.Log{Logger: logger}
		logger.Info("mail not configured (MAIL_FROM not set)")
	}

	var ids identity.Verifier
	if cfg.IdentityURL != "" {
		ids = identity.NewClient(cfg.IdentityURL, cfg.IdentityToken)
	} else {
		logger.Warn("identity provider not configured, dev tokens only")
		ids = identity.Static{}
	}

	mgr := ledger.NewManager(ledgerSvc, logger)
	wl := whitelist.NewStore(docs)
	recorder := attendance.NewRecorder(mgr, docs, wl, cfg.Timezone, logger)
	codes := verification.NewService(docs, mail, cfg.CodeTTL, cfg.CodeCooldown, cfg.CodeMaxAttempts, logger)

	h := httpapi.New(gate, codec, ids, recorder, wl, codes, docs,
		cfg.Timezone, cfg.TwoFactorLogin, cfg.CodeTTL, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.ZapLogger(logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		redisHealthy := true
		if redis != nil {
			redisHealthy = redis.Healthy(c.Request.Context())
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"status": "ok", "docstore": redisHealthy})
	})

	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}

	// Drain aggregate reconciles still in flight after their appends.
	recorder.Wait()
	logger.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
