package main

import (
	"context"
	"image-board-backend/config"
	_ "image-board-backend/docs" // Important for Swagger
	v1 "image-board-backend/internal/delivery/http/v1"
	"image-board-backend/internal/domain"
	"image-board-backend/internal/repository/postgres"
	"image-board-backend/internal/repository/session"
	"image-board-backend/internal/usecase"
	"image-board-backend/pkg/auth"
	"image-board-backend/pkg/imaging"
	"image-board-backend/pkg/logger"
	"image-board-backend/pkg/redis"
	"image-board-backend/pkg/security"
	"image-board-backend/pkg/security/antivirus"
	"image-board-backend/pkg/supabase"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// @title           Image Board API
// @version         1.0
// @description     Backend for the image board app: hosted-auth sessions, profiles and the full screen image viewer.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey SessionKey
// @in header
// @name X-Session-ID
func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Setup Logger
	logger.Init(cfg.Debug)
	secLog := security.InitSecurityLogger("image-board-backend", cfg.Env)
	defer secLog.Sync()
	logger.Log.Info("Starting image board backend", "port", cfg.Port, "env", cfg.Env)

	// 3. Setup Supabase (auth, database, storage)
	supabase.Init(supabase.Config{
		URL:         cfg.SupabaseUrl,
		Key:         cfg.SupabaseKey,
		DatabaseURL: cfg.DBUrl,
		Storage: supabase.StorageConfig{
			Endpoint:        cfg.StorageEndpoint,
			Region:          cfg.StorageRegion,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			Bucket:          cfg.StorageBucket,
		},
	})
	sb, err := supabase.Get(context.Background())
	if err != nil {
		logger.Log.Error("Failed to initialize supabase client", "error", err)
		os.Exit(1)
	}
	defer sb.Close()

	// 4. Setup Redis (optional)
	if err := redis.Initialize(redis.Config{URL: cfg.RedisURL, Password: cfg.RedisPassword}); err != nil {
		logger.Log.Warn("Redis unavailable, using in-memory sessions and limits", "error", err)
	}
	defer redis.Close()

	var (
		sessionStore domain.SessionStore
		memSessions  *session.MemoryStore
		imageCache   imaging.Cache
	)
	if rc := redis.Client(); rc != nil {
		sessionStore = session.NewRedisStore(rc, cfg.SessionTTL)
		imageCache = imaging.NewRedisCache(rc)
	} else {
		memSessions = session.NewMemoryStore(cfg.SessionTTL)
		sessionStore = memSessions
		imageCache = imaging.NewMemoryCache(128)
	}

	// 5. Setup Repositories
	profileRepo := postgres.NewProfileRepository(sb.DB)

	// 6. Setup Auth Verifier (JWKS + HS256)
	jwksProvider := auth.NewProvider(sb.Auth.JWKSURL())
	verifier := auth.NewVerifier(jwksProvider, cfg.SupabaseJWTSecret)

	// 7. Setup UseCases
	loginTracker := security.NewLoginTracker(security.LoginTrackerConfig{
		MaxAttempts:   cfg.FailedLoginMaxAttempts,
		BlockDuration: time.Duration(cfg.FailedLoginBlockMinutes) * time.Minute,
	}, secLog)

	authUC := usecase.NewAuthUsecase(sb.Auth, sessionStore, profileRepo, loginTracker, secLog, logger.Log, usecase.AuthConfig{
		PasswordResetRedirectURL: cfg.PasswordResetRedirectURL,
	})

	// Storage is optional; keep the interfaces nil rather than typed-nil
	var (
		objectGetter  imaging.ObjectGetter
		objectStore   usecase.ObjectStore
		storagePinger usecase.Pinger
	)
	if sb.Storage != nil {
		objectGetter = sb.Storage
		objectStore = sb.Storage
		storagePinger = sb.Storage
	} else {
		logger.Log.Warn("Storage not configured - uploads and storage:// images are disabled")
	}

	loader := imaging.NewLoader(nil, objectGetter, imageCache, imaging.LoaderConfig{
		MaxBytes:          cfg.ImageMaxBytes,
		CacheTTL:          cfg.ImageCacheTTL,
		AllowPrivateHosts: cfg.ImagePrivateHosts,
	}, logger.Log)

	viewerUC := usecase.NewViewerUsecase(loader, usecase.ViewerConfig{
		IdleTimeout: cfg.ViewerIdleTimeout,
		MaxViewers:  cfg.MaxViewers,
	}, logger.Log)
	adminUC := usecase.NewAdminUsecase(profileRepo, viewerUC)
	var (
		scanner       antivirus.Scanner
		scannerPinger usecase.Pinger
	)
	if cfg.ClamAVAddress != "" {
		clam := antivirus.NewClamAVScanner(cfg.ClamAVAddress, 30*time.Second)
		scanner, scannerPinger = clam, clam
	}
	mediaUC := usecase.NewMediaUsecase(objectStore, usecase.MediaConfig{
		MaxBytes:     cfg.UploadMaxBytes,
		MaxDimension: cfg.UploadMaxDim,
		Scanner:      scanner,
	}, logger.Log)

	var redisPinger usecase.Pinger
	if redis.Client() != nil {
		redisPinger = usecase.PingFunc(redis.HealthCheck)
	}
	healthUC := usecase.NewHealthUsecase(map[string]usecase.Pinger{
		"database":  usecase.PingFunc(sb.DB.Ping),
		"auth":      sb.Auth,
		"redis":     redisPinger,
		"storage":   storagePinger,
		"antivirus": scannerPinger,
	})

	// 8. Janitor for idle viewers and expired in-memory sessions
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				if n := viewerUC.EvictIdle(); n > 0 {
					logger.Log.Debug("Evicted idle viewers", "count", n)
				}
				if memSessions != nil {
					if n := memSessions.Purge(); n > 0 {
						logger.Log.Debug("Purged expired sessions", "count", n)
					}
				}
			}
		}
	}()

	// 9. Setup Router
	router := v1.NewRouter(v1.RouterDeps{
		AuthUC:        authUC,
		ViewerUC:      viewerUC,
		AdminUC:       adminUC,
		MediaUC:       mediaUC,
		HealthUC:      healthUC,
		Verifier:      verifier,
		UploadLimiter: security.NewUploadLimiter(cfg.UploadsPerMinute, cfg.UploadsPerDay),
		Config:        cfg,
	})

	// 10. Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}
