package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string // "production" when GIN_MODE=release
	Debug       bool
	DBUrl       string
	SupabaseUrl string
	SupabaseKey string
	// HS256 secret; empty means tokens are checked against JWKS only
	SupabaseJWTSecret string
	// S3-compatible storage endpoint of the project
	StorageEndpoint        string
	StorageRegion          string
	StorageAccessKeyID     string
	StorageSecretAccessKey string
	StorageBucket          string
	// Redis Configuration
	RedisURL      string
	RedisPassword string
	// Sessions
	SessionTTL               time.Duration
	CookieSecure             bool
	AllowedOrigins           []string
	PasswordResetRedirectURL string
	// Images
	ImageCacheTTL     time.Duration
	ImageMaxBytes     int64
	ImagePrivateHosts bool // dev only: lets the viewer fetch from internal addresses
	UploadMaxBytes    int64
	UploadMaxDim      int
	ClamAVAddress     string // empty disables upload scanning
	ViewerIdleTimeout time.Duration
	MaxViewers        int
	// Rate Limiting Configuration
	RateLimitGlobalThreshold int
	RateLimitAuthThreshold   int
	RateLimitViewerThreshold int
	UploadsPerMinute         int
	UploadsPerDay            int
	FailedLoginMaxAttempts   int
	FailedLoginBlockMinutes  int
}

func LoadConfig() (*Config, error) {
	// Load .env file (Hanya efektif di Local, diabaikan di Production jika file tidak ada)
	_ = godotenv.Load()

	env := "development"
	if os.Getenv("GIN_MODE") == "release" {
		env = "production"
	}

	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Env:   env,
		Debug: getEnvBool("DEBUG", false),
		DBUrl: getEnv("DATABASE_URL", ""),
		// Sanitasi: Hapus slash di akhir URL untuk mencegah double slash (misal: .co//auth)
		SupabaseUrl:       strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:       getEnv("SUPABASE_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		StorageEndpoint:        strings.TrimRight(getEnv("STORAGE_S3_ENDPOINT", ""), "/"),
		StorageRegion:          getEnv("STORAGE_S3_REGION", "us-east-1"),
		StorageAccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
		StorageSecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
		StorageBucket:          getEnv("STORAGE_BUCKET", "images"),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SessionTTL:               time.Duration(getEnvInt("SESSION_TTL_HOURS", 24*30)) * time.Hour,
		CookieSecure:             getEnvBool("COOKIE_SECURE", env == "production"),
		AllowedOrigins:           splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		PasswordResetRedirectURL: getEnv("PASSWORD_RESET_REDIRECT_URL", ""),

		ImageCacheTTL:     time.Duration(getEnvInt("IMAGE_CACHE_TTL_MINUTES", 60)) * time.Minute,
		ImageMaxBytes:     int64(getEnvInt("IMAGE_MAX_BYTES", 10<<20)),
		ImagePrivateHosts: getEnvBool("IMAGE_ALLOW_PRIVATE_HOSTS", false),
		UploadMaxBytes:    int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20)),
		UploadMaxDim:      getEnvInt("UPLOAD_MAX_DIMENSION", 1920),
		ClamAVAddress:     getEnv("CLAMAV_ADDRESS", ""),
		ViewerIdleTimeout: time.Duration(getEnvInt("VIEWER_IDLE_MINUTES", 30)) * time.Minute,
		MaxViewers:        getEnvInt("VIEWER_MAX_OPEN", 10000),

		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100), // per minute per IP
		RateLimitAuthThreshold:   getEnvInt("RATE_LIMIT_AUTH_THRESHOLD", 10),
		RateLimitViewerThreshold: getEnvInt("RATE_LIMIT_VIEWER_THRESHOLD", 600),
		UploadsPerMinute:         getEnvInt("UPLOADS_PER_MINUTE", 10),
		UploadsPerDay:            getEnvInt("UPLOADS_PER_DAY", 50),
		FailedLoginMaxAttempts:   getEnvInt("FAILED_LOGIN_MAX_ATTEMPTS", 5),
		FailedLoginBlockMinutes:  getEnvInt("FAILED_LOGIN_BLOCK_MINUTES", 15),
	}

	// Tanpa URL dan key, client Supabase tidak bisa dibuat sama sekali
	if cfg.SupabaseUrl == "" || cfg.SupabaseKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_KEY must be set")
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.RedisURL == "" {
		log.Println("WARNING: REDIS_URL not configured. Sessions, caches and rate limits stay in memory.")
	}
	if cfg.StorageEndpoint == "" {
		log.Println("WARNING: STORAGE_S3_ENDPOINT not configured. storage:// images and uploads are disabled.")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
