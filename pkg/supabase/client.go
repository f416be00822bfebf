package supabase

import (
	"context"
	"errors"
	"fmt"
	"image-board-backend/pkg/database"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotInitialized is returned by Get when Init was never called.
var ErrNotInitialized = errors.New("supabase client not initialized, call Init first")

// Config is everything needed to reach the hosted project.
type Config struct {
	URL         string
	Key         string
	DatabaseURL string
	Storage     StorageConfig
	HTTPTimeout time.Duration
}

// Client bundles the three capability modules of the hosted backend.
// Storage is nil when no storage credentials were configured.
type Client struct {
	Auth    *AuthClient
	DB      *pgxpool.Pool
	Storage *StorageClient
}

// Close releases the database pool.
func (c *Client) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
}

var (
	initMu    sync.Mutex
	pending   *Config
	buildOnce sync.Once
	instance  *Client
	buildErr  error
)

// Init records the configuration. Nothing is dialed until the first Get.
// Calling Init again after the client was built has no effect.
func Init(cfg Config) {
	initMu.Lock()
	defer initMu.Unlock()
	c := cfg
	pending = &c
}

// Get returns the process-wide client, building it on first use.
// Concurrent first calls are safe; only one build runs.
func Get(ctx context.Context) (*Client, error) {
	initMu.Lock()
	cfg := pending
	initMu.Unlock()

	if cfg == nil {
		return nil, ErrNotInitialized
	}

	buildOnce.Do(func() {
		instance, buildErr = build(ctx, *cfg)
	})
	return instance, buildErr
}

func build(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("supabase: SUPABASE_URL and SUPABASE_KEY are required")
	}

	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	// 1. Module Auth (login/register)
	client := &Client{
		Auth: NewAuthClient(cfg.URL, cfg.Key, &http.Client{Timeout: timeout}),
	}

	// 2. Module Database
	if cfg.DatabaseURL == "" {
		return nil, errors.New("supabase: DATABASE_URL is required")
	}
	pool, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("supabase: database: %w", err)
	}
	client.DB = pool

	// 3. Module Storage (upload gambar)
	if cfg.Storage.Enabled() {
		storage, err := NewStorageClient(ctx, cfg.Storage)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("supabase: storage: %w", err)
		}
		client.Storage = storage
	}

	return client, nil
}
