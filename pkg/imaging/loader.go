package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrUnsupportedSource = errors.New("unsupported image source")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrStorageDisabled   = errors.New("storage is not configured")
)

// ObjectGetter is the slice of the storage client the loader needs. It
// reads from a single bucket.
type ObjectGetter interface {
	Bucket() string
	Get(ctx context.Context, key string, maxBytes int64) ([]byte, string, error)
}

type LoaderConfig struct {
	MaxBytes int64
	CacheTTL time.Duration
	// AllowPrivateHosts lifts the public-address restriction, for local development.
	AllowPrivateHosts bool
}

// Loader fetches images from http(s) URLs or storage://bucket/key and keeps
// the raw bytes in a Cache.
type Loader struct {
	httpClient *http.Client
	storage    ObjectGetter
	cache      Cache
	cfg        LoaderConfig
	log        *slog.Logger
}

func NewLoader(httpClient *http.Client, storage ObjectGetter, cache Cache, cfg LoaderConfig, log *slog.Logger) *Loader {
	if httpClient == nil {
		if cfg.AllowPrivateHosts {
			httpClient = &http.Client{Timeout: 15 * time.Second}
		} else {
			httpClient = NewPublicHTTPClient(15 * time.Second)
		}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		httpClient: httpClient,
		storage:    storage,
		cache:      cache,
		cfg:        cfg,
		log:        log,
	}
}

// ValidateSource checks that rawURL names a source the loader understands.
func ValidateSource(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: missing host", ErrUnsupportedSource)
		}
	case "storage":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return fmt.Errorf("%w: expected storage://bucket/key", ErrUnsupportedSource)
		}
	default:
		return fmt.Errorf("%w: scheme %q", ErrUnsupportedSource, u.Scheme)
	}
	return nil
}

// Validate checks rawURL against what this loader may read: storage URLs
// must name the configured bucket, and http(s) hosts given as IP literals
// must be public. Hostnames are checked again at dial time.
func (l *Loader) Validate(rawURL string) error {
	if err := ValidateSource(rawURL); err != nil {
		return err
	}
	u, _ := url.Parse(rawURL)
	if u.Scheme == "storage" {
		if l.storage == nil {
			return ErrStorageDisabled
		}
		if u.Host != l.storage.Bucket() {
			return fmt.Errorf("%w: bucket %q is not readable", ErrUnsupportedSource, u.Host)
		}
		return nil
	}
	if !l.cfg.AllowPrivateHosts {
		if ip := net.ParseIP(u.Hostname()); ip != nil && blockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedHost, ip)
		}
	}
	return nil
}

// Load fetches and decodes the image.
func (l *Loader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	data, err := l.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	return img, err
}

// Fetch returns the raw bytes, from cache when possible.
func (l *Loader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := l.Validate(rawURL); err != nil {
		return nil, err
	}

	key := cacheKey(rawURL)
	if l.cache != nil {
		data, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			l.log.Warn("image cache read failed", "error", err)
		} else if ok {
			return data, nil
		}
	}

	data, err := l.fetchSource(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, data, l.cfg.CacheTTL); err != nil {
			l.log.Warn("image cache write failed", "error", err)
		}
	}
	return data, nil
}

func (l *Loader) fetchSource(ctx context.Context, rawURL string) ([]byte, error) {
	u, _ := url.Parse(rawURL)
	if u.Scheme == "storage" {
		data, _, err := l.storage.Get(ctx, strings.TrimPrefix(u.Path, "/"), l.cfg.MaxBytes)
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: upstream status %d", resp.StatusCode)
	}
	if resp.ContentLength > l.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}
