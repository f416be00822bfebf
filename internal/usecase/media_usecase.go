package usecase

import (
	"context"
	"errors"
	"fmt"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/imaging"
	"image-board-backend/pkg/security"
	"image-board-backend/pkg/security/antivirus"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// ObjectStore is the upload side of the storage module.
type ObjectStore interface {
	Bucket() string
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type MediaConfig struct {
	MaxBytes     int64
	MaxDimension int
	Quality      int
	// Scanner is optional. When set, every upload is scanned and rejected
	// if the scan fails.
	Scanner antivirus.Scanner
}

type mediaUsecase struct {
	store ObjectStore
	cfg   MediaConfig
	log   *slog.Logger
}

// NewMediaUsecase accepts a nil store; uploads then fail with 503.
func NewMediaUsecase(store ObjectStore, cfg MediaConfig, log *slog.Logger) domain.MediaUsecase {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1920
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 85
	}
	if log == nil {
		log = slog.Default()
	}
	return &mediaUsecase{store: store, cfg: cfg, log: log}
}

func (u *mediaUsecase) Upload(ctx context.Context, userID, filename string, data []byte) (*domain.UploadedImage, error) {
	if u.store == nil {
		return nil, apperror.New(http.StatusServiceUnavailable, "Storage is not configured", imaging.ErrStorageDisabled)
	}
	if userID == "" {
		return nil, apperror.Unauthorized("Not signed in")
	}
	if len(data) == 0 {
		return nil, apperror.BadRequest("File is empty")
	}
	if int64(len(data)) > u.cfg.MaxBytes {
		return nil, apperror.New(http.StatusRequestEntityTooLarge, "Image is too large", imaging.ErrTooLarge)
	}

	if _, err := security.ValidateImageUpload(filename, data); err != nil {
		return nil, apperror.New(http.StatusBadRequest, "Invalid image file: "+err.Error(), err)
	}

	if err := u.scan(ctx, userID, data); err != nil {
		return nil, err
	}

	compressed, err := imaging.Compress(data, u.cfg.MaxDimension, u.cfg.Quality)
	if err != nil {
		return nil, apperror.New(http.StatusBadRequest, "Image could not be decoded", err)
	}

	key := fmt.Sprintf("posts/%s/%s.jpg", userID, uuid.NewString())
	if err := u.store.Put(ctx, key, compressed, "image/jpeg"); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperror.Upstream("Failed to upload image", err)
	}

	u.log.Info("image uploaded", "user_id", userID, "key", key, "size", len(compressed))
	return &domain.UploadedImage{
		Key:       key,
		SourceURL: fmt.Sprintf("storage://%s/%s", u.store.Bucket(), key),
		Size:      len(compressed),
	}, nil
}

func (u *mediaUsecase) scan(ctx context.Context, userID string, data []byte) error {
	if u.cfg.Scanner == nil {
		return nil
	}

	result, err := u.cfg.Scanner.Scan(ctx, data)
	if err != nil {
		u.log.Error("upload scan failed", "scanner", u.cfg.Scanner.Name(), "error", err)
		return apperror.New(http.StatusServiceUnavailable, "Upload scanning is unavailable. Please try again later.", err)
	}
	if result.Infected {
		security.DefaultLogger().LogUserEvent(ctx, security.EventMalwareDetected, userID, map[string]interface{}{
			"scanner": result.ScannerName,
			"threat":  result.ThreatName,
		})
		return apperror.BadRequest("File rejected")
	}
	return nil
}
