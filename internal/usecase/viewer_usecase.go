package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/imaging"
	"image-board-backend/pkg/zoom"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ImageLoader fetches and decodes the image behind a viewer URL.
// Validate rejects URLs the loader is not allowed to read.
type ImageLoader interface {
	Validate(rawURL string) error
	Load(ctx context.Context, rawURL string) (image.Image, error)
}

type ViewerConfig struct {
	IdleTimeout time.Duration
	MaxViewers  int
}

// viewerEntry.mu guards the viewer and the decoded image. It is never held
// across a network fetch, and the registry never takes it.
type viewerEntry struct {
	mu     sync.Mutex
	viewer *zoom.Viewer

	// decoded image for imgURL, loaded on first render
	img    image.Image
	imgURL string

	// unix nanos of the last use
	touched atomic.Int64
}

func (e *viewerEntry) touch(t time.Time) {
	e.touched.Store(t.UnixNano())
}

func (e *viewerEntry) updatedAt() time.Time {
	return time.Unix(0, e.touched.Load())
}

type viewerUsecase struct {
	mu      sync.Mutex
	viewers map[string]*viewerEntry
	loader  ImageLoader
	cfg     ViewerConfig
	log     *slog.Logger
	now     func() time.Time
}

func NewViewerUsecase(loader ImageLoader, cfg ViewerConfig, log *slog.Logger) domain.ViewerUsecase {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxViewers <= 0 {
		cfg.MaxViewers = 10000
	}
	if log == nil {
		log = slog.Default()
	}
	return &viewerUsecase{
		viewers: make(map[string]*viewerEntry),
		loader:  loader,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (u *viewerUsecase) Open(_ context.Context, imageURL string) (*domain.ViewerState, error) {
	if err := u.loader.Validate(imageURL); err != nil {
		return nil, loadError(err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.viewers) >= u.cfg.MaxViewers {
		u.evictIdleLocked()
		if len(u.viewers) >= u.cfg.MaxViewers {
			return nil, apperror.TooManyRequests("Too many open viewers")
		}
	}

	id := uuid.NewString()
	e := &viewerEntry{viewer: zoom.New(imageURL)}
	e.touch(u.now())
	u.viewers[id] = e
	return snapshot(id, e), nil
}

func (u *viewerUsecase) Get(_ context.Context, id string) (*domain.ViewerState, error) {
	e, err := u.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(id, e), nil
}

func (u *viewerUsecase) SetImage(_ context.Context, id, imageURL string) (*domain.ViewerState, error) {
	if err := u.loader.Validate(imageURL); err != nil {
		return nil, loadError(err)
	}
	e, err := u.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewer.SetImage(imageURL)
	if e.imgURL != imageURL {
		e.img, e.imgURL = nil, ""
	}
	e.touch(u.now())
	return snapshot(id, e), nil
}

func (u *viewerUsecase) Apply(_ context.Context, id string, g domain.Gesture) (*domain.ViewerState, error) {
	e, err := u.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	switch g.Type {
	case domain.GestureTap:
		e.viewer.Tap()
	case domain.GestureDoubleTap:
		e.viewer.DoubleTap()
	case domain.GestureTransform:
		e.viewer.Transform(g.ZoomChange, g.Pan)
	case domain.GestureClose:
		e.viewer.Close()
	default:
		e.mu.Unlock()
		return nil, apperror.BadRequest("Unknown gesture type")
	}
	e.touch(u.now())
	state := snapshot(id, e)
	e.mu.Unlock()

	if state.Dismissed {
		u.remove(id)
	}
	return state, nil
}

func (u *viewerUsecase) Render(ctx context.Context, id string, width, height int, format string) (*domain.Frame, error) {
	switch format {
	case "":
		format = "png"
	case "png", "jpeg":
	case "jpg":
		format = "jpeg"
	default:
		return nil, apperror.BadRequest("format must be png or jpeg")
	}

	e, err := u.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	state := e.viewer.State()
	img := e.img
	if e.imgURL != state.ImageURL {
		img = nil
	}
	e.mu.Unlock()

	if img == nil {
		loaded, err := u.loader.Load(ctx, state.ImageURL)
		if err != nil {
			return nil, loadError(err)
		}
		img = loaded

		// Keep it only if the viewer still shows the same image
		e.mu.Lock()
		if e.viewer.State().ImageURL == state.ImageURL {
			e.img, e.imgURL = loaded, state.ImageURL
		}
		e.mu.Unlock()
	}

	frame, err := imaging.Render(img, width, height, state.Scale, state.Offset)
	if err != nil {
		if errors.Is(err, imaging.ErrInvalidFrame) {
			return nil, apperror.New(http.StatusBadRequest, "Frame size out of range", err)
		}
		return nil, apperror.Internal(err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, format); err != nil {
		return nil, apperror.Internal(err)
	}
	e.touch(u.now())
	return &domain.Frame{ContentType: imaging.ContentType(format), Data: buf.Bytes()}, nil
}

func (u *viewerUsecase) Close(_ context.Context, id string) error {
	e, err := u.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.viewer.Close()
	e.mu.Unlock()
	u.remove(id)
	return nil
}

func (u *viewerUsecase) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.viewers)
}

func (u *viewerUsecase) EvictIdle() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.evictIdleLocked()
}

func (u *viewerUsecase) evictIdleLocked() int {
	cutoff := u.now().Add(-u.cfg.IdleTimeout)
	n := 0
	for id, e := range u.viewers {
		if e.updatedAt().Before(cutoff) {
			delete(u.viewers, id)
			n++
		}
	}
	if n > 0 {
		u.log.Info("evicted idle viewers", "count", n)
	}
	return n
}

func (u *viewerUsecase) lookup(id string) (*viewerEntry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	e, ok := u.viewers[id]
	if !ok {
		return nil, apperror.New(http.StatusNotFound, "Viewer not found", domain.ErrViewerNotFound)
	}
	if e.updatedAt().Before(u.now().Add(-u.cfg.IdleTimeout)) {
		delete(u.viewers, id)
		return nil, apperror.New(http.StatusNotFound, "Viewer not found", domain.ErrViewerNotFound)
	}
	return e, nil
}

func (u *viewerUsecase) remove(id string) {
	u.mu.Lock()
	delete(u.viewers, id)
	u.mu.Unlock()
}

func snapshot(id string, e *viewerEntry) *domain.ViewerState {
	return &domain.ViewerState{ID: id, State: e.viewer.State(), UpdatedAt: e.updatedAt()}
}

func loadError(err error) error {
	switch {
	case errors.Is(err, imaging.ErrUnsupportedSource), errors.Is(err, imaging.ErrBlockedHost):
		return apperror.New(http.StatusBadRequest, "Invalid image URL", err)
	case errors.Is(err, imaging.ErrTooLarge):
		return apperror.New(http.StatusRequestEntityTooLarge, "Image is too large", err)
	case errors.Is(err, imaging.ErrStorageDisabled):
		return apperror.New(http.StatusServiceUnavailable, "Storage is not configured", err)
	default:
		return apperror.Upstream("Failed to load image", err)
	}
}
