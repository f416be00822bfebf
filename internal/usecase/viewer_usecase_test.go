package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"

	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/imaging"
	"image-board-backend/pkg/zoom"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (l *stubLoader) Load(_ context.Context, rawURL string) (image.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, rawURL)
	if l.err != nil {
		return nil, l.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return img, nil
}

// bucketOnly is a storage stand-in that only answers Bucket.
type bucketOnly string

func (b bucketOnly) Bucket() string { return string(b) }

func (b bucketOnly) Get(context.Context, string, int64) ([]byte, string, error) {
	return nil, "", errors.New("not used")
}

var sourceRules = imaging.NewLoader(nil, bucketOnly("images"), nil, imaging.LoaderConfig{}, nil)

func (l *stubLoader) Validate(rawURL string) error {
	return sourceRules.Validate(rawURL)
}

// blockingLoader holds every Load until release is closed.
type blockingLoader struct {
	stubLoader
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (l *blockingLoader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	l.once.Do(func() { close(l.started) })
	<-l.release
	return l.stubLoader.Load(ctx, rawURL)
}

func newTestViewers(loader ImageLoader) (*viewerUsecase, *time.Time) {
	uc := NewViewerUsecase(loader, ViewerConfig{IdleTimeout: time.Minute, MaxViewers: 2}, nil).(*viewerUsecase)
	now := time.Unix(1_700_000_000, 0)
	uc.now = func() time.Time { return now }
	return uc, &now
}

func appCode(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code
}

func TestViewerGestures(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestViewers(&stubLoader{})

	st, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, zoom.MinScale, st.Scale)
	assert.False(t, st.Zoomed)

	st, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureDoubleTap})
	require.NoError(t, err)
	assert.Equal(t, zoom.DoubleTapScale, st.Scale)

	st, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureTransform, ZoomChange: 10, Pan: zoom.Offset{X: 5, Y: 6}})
	require.NoError(t, err)
	assert.Equal(t, zoom.MaxScale, st.Scale)
	assert.Equal(t, zoom.Offset{X: 5, Y: 6}, st.Offset)

	// Tap while zoomed keeps the viewer open
	st, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureTap})
	require.NoError(t, err)
	assert.False(t, st.Dismissed)

	st, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureTransform, ZoomChange: 0.01})
	require.NoError(t, err)
	assert.Equal(t, zoom.MinScale, st.Scale)
	assert.Equal(t, zoom.Offset{}, st.Offset)

	_, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: "swipe"})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	st, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureTap})
	require.NoError(t, err)
	assert.True(t, st.Dismissed)

	// Dismissed viewers are gone
	_, err = uc.Get(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrViewerNotFound)
	assert.Zero(t, uc.Count())
}

func TestViewerSetImageResets(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestViewers(&stubLoader{})

	st, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)
	_, err = uc.Apply(ctx, st.ID, domain.Gesture{Type: domain.GestureDoubleTap})
	require.NoError(t, err)

	st, err = uc.SetImage(ctx, st.ID, "storage://images/b.png")
	require.NoError(t, err)
	assert.Equal(t, zoom.MinScale, st.Scale)
	assert.Equal(t, "storage://images/b.png", st.ImageURL)

	_, err = uc.SetImage(ctx, st.ID, "ftp://nope")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}

func TestViewerOpenValidation(t *testing.T) {
	uc, _ := newTestViewers(&stubLoader{})
	_, err := uc.Open(context.Background(), "javascript:alert(1)")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}

func TestViewerOpenRejectsForeignSources(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestViewers(&stubLoader{})

	_, err := uc.Open(ctx, "storage://other-bucket/x.png")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	_, err = uc.Open(ctx, "http://169.254.169.254/latest/meta-data/")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	st, err := uc.Open(ctx, "storage://images/ok.png")
	require.NoError(t, err)
	_, err = uc.SetImage(ctx, st.ID, "storage://private-avatars/a.png")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Equal(t, 1, uc.Count())
}

func TestViewerSlowLoadDoesNotBlockRegistry(t *testing.T) {
	ctx := context.Background()
	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	uc, _ := newTestViewers(loader)

	a, err := uc.Open(ctx, "https://cdn.example/slow.png")
	require.NoError(t, err)

	rendered := make(chan error, 1)
	go func() {
		_, err := uc.Render(ctx, a.ID, 8, 8, "png")
		rendered <- err
	}()
	<-loader.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = uc.Get(ctx, a.ID)
		_, _ = uc.Apply(ctx, a.ID, domain.Gesture{Type: domain.GestureDoubleTap})
		_, _ = uc.Open(ctx, "https://cdn.example/other.png")
		uc.EvictIdle()
		// Switch images while the old one is still loading
		_, _ = uc.SetImage(ctx, a.ID, "https://cdn.example/next.png")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("viewer registry blocked while an image was loading")
	}

	close(loader.release)
	require.NoError(t, <-rendered)

	// The stale image was not cached for the new URL
	_, err = uc.Render(ctx, a.ID, 8, 8, "png")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/slow.png", "https://cdn.example/next.png"}, loader.calls)
}

func TestViewerCapacityAndIdle(t *testing.T) {
	ctx := context.Background()
	uc, now := newTestViewers(&stubLoader{})

	a, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)
	_, err = uc.Open(ctx, "https://cdn.example/b.png")
	require.NoError(t, err)

	_, err = uc.Open(ctx, "https://cdn.example/c.png")
	assert.Equal(t, http.StatusTooManyRequests, appCode(t, err))

	*now = now.Add(2 * time.Minute)
	_, err = uc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrViewerNotFound)

	_, err = uc.Open(ctx, "https://cdn.example/c.png")
	require.NoError(t, err)
	assert.Equal(t, 2, uc.Count())

	// b is idle, c is fresh
	assert.Equal(t, 1, uc.EvictIdle())
	assert.Equal(t, 1, uc.Count())
}

func TestViewerRender(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{}
	uc, _ := newTestViewers(loader)

	st, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)

	frame, err := uc.Render(ctx, st.ID, 16, 16, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", frame.ContentType)

	img, err := png.Decode(bytes.NewReader(frame.Data))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	c := color.RGBAModel.Convert(img.At(8, 8)).(color.RGBA)
	assert.Greater(t, c.R, uint8(250))
	assert.Greater(t, c.B, uint8(250))

	frame, err = uc.Render(ctx, st.ID, 16, 16, "jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.ContentType)

	// Decoded image is reused until the URL changes
	assert.Len(t, loader.calls, 1)

	_, err = uc.Render(ctx, st.ID, 16, 16, "bmp")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	_, err = uc.Render(ctx, st.ID, 0, 16, "png")
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}

func TestViewerRenderLoadErrors(t *testing.T) {
	ctx := context.Background()
	loader := &stubLoader{err: imaging.ErrTooLarge}
	uc, _ := newTestViewers(loader)

	st, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)

	_, err = uc.Render(ctx, st.ID, 16, 16, "png")
	assert.Equal(t, http.StatusRequestEntityTooLarge, appCode(t, err))

	loader.err = errors.New("connection reset")
	_, err = uc.Render(ctx, st.ID, 16, 16, "png")
	assert.Equal(t, http.StatusBadGateway, appCode(t, err))
}

func TestViewerClose(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestViewers(&stubLoader{})

	st, err := uc.Open(ctx, "https://cdn.example/a.png")
	require.NoError(t, err)
	require.NoError(t, uc.Close(ctx, st.ID))

	err = uc.Close(ctx, st.ID)
	assert.Equal(t, http.StatusNotFound, appCode(t, err))
}
