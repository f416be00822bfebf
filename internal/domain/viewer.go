package domain

import (
	"context"
	"errors"
	"time"

	"image-board-backend/pkg/zoom"
)

type GestureType string

const (
	GestureTap       GestureType = "tap"
	GestureDoubleTap GestureType = "double_tap"
	GestureTransform GestureType = "transform"
	GestureClose     GestureType = "close"
)

var (
	ErrViewerNotFound  = errors.New("viewer not found")
	ErrViewerDismissed = errors.New("viewer already dismissed")
)

// Gesture is one input event from the client. ZoomChange and Pan only
// matter for transform gestures.
type Gesture struct {
	Type       GestureType `json:"type"`
	ZoomChange float64     `json:"zoom_change"`
	Pan        zoom.Offset `json:"pan"`
}

// ViewerState is what the client renders after each gesture.
type ViewerState struct {
	ID string `json:"id"`
	zoom.State
	UpdatedAt time.Time `json:"updated_at"`
}

// Frame is a rendered viewport.
type Frame struct {
	ContentType string
	Data        []byte
}

type ViewerUsecase interface {
	Open(ctx context.Context, imageURL string) (*ViewerState, error)
	Get(ctx context.Context, id string) (*ViewerState, error)
	SetImage(ctx context.Context, id, imageURL string) (*ViewerState, error)
	// Apply returns the new state. A dismissed viewer is removed after
	// its final state is returned.
	Apply(ctx context.Context, id string, gesture Gesture) (*ViewerState, error)
	Render(ctx context.Context, id string, width, height int, format string) (*Frame, error)
	Close(ctx context.Context, id string) error
	Count() int
	// EvictIdle drops viewers untouched for longer than the idle timeout
	// and returns how many were removed.
	EvictIdle() int
}
