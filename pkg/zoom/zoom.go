// Package zoom holds the pinch/pan/tap state of the full-screen image viewer.
//
// A viewer is either at rest (scale 1, zero offset) or zoomed (scale in
// (1, MaxScale]). The offset only moves while zoomed and snaps back to zero
// whenever the scale returns to 1.
package zoom

import "math"

const (
	MinScale       = 1.0
	MaxScale       = 5.0
	DoubleTapScale = 2.5
)

// Offset is a translation in display pixels.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (o Offset) Add(d Offset) Offset {
	return Offset{X: o.X + d.X, Y: o.Y + d.Y}
}

// State is a snapshot of a Viewer.
type State struct {
	ImageURL  string  `json:"image_url"`
	Scale     float64 `json:"scale"`
	Offset    Offset  `json:"offset"`
	Zoomed    bool    `json:"zoomed"`
	Dismissed bool    `json:"dismissed"`
}

// Viewer is not safe for concurrent use; callers serialize access.
type Viewer struct {
	imageURL  string
	scale     float64
	offset    Offset
	dismissed bool
}

func New(imageURL string) *Viewer {
	return &Viewer{imageURL: imageURL, scale: MinScale}
}

// SetImage swaps the displayed image. A different image starts at rest.
func (v *Viewer) SetImage(imageURL string) {
	if imageURL == v.imageURL {
		return
	}
	v.imageURL = imageURL
	v.reset()
}

// Transform applies one pinch/pan step. zoomChange is multiplicative;
// non-finite or non-positive factors leave the scale alone.
func (v *Viewer) Transform(zoomChange float64, pan Offset) {
	if zoomChange > 0 && !math.IsInf(zoomChange, 0) && !math.IsNaN(zoomChange) {
		v.scale = clamp(v.scale*zoomChange, MinScale, MaxScale)
	}

	// Pan hanya berlaku kalau sudah di-zoom
	if v.scale > MinScale {
		if finite(pan.X) && finite(pan.Y) {
			v.offset = v.offset.Add(pan)
		}
	} else {
		v.offset = Offset{}
	}
}

// DoubleTap toggles between rest and DoubleTapScale.
func (v *Viewer) DoubleTap() {
	if v.scale > MinScale {
		v.reset()
		return
	}
	v.scale = DoubleTapScale
}

// Tap on the backdrop. It only dismisses at rest so a stray tap while
// panning a zoomed image keeps the viewer open. Reports whether it dismissed.
func (v *Viewer) Tap() bool {
	if v.scale <= MinScale {
		v.dismissed = true
	}
	return v.dismissed
}

// Close is the explicit close button and always dismisses.
func (v *Viewer) Close() {
	v.dismissed = true
}

func (v *Viewer) Zoomed() bool {
	return v.scale > MinScale
}

func (v *Viewer) Dismissed() bool {
	return v.dismissed
}

func (v *Viewer) State() State {
	return State{
		ImageURL:  v.imageURL,
		Scale:     v.scale,
		Offset:    v.offset,
		Zoomed:    v.Zoomed(),
		Dismissed: v.dismissed,
	}
}

func (v *Viewer) reset() {
	v.scale = MinScale
	v.offset = Offset{}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
