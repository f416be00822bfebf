package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"image-board-backend/pkg/zoom"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

const (
	MaxFrameDimension = 4096
	defaultQuality    = 85
)

var ErrInvalidFrame = errors.New("frame dimensions out of range")

// Decode sniffs the format and decodes jpeg, png, gif or webp.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image (format: %s): %w", format, err)
	}
	return img, format, nil
}

// Render draws src into a width x height frame the way the viewer shows it:
// the image is fit inside the frame, scaled about the frame center by
// state.Scale and shifted by state.Offset. Uncovered area is black.
func Render(src image.Image, width, height int, scale float64, offset zoom.Offset) (*image.RGBA, error) {
	if width <= 0 || height <= 0 || width > MaxFrameDimension || height > MaxFrameDimension {
		return nil, ErrInvalidFrame
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	sb := src.Bounds()
	if sb.Empty() {
		return dst, nil
	}

	dr := FitRect(sb.Dx(), sb.Dy(), width, height, scale, offset)
	if dr.Empty() || !dr.Overlaps(dst.Bounds()) {
		return dst, nil
	}

	draw.CatmullRom.Scale(dst, dr, src, sb, draw.Over, nil)
	return dst, nil
}

// FitRect returns where an srcW x srcH image lands inside the frame.
func FitRect(srcW, srcH, width, height int, scale float64, offset zoom.Offset) image.Rectangle {
	fit := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	s := fit * scale

	w := float64(srcW) * s
	h := float64(srcH) * s
	cx := float64(width)/2 + offset.X
	cy := float64(height)/2 + offset.Y

	return image.Rect(
		int(math.Round(cx-w/2)),
		int(math.Round(cy-h/2)),
		int(math.Round(cx+w/2)),
		int(math.Round(cy+h/2)),
	)
}

// Encode writes img as "png" or "jpeg".
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "", "png":
		return png.Encode(w, img)
	case "jpeg", "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: defaultQuality})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// ContentType maps an Encode format to its MIME type.
func ContentType(format string) string {
	if format == "jpeg" || format == "jpg" {
		return "image/jpeg"
	}
	return "image/png"
}

// Compress resizes the image so its longer side is at most maxDimension and
// re-encodes it as JPEG. Used before uploads to storage.
func Compress(data []byte, maxDimension, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	newWidth, newHeight := width, height
	if width >= height && width > maxDimension {
		newWidth = maxDimension
		newHeight = int(float64(height) * float64(maxDimension) / float64(width))
	} else if height > width && height > maxDimension {
		newHeight = maxDimension
		newWidth = int(float64(width) * float64(maxDimension) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
