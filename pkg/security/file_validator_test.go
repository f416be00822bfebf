package security

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestValidateImageUpload(t *testing.T) {
	data := tinyPNG(t)

	mime, err := ValidateImageUpload("cat.PNG", data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = ValidateImageUpload("cat", data)
	assert.ErrorIs(t, err, ErrNoExtension)

	_, err = ValidateImageUpload("cat.pdf", data)
	assert.ErrorIs(t, err, ErrExtensionRejected)

	_, err = ValidateImageUpload("cat.jpg", data)
	assert.ErrorIs(t, err, ErrContentMismatch)

	// RIFF header without a WEBP body sniffs as something else
	_, err = ValidateImageUpload("x.webp", []byte("RIFF\x00\x00\x00\x00AVI LIST"))
	assert.ErrorIs(t, err, ErrMIMERejected)
}

func TestIsImageExtension(t *testing.T) {
	assert.True(t, IsImageExtension(".JPG"))
	assert.False(t, IsImageExtension(".txt"))
}

func TestUploadLimiterWithoutRedis(t *testing.T) {
	ul := NewUploadLimiter(0, 0)
	ul.client = func() *goredis.Client { return nil }

	ok, retry, err := ul.Allow(context.Background(), "1.2.3.4", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retry)
	assert.Equal(t, 10, ul.maxPerMinute)
	assert.Equal(t, 50, ul.maxPerDay)
}
