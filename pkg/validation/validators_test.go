package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleForm struct {
	Username string `validate:"anon_username"`
	Role     string `validate:"profile_role"`
	ImageURL string `validate:"required,image_source"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

func TestCustomValidators(t *testing.T) {
	v := newValidator()

	ok := sampleForm{Username: "anon-a1b2c3d4", Role: "moderator", ImageURL: "https://x/y.png"}
	assert.NoError(t, v.Struct(ok))

	bad := sampleForm{Username: "anon-ABCDEFGH", Role: "owner", ImageURL: "file:///etc/passwd"}
	err := v.Struct(bad)
	require.Error(t, err)

	msgs := FormatValidationErrors(err)
	assert.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "anon-XXXXXXXX")
	assert.Contains(t, msgs[1], "member, admin, moderator")
	assert.Contains(t, msgs[2], "URL Gambar")
}

func TestIsAnonUsername(t *testing.T) {
	assert.True(t, IsAnonUsername("anon-0000zzzz"))
	assert.False(t, IsAnonUsername("anon-123"))
	assert.False(t, IsAnonUsername("anon-123456789"))
	assert.False(t, IsAnonUsername("user-12345678"))
}

func TestFormatValidationErrorsPassThrough(t *testing.T) {
	msgs := FormatValidationErrors(assert.AnError)
	assert.Equal(t, []string{assert.AnError.Error()}, msgs)
}
