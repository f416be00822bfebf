package validation

import (
	"regexp"
	"unicode"

	"image-board-backend/pkg/imaging"

	"github.com/go-playground/validator/v10"
)

var anonUsernameRegex = regexp.MustCompile(`^anon-[a-z0-9]{8}$`)

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("anon_username", AnonUsername)
	_ = v.RegisterValidation("profile_role", ProfileRole)
	_ = v.RegisterValidation("image_source", ImageSource)
	_ = v.RegisterValidation("no_emoji", NoEmoji)
}

// IsAnonUsername reports whether s is a generated placeholder handle.
func IsAnonUsername(s string) bool {
	return anonUsernameRegex.MatchString(s)
}

// AnonUsername validates the anon-XXXXXXXX format
func AnonUsername(fl validator.FieldLevel) bool {
	return IsAnonUsername(fl.Field().String())
}

// ProfileRole accepts the three roles of the profiles table
func ProfileRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "member", "admin", "moderator":
		return true
	}
	return false
}

// ImageSource accepts http(s) URLs and storage://bucket/key references
func ImageSource(fl validator.FieldLevel) bool {
	return imaging.ValidateSource(fl.Field().String()) == nil
}

// NoEmoji validates that a string does not contain emoji characters
func NoEmoji(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		// Supplementary characters (mostly emoji/symbols)
		if r > 0x1F000 {
			return false
		}
		if unicode.In(r, unicode.So, unicode.Sk) {
			return false
		}
	}
	return true
}
