package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to user-facing labels
var FieldLabels = map[string]string{
	"Email":       "Email",
	"Password":    "Password",
	"ImageURL":    "URL Gambar",
	"Type":        "Jenis Gestur",
	"ZoomChange":  "Perubahan Zoom",
	"Width":       "Lebar",
	"Height":      "Tinggi",
	"Role":        "Role",
	"Username":    "Username",
	"Mode":        "Mode Tema",
	"ContentType": "Tipe Konten",
}

// FormatValidationErrors converts validator.ValidationErrors to user-friendly messages
func FormatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.Field())
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s: Wajib diisi", label)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s: Minimal %s karakter", label, param)
		}
		return fmt.Sprintf("%s: Minimal %s", label, param)
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s: Maksimal %s karakter", label, param)
		}
		return fmt.Sprintf("%s: Maksimal %s", label, param)
	case "gt":
		return fmt.Sprintf("%s: Harus lebih besar dari %s", label, param)
	case "oneof":
		return fmt.Sprintf("%s: Harus salah satu dari: %s", label, strings.Join(strings.Fields(param), ", "))
	case "email":
		return fmt.Sprintf("%s: Format email tidak valid", label)
	case "anon_username":
		return fmt.Sprintf("%s: Harus berformat anon-XXXXXXXX (huruf kecil dan angka)", label)
	case "profile_role":
		return fmt.Sprintf("%s: Harus salah satu dari: member, admin, moderator", label)
	case "image_source":
		return fmt.Sprintf("%s: Harus URL http(s) atau storage://bucket/key", label)
	case "no_emoji":
		return fmt.Sprintf("%s: Tidak boleh mengandung emoji atau simbol khusus", label)
	default:
		return fmt.Sprintf("%s: Validasi gagal (%s)", label, e.Tag())
	}
}

func getFieldLabel(fieldName string) string {
	if label, ok := FieldLabels[fieldName]; ok {
		return label
	}
	return formatCamelCase(fieldName)
}

// formatCamelCase converts CamelCase to spaced words
func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}
