package security

import (
	"bytes"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	ErrNoExtension       = errors.New("file has no extension")
	ErrExtensionRejected = errors.New("file extension not allowed")
	ErrContentMismatch   = errors.New("file content does not match extension")
	ErrMIMERejected      = errors.New("content type not allowed")
)

// Magic byte prefixes per accepted image extension
var imageSignatures = map[string][][]byte{
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
	".png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	".gif":  {{0x47, 0x49, 0x46, 0x38, 0x37, 0x61}, {0x47, 0x49, 0x46, 0x38, 0x39, 0x61}},
	".webp": {{0x52, 0x49, 0x46, 0x46}}, // RIFF
}

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateImageUpload checks an uploaded image in three layers: extension
// whitelist, magic bytes, then the sniffed MIME type. It returns the
// sniffed MIME type on success.
func ValidateImageUpload(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", ErrNoExtension
	}
	sigs, ok := imageSignatures[ext]
	if !ok {
		return "", ErrExtensionRejected
	}

	if !hasPrefix(data, sigs) {
		return "", ErrContentMismatch
	}

	// application/octet-stream never passes
	mime := http.DetectContentType(data)
	if !imageMIMETypes[mime] {
		return "", ErrMIMERejected
	}
	return mime, nil
}

func hasPrefix(data []byte, sigs [][]byte) bool {
	for _, sig := range sigs {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// IsImageExtension checks if the extension is an accepted image type
func IsImageExtension(ext string) bool {
	_, ok := imageSignatures[strings.ToLower(ext)]
	return ok
}
