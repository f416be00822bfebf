package domain

import "context"

// UploadedImage is a stored image reference returned after upload.
type UploadedImage struct {
	Key       string `json:"key"`
	SourceURL string `json:"source_url"` // storage://bucket/key, accepted by the viewer
	Size      int    `json:"size"`
}

type MediaUsecase interface {
	Upload(ctx context.Context, userID, filename string, data []byte) (*UploadedImage, error)
}
