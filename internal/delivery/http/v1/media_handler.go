package v1

import (
	"errors"
	"fmt"
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/logger"
	"image-board-backend/pkg/security"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	mediaUC  domain.MediaUsecase
	limiter  *security.UploadLimiter
	maxBytes int64
}

func NewMediaHandler(protected *gin.RouterGroup, mediaUC domain.MediaUsecase, limiter *security.UploadLimiter, maxBytes int64) {
	handler := &MediaHandler{mediaUC: mediaUC, limiter: limiter, maxBytes: maxBytes}

	protected.POST("/images", handler.Upload)
}

// Upload godoc
// @Summary      Upload an image
// @Description  Stores a JPEG, PNG, GIF or WebP image (re-encoded as JPEG) and returns a storage:// source the viewer accepts
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Param        file  formData  file  true  "Image file"
// @Success      201   {object}  response.Response{data=domain.UploadedImage}
// @Failure      400   {object}  response.Response
// @Failure      413   {object}  response.Response
// @Failure      429   {object}  response.Response
// @Failure      503   {object}  response.Response
// @Router       /images [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(c.Request.Context(), c.ClientIP(), userID)
		if err != nil {
			logger.Log.Warn("upload limiter unavailable", "error", err)
		}
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.Error(apperror.TooManyRequests("Upload limit reached. Please try again later."))
			return
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(apperror.BadRequest("File is required"))
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		c.Error(apperror.New(http.StatusRequestEntityTooLarge, "Image is too large", nil))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(apperror.BadRequest("Failed to read file"))
		return
	}
	defer file.Close()

	data, err := readLimited(file, h.maxBytes)
	if err != nil {
		c.Error(err)
		return
	}

	uploaded, err := h.mediaUC.Upload(c, userID, fileHeader.Filename, data)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Image uploaded", uploaded)
}

var errFileTooLarge = errors.New("file exceeds upload limit")

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, apperror.BadRequest("Failed to read file")
	}
	if int64(len(data)) > maxBytes {
		return nil, apperror.New(http.StatusRequestEntityTooLarge, "Image is too large", errFileTooLarge)
	}
	return data, nil
}
