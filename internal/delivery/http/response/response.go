package response

import (
	"image-board-backend/pkg/apperror"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response standardizes the API JSON response. It is the HTTP form of the
// success/error result: Success tells which variant the caller got.
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func requestID(c *gin.Context) string {
	return c.GetString("RequestID")
}

// Success sends a success response
func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
	})
}

// Error sends an error response
func Error(c *gin.Context, code int, message string, err interface{}) {
	c.JSON(code, Response{
		Success:   false,
		Message:   message,
		Error:     err,
		RequestID: requestID(c),
	})
}

// AbortWithError writes the envelope for err and stops the chain. Errors that
// are not AppErrors are reported as a generic 500.
func AbortWithError(c *gin.Context, err error) {
	if appErr, ok := apperror.As(err); ok {
		Error(c, appErr.Code, appErr.Message, nil)
	} else {
		Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
	}
	c.Abort()
}
