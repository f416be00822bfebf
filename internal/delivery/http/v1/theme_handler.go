package v1

import (
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewThemeHandler(public *gin.RouterGroup) {
	public.GET("/theme", GetTheme)
}

// GetTheme godoc
// @Summary      Color scheme
// @Description  Returns the app color scheme. Only dark is shipped; any other mode falls back to it except "light".
// @Tags         theme
// @Produce      json
// @Param        mode  query     string  false  "dark or light"
// @Success      200   {object}  response.Response{data=domain.ColorScheme}
// @Router       /theme [get]
func GetTheme(c *gin.Context) {
	mode := domain.ThemeMode(c.DefaultQuery("mode", string(domain.ThemeDark)))
	c.Header("Cache-Control", "public, max-age=86400")
	response.Success(c, http.StatusOK, "Color scheme", domain.SchemeFor(mode))
}
