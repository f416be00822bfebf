package v1

import (
	"fmt"
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/security"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminHandler struct {
	adminUC domain.AdminUsecase
}

func NewAdminHandler(admin *gin.RouterGroup, adminUC domain.AdminUsecase) {
	handler := &AdminHandler{adminUC: adminUC}

	// Dashboard stats
	admin.GET("/stats", handler.GetStats)

	// Profiles
	admin.GET("/profiles", handler.ListProfiles)
	admin.GET("/profiles/export", handler.ExportProfiles)
}

// GetStats godoc
// @Summary      Get admin dashboard statistics
// @Description  Returns profile counts per role and the number of open viewers
// @Tags         admin
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Success      200  {object}  response.Response{data=domain.AdminStats}
// @Failure      403  {object}  response.Response
// @Router       /admin/stats [get]
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminUC.GetStats(c)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Dashboard statistics", stats)
}

// ListProfiles godoc
// @Summary      List profiles
// @Description  Returns a paginated list of profiles with optional role and username search
// @Tags         admin
// @Produce      json
// @Param        X-Session-ID  header    string  false  "Session key"
// @Param        role    query     string  false  "Filter by role (member, admin, moderator)"
// @Param        search  query     string  false  "Username or full name contains"
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Items per page"
// @Success      200     {object}  response.Response{data=domain.ProfileList}
// @Failure      400     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /admin/profiles [get]
func (h *AdminHandler) ListProfiles(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.adminUC.ListProfiles(c, profileFilter(c), page, limit)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Profiles retrieved", result)
}

// ExportProfiles godoc
// @Summary      Export profiles
// @Description  Downloads the filtered profiles as an Excel workbook
// @Tags         admin
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        X-Session-ID  header    string  false  "Session key"
// @Param        role    query     string  false  "Filter by role"
// @Param        search  query     string  false  "Username or full name contains"
// @Success      200     {file}    file
// @Failure      403     {object}  response.Response
// @Router       /admin/profiles/export [get]
func (h *AdminHandler) ExportProfiles(c *gin.Context) {
	filter := profileFilter(c)
	data, err := h.adminUC.ExportProfiles(c, filter)
	if err != nil {
		c.Error(err)
		return
	}

	security.DefaultLogger().LogUserEvent(c.Request.Context(), security.EventDataExport, c.GetString(string(domain.KeyUserID)), map[string]interface{}{
		"dataset": "profiles",
		"role":    string(filter.Role),
		"search":  filter.Search != "",
	})

	filename := fmt.Sprintf("profiles-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func profileFilter(c *gin.Context) domain.ProfileFilter {
	return domain.ProfileFilter{
		Role:   domain.Role(c.Query("role")),
		Search: c.Query("search"),
	}
}
