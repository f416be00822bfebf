package v1

import (
	"image-board-backend/internal/delivery/http/response"
	"image-board-backend/internal/domain"
	"image-board-backend/pkg/apperror"
	"image-board-backend/pkg/zoom"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ViewerHandler struct {
	viewerUC domain.ViewerUsecase
}

func NewViewerHandler(viewer *gin.RouterGroup, viewerUC domain.ViewerUsecase) {
	handler := &ViewerHandler{viewerUC: viewerUC}

	viewer.POST("", handler.Open)
	viewer.GET("/:id", handler.Get)
	viewer.PUT("/:id/image", handler.SetImage)
	viewer.POST("/:id/gestures", handler.ApplyGesture)
	viewer.GET("/:id/frame", handler.Frame)
	viewer.DELETE("/:id", handler.Close)
}

type OpenViewerRequest struct {
	ImageURL string `json:"image_url" binding:"required,max=2048,image_source"`
}

type GestureRequest struct {
	Type       domain.GestureType `json:"type" binding:"required,oneof=tap double_tap transform close"`
	ZoomChange float64            `json:"zoom_change"`
	Pan        zoom.Offset        `json:"pan"`
}

// Open godoc
// @Summary      Open a full screen viewer
// @Description  Starts a viewer for image_url (http, https or storage://bucket/key) at scale 1
// @Tags         viewer
// @Accept       json
// @Produce      json
// @Param        body  body      OpenViewerRequest  true  "Image source"
// @Success      201   {object}  response.Response{data=domain.ViewerState}
// @Failure      400   {object}  response.Response
// @Failure      429   {object}  response.Response
// @Router       /viewer [post]
func (h *ViewerHandler) Open(c *gin.Context) {
	var req OpenViewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	state, err := h.viewerUC.Open(c, req.ImageURL)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Viewer opened", state)
}

// Get godoc
// @Summary      Viewer state
// @Tags         viewer
// @Produce      json
// @Param        id   path      string  true  "Viewer ID"
// @Success      200  {object}  response.Response{data=domain.ViewerState}
// @Failure      404  {object}  response.Response
// @Router       /viewer/{id} [get]
func (h *ViewerHandler) Get(c *gin.Context) {
	state, err := h.viewerUC.Get(c, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Viewer state", state)
}

// SetImage godoc
// @Summary      Replace the viewer image
// @Description  Swaps the image and resets the view to its initial state
// @Tags         viewer
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Viewer ID"
// @Param        body  body      OpenViewerRequest  true  "Image source"
// @Success      200   {object}  response.Response{data=domain.ViewerState}
// @Failure      400   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /viewer/{id}/image [put]
func (h *ViewerHandler) SetImage(c *gin.Context) {
	var req OpenViewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	state, err := h.viewerUC.SetImage(c, c.Param("id"), req.ImageURL)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Image updated", state)
}

// ApplyGesture godoc
// @Summary      Apply a gesture
// @Description  tap dismisses when not zoomed, double_tap toggles 1x/2.5x, transform applies zoom_change and pan, close always dismisses
// @Tags         viewer
// @Accept       json
// @Produce      json
// @Param        id    path      string          true  "Viewer ID"
// @Param        body  body      GestureRequest  true  "Gesture"
// @Success      200   {object}  response.Response{data=domain.ViewerState}
// @Failure      400   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /viewer/{id}/gestures [post]
func (h *ViewerHandler) ApplyGesture(c *gin.Context) {
	var req GestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	state, err := h.viewerUC.Apply(c, c.Param("id"), domain.Gesture{
		Type:       req.Type,
		ZoomChange: req.ZoomChange,
		Pan:        req.Pan,
	})
	if err != nil {
		c.Error(err)
		return
	}

	msg := "Gesture applied"
	if state.Dismissed {
		msg = "Viewer dismissed"
	}
	response.Success(c, http.StatusOK, msg, state)
}

// Frame godoc
// @Summary      Render the viewport
// @Description  Renders the image at the current scale and offset into a w x h frame
// @Tags         viewer
// @Produce      image/png
// @Produce      image/jpeg
// @Param        id      path      string  true   "Viewer ID"
// @Param        w       query     int     true   "Frame width"
// @Param        h       query     int     true   "Frame height"
// @Param        format  query     string  false  "png or jpeg"
// @Success      200     {file}    file
// @Failure      400     {object}  response.Response
// @Failure      404     {object}  response.Response
// @Failure      502     {object}  response.Response
// @Router       /viewer/{id}/frame [get]
func (h *ViewerHandler) Frame(c *gin.Context) {
	width, errW := strconv.Atoi(c.Query("w"))
	height, errH := strconv.Atoi(c.Query("h"))
	if errW != nil || errH != nil {
		c.Error(apperror.BadRequest("w and h must be integers"))
		return
	}

	frame, err := h.viewerUC.Render(c, c.Param("id"), width, height, c.Query("format"))
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, frame.ContentType, frame.Data)
}

// Close godoc
// @Summary      Close the viewer
// @Tags         viewer
// @Produce      json
// @Param        id   path      string  true  "Viewer ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /viewer/{id} [delete]
func (h *ViewerHandler) Close(c *gin.Context) {
	if err := h.viewerUC.Close(c, c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Viewer closed", nil)
}
