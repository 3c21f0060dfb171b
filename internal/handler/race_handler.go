package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltplatform/volt-backend/internal/gpxio"
	"github.com/voltplatform/volt-backend/internal/service"
	"github.com/voltplatform/volt-backend/pkg/response"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

// RaceHandler handles HTTP requests for the race library and its analytics
type RaceHandler struct {
	raceService      *service.RaceService
	analyticsService *service.AnalyticsService
	maxBytes         int64
}

// NewRaceHandler creates a new race handler
func NewRaceHandler(raceService *service.RaceService, analyticsService *service.AnalyticsService, maxBytes int64) *RaceHandler {
	return &RaceHandler{
		raceService:      raceService,
		analyticsService: analyticsService,
		maxBytes:         maxBytes,
	}
}

// Upload handles POST /api/v1/races
func (h *RaceHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleError(c, err)
			return
		}
		response.BadRequest(c, "No GPX file provided")
		return
	}
	if header.Size > h.maxBytes {
		handleError(c, fmt.Errorf("%w: %d bytes", gpxio.ErrFileTooLarge, header.Size))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.BadRequest(c, "Failed to read file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		response.BadRequest(c, "Failed to read file")
		return
	}

	race, err := h.raceService.Upload(c.Request.Context(), userID, service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Name:        c.PostForm("name"),
		Data:        data,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, race)
}

// List handles GET /api/v1/races
func (h *RaceHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	races, err := h.raceService.List(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, races)
}

// Get handles GET /api/v1/races/:id
func (h *RaceHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	opts, err := viewOptions(c)
	if err != nil {
		handleError(c, err)
		return
	}

	race, err := h.raceService.Get(c.Request.Context(), userID, c.Param("id"), opts)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, race)
}

// Delete handles DELETE /api/v1/races/:id
func (h *RaceHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.raceService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.NoContent(c)
}

// Elevation handles GET /api/v1/races/:id/elevation
func (h *RaceHandler) Elevation(c *gin.Context) {
	h.analytics(c, func(userID, id string, opts service.ViewOptions) (interface{}, error) {
		return h.analyticsService.Elevation(c.Request.Context(), userID, id, opts)
	})
}

// Gradient handles GET /api/v1/races/:id/gradient
func (h *RaceHandler) Gradient(c *gin.Context) {
	h.analytics(c, func(userID, id string, opts service.ViewOptions) (interface{}, error) {
		return h.analyticsService.Gradient(c.Request.Context(), userID, id, opts)
	})
}

// Metrics handles GET /api/v1/races/:id/metrics
func (h *RaceHandler) Metrics(c *gin.Context) {
	h.analytics(c, func(userID, id string, opts service.ViewOptions) (interface{}, error) {
		return h.analyticsService.Metrics(c.Request.Context(), userID, id, opts)
	})
}

func (h *RaceHandler) analytics(c *gin.Context, fn func(userID, id string, opts service.ViewOptions) (interface{}, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	opts, err := viewOptions(c)
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := fn(userID, c.Param("id"), opts)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
