package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voltplatform/volt-backend/internal/gpxio"
	"github.com/voltplatform/volt-backend/internal/middleware"
	"github.com/voltplatform/volt-backend/internal/service"
	"github.com/voltplatform/volt-backend/pkg/response"
)

// handleError maps service and parser errors onto the error body
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verr *service.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, verr.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		response.Error(c, http.StatusServiceUnavailable, response.CodeQueueFull, service.ErrQueueFull.Error())
	case errors.Is(err, gpxio.ErrInvalidFileType):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeInvalidFileType, err.Error())
	case errors.Is(err, gpxio.ErrFileTooLarge), errors.As(err, &maxErr):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "file too large")
	case errors.Is(err, gpxio.ErrMalformed):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeMalformedGPX, err.Error())
	case errors.Is(err, gpxio.ErrNoPoints), errors.Is(err, gpxio.ErrTooFewPoints):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeEmptyTrack, err.Error())
	default:
		response.InternalError(c)
	}
}

// currentUser returns the authenticated user id set by the auth middleware
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return userID, ok
}

// viewOptions parses window_size and smoothed
func viewOptions(c *gin.Context) (service.ViewOptions, error) {
	opts := service.DefaultViewOptions()

	if raw := c.Query("window_size"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil {
			return opts, &service.ValidationError{Field: "window_size", Message: "must be an integer"}
		}
		opts.WindowSize = w
	}
	if raw := c.Query("smoothed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, &service.ValidationError{Field: "smoothed", Message: "must be true or false"}
		}
		opts.Smoothed = b
	}
	return opts, opts.Validate()
}
