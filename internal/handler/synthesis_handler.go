package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltplatform/volt-backend/internal/service"
	"github.com/voltplatform/volt-backend/pkg/response"
)

// SynthesisHandler handles HTTP requests for route synthesis
type SynthesisHandler struct {
	synthesisService *service.SynthesisService
}

// NewSynthesisHandler creates a new synthesis handler
func NewSynthesisHandler(synthesisService *service.SynthesisService) *SynthesisHandler {
	return &SynthesisHandler{synthesisService: synthesisService}
}

type saveRequest struct {
	Name string `json:"name"`
}

// Generate handles POST /api/v1/synthesis/generate
func (h *SynthesisHandler) Generate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	job, err := h.synthesisService.Generate(c.Request.Context(), userID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Accepted(c, job)
}

// GetResults handles GET /api/v1/synthesis/results/:job_id
func (h *SynthesisHandler) GetResults(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	job, err := h.synthesisService.GetJob(c.Request.Context(), userID, c.Param("job_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}

// Download handles GET /api/v1/synthesis/results/:job_id/download/:result_id
func (h *SynthesisHandler) Download(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	data, filename, err := h.synthesisService.Download(c.Request.Context(), userID, c.Param("job_id"), c.Param("result_id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/gpx+xml", data)
}

// Save handles POST /api/v1/synthesis/results/:job_id/save/:result_id
func (h *SynthesisHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	race, err := h.synthesisService.Save(c.Request.Context(), userID, c.Param("job_id"), c.Param("result_id"), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, race)
}
