package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type timetablePreviewResponse struct {
	Mode     string                         `json:"mode"`
	Proposal *dto.TimetableProposalResponse `json:"proposal"`
}

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposalResponse, error)
	GenerateMany(ctx context.Context, req dto.GenerateBatchRequest) (*dto.GenerateBatchResponse, error)
	Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableJobResponse, error)
	Job(ctx context.Context, id string) (*dto.TimetableJobResponse, error)
	Report(ctx context.Context, proposalID string, format dto.ReportFormat) (*dto.RenderedReport, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error)
	Publish(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error)
	GetEntries(ctx context.Context, id string) ([]models.TimetableEntry, error)
	Delete(ctx context.Context, id string) error
}

// TimetableHandler exposes timetable generation endpoints.
type TimetableHandler struct {
	service timetableGenerator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableGeneratorService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate a timetable proposal
// @Description Runs the scheduler against the stored catalog of the scope. The proposal is kept until it expires or is saved.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation scope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetablePreviewResponse{Mode: "preview", Proposal: result}, nil)
}

// GenerateBatch godoc
// @Summary Generate proposals for several scopes
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateBatchRequest true "Generation scopes"
// @Success 200 {object} response.Envelope
// @Router /timetables/generate/batch [post]
func (h *TimetableHandler) GenerateBatch(c *gin.Context) {
	var req dto.GenerateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}
	result, err := h.service.GenerateMany(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Enqueue godoc
// @Summary Queue an asynchronous timetable generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation scope"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/jobs [post]
func (h *TimetableHandler) Enqueue(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	job, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Job godoc
// @Summary Get asynchronous generation status
// @Tags Timetables
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) Job(c *gin.Context) {
	job, err := h.service.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Report godoc
// @Summary Download the feasibility report of a proposal
// @Tags Timetables
// @Produce plain
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Proposal ID"
// @Param format query string false "text, csv or pdf" Enums(text, csv, pdf)
// @Success 200 {file} binary
// @Router /timetables/proposals/{id}/report [get]
func (h *TimetableHandler) Report(c *gin.Context) {
	format := dto.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ReportFormatText))))
	report, err := h.service.Report(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, report.Filename, report.ContentType, report.Body)
}

// Save godoc
// @Summary Save a proposal as a timetable version
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.SaveTimetableRequest true "Save payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	result, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Publish godoc
// @Summary Publish a draft timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	record, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List stored timetable versions of a scope
// @Tags Timetables
// @Produce json
// @Param year query string true "Academic year"
// @Param semester query string true "Semester"
// @Param department query string false "Department"
// @Param institution query string false "Institution"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Entries godoc
// @Summary Get the entries of a stored timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/entries [get]
func (h *TimetableHandler) Entries(c *gin.Context) {
	entries, err := h.service.GetEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Delete godoc
// @Summary Delete a draft timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Register mounts the timetable routes on group.
func (h *TimetableHandler) Register(group *gin.RouterGroup) {
	timetables := group.Group("/timetables")
	timetables.POST("/generate", h.Generate)
	timetables.POST("/generate/batch", h.GenerateBatch)
	timetables.POST("/jobs", h.Enqueue)
	timetables.GET("/jobs/:id", h.Job)
	timetables.GET("/proposals/:id/report", h.Report)
	timetables.POST("", h.Save)
	timetables.GET("", h.List)
	timetables.POST("/:id/publish", h.Publish)
	timetables.GET("/:id/entries", h.Entries)
	timetables.DELETE("/:id", h.Delete)
}
