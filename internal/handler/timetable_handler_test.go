package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

type timetableGeneratorMock struct {
	captured     dto.GenerateTimetableRequest
	savedReq     dto.SaveTimetableRequest
	query        dto.TimetableQuery
	reportFormat dto.ReportFormat
	deletedID    string
	err          error
}

func (m *timetableGeneratorMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposalResponse, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.TimetableProposalResponse{ProposalID: "proposal-1", Complete: true}, nil
}

func (m *timetableGeneratorMock) GenerateMany(ctx context.Context, req dto.GenerateBatchRequest) (*dto.GenerateBatchResponse, error) {
	resp := &dto.GenerateBatchResponse{}
	for range req.Requests {
		resp.Proposals = append(resp.Proposals, dto.TimetableProposalResponse{ProposalID: "p"})
	}
	return resp, nil
}

func (m *timetableGeneratorMock) Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableJobResponse, error) {
	m.captured = req
	return &dto.TimetableJobResponse{JobID: "job-1", Status: jobs.StatusQueued}, nil
}

func (m *timetableGeneratorMock) Job(ctx context.Context, id string) (*dto.TimetableJobResponse, error) {
	if id != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return &dto.TimetableJobResponse{JobID: id, Status: jobs.StatusSucceeded, ProposalID: "proposal-1"}, nil
}

func (m *timetableGeneratorMock) Report(ctx context.Context, proposalID string, format dto.ReportFormat) (*dto.RenderedReport, error) {
	m.reportFormat = format
	return &dto.RenderedReport{Filename: "timetable_2024_1.csv", ContentType: "text/csv", Body: []byte("a,b\n")}, nil
}

func (m *timetableGeneratorMock) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	m.savedReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SaveTimetableResponse{TimetableID: "tt-1", Version: 3, Status: string(models.TimetableStatusPublished)}, nil
}

func (m *timetableGeneratorMock) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	return &models.Timetable{ID: id, Status: models.TimetableStatusPublished}, nil
}

func (m *timetableGeneratorMock) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error) {
	m.query = query
	return []models.Timetable{{ID: "tt-1"}}, nil
}

func (m *timetableGeneratorMock) GetEntries(ctx context.Context, id string) ([]models.TimetableEntry, error) {
	return []models.TimetableEntry{{ID: "e-1", TimetableID: id}}, nil
}

func (m *timetableGeneratorMock) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func newTimetableRouter(svc timetableGenerator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := &TimetableHandler{service: svc}
	handler.Register(router.Group("/api/v1"))
	return router
}

func perform(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableHandlerGeneratePreview(t *testing.T) {
	mockSvc := &timetableGeneratorMock{}
	router := newTimetableRouter(mockSvc)

	w := perform(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"year":"2024","semester":"1","department":"science","onePerDay":true}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024", mockSvc.captured.Year)
	assert.Equal(t, "science", mockSvc.captured.Department)
	require.NotNil(t, mockSvc.captured.OnePerDay)
	assert.True(t, *mockSvc.captured.OnePerDay)

	var body struct {
		Data timetablePreviewResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "preview", body.Data.Mode)
	assert.Equal(t, "proposal-1", body.Data.Proposal.ProposalID)
}

func TestTimetableHandlerGenerateMalformed(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{})

	w := perform(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"year":`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrValidation.Code)
}

func TestTimetableHandlerGenerateConfigurationError(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{err: appErrors.Clone(appErrors.ErrConfiguration, "time allocation produced an empty grid")})

	w := perform(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"year":"2024","semester":"1"}`))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "CONFIGURATION_ERROR")
}

func TestTimetableHandlerGenerateBatch(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{})

	w := perform(router, http.MethodPost, "/api/v1/timetables/generate/batch", []byte(`{"requests":[{"year":"2024","semester":"1"},{"year":"2024","semester":"2"}]}`))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.GenerateBatchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Proposals, 2)
}

func TestTimetableHandlerJobs(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{})

	w := perform(router, http.MethodPost, "/api/v1/timetables/jobs", []byte(`{"year":"2024","semester":"1"}`))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"jobId":"job-1"`)

	w = perform(router, http.MethodGet, "/api/v1/timetables/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"proposalId":"proposal-1"`)

	w = perform(router, http.MethodGet, "/api/v1/timetables/jobs/job-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerReportDownload(t *testing.T) {
	mockSvc := &timetableGeneratorMock{}
	router := newTimetableRouter(mockSvc)

	w := perform(router, http.MethodGet, "/api/v1/timetables/proposals/proposal-1/report?format=CSV", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ReportFormatCSV, mockSvc.reportFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="timetable_2024_1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", w.Body.String())
}

func TestTimetableHandlerSave(t *testing.T) {
	mockSvc := &timetableGeneratorMock{}
	router := newTimetableRouter(mockSvc)

	w := perform(router, http.MethodPost, "/api/v1/timetables", []byte(`{"proposalId":"proposal-1","publish":true,"allowPartial":true}`))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dto.SaveTimetableRequest{ProposalID: "proposal-1", Publish: true, AllowPartial: true}, mockSvc.savedReq)
	assert.Contains(t, w.Body.String(), `"timetableId":"tt-1"`)
}

func TestTimetableHandlerSaveConflict(t *testing.T) {
	router := newTimetableRouter(&timetableGeneratorMock{err: appErrors.Clone(appErrors.ErrConflict, "proposal leaves 1 sessions unplaced")})

	w := perform(router, http.MethodPost, "/api/v1/timetables", []byte(`{"proposalId":"proposal-1","publish":true}`))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTimetableHandlerListAndEntries(t *testing.T) {
	mockSvc := &timetableGeneratorMock{}
	router := newTimetableRouter(mockSvc)

	w := perform(router, http.MethodGet, "/api/v1/timetables?year=2024&semester=1&department=science", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.TimetableQuery{Year: "2024", Semester: "1", Department: "science"}, mockSvc.query)

	w = perform(router, http.MethodGet, "/api/v1/timetables/tt-1/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"timetable_id":"tt-1"`)

	w = perform(router, http.MethodPost, "/api/v1/timetables/tt-1/publish", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"PUBLISHED"`)
}

func TestTimetableHandlerDelete(t *testing.T) {
	mockSvc := &timetableGeneratorMock{}
	router := newTimetableRouter(mockSvc)

	w := perform(router, http.MethodDelete, "/api/v1/timetables/tt-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "tt-1", mockSvc.deletedID)

	router = newTimetableRouter(&timetableGeneratorMock{err: errors.New("boom")})
	w = perform(router, http.MethodDelete, "/api/v1/timetables/tt-1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
