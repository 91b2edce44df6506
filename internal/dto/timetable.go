package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

// GenerateTimetableRequest asks for a timetable proposal for one catalog scope.
type GenerateTimetableRequest struct {
	Institution string `json:"institution"`
	Year        string `json:"year" validate:"required"`
	Semester    string `json:"semester" validate:"required"`
	Department  string `json:"department"`
	// OnePerDay overrides the configured default when set.
	OnePerDay *bool `json:"onePerDay,omitempty"`
}

// Scope returns the catalog scope addressed by the request.
func (r GenerateTimetableRequest) Scope() scheduler.Scope {
	return scheduler.Scope{Institution: r.Institution, Year: r.Year, Semester: r.Semester, Department: r.Department}
}

// GenerateBatchRequest runs several isolated generations at once.
type GenerateBatchRequest struct {
	Requests []GenerateTimetableRequest `json:"requests" validate:"required,min=1,max=16,dive"`
}

// TimetableProposalResponse returns a generated, not yet saved timetable.
type TimetableProposalResponse struct {
	ProposalID  string                       `json:"proposalId"`
	Scope       scheduler.Scope              `json:"scope"`
	GeneratedAt time.Time                    `json:"generatedAt"`
	ExpiresAt   time.Time                    `json:"expiresAt"`
	Complete    bool                         `json:"complete"`
	Cancelled   bool                         `json:"cancelled"`
	Entries     []scheduler.Entry            `json:"entries"`
	Unplaced    []scheduler.PlacementFailure `json:"unplaced"`
	Stats       scheduler.Stats              `json:"stats"`
	Report      string                       `json:"report"`
}

// GenerateBatchResponse lists proposals in request order.
type GenerateBatchResponse struct {
	Proposals []TimetableProposalResponse `json:"proposals"`
}

// SaveTimetableRequest persists a proposal as a new timetable version.
type SaveTimetableRequest struct {
	ProposalID   string `json:"proposalId" validate:"required"`
	Publish      bool   `json:"publish"`
	AllowPartial bool   `json:"allowPartial"`
}

// SaveTimetableResponse describes the stored version.
type SaveTimetableResponse struct {
	TimetableID string `json:"timetableId"`
	Version     int    `json:"version"`
	Status      string `json:"status"`
	Entries     int    `json:"entries"`
}

// TimetableQuery filters stored timetables by scope.
type TimetableQuery struct {
	Institution string `form:"institution" json:"institution"`
	Year        string `form:"year" json:"year" validate:"required"`
	Semester    string `form:"semester" json:"semester" validate:"required"`
	Department  string `form:"department" json:"department"`
}

// Scope returns the catalog scope addressed by the query.
func (q TimetableQuery) Scope() scheduler.Scope {
	return scheduler.Scope{Institution: q.Institution, Year: q.Year, Semester: q.Semester, Department: q.Department}
}

// TimetableJobResponse reports the progress of an asynchronous generation.
type TimetableJobResponse struct {
	JobID      string      `json:"jobId"`
	Status     jobs.Status `json:"status"`
	Attempts   int         `json:"attempts"`
	ProposalID string      `json:"proposalId,omitempty"`
	Error      string      `json:"error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// ReportFormat selects how a feasibility report is rendered.
type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)

// RenderedReport is a feasibility report ready for download.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}
