package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/export"
)

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportService renders feasibility reports of proposals.
type ExportService struct {
	csv documentRenderer
	pdf documentRenderer
}

// NewExportService constructs an ExportService. Nil renderers use the package defaults.
func NewExportService(csv, pdf documentRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf}
}

// Render produces the report of proposal in the requested format. An empty format means text.
func (s *ExportService) Render(proposal *models.TimetableProposal, format dto.ReportFormat) (*dto.RenderedReport, error) {
	if format == "" {
		format = dto.ReportFormatText
	}
	base := s.buildFilename(proposal)
	switch format {
	case dto.ReportFormatText:
		return &dto.RenderedReport{
			Filename:    base + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(proposal.Schedule.Report()),
		}, nil
	case dto.ReportFormatCSV:
		body, err := s.csv.Render(buildDocument(proposal))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &dto.RenderedReport{Filename: base + ".csv", ContentType: "text/csv", Body: body}, nil
	case dto.ReportFormatPDF:
		body, err := s.pdf.Render(buildDocument(proposal))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &dto.RenderedReport{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
}

func (s *ExportService) buildFilename(proposal *models.TimetableProposal) string {
	scope := proposal.Scope
	parts := []string{"timetable", sanitizeFilename(scope.Year), sanitizeFilename(scope.Semester)}
	if scope.Department != "" {
		parts = append(parts, sanitizeFilename(scope.Department))
	}
	parts = append(parts, proposal.GeneratedAt.UTC().Format("20060102_150405"))
	return strings.Join(parts, "_")
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func buildDocument(proposal *models.TimetableProposal) export.Document {
	schedule := proposal.Schedule
	st := schedule.Stats

	doc := export.Document{
		Title: "Timetable feasibility report",
		Summary: []string{
			"Scope: " + proposal.Scope.Key(),
			"Generated: " + proposal.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"),
			fmt.Sprintf("Sessions: %d requested, %d fully placed, %d partially placed, %d unplaced",
				st.SessionsRequested, st.SessionsFullyPlaced, st.SessionsPartiallyPlaced, st.SessionsUnplaced),
			fmt.Sprintf("Occurrences: %d of %d placed", st.OccurrencesPlaced, st.OccurrencesRequested),
		},
	}
	if schedule.Cancelled {
		doc.Summary = append(doc.Summary, "Run cancelled before every session was attempted.")
	}

	entries := export.Table{
		Title:   "Timetable",
		Headers: []string{"Day", "Start", "End", "Session", "Course", "Room", "Teacher", "Batches"},
	}
	for _, e := range schedule.Entries {
		entries.Rows = append(entries.Rows, []string{
			e.Day.String(), e.Start.String(), e.End.String(), e.SessionID, e.CourseID, e.RoomID, e.TeacherID, strings.Join(e.BatchIDs, " "),
		})
	}
	doc.Tables = append(doc.Tables, entries)

	if len(schedule.Unplaced) > 0 {
		unplaced := export.Table{
			Title:   "Could not schedule",
			Headers: []string{"Session", "Course", "Teacher", "Reason", "Placed", "Detail"},
		}
		for _, f := range schedule.Unplaced {
			unplaced.Rows = append(unplaced.Rows, []string{
				f.SessionID, f.CourseID, f.TeacherID, string(f.Reason), fmt.Sprintf("%d/%d", f.Placed, f.Requested), f.Detail,
			})
		}
		doc.Tables = append(doc.Tables, unplaced)
	}

	doc.Tables = append(doc.Tables, teacherLoadTable(st.Teachers), roomUtilizationTable(st.Rooms))
	return doc
}

func teacherLoadTable(rows []scheduler.TeacherUtilization) export.Table {
	table := export.Table{Title: "Teacher load", Headers: []string{"Teacher", "Used (min)", "Cap (min)"}}
	for _, t := range rows {
		limit := "none"
		if t.CapMinutes > 0 {
			limit = strconv.Itoa(t.CapMinutes)
		}
		table.Rows = append(table.Rows, []string{t.TeacherID, strconv.Itoa(t.UsedMinutes), limit})
	}
	return table
}

func roomUtilizationTable(rows []scheduler.RoomUtilization) export.Table {
	table := export.Table{Title: "Room utilization", Headers: []string{"Room", "Used (min)", "Available (min)", "Ratio"}}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{
			r.RoomID, strconv.Itoa(r.UsedMinutes), strconv.Itoa(r.AvailableMinutes), fmt.Sprintf("%.1f%%", r.Ratio*100),
		})
	}
	return table
}
