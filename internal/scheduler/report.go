package scheduler

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Report renders the feasibility report shown to end users.
func (s *Schedule) Report() string {
	var b strings.Builder
	st := s.Stats

	fmt.Fprintf(&b, "Timetable feasibility report (%s)\n", s.Scope.Key())
	if s.Cancelled {
		b.WriteString("Run cancelled before every session was attempted.\n")
	}
	fmt.Fprintf(&b, "Sessions: %d requested, %d fully placed, %d partially placed, %d unplaced\n",
		st.SessionsRequested, st.SessionsFullyPlaced, st.SessionsPartiallyPlaced, st.SessionsUnplaced)
	fmt.Fprintf(&b, "Occurrences: %d of %d placed\n", st.OccurrencesPlaced, st.OccurrencesRequested)

	if len(s.Unplaced) > 0 {
		b.WriteString("\nCould not schedule:\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tCOURSE\tTEACHER\tREASON\tPLACED\tDETAIL")
		for _, f := range s.Unplaced {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n", f.SessionID, f.CourseID, f.TeacherID, f.Reason, f.Placed, f.Requested, f.Detail)
		}
		_ = tw.Flush()
	}

	if len(st.Teachers) > 0 {
		b.WriteString("\nTeacher load:\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TEACHER\tUSED\tCAP")
		for _, t := range st.Teachers {
			limit := "none"
			if t.CapMinutes > 0 {
				limit = fmt.Sprintf("%dm", t.CapMinutes)
			}
			fmt.Fprintf(tw, "%s\t%dm\t%s\n", t.TeacherID, t.UsedMinutes, limit)
		}
		_ = tw.Flush()
	}

	if len(st.Rooms) > 0 {
		b.WriteString("\nRoom utilization:\n")
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROOM\tUSED\tAVAILABLE\tRATIO")
		for _, r := range st.Rooms {
			fmt.Fprintf(tw, "%s\t%dm\t%dm\t%.1f%%\n", r.RoomID, r.UsedMinutes, r.AvailableMinutes, r.Ratio*100)
		}
		_ = tw.Flush()
	}
	return b.String()
}
