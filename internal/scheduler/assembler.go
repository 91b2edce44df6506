package scheduler

import "sort"

// TeacherUtilization compares committed teaching time with the weekly cap.
type TeacherUtilization struct {
	TeacherID   string `json:"teacherId"`
	UsedMinutes int    `json:"usedMinutes"`
	CapMinutes  int    `json:"capMinutes"`
}

// RoomUtilization compares booked minutes with the minutes the grid offers.
type RoomUtilization struct {
	RoomID           string  `json:"roomId"`
	UsedMinutes      int     `json:"usedMinutes"`
	AvailableMinutes int     `json:"availableMinutes"`
	Ratio            float64 `json:"ratio"`
}

// Stats summarises a run.
type Stats struct {
	SessionsRequested       int                  `json:"sessionsRequested"`
	OccurrencesRequested    int                  `json:"occurrencesRequested"`
	OccurrencesPlaced       int                  `json:"occurrencesPlaced"`
	SessionsFullyPlaced     int                  `json:"sessionsFullyPlaced"`
	SessionsPartiallyPlaced int                  `json:"sessionsPartiallyPlaced"`
	SessionsUnplaced        int                  `json:"sessionsUnplaced"`
	GridSlots               int                  `json:"gridSlots"`
	Teachers                []TeacherUtilization `json:"teachers"`
	Rooms                   []RoomUtilization    `json:"rooms"`
}

// Schedule is the output of one run, owned by the caller once returned.
type Schedule struct {
	Scope     Scope              `json:"scope"`
	Entries   []Entry            `json:"entries"`
	Unplaced  []PlacementFailure `json:"unplaced"`
	Stats     Stats              `json:"stats"`
	Cancelled bool               `json:"cancelled"`
}

// Complete reports whether every requested occurrence was placed.
func (s *Schedule) Complete() bool {
	return len(s.Unplaced) == 0
}

// Assemble folds placement results, in placement order, into a schedule.
func Assemble(results []PlacementResult, catalog *Catalog, grid *Grid) *Schedule {
	schedule := &Schedule{
		Scope:    catalog.Scope,
		Entries:  make([]Entry, 0),
		Unplaced: make([]PlacementFailure, 0),
	}
	stats := &schedule.Stats
	stats.SessionsRequested = len(results)
	if grid != nil {
		stats.GridSlots = len(grid.Slots)
	}

	teacherUsed := make(map[string]int)
	roomUsed := make(map[string]int)
	for _, res := range results {
		stats.OccurrencesRequested += res.Session.WeeklyFrequency
		stats.OccurrencesPlaced += len(res.Entries)
		for _, entry := range res.Entries {
			teacherUsed[entry.TeacherID] += entry.DurationMinutes
			roomUsed[entry.RoomID] += entry.DurationMinutes
		}
		schedule.Entries = append(schedule.Entries, res.Entries...)

		switch {
		case res.Failure == nil:
			stats.SessionsFullyPlaced++
		case res.Failure.Partial():
			stats.SessionsPartiallyPlaced++
		default:
			stats.SessionsUnplaced++
		}
		if res.Failure != nil {
			schedule.Unplaced = append(schedule.Unplaced, *res.Failure)
		}
	}

	for _, teacher := range catalog.Teachers {
		stats.Teachers = append(stats.Teachers, TeacherUtilization{
			TeacherID:   teacher.ID,
			UsedMinutes: teacherUsed[teacher.ID],
			CapMinutes:  teacher.CapMinutes(),
		})
	}
	sort.Slice(stats.Teachers, func(i, j int) bool { return stats.Teachers[i].TeacherID < stats.Teachers[j].TeacherID })

	available := 0
	if grid != nil {
		available = grid.TotalMinutes()
	}
	for _, room := range catalog.Rooms {
		util := RoomUtilization{RoomID: room.ID, UsedMinutes: roomUsed[room.ID], AvailableMinutes: available}
		if available > 0 {
			util.Ratio = float64(util.UsedMinutes) / float64(available)
		}
		stats.Rooms = append(stats.Rooms, util)
	}
	sort.Slice(stats.Rooms, func(i, j int) bool { return stats.Rooms[i].RoomID < stats.Rooms[j].RoomID })

	return schedule
}
