package scheduler

import (
	"fmt"
	"sort"
	"strings"
)

// RoomType is the kind of space a session needs. Values follow the stored room codes.
type RoomType int

const (
	RoomTypeLecture  RoomType = 0
	RoomTypeTutorial RoomType = 1
	RoomTypeLab      RoomType = 2
)

// String returns the lower-case room type label.
func (t RoomType) String() string {
	switch t {
	case RoomTypeLecture:
		return "lecture"
	case RoomTypeTutorial:
		return "tutorial"
	case RoomTypeLab:
		return "lab"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseRoomType maps stored labels ("lecture", "tutorial", "lab") or their numeric codes
// ("0", "1", "2") to a RoomType.
func ParseRoomType(raw string) (RoomType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "lecture", "theory":
		return RoomTypeLecture, nil
	case "1", "tutorial":
		return RoomTypeTutorial, nil
	case "2", "lab", "laboratory":
		return RoomTypeLab, nil
	}
	return 0, fmt.Errorf("unknown room type %q", raw)
}

// Scope identifies the catalog a run is generated for.
type Scope struct {
	Institution string `json:"institution"`
	Year        string `json:"year" validate:"required"`
	Semester    string `json:"semester" validate:"required"`
	Department  string `json:"department,omitempty"`
}

// Key renders a stable identifier usable in cache keys and log fields.
func (s Scope) Key() string {
	parts := []string{s.Institution, s.Year, s.Semester, s.Department}
	return strings.Join(parts, "/")
}

// Session is one course that must meet WeeklyFrequency times a week.
type Session struct {
	ID              string   `json:"id" validate:"required"`
	CourseID        string   `json:"courseId" validate:"required"`
	Name            string   `json:"name"`
	Department      string   `json:"department"`
	DurationMinutes int      `json:"durationMinutes" validate:"required,min=1"`
	WeeklyFrequency int      `json:"weeklyFrequency" validate:"required,min=1"`
	RoomType        RoomType `json:"roomType" validate:"min=0,max=2"`
	LabKind         string   `json:"labKind,omitempty"`
	MinCapacity     int      `json:"minCapacity" validate:"min=0"`
	TeacherID       string   `json:"teacherId" validate:"required"`
	BatchIDs        []string `json:"batchIds" validate:"unique,dive,required"`
}

// RequiresLab reports whether the session can only be hosted by a laboratory.
func (s Session) RequiresLab() bool {
	return s.RoomType == RoomTypeLab
}

// Room is a bookable space. Closed rooms are never offered to the placement search.
type Room struct {
	ID         string   `json:"id" validate:"required"`
	Name       string   `json:"name"`
	Building   string   `json:"building"`
	Department string   `json:"department"`
	Capacity   int      `json:"capacity" validate:"min=1"`
	Type       RoomType `json:"type" validate:"min=0,max=2"`
	LabKind    string   `json:"labKind,omitempty"`
	Closed     bool     `json:"closed,omitempty"`
}

// Window is a recurring weekly interval on one day.
type Window struct {
	Day   string `json:"day" validate:"required"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// Teacher is a lecturer with a weekly workload cap.
type Teacher struct {
	ID                string   `json:"id" validate:"required"`
	Name              string   `json:"name"`
	Department        string   `json:"department"`
	MaxHoursPerWeek   int      `json:"maxHoursPerWeek" validate:"min=0"`
	MaxSessionsPerDay int      `json:"maxSessionsPerDay" validate:"min=0"`
	Seniority         int      `json:"seniority" validate:"min=0,max=5"`
	Availability      string   `json:"availability,omitempty"`
	Unavailable       []Window `json:"unavailable,omitempty" validate:"dive"`
}

// CapMinutes returns the weekly cap in minutes.
func (t Teacher) CapMinutes() int {
	return t.MaxHoursPerWeek * 60
}

// Batch is a student cohort that attends several courses together.
type Batch struct {
	ID         string   `json:"id" validate:"required"`
	Department string   `json:"department"`
	Courses    []string `json:"courses"`
	Students   int      `json:"students" validate:"min=0"`
}

// DayOverrides narrows a single day of the grid.
type DayOverrides struct {
	AvailableSlots   []string `json:"availableSlots"`
	UnavailableSlots []string `json:"unavailableSlots"`
}

// AllocationSettings holds the grid granularity and daily windows.
type AllocationSettings struct {
	SlotDuration     int    `json:"slotDuration"`
	WeekdayStartTime string `json:"weekdayStartTime"`
	WeekdayEndTime   string `json:"weekdayEndTime"`
	WeekendStartTime string `json:"weekendStartTime"`
	WeekendEndTime   string `json:"weekendEndTime"`
}

// TimeAllocation is the configured time grid for a scope.
type TimeAllocation struct {
	Settings AllocationSettings      `json:"settings"`
	Weekdays map[string]DayOverrides `json:"weekdays,omitempty"`
	Weekends map[string]DayOverrides `json:"weekends,omitempty"`
}

// Catalog is the immutable snapshot a run schedules against.
type Catalog struct {
	Scope          Scope          `json:"scope"`
	Sessions       []Session      `json:"sessions" validate:"dive"`
	Rooms          []Room         `json:"rooms" validate:"dive"`
	Teachers       []Teacher      `json:"teachers" validate:"dive"`
	Batches        []Batch        `json:"batches" validate:"dive"`
	TimeAllocation TimeAllocation `json:"timeAllocation"`

	teachers map[string]Teacher
	batches  map[string]Batch
}

// Teacher looks up a teacher by ID. Lookups never modify the catalog; an indexed copy
// from Indexed answers from its maps, any other catalog scans Teachers.
func (c *Catalog) Teacher(id string) (Teacher, bool) {
	if c.teachers != nil {
		t, ok := c.teachers[id]
		return t, ok
	}
	for _, t := range c.Teachers {
		if t.ID == id {
			return t, true
		}
	}
	return Teacher{}, false
}

// Batch looks up a student batch by ID.
func (c *Catalog) Batch(id string) (Batch, bool) {
	if c.batches != nil {
		b, ok := c.batches[id]
		return b, ok
	}
	for _, b := range c.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return Batch{}, false
}

// RequiredCapacity is the explicit minimum or, when unset, the sum of enrolled batch sizes.
func (c *Catalog) RequiredCapacity(s Session) int {
	if s.MinCapacity > 0 {
		return s.MinCapacity
	}
	total := 0
	for _, id := range s.BatchIDs {
		if b, ok := c.Batch(id); ok {
			total += b.Students
		}
	}
	return total
}

// CompatibleRooms returns the rooms able to host s, smallest sufficient capacity first.
func (c *Catalog) CompatibleRooms(s Session) []Room {
	need := c.RequiredCapacity(s)
	rooms := make([]Room, 0, len(c.Rooms))
	for _, room := range c.Rooms {
		if room.Closed || room.Capacity < need || room.Type != s.RoomType {
			continue
		}
		if s.RequiresLab() && s.LabKind != "" && !strings.EqualFold(room.LabKind, s.LabKind) {
			continue
		}
		if s.Department != "" && room.Department != "" && !strings.EqualFold(room.Department, s.Department) {
			continue
		}
		rooms = append(rooms, room)
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].Capacity == rooms[j].Capacity {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Capacity < rooms[j].Capacity
	})
	return rooms
}

// Indexed returns a shallow copy of c with teacher and batch lookup maps built once.
// The receiver is left untouched, so one snapshot may back concurrent runs.
func (c *Catalog) Indexed() *Catalog {
	cp := *c
	cp.teachers = make(map[string]Teacher, len(c.Teachers))
	for _, t := range c.Teachers {
		cp.teachers[t.ID] = t
	}
	cp.batches = make(map[string]Batch, len(c.Batches))
	for _, b := range c.Batches {
		cp.batches[b.ID] = b
	}
	return &cp
}
