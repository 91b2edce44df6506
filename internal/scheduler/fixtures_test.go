package scheduler

import (
	"fmt"
	"math/rand"
)

func weekdayAllocation(slotMinutes int, start, end string, days ...string) TimeAllocation {
	weekdays := make(map[string]DayOverrides, len(days))
	for _, day := range days {
		weekdays[day] = DayOverrides{}
	}
	return TimeAllocation{
		Settings: AllocationSettings{
			SlotDuration:     slotMinutes,
			WeekdayStartTime: start,
			WeekdayEndTime:   end,
		},
		Weekdays: weekdays,
	}
}

func workWeek() []string {
	return []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
}

func testScope() Scope {
	return Scope{Institution: "sma-1", Year: "2024", Semester: "1"}
}

// singleRoomCatalog is one lecture room of 50 seats, one teacher capped at maxHours and
// a grid of ten 90 minute slots on each working day.
func singleRoomCatalog(maxHours int, sessions ...Session) *Catalog {
	return &Catalog{
		Scope:    testScope(),
		Sessions: sessions,
		Rooms: []Room{
			{ID: "room-1", Name: "A101", Capacity: 50, Type: RoomTypeLecture},
		},
		Teachers: []Teacher{
			{ID: "teacher-1", Name: "Budi", MaxHoursPerWeek: maxHours},
			{ID: "teacher-2", Name: "Sari", MaxHoursPerWeek: maxHours},
		},
		TimeAllocation: weekdayAllocation(90, "08:00", "23:00", workWeek()...),
	}
}

func lectureSession(id string, duration, frequency, capacity int) Session {
	return Session{
		ID:              id,
		CourseID:        "course-" + id,
		DurationMinutes: duration,
		WeeklyFrequency: frequency,
		RoomType:        RoomTypeLecture,
		MinCapacity:     capacity,
		TeacherID:       "teacher-1",
	}
}

// randomCatalog builds a reproducible, moderately contended catalog.
func randomCatalog(seed int64) *Catalog {
	rnd := rand.New(rand.NewSource(seed))
	c := &Catalog{
		Scope:          testScope(),
		TimeAllocation: weekdayAllocation(60, "07:00", "15:00", workWeek()...),
	}
	for i := 0; i < 6; i++ {
		roomType := RoomTypeLecture
		if i%3 == 2 {
			roomType = RoomTypeLab
		}
		c.Rooms = append(c.Rooms, Room{
			ID:       fmt.Sprintf("room-%d", i),
			Capacity: 20 + rnd.Intn(40),
			Type:     roomType,
		})
	}
	for i := 0; i < 5; i++ {
		c.Teachers = append(c.Teachers, Teacher{
			ID:                fmt.Sprintf("teacher-%d", i),
			MaxHoursPerWeek:   6 + rnd.Intn(10),
			MaxSessionsPerDay: rnd.Intn(3),
		})
	}
	for i := 0; i < 4; i++ {
		c.Batches = append(c.Batches, Batch{ID: fmt.Sprintf("batch-%d", i), Students: 10 + rnd.Intn(15)})
	}
	durations := []int{60, 90, 120, 180}
	for i := 0; i < 25; i++ {
		roomType := RoomTypeLecture
		if rnd.Intn(4) == 0 {
			roomType = RoomTypeLab
		}
		c.Sessions = append(c.Sessions, Session{
			ID:              fmt.Sprintf("session-%02d", i),
			CourseID:        fmt.Sprintf("course-%02d", i%9),
			DurationMinutes: durations[rnd.Intn(len(durations))],
			WeeklyFrequency: 1 + rnd.Intn(3),
			RoomType:        roomType,
			TeacherID:       fmt.Sprintf("teacher-%d", rnd.Intn(5)),
			BatchIDs:        []string{fmt.Sprintf("batch-%d", rnd.Intn(4))},
		})
	}
	return c
}
