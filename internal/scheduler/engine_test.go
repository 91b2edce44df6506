package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func newTestEngine(opts Options) *Engine {
	return NewEngine(EngineConfig{Bounds: DurationBounds{Min: 60, Max: 180}, Options: opts}, nil, zap.NewNop())
}

func TestEngineRunExampleCatalog(t *testing.T) {
	c := singleRoomCatalog(10, lectureSession("s1", 90, 2, 40))
	schedule, err := newTestEngine(Options{}).Run(context.Background(), c)
	require.NoError(t, err)

	assert.True(t, schedule.Complete())
	assert.Len(t, schedule.Entries, 2)
	assert.Equal(t, 50, schedule.Stats.GridSlots)
	assert.Equal(t, 2, schedule.Stats.OccurrencesPlaced)
	assert.Equal(t, 1, schedule.Stats.SessionsFullyPlaced)
	require.Len(t, schedule.Stats.Teachers, 2)
	assert.Equal(t, TeacherUtilization{TeacherID: "teacher-1", UsedMinutes: 180, CapMinutes: 600}, schedule.Stats.Teachers[0])
	require.Len(t, schedule.Stats.Rooms, 1)
	assert.InDelta(t, 180.0/4500.0, schedule.Stats.Rooms[0].Ratio, 1e-9)
}

func TestEngineRunDecodedCatalogTreatsRoomsAsOpen(t *testing.T) {
	raw := `{
		"scope": {"year": "2024", "semester": "1"},
		"sessions": [{"id": "s1", "courseId": "c1", "durationMinutes": 60, "weeklyFrequency": 2,
			"roomType": 0, "minCapacity": 20, "teacherId": "t1", "batchIds": []}],
		"rooms": [{"id": "r1", "capacity": 30, "type": 0}],
		"teachers": [{"id": "t1", "maxHoursPerWeek": 10}],
		"batches": [],
		"timeAllocation": {
			"settings": {"slotDuration": 60, "weekdayStartTime": "08:00", "weekdayEndTime": "12:00"},
			"weekdays": {"Monday": {}}
		}
	}`
	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	require.False(t, c.Rooms[0].Closed)

	schedule, err := newTestEngine(Options{}).Run(context.Background(), &c)
	require.NoError(t, err)
	assert.True(t, schedule.Complete())
	assert.Equal(t, 2, schedule.Stats.OccurrencesPlaced)
	assert.Empty(t, schedule.Unplaced)
}

func TestEngineRunSharesCatalogAcrossRuns(t *testing.T) {
	engine := newTestEngine(Options{})
	c := randomCatalog(7)

	const runs = 4
	outputs := make([][]byte, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			schedule, err := engine.Run(context.Background(), c)
			if !assert.NoError(t, err) {
				return
			}
			outputs[i], err = json.Marshal(schedule)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 1; i < runs; i++ {
		assert.Equal(t, outputs[0], outputs[i])
	}
	assert.Nil(t, c.teachers)
	assert.Nil(t, c.batches)
}

func TestCatalogLookupsSeeLaterEdits(t *testing.T) {
	c := singleRoomCatalog(10)
	_, ok := c.Teacher("teacher-9")
	require.False(t, ok)

	c.Teachers = append(c.Teachers, Teacher{ID: "teacher-9", MaxHoursPerWeek: 4})
	teacher, ok := c.Teacher("teacher-9")
	require.True(t, ok)
	assert.Equal(t, 4, teacher.MaxHoursPerWeek)

	indexed := c.Indexed()
	_, ok = indexed.Teacher("teacher-9")
	assert.True(t, ok)
	assert.Nil(t, c.teachers)
}

func TestParseRoomTypeAcceptsLabelsAndCodes(t *testing.T) {
	cases := map[string]RoomType{
		"":           RoomTypeLecture,
		"0":          RoomTypeLecture,
		"Lecture":    RoomTypeLecture,
		"1":          RoomTypeTutorial,
		"tutorial":   RoomTypeTutorial,
		"2":          RoomTypeLab,
		" lab ":      RoomTypeLab,
		"Laboratory": RoomTypeLab,
	}
	for raw, want := range cases {
		got, err := ParseRoomType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseRoomType("3")
	assert.Error(t, err)
	_, err = ParseRoomType("studio")
	assert.Error(t, err)
}

func TestEngineValidateRejectsBadCatalogs(t *testing.T) {
	engine := newTestEngine(Options{})
	cases := map[string]func(c *Catalog){
		"missing semester": func(c *Catalog) { c.Scope.Semester = "" },
		"too short":        func(c *Catalog) { c.Sessions[0].DurationMinutes = 45 },
		"too long":         func(c *Catalog) { c.Sessions[0].DurationMinutes = 240 },
		"unknown teacher":  func(c *Catalog) { c.Sessions[0].TeacherID = "teacher-9" },
		"unknown batch":    func(c *Catalog) { c.Sessions[0].BatchIDs = []string{"batch-9"} },
		"duplicate room":   func(c *Catalog) { c.Rooms = append(c.Rooms, c.Rooms[0]) },
		"zero frequency":   func(c *Catalog) { c.Sessions[0].WeeklyFrequency = 0 },
		"bad window": func(c *Catalog) {
			c.Teachers[0].Unavailable = []Window{{Day: "Monday", Start: "10:00", End: "09:00"}}
		},
	}
	for name, mutate := range cases {
		c := singleRoomCatalog(10, lectureSession("s1", 90, 2, 40))
		mutate(c)
		_, err := engine.Run(context.Background(), c)
		require.Error(t, err, name)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrConfiguration), name)
	}
}

func TestEngineRunRejectsEmptyGrid(t *testing.T) {
	c := singleRoomCatalog(10, lectureSession("s1", 90, 1, 40))
	c.TimeAllocation = weekdayAllocation(90, "08:00", "09:30", "Monday")
	c.TimeAllocation.Weekdays["Monday"] = DayOverrides{UnavailableSlots: []string{"08:00"}}

	_, err := newTestEngine(Options{}).Run(context.Background(), c)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConfiguration))
}

func TestEngineRunIsDeterministic(t *testing.T) {
	engine := newTestEngine(Options{})
	first, err := engine.Run(context.Background(), randomCatalog(7))
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), randomCatalog(7))
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngineRunNeverDoubleBooks(t *testing.T) {
	engine := newTestEngine(Options{})
	for _, seed := range []int64{1, 2, 3, 42} {
		c := randomCatalog(seed)
		schedule, err := engine.Run(context.Background(), c)
		require.NoError(t, err)

		for i := range schedule.Entries {
			for j := i + 1; j < len(schedule.Entries); j++ {
				a, b := schedule.Entries[i], schedule.Entries[j]
				if !a.Interval().Overlaps(b.Interval()) {
					continue
				}
				assert.NotEqual(t, a.RoomID, b.RoomID, "room double booked (seed %d)", seed)
				assert.NotEqual(t, a.TeacherID, b.TeacherID, "teacher double booked (seed %d)", seed)
				for _, batch := range a.BatchIDs {
					assert.NotContains(t, b.BatchIDs, batch, "batch double booked (seed %d)", seed)
				}
			}
		}

		for _, util := range schedule.Stats.Teachers {
			if util.CapMinutes > 0 {
				assert.LessOrEqual(t, util.UsedMinutes, util.CapMinutes, "teacher %s over cap (seed %d)", util.TeacherID, seed)
			}
		}

		missing := 0
		for _, f := range schedule.Unplaced {
			missing += f.Requested - f.Placed
		}
		assert.Equal(t, schedule.Stats.OccurrencesRequested, schedule.Stats.OccurrencesPlaced+missing)
	}
}

func TestEngineRunEntriesRespectRoomsAndGrid(t *testing.T) {
	c := randomCatalog(7)
	schedule, err := newTestEngine(Options{}).Run(context.Background(), c)
	require.NoError(t, err)
	grid, err := BuildGrid(c.TimeAllocation)
	require.NoError(t, err)

	sessions := make(map[string]Session, len(c.Sessions))
	for _, s := range c.Sessions {
		sessions[s.ID] = s
	}
	rooms := make(map[string]Room, len(c.Rooms))
	for _, r := range c.Rooms {
		rooms[r.ID] = r
	}
	for _, e := range schedule.Entries {
		s := sessions[e.SessionID]
		room := rooms[e.RoomID]
		assert.Equal(t, s.RoomType, room.Type)
		assert.GreaterOrEqual(t, room.Capacity, c.RequiredCapacity(s))
		require.NotEmpty(t, e.SlotIndexes)
		first := grid.Slots[e.SlotIndexes[0]]
		assert.Equal(t, first.Day, e.Day)
		assert.Equal(t, first.Start, e.Start)
		assert.Equal(t, Clock(s.DurationMinutes), e.End-e.Start)
	}
}

func TestEngineRunHonoursTeacherUnavailability(t *testing.T) {
	c := singleRoomCatalog(10, lectureSession("s1", 90, 1, 40))
	c.Teachers[0].Unavailable = []Window{{Day: "Mon", Start: "07:00", End: "12:00"}}

	schedule, err := newTestEngine(Options{}).Run(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, schedule.Entries, 1)
	assert.Equal(t, Monday, schedule.Entries[0].Day)
	assert.Equal(t, Clock(12*60+30), schedule.Entries[0].Start)
	assert.Equal(t, 90, schedule.Stats.Teachers[0].UsedMinutes)
}

func TestEngineRunCancelledMarksSessionsNotAttempted(t *testing.T) {
	c := singleRoomCatalog(10, lectureSession("s1", 90, 1, 40), lectureSession("s2", 90, 1, 30))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	schedule, err := newTestEngine(Options{}).Run(ctx, c)
	require.NoError(t, err)
	assert.True(t, schedule.Cancelled)
	assert.Empty(t, schedule.Entries)
	require.Len(t, schedule.Unplaced, 2)
	for _, f := range schedule.Unplaced {
		assert.Equal(t, ReasonNotAttempted, f.Reason)
	}
	assert.Contains(t, schedule.Report(), "Run cancelled")
}

func TestScheduleReport(t *testing.T) {
	fits := lectureSession("fits", 90, 1, 40)
	lab := lectureSession("lab", 90, 1, 20)
	lab.RoomType = RoomTypeLab
	c := singleRoomCatalog(10, fits, lab)
	c.Teachers[1].MaxHoursPerWeek = 0

	schedule, err := newTestEngine(Options{}).Run(context.Background(), c)
	require.NoError(t, err)
	report := schedule.Report()

	assert.Contains(t, report, "sma-1/2024/1/")
	assert.Contains(t, report, "Occurrences: 1 of 2 placed")
	assert.Contains(t, report, "Could not schedule:")
	assert.Contains(t, report, "NoFeasibleSlot")
	assert.Contains(t, report, "Teacher load:")
	assert.Contains(t, report, "Room utilization:")
	assert.Contains(t, report, "teacher-2")
	assert.Contains(t, report, "none", "uncapped teachers render without a limit")
}
