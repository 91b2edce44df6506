package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// DurationBounds limits the accepted session length in minutes. Zero disables a bound.
type DurationBounds struct {
	Min int
	Max int
}

// EngineConfig governs catalog validation and the placement search.
type EngineConfig struct {
	Bounds  DurationBounds
	Options Options
}

// Engine runs isolated generation runs. It keeps no state between runs and only reads
// the Catalog it is given, so concurrent runs may share one Engine and one snapshot.
type Engine struct {
	cfg      EngineConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewEngine wires an engine.
func NewEngine(cfg EngineConfig, validate *validator.Validate, logger *zap.Logger) *Engine {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, validate: validate, logger: logger}
}

// Validate checks a catalog snapshot before a run: field constraints, unique identifiers,
// references between records and session duration bounds.
func (e *Engine) Validate(c *Catalog) error {
	if c == nil {
		return appErrors.Clone(appErrors.ErrConfiguration, "catalog is required")
	}
	if err := e.validate.Struct(c); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "catalog failed validation")
	}
	if err := uniqueIDs("session", len(c.Sessions), func(i int) string { return c.Sessions[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("room", len(c.Rooms), func(i int) string { return c.Rooms[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("teacher", len(c.Teachers), func(i int) string { return c.Teachers[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("batch", len(c.Batches), func(i int) string { return c.Batches[i].ID }); err != nil {
		return err
	}

	bounds := e.cfg.Bounds
	indexed := c.Indexed()
	for _, s := range c.Sessions {
		if bounds.Min > 0 && s.DurationMinutes < bounds.Min {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("session %s lasts %d minutes, below the minimum of %d", s.ID, s.DurationMinutes, bounds.Min))
		}
		if bounds.Max > 0 && s.DurationMinutes > bounds.Max {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("session %s lasts %d minutes, above the maximum of %d", s.ID, s.DurationMinutes, bounds.Max))
		}
		if _, ok := indexed.Teacher(s.TeacherID); !ok {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("session %s references unknown teacher %s", s.ID, s.TeacherID))
		}
		for _, batchID := range s.BatchIDs {
			if _, ok := indexed.Batch(batchID); !ok {
				return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("session %s references unknown batch %s", s.ID, batchID))
			}
		}
	}
	for _, t := range c.Teachers {
		for _, w := range t.Unavailable {
			if _, err := parseWindow(w); err != nil {
				return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, fmt.Sprintf("teacher %s has an invalid unavailable window", t.ID))
			}
		}
	}
	return nil
}

// Run generates a schedule for the catalog. Configuration and invariant problems are
// returned as errors; sessions that cannot be placed are reported in Schedule.Unplaced.
// Cancellation is honoured between sessions and marks every remaining session NotAttempted.
func (e *Engine) Run(ctx context.Context, c *Catalog) (*Schedule, error) {
	started := time.Now()
	if err := e.Validate(c); err != nil {
		return nil, err
	}
	c = c.Indexed()
	grid, err := BuildGrid(c.TimeAllocation)
	if err != nil {
		return nil, err
	}
	if len(grid.Slots) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "time allocation produced an empty grid")
	}

	index := NewConflictIndex(grid)
	for _, t := range c.Teachers {
		for _, w := range t.Unavailable {
			iv, _ := parseWindow(w)
			index.Block(ResourceTeacher, t.ID, iv)
		}
	}

	ordered := OrderSessions(c.Sessions, c)
	results := make([]PlacementResult, 0, len(ordered))
	cancelled := false
	for _, session := range ordered {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			e.logger.Warn("scheduling run cancelled", zap.String("scope", c.Scope.Key()), zap.Int("attempted", len(results)), zap.Error(ctx.Err()))
		}
		if cancelled {
			results = append(results, notAttempted(session))
			continue
		}

		res, err := Place(session, grid, c, index, e.cfg.Options)
		if err != nil {
			e.logger.Error("scheduling run aborted", zap.String("scope", c.Scope.Key()), zap.String("session", session.ID), zap.Error(err))
			return nil, err
		}
		if res.Failure != nil {
			e.logger.Debug("session not fully placed",
				zap.String("session", session.ID),
				zap.Int("placed", res.Failure.Placed),
				zap.Int("requested", res.Failure.Requested),
				zap.String("detail", res.Failure.Detail),
			)
		}
		results = append(results, res)
	}

	schedule := Assemble(results, c, grid)
	schedule.Cancelled = cancelled
	e.logger.Info("scheduling run finished",
		zap.String("scope", c.Scope.Key()),
		zap.Int("slots", len(grid.Slots)),
		zap.Int("placed", schedule.Stats.OccurrencesPlaced),
		zap.Int("requested", schedule.Stats.OccurrencesRequested),
		zap.Int("unplaced_sessions", len(schedule.Unplaced)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return schedule, nil
}

func notAttempted(s Session) PlacementResult {
	return PlacementResult{
		Session: s,
		Failure: &PlacementFailure{
			SessionID: s.ID,
			CourseID:  s.CourseID,
			TeacherID: s.TeacherID,
			Reason:    ReasonNotAttempted,
			Requested: s.WeeklyFrequency,
			Detail:    "run cancelled before this session was searched",
		},
	}
}

func parseWindow(w Window) (Interval, error) {
	day, err := ParseWeekday(w.Day)
	if err != nil {
		return Interval{}, err
	}
	start, err := ParseClock(w.Start)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return Interval{}, err
	}
	if end <= start {
		return Interval{}, fmt.Errorf("window %s %s-%s ends before it starts", w.Day, w.Start, w.End)
	}
	return Interval{Day: day, Start: start, End: end}, nil
}

func uniqueIDs(kind string, n int, id func(int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key := id(i)
		if _, dup := seen[key]; dup {
			return appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("duplicate %s id %s", kind, key))
		}
		seen[key] = struct{}{}
	}
	return nil
}
