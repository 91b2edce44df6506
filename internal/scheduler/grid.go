package scheduler

import (
	"fmt"
	"sort"
	"strings"

	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Slot is an atomic bookable interval on one day.
type Slot struct {
	Index int     `json:"index"`
	Day   Weekday `json:"day"`
	Start Clock   `json:"start"`
	End   Clock   `json:"end"`
}

// Interval returns the half-open interval covered by the slot.
func (s Slot) Interval() Interval {
	return Interval{Day: s.Day, Start: s.Start, End: s.End}
}

// Minutes returns the slot length.
func (s Slot) Minutes() int {
	return int(s.End - s.Start)
}

// Grid is the ordered set of slots of one run. It is never mutated after BuildGrid.
type Grid struct {
	SlotDuration int
	Slots        []Slot
	days         map[Weekday]bool
}

// HasDay reports whether the grid was configured for day, even when it produced no slots.
func (g *Grid) HasDay(day Weekday) bool {
	return g.days[day]
}

// Days returns the configured days in week order.
func (g *Grid) Days() []Weekday {
	days := make([]Weekday, 0, len(g.days))
	for day := range g.days {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// TotalMinutes sums the bookable minutes of the whole grid.
func (g *Grid) TotalMinutes() int {
	total := 0
	for _, s := range g.Slots {
		total += s.Minutes()
	}
	return total
}

// Span returns the n contiguous slots starting at index start, or false when the run
// of slots breaks (day change, gap or end of grid) before n slots are collected.
func (g *Grid) Span(start, n int) ([]Slot, bool) {
	if n <= 0 || start < 0 || start+n > len(g.Slots) {
		return nil, false
	}
	span := g.Slots[start : start+n]
	for i := 1; i < len(span); i++ {
		if span[i].Day != span[0].Day || span[i].Start != span[i-1].End {
			return nil, false
		}
	}
	return span, true
}

// BuildGrid expands a time allocation into bookable slots.
func BuildGrid(alloc TimeAllocation) (*Grid, error) {
	settings := alloc.Settings
	if settings.SlotDuration <= 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("slotDuration must be positive, got %d", settings.SlotDuration))
	}
	if len(alloc.Weekdays) == 0 && len(alloc.Weekends) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "time allocation has no configured days")
	}

	type dayPlan struct {
		day       Weekday
		start     Clock
		end       Clock
		overrides DayOverrides
	}

	plans := make(map[Weekday]dayPlan)
	addDays := func(days map[string]DayOverrides, startRaw, endRaw, label string) error {
		if len(days) == 0 {
			return nil
		}
		start, err := ParseClock(startRaw)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, label+" start time is invalid")
		}
		end, err := ParseClock(endRaw)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, label+" end time is invalid")
		}
		for name, overrides := range days {
			day, err := ParseWeekday(name)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, label+" contains an unknown day")
			}
			if existing, dup := plans[day]; dup {
				overrides = mergeOverrides(existing.overrides, overrides)
			}
			plans[day] = dayPlan{day: day, start: start, end: end, overrides: overrides}
		}
		return nil
	}

	if err := addDays(alloc.Weekdays, settings.WeekdayStartTime, settings.WeekdayEndTime, "weekday"); err != nil {
		return nil, err
	}
	if err := addDays(alloc.Weekends, settings.WeekendStartTime, settings.WeekendEndTime, "weekend"); err != nil {
		return nil, err
	}

	ordered := make([]dayPlan, 0, len(plans))
	for _, plan := range plans {
		ordered = append(ordered, plan)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].day < ordered[j].day })

	grid := &Grid{SlotDuration: settings.SlotDuration, days: make(map[Weekday]bool, len(ordered))}
	step := Clock(settings.SlotDuration)
	for _, plan := range ordered {
		grid.days[plan.day] = true

		allow, err := parseSlotMatchers(plan.overrides.AvailableSlots)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, fmt.Sprintf("%s availableSlots is invalid", plan.day))
		}
		deny, err := parseSlotMatchers(plan.overrides.UnavailableSlots)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, fmt.Sprintf("%s unavailableSlots is invalid", plan.day))
		}

		for cur := plan.start; cur+step <= plan.end; cur += step {
			slot := Slot{Day: plan.day, Start: cur, End: cur + step}
			if matchesAny(deny, slot, false) {
				continue
			}
			if len(allow) > 0 && !matchesAny(allow, slot, true) {
				continue
			}
			slot.Index = len(grid.Slots)
			grid.Slots = append(grid.Slots, slot)
		}
	}
	return grid, nil
}

// slotMatcher is a parsed override entry: a single start time or a start-end range.
type slotMatcher struct {
	start Clock
	end   Clock
	point bool
}

func parseSlotMatchers(entries []string) ([]slotMatcher, error) {
	matchers := make([]slotMatcher, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if from, to, isRange := strings.Cut(entry, "-"); isRange {
			start, err := ParseClock(from)
			if err != nil {
				return nil, err
			}
			end, err := ParseClock(to)
			if err != nil {
				return nil, err
			}
			if end <= start {
				return nil, fmt.Errorf("range %q ends before it starts", entry)
			}
			matchers = append(matchers, slotMatcher{start: start, end: end})
			continue
		}
		start, err := ParseClock(entry)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, slotMatcher{start: start, point: true})
	}
	return matchers, nil
}

// matchesAny checks slot against the matchers. Ranges use containment for allow-lists
// and overlap for deny-lists.
func matchesAny(matchers []slotMatcher, slot Slot, containment bool) bool {
	for _, m := range matchers {
		if m.point {
			if slot.Start == m.start {
				return true
			}
			continue
		}
		if containment {
			if slot.Start >= m.start && slot.End <= m.end {
				return true
			}
			continue
		}
		if slot.Start < m.end && slot.End > m.start {
			return true
		}
	}
	return false
}

func mergeOverrides(a, b DayOverrides) DayOverrides {
	return DayOverrides{
		AvailableSlots:   append(append([]string{}, a.AvailableSlots...), b.AvailableSlots...),
		UnavailableSlots: append(append([]string{}, a.UnavailableSlots...), b.UnavailableSlots...),
	}
}
