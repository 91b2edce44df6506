package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a time of day expressed in minutes after midnight.
type Clock int

// ParseClock accepts "15:04", "15.04", "3:04 PM" and "3.04 pm".
func ParseClock(raw string) (Clock, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(value, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(value, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		value = strings.TrimSpace(strings.TrimSuffix(value, meridiem))
	}

	sep := strings.IndexAny(value, ":.")
	if sep <= 0 || sep == len(value)-1 {
		return 0, fmt.Errorf("time %q must look like HH:MM", raw)
	}
	hours, err := strconv.Atoi(value[:sep])
	if err != nil {
		return 0, fmt.Errorf("time %q has invalid hours", raw)
	}
	minutes, err := strconv.Atoi(value[sep+1:])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time %q has invalid minutes", raw)
	}

	switch meridiem {
	case "AM":
		if hours < 1 || hours > 12 {
			return 0, fmt.Errorf("time %q has invalid hours", raw)
		}
		if hours == 12 {
			hours = 0
		}
	case "PM":
		if hours < 1 || hours > 12 {
			return 0, fmt.Errorf("time %q has invalid hours", raw)
		}
		if hours != 12 {
			hours += 12
		}
	default:
		if hours < 0 || hours > 24 || (hours == 24 && minutes != 0) {
			return 0, fmt.Errorf("time %q has invalid hours", raw)
		}
	}
	return Clock(hours*60 + minutes), nil
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Weekday orders days Monday first, matching the grid order.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = map[Weekday]string{
	Monday:    "MONDAY",
	Tuesday:   "TUESDAY",
	Wednesday: "WEDNESDAY",
	Thursday:  "THURSDAY",
	Friday:    "FRIDAY",
	Saturday:  "SATURDAY",
	Sunday:    "SUNDAY",
}

var weekdayIndex = map[string]Weekday{
	"MONDAY":    Monday,
	"MON":       Monday,
	"TUESDAY":   Tuesday,
	"TUE":       Tuesday,
	"WEDNESDAY": Wednesday,
	"WED":       Wednesday,
	"THURSDAY":  Thursday,
	"THU":       Thursday,
	"FRIDAY":    Friday,
	"FRI":       Friday,
	"SATURDAY":  Saturday,
	"SAT":       Saturday,
	"SUNDAY":    Sunday,
	"SUN":       Sunday,
}

// ParseWeekday resolves a case-insensitive day name or three letter abbreviation.
func ParseWeekday(name string) (Weekday, error) {
	day, ok := weekdayIndex[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", name)
	}
	return day, nil
}

// String returns the upper-case day name.
func (d Weekday) String() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DAY(%d)", int(d))
}

// Weekend reports whether the day falls on Saturday or Sunday.
func (d Weekday) Weekend() bool {
	return d == Saturday || d == Sunday
}

// MarshalText keeps days readable in JSON payloads and cache entries.
func (d Weekday) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the representation produced by MarshalText.
func (d *Weekday) UnmarshalText(text []byte) error {
	day, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// MarshalText renders the clock as HH:MM.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses any format accepted by ParseClock.
func (c *Clock) UnmarshalText(text []byte) error {
	value, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = value
	return nil
}
