package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes the next run time after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type named func(time.Time) time.Time

func (n named) Next(t time.Time) time.Time { return n(t) }

var namedSchedules = map[string]named{
	"@yearly":   nextYear,
	"@annually": nextYear,
	"@monthly":  nextMonth,
	"@weekly":   nextWeek,
	"@daily":    nextDay,
	"@midnight": nextDay,
	"@hourly":   nextHour,
}

// ParseSchedule parses "@every <duration>" (Go durations plus a "d" suffix
// for days) and the named schedules @hourly, @daily, @weekly, @monthly and
// @yearly. Five-field cron syntax is not supported.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if n, ok := namedSchedules[expr]; ok {
		return n, nil
	}
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := parseEveryDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, err
		}
		return every(d), nil
	}
	return nil, fmt.Errorf("unsupported schedule expression: %q", expr)
}

// NextRun is ParseSchedule followed by Next.
func NextRun(expr string, after time.Time) (time.Time, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after), nil
}

func parseEveryDuration(duration string) (time.Duration, error) {
	var d time.Duration
	if days, ok := strings.CutSuffix(duration, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", duration)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(duration); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", duration)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", duration)
	}
	return d, nil
}

func nextYear(t time.Time) time.Time {
	return time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, t.Location())
}

func nextMonth(t time.Time) time.Time {
	// time.Date normalises month 13 into January of the next year.
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

func nextWeek(t time.Time) time.Time {
	// Next Sunday at midnight
	daysUntilSunday := (7 - int(t.Weekday())) % 7
	if daysUntilSunday == 0 {
		daysUntilSunday = 7
	}
	return time.Date(t.Year(), t.Month(), t.Day()+daysUntilSunday, 0, 0, 0, 0, t.Location())
}

func nextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

func nextHour(t time.Time) time.Time {
	return t.Add(time.Hour).Truncate(time.Hour)
}
