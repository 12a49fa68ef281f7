package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a schedule phrase cannot be understood.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Kind distinguishes one-shot schedules from recurring ones.
type Kind string

const (
	KindOnce      Kind = "once"
	KindRecurring Kind = "recurring"
)

// Schedule is the result of parsing a schedule phrase.
// CronSpec is set only for recurring schedules.
type Schedule struct {
	Kind     Kind
	CronSpec string
	NextRun  time.Time
}

var (
	reIn    = regexp.MustCompile(`^in\s+(\d+)\s+(minute|minutes|hour|hours|day|days)$`)
	reAt    = regexp.MustCompile(`^at\s+(\d{1,2}):(\d{2})$`)
	reDaily = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
	reEvery = regexp.MustCompile(`^every\s+(\d+)\s+(minute|minutes|hour|hours)$`)
)

// cronParser accepts the classic 5-field minute/hour/dom/month/dow format.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse converts a human-readable schedule phrase into a Schedule.
//
// Recognized forms (case-insensitive):
//
//	"in N minutes|hours|days"  -> one-shot, now + N units
//	"at HH:MM"                 -> one-shot, today or tomorrow
//	"daily at HH:MM"           -> recurring, cron "MM HH * * *"
//	"hourly"                   -> recurring, cron "0 * * * *"
//	"every N minutes"          -> recurring, cron "*/N * * * *"
//	"every N hours"            -> recurring, cron "0 */N * * *"
//	literal 5-field cron       -> recurring, next true fire time
//
// Anything else fails with ErrInvalidSchedule. The "already passed today"
// check uses <=, so a request at exactly HH:MM rolls to the next occurrence.
func Parse(phrase string, now time.Time) (*Schedule, error) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return nil, fmt.Errorf("%w: empty phrase", ErrInvalidSchedule)
	}

	if m := reIn.FindStringSubmatch(p); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad count %q", ErrInvalidSchedule, m[1])
		}
		var unit time.Duration
		switch strings.TrimSuffix(m[2], "s") {
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		}
		return &Schedule{Kind: KindOnce, NextRun: now.Add(time.Duration(n) * unit)}, nil
	}

	if m := reAt.FindStringSubmatch(p); m != nil {
		hh, mm, err := parseClock(m[1], m[2])
		if err != nil {
			return nil, err
		}
		return &Schedule{Kind: KindOnce, NextRun: nextClockTime(now, hh, mm)}, nil
	}

	if m := reDaily.FindStringSubmatch(p); m != nil {
		hh, mm, err := parseClock(m[1], m[2])
		if err != nil {
			return nil, err
		}
		return &Schedule{
			Kind:     KindRecurring,
			CronSpec: fmt.Sprintf("%d %d * * *", mm, hh),
			NextRun:  nextClockTime(now, hh, mm),
		}, nil
	}

	if p == "hourly" {
		return &Schedule{
			Kind:     KindRecurring,
			CronSpec: "0 * * * *",
			NextRun:  now.Truncate(time.Hour).Add(time.Hour),
		}, nil
	}

	if m := reEvery.FindStringSubmatch(p); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad interval %q", ErrInvalidSchedule, m[1])
		}
		if strings.TrimSuffix(m[2], "s") == "minute" {
			if n > 59 {
				return nil, fmt.Errorf("%w: minute interval must be 1-59", ErrInvalidSchedule)
			}
			return &Schedule{
				Kind:     KindRecurring,
				CronSpec: fmt.Sprintf("*/%d * * * *", n),
				NextRun:  now.Add(time.Duration(n) * time.Minute),
			}, nil
		}
		if n > 23 {
			return nil, fmt.Errorf("%w: hour interval must be 1-23", ErrInvalidSchedule)
		}
		return &Schedule{
			Kind:     KindRecurring,
			CronSpec: fmt.Sprintf("0 */%d * * *", n),
			NextRun:  now.Add(time.Duration(n) * time.Hour),
		}, nil
	}

	// Fall through to a literal 5-field cron expression.
	if len(strings.Fields(p)) == 5 {
		next, err := NextCron(p, now)
		if err != nil {
			return nil, err
		}
		return &Schedule{Kind: KindRecurring, CronSpec: p, NextRun: next}, nil
	}

	return nil, fmt.Errorf("%w: unrecognized phrase %q", ErrInvalidSchedule, phrase)
}

// NextCron returns the next fire time of a 5-field cron spec strictly after now.
func NextCron(spec string, now time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return sched.Next(now), nil
}

// parseClock validates an HH:MM pair.
func parseClock(hs, ms string) (int, int, error) {
	hh, err := strconv.Atoi(hs)
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, fmt.Errorf("%w: hour %q out of range", ErrInvalidSchedule, hs)
	}
	mm, err := strconv.Atoi(ms)
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, fmt.Errorf("%w: minute %q out of range", ErrInvalidSchedule, ms)
	}
	return hh, mm, nil
}

// nextClockTime returns today at hh:mm, or tomorrow if that instant has
// already passed (or is exactly now).
func nextClockTime(now time.Time, hh, mm int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}
