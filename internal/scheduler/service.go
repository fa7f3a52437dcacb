// Package scheduler checks cron expressions entered in task forms and previews when they
// would fire. The backend owns actual scheduling.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// MaxPreview bounds how many fire times a single preview computes.
const MaxPreview = 20

var ErrNeverFires = errors.New("cron expression never fires")

// Five standard fields with an optional leading seconds field, plus @hourly style
// descriptors.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := parse(expr)
	return err
}

// NextRunTimes lists the next n fire times after from, evaluated in tz. An empty tz means
// UTC.
func NextRunTimes(expr, tz string, from time.Time, n int) ([]time.Time, error) {
	sched, err := parse(expr)
	if err != nil {
		return nil, err
	}
	loc, err := location(tz)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 1
	}
	if n > MaxPreview {
		n = MaxPreview
	}

	out := make([]time.Time, 0, n)
	next := from.In(loc)
	for len(out) < n {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		out = append(out, next)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%q: %w", expr, ErrNeverFires)
	}
	return out, nil
}

// NextRunTime calculates the next run time for a cron expression
func NextRunTime(expr, tz string, from time.Time) (time.Time, error) {
	times, err := NextRunTimes(expr, tz, from, 1)
	if err != nil {
		return time.Time{}, err
	}
	return times[0], nil
}

func parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("cron expression is empty")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}
