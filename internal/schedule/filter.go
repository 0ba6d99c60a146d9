package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnknownDate is returned when a date filter or phrase cannot be resolved.
var ErrUnknownDate = errors.New("unrecognised date")

// DateFilter selects matches by a calendar window relative to now.
type DateFilter string

const (
	DateToday     DateFilter = "today"
	DateTomorrow  DateFilter = "tomorrow"
	DateThisWeek  DateFilter = "this_week"
	DateNextWeek  DateFilter = "next_week"
	DateThisMonth DateFilter = "this_month"
)

// DateFilters lists every supported filter.
var DateFilters = []DateFilter{DateToday, DateTomorrow, DateThisWeek, DateNextWeek, DateThisMonth}

// Filter narrows a match listing. Zero fields match everything. Phrase is
// free text such as "next saturday" and takes precedence over Date.
type Filter struct {
	Region   string
	Category string
	Date     DateFilter
	Phrase   string
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Range resolves the filter to a window in now's location. Weeks start on
// Monday.
func (d DateFilter) Range(now time.Time) (Window, error) {
	today := startOfDay(now)
	switch d {
	case DateToday:
		return Window{today, today.AddDate(0, 0, 1)}, nil
	case DateTomorrow:
		return Window{today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)}, nil
	case DateThisWeek:
		week := startOfWeek(today)
		return Window{week, week.AddDate(0, 0, 7)}, nil
	case DateNextWeek:
		week := startOfWeek(today).AddDate(0, 0, 7)
		return Window{week, week.AddDate(0, 0, 7)}, nil
	case DateThisMonth:
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Window{month, month.AddDate(0, 1, 0)}, nil
	}
	return Window{}, fmt.Errorf("%w: %q", ErrUnknownDate, string(d))
}

// ParseDateFilter accepts the canonical names plus a few spellings used on
// the command line ("this-week", "This Week").
func ParseDateFilter(s string) (DateFilter, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for _, d := range DateFilters {
		if string(d) == norm {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDate, s)
}

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// PhraseRange resolves a natural-language date to the day it names.
func PhraseRange(phrase string, now time.Time) (Window, error) {
	r, err := parser.Parse(phrase, now)
	if err != nil {
		return Window{}, fmt.Errorf("failed to parse date %q: %w", phrase, err)
	}
	if r == nil {
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownDate, phrase)
	}
	day := startOfDay(r.Time.In(now.Location()))
	return Window{day, day.AddDate(0, 0, 1)}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
