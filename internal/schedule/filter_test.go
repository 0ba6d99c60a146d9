package schedule

import (
	"errors"
	"testing"
	"time"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateFilterRange(t *testing.T) {
	wednesday := time.Date(2026, 5, 13, 10, 30, 0, 0, time.UTC)
	sunday := time.Date(2026, 5, 17, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter DateFilter
		now    time.Time
		want   Window
	}{
		{"today", DateToday, wednesday, Window{day(5, 13), day(5, 14)}},
		{"tomorrow", DateTomorrow, wednesday, Window{day(5, 14), day(5, 15)}},
		{"this week from wednesday", DateThisWeek, wednesday, Window{day(5, 11), day(5, 18)}},
		{"this week from sunday", DateThisWeek, sunday, Window{day(5, 11), day(5, 18)}},
		{"next week", DateNextWeek, wednesday, Window{day(5, 18), day(5, 25)}},
		{"this month", DateThisMonth, wednesday, Window{day(5, 1), day(6, 1)}},
		{"tomorrow across month end", DateTomorrow, time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC), Window{day(6, 1), day(6, 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Range(tt.now)
			if err != nil {
				t.Fatalf("Range() failed: %v", err)
			}
			if !got.Start.Equal(tt.want.Start) || !got.End.Equal(tt.want.End) {
				t.Errorf("Range() = [%v, %v), want [%v, %v)", got.Start, got.End, tt.want.Start, tt.want.End)
			}
		})
	}

	if _, err := DateFilter("someday").Range(wednesday); !errors.Is(err, ErrUnknownDate) {
		t.Errorf("Range(someday) error = %v, want ErrUnknownDate", err)
	}
}

func TestParseDateFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    DateFilter
		wantErr bool
	}{
		{"today", DateToday, false},
		{"this_week", DateThisWeek, false},
		{"this-week", DateThisWeek, false},
		{" Next Week ", DateNextWeek, false},
		{"THIS_MONTH", DateThisMonth, false},
		{"yesterday", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDateFilter(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDateFilter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDateFilter(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhraseRange(t *testing.T) {
	now := time.Date(2026, 5, 13, 10, 30, 0, 0, time.UTC)

	got, err := PhraseRange("tomorrow", now)
	if err != nil {
		t.Fatalf("PhraseRange(tomorrow) failed: %v", err)
	}
	if !got.Start.Equal(day(5, 14)) || !got.End.Equal(day(5, 15)) {
		t.Errorf("PhraseRange(tomorrow) = [%v, %v)", got.Start, got.End)
	}

	got, err = PhraseRange("next saturday", now)
	if err != nil {
		t.Fatalf("PhraseRange(next saturday) failed: %v", err)
	}
	if got.Start.Weekday() != time.Saturday {
		t.Errorf("next saturday starts on %v", got.Start.Weekday())
	}
	if !got.Start.After(now) || got.Start.Sub(now) > 14*24*time.Hour {
		t.Errorf("next saturday = %v, want within two weeks of %v", got.Start, now)
	}
	if got.End.Sub(got.Start) != 24*time.Hour {
		t.Errorf("window length = %v, want one day", got.End.Sub(got.Start))
	}

	if _, err := PhraseRange("xyzzy", now); !errors.Is(err, ErrUnknownDate) {
		t.Errorf("PhraseRange(nonsense) error = %v, want ErrUnknownDate", err)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{day(5, 13), day(5, 14)}
	if !w.Contains(day(5, 13)) {
		t.Error("start must be inside the window")
	}
	if w.Contains(day(5, 14)) {
		t.Error("end must be outside the window")
	}
	if !w.Contains(day(5, 13).Add(23 * time.Hour)) {
		t.Error("late evening must be inside the window")
	}
}
