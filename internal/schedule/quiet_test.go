package schedule

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2025, time.March, 14, h, m, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"22:00", 22 * 60},
		{"07:30", 7*60 + 30},
		{"7", 7 * 60},
		{"", 0},
		{"xx:15", 15},
		{"08:yy", 8 * 60},
		{" 09:05 ", 9*60 + 5},
	}
	for _, tt := range tests {
		if got := ParseClock(tt.in); got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestInQuietHoursDisabledWhenStartEqualsEnd(t *testing.T) {
	t.Parallel()
	s := Settings{QuietHoursStart: "08:00", QuietHoursEnd: "08:00"}
	for m := 0; m < minutesPerDay; m++ {
		if InQuietHours(s, at(0, 0).Add(time.Duration(m)*time.Minute)) {
			t.Fatalf("minute %d reported quiet with disabled window", m)
		}
	}
	if QuietHoursEnabled(s) {
		t.Fatal("QuietHoursEnabled = true for equal bounds")
	}
}

func TestInQuietHoursWindows(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		start, end string
	}{
		{name: "same day", start: "13:00", end: "15:30"},
		{name: "overnight", start: "22:00", end: "07:00"},
		{name: "ends at midnight", start: "20:00", end: "00:00"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{QuietHoursStart: tt.start, QuietHoursEnd: tt.end}
			start, end := ParseClock(tt.start), ParseClock(tt.end)
			for m := 0; m < minutesPerDay; m++ {
				var want bool
				if start < end {
					want = m >= start && m < end
				} else {
					want = m >= start || m < end
				}
				now := at(0, 0).Add(time.Duration(m) * time.Minute)
				if got := InQuietHours(s, now); got != want {
					t.Fatalf("InQuietHours(%s) = %v, want %v", now.Format("15:04"), got, want)
				}
			}
		})
	}
}

func TestUntilQuietEndsLandsOnBoundary(t *testing.T) {
	t.Parallel()
	s := Settings{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	for m := 0; m < minutesPerDay; m++ {
		now := at(0, 0).Add(time.Duration(m) * time.Minute)
		if !InQuietHours(s, now) {
			continue
		}
		d := UntilQuietEnds(s, now)
		if d <= 0 || d >= 24*time.Hour {
			t.Fatalf("UntilQuietEnds(%s) = %v, out of range", now.Format("15:04"), d)
		}
		if got := now.Add(d).Format("15:04"); got != "07:00" {
			t.Fatalf("now %s + %v = %s, want 07:00", now.Format("15:04"), d, got)
		}
	}
}

func TestUntilQuietEndsIgnoresSeconds(t *testing.T) {
	t.Parallel()
	s := Settings{QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	now := at(23, 0).Add(42 * time.Second)
	if got := UntilQuietEnds(s, now); got != 8*time.Hour {
		t.Fatalf("UntilQuietEnds = %v, want 8h", got)
	}
}
