package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"0 8 * * 1-5", "*/15 9-17 * * *", "@daily", "CRON_TZ=Europe/Paris 0 7 * * *"} {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "every morning", "61 * * * *", "@every 5m"} {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestCronExpr_WeekdayMornings(t *testing.T) {
	expr, err := ParseCron("0 8 * * 1-5")
	if err != nil {
		t.Fatal(err)
	}

	// Friday 2025-01-03 09:00 -> Monday 2025-01-06 08:00
	friday := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)
	want := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	if got := expr.Next(friday); !got.Equal(want) {
		t.Errorf("expected next %v, got %v", want, got)
	}

	if !expr.Matches(time.Date(2025, 1, 6, 8, 0, 42, 0, time.UTC)) {
		t.Error("expected Monday 08:00 to match")
	}
	if expr.Matches(time.Date(2025, 1, 4, 8, 0, 0, 0, time.UTC)) {
		t.Error("expected Saturday 08:00 not to match")
	}
	if expr.Matches(time.Date(2025, 1, 6, 8, 1, 0, 0, time.UTC)) {
		t.Error("expected 08:01 not to match")
	}
}

func TestCronExpr_Descriptor(t *testing.T) {
	expr, err := ParseCron("@hourly")
	if err != nil {
		t.Fatal(err)
	}
	if expr.String() != "@hourly" {
		t.Errorf("expected raw @hourly, got %q", expr.String())
	}
	if !expr.Matches(time.Date(2025, 3, 1, 14, 0, 10, 0, time.UTC)) {
		t.Error("expected match on the hour")
	}
	if expr.Matches(time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)) {
		t.Error("expected no match at half past")
	}
}
