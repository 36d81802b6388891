package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 2 || d.Day() != 29 {
		t.Fatalf("unexpected date %v", d)
	}
	if d.String() != "2024-02-29" {
		t.Fatalf("String() = %q", d.String())
	}

	empty, err := ParseDate("")
	if err != nil || !empty.IsZero() {
		t.Fatalf("expected zero date, got %v (err=%v)", empty, err)
	}

	if _, err := ParseDate("29/02/2024"); !errors.Is(err, ErrMalformedDate) {
		t.Fatalf("expected ErrMalformedDate, got %v", err)
	}
}

func TestDaysUntil(t *testing.T) {
	today := NewDate(2024, 3, 10)
	cases := []struct {
		to   Date
		want int
	}{
		{NewDate(2024, 3, 10), 0},
		{NewDate(2024, 3, 13), 3},
		{NewDate(2024, 3, 9), -1},
		{NewDate(2024, 4, 10), 31},
	}
	for _, tc := range cases {
		if got := DaysUntil(today, tc.to); got != tc.want {
			t.Errorf("DaysUntil(%v, %v) = %d, want %d", today, tc.to, got, tc.want)
		}
	}
}

func TestPeriodDayClamped(t *testing.T) {
	cases := []struct {
		p    Period
		day  int
		want Date
	}{
		{Period{2024, 2}, 31, NewDate(2024, 2, 29)},
		{Period{2023, 2}, 31, NewDate(2023, 2, 28)},
		{Period{2024, 4}, 31, NewDate(2024, 4, 30)},
		{Period{2024, 1}, 15, NewDate(2024, 1, 15)},
		{Period{2024, 1}, 0, NewDate(2024, 1, 1)},
	}
	for _, tc := range cases {
		if got := tc.p.DayClamped(tc.day); !got.Equal(tc.want.Time) {
			t.Errorf("%v.DayClamped(%d) = %v, want %v", tc.p, tc.day, got, tc.want)
		}
	}
}

func TestPeriodValidate(t *testing.T) {
	if err := (Period{2024, 13}).Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if err := (Period{0, 1}).Validate(); !errors.Is(err, ErrInvalidYear) {
		t.Fatalf("expected ErrInvalidYear, got %v", err)
	}
	if err := (Period{2024, 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
