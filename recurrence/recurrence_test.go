package recurrence_test

import (
	"testing"
	"time"

	"github.com/xraph/tally/recurrence"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestNextDate(t *testing.T) {
	tests := []struct {
		name  string
		freq  recurrence.Frequency
		every int
		day   int
		month int
		from  time.Time
		want  time.Time
	}{
		{"daily", recurrence.Daily, 1, 0, 0, date(2025, time.March, 31), date(2025, time.April, 1)},
		{"daily every 3", recurrence.Daily, 3, 0, 0, date(2025, time.December, 30), date(2026, time.January, 2)},
		{"weekly", recurrence.Weekly, 1, 0, 0, date(2025, time.January, 1), date(2025, time.January, 8)},
		{"biweekly", recurrence.Weekly, 2, 0, 0, date(2025, time.January, 1), date(2025, time.January, 15)},
		{"monthly day 31 into february", recurrence.Monthly, 1, 31, 0, date(2025, time.January, 15), date(2025, time.February, 28)},
		{"monthly day 31 into leap february", recurrence.Monthly, 1, 31, 0, date(2024, time.January, 15), date(2024, time.February, 29)},
		{"monthly day 31 into april", recurrence.Monthly, 1, 31, 0, date(2025, time.March, 31), date(2025, time.April, 30)},
		{"monthly returns to 31 after short month", recurrence.Monthly, 1, 31, 0, date(2025, time.February, 28), date(2025, time.March, 31)},
		{"monthly no day keeps anchor", recurrence.Monthly, 1, 0, 0, date(2025, time.January, 10), date(2025, time.February, 10)},
		{"monthly from jan 31 without day clamps", recurrence.Monthly, 1, 0, 0, date(2025, time.January, 31), date(2025, time.February, 28)},
		{"quarterly across year", recurrence.Monthly, 3, 15, 0, date(2025, time.November, 15), date(2026, time.February, 15)},
		{"yearly sets month", recurrence.Yearly, 1, 1, 4, date(2025, time.January, 20), date(2026, time.April, 1)},
		{"yearly feb 29 clamps", recurrence.Yearly, 1, 29, 2, date(2024, time.February, 29), date(2025, time.February, 28)},
		{"yearly every 4 keeps leap day", recurrence.Yearly, 4, 29, 2, date(2024, time.February, 29), date(2028, time.February, 29)},
		{"zero every treated as one", recurrence.Daily, 0, 0, 0, date(2025, time.May, 1), date(2025, time.May, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recurrence.NextDate(tt.freq, tt.every, tt.day, tt.month, tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("NextDate = %s, want %s", got.Format(time.RFC3339), tt.want.Format(time.RFC3339))
			}
		})
	}
}

func TestNextDateDeterministic(t *testing.T) {
	from := date(2025, time.January, 15)
	a := recurrence.NextDate(recurrence.Monthly, 1, 31, 0, from)
	b := recurrence.NextDate(recurrence.Monthly, 1, 31, 0, from)
	if !a.Equal(b) {
		t.Errorf("non-deterministic result: %s vs %s", a, b)
	}
}

func TestNextAfterSkipsMissedOccurrences(t *testing.T) {
	r := recurrence.Rule{Frequency: recurrence.Monthly, Every: 1, Day: 5}
	from := date(2025, time.January, 5)
	now := date(2025, time.April, 10)

	got := r.NextAfter(from, now)
	want := date(2025, time.May, 5)
	if !got.Equal(want) {
		t.Errorf("NextAfter = %s, want %s", got, want)
	}

	// A future reference advances exactly one step.
	got = r.NextAfter(date(2025, time.June, 5), now)
	if want := date(2025, time.July, 5); !got.Equal(want) {
		t.Errorf("NextAfter = %s, want %s", got, want)
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    recurrence.Rule
		wantErr bool
	}{
		{"valid monthly", recurrence.Rule{Frequency: recurrence.Monthly, Every: 1, Day: 31}, false},
		{"valid yearly", recurrence.Rule{Frequency: recurrence.Yearly, Every: 1, Day: 1, Month: 12}, false},
		{"unknown frequency", recurrence.Rule{Frequency: "hourly", Every: 1}, true},
		{"zero every", recurrence.Rule{Frequency: recurrence.Daily}, true},
		{"day out of range", recurrence.Rule{Frequency: recurrence.Monthly, Every: 1, Day: 32}, true},
		{"month out of range", recurrence.Rule{Frequency: recurrence.Yearly, Every: 1, Month: 13}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDaysIn(t *testing.T) {
	if got := recurrence.DaysIn(2024, time.February); got != 29 {
		t.Errorf("DaysIn(2024, Feb) = %d", got)
	}
	if got := recurrence.DaysIn(2100, time.February); got != 28 {
		t.Errorf("DaysIn(2100, Feb) = %d", got)
	}
	if got := recurrence.DaysIn(2025, time.December); got != 31 {
		t.Errorf("DaysIn(2025, Dec) = %d", got)
	}
}

func TestAnchoredAtKeepsMonthEndAcrossShortMonths(t *testing.T) {
	rule := recurrence.Rule{Frequency: recurrence.Monthly, Every: 1}.AnchoredAt(date(2025, time.January, 31))
	if rule.Day != 31 {
		t.Fatalf("Day = %d, want 31", rule.Day)
	}

	want := []time.Time{
		date(2025, time.February, 28),
		date(2025, time.March, 31),
		date(2025, time.April, 30),
	}
	from := date(2025, time.January, 31)
	for i, w := range want {
		from = rule.Next(from)
		if !from.Equal(w) {
			t.Fatalf("occurrence %d = %s, want %s", i+1, from.Format(time.DateOnly), w.Format(time.DateOnly))
		}
	}
}

func TestAnchoredAtYearly(t *testing.T) {
	rule := recurrence.Rule{Frequency: recurrence.Yearly, Every: 1}.AnchoredAt(date(2024, time.February, 29))
	if rule.Day != 29 || rule.Month != int(time.February) {
		t.Fatalf("anchors = %d/%d, want 29/2", rule.Day, rule.Month)
	}

	next := rule.Next(date(2024, time.February, 29))
	if !next.Equal(date(2025, time.February, 28)) {
		t.Fatalf("next = %s, want 2025-02-28", next.Format(time.DateOnly))
	}
	next = rule.Next(next)
	next = rule.Next(next)
	next = rule.Next(next)
	if !next.Equal(date(2028, time.February, 29)) {
		t.Fatalf("next = %s, want 2028-02-29", next.Format(time.DateOnly))
	}
}

func TestAnchoredAtKeepsExplicitAnchors(t *testing.T) {
	rule := recurrence.Rule{Frequency: recurrence.Monthly, Every: 1, Day: 5}.AnchoredAt(date(2025, time.January, 31))
	if rule.Day != 5 {
		t.Fatalf("Day = %d, want 5", rule.Day)
	}

	weekly := recurrence.Rule{Frequency: recurrence.Weekly, Every: 1}.AnchoredAt(date(2025, time.January, 31))
	if weekly.Day != 0 || weekly.Month != 0 {
		t.Fatalf("weekly rule gained anchors: %+v", weekly)
	}
}
