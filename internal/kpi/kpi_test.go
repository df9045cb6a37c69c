package kpi

import (
	"testing"
	"time"

	"sitetrack/internal/domain"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDaysSpent(t *testing.T) {
	today := at("2026-03-11T00:00:00Z")

	days, ok := DaysSpent("2026-03-01", today)
	if !ok || days != 10 {
		t.Fatalf("DaysSpent = %d, %v; want 10, true", days, ok)
	}

	// Start in the future clamps to zero rather than going negative.
	days, ok = DaysSpent("2026-04-01", today)
	if !ok || days != 0 {
		t.Fatalf("future start: got %d, %v; want 0, true", days, ok)
	}

	if _, ok := DaysSpent("", today); ok {
		t.Fatal("empty start date should be unknown")
	}
	if _, ok := DaysSpent("not-a-date", today); ok {
		t.Fatal("garbage start date should be unknown")
	}
}

func TestDaysLeft(t *testing.T) {
	today := at("2026-03-10T00:00:00Z")

	days, overdue, known := DaysLeft("2026-03-15", today)
	if !known || overdue || days != 5 {
		t.Fatalf("got %d, overdue=%v, known=%v; want 5, false, true", days, overdue, known)
	}

	// Three days past the deadline reports the overdue magnitude.
	days, overdue, known = DaysLeft("2026-03-07", today)
	if !known || !overdue || days != 3 {
		t.Fatalf("got %d, overdue=%v, known=%v; want 3, true, true", days, overdue, known)
	}

	if _, _, known := DaysLeft("", today); known {
		t.Fatal("missing deadline should be unknown")
	}
}

func TestTaskProgressPercent(t *testing.T) {
	tests := []struct {
		name     string
		progress []int
		want     int
	}{
		{"empty", nil, 0},
		{"half and done", []int{50, 100}, 75},
		{"rounds nearest", []int{33, 33, 34}, 33},
		{"negative counts as zero", []int{-10, 100}, 50},
		{"caps at hundred", []int{150, 50}, 75},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tasks := make([]domain.Task, len(tc.progress))
			for i, p := range tc.progress {
				tasks[i] = domain.Task{Progress: p}
			}
			if got := TaskProgressPercent(tasks); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMaterialDispatchPercent(t *testing.T) {
	materials := []domain.Material{
		{Required: 100, Dispatched: 40},
		{Required: 50, Dispatched: 50},
	}
	if got := MaterialDispatchPercent(materials); got != 60 {
		t.Fatalf("got %d, want 60", got)
	}

	if got := MaterialDispatchPercent(nil); got != 0 {
		t.Fatalf("no materials: got %d, want 0", got)
	}
	if got := MaterialDispatchPercent([]domain.Material{{Required: 0, Dispatched: 10}}); got != 0 {
		t.Fatalf("zero required: got %d, want 0", got)
	}
}

func TestMaterialBalanceAndProgress(t *testing.T) {
	m := domain.Material{Name: "Cement", Required: 1000, Dispatched: 500}
	if got := MaterialBalance(m); got != 500 {
		t.Fatalf("balance = %v, want 500", got)
	}
	if got := MaterialProgress(m); got != 50 {
		t.Fatalf("progress = %d, want 50", got)
	}

	over := domain.Material{Required: 100, Dispatched: 130}
	if got := MaterialBalance(over); got != -30 {
		t.Fatalf("over-dispatch balance = %v, want -30", got)
	}
}

func TestBudget(t *testing.T) {
	expenses := []domain.Expense{
		{Amount: 10000},
		{Amount: 5000},
	}
	if got := TotalExpenses(expenses); got != 15000 {
		t.Fatalf("total = %v, want 15000", got)
	}
	if got := BudgetRemaining(100000, expenses); got != 85000 {
		t.Fatalf("remaining = %v, want 85000", got)
	}
	// Overspend is reported, not clamped.
	if got := BudgetRemaining(12000, expenses); got != -3000 {
		t.Fatalf("overspend = %v, want -3000", got)
	}
}

func TestSummarize(t *testing.T) {
	now := at("2026-03-10T00:00:00Z")
	p := domain.Project{
		ID:        "HT-001",
		StartDate: "2026-03-01",
		Deadline:  "2026-03-07",
		Budget:    100000,
	}
	tasks := []domain.Task{{Progress: 50}, {Progress: 100}}
	materials := []domain.Material{{Required: 100, Dispatched: 40}, {Required: 50, Dispatched: 50}}
	expenses := []domain.Expense{{Amount: 15000}}

	s := Summarize(p, tasks, materials, expenses, now)
	if !s.DaysSpentKnown || s.DaysSpent != 9 {
		t.Fatalf("days spent = %d (known=%v), want 9", s.DaysSpent, s.DaysSpentKnown)
	}
	if !s.DaysLeftKnown || !s.Overdue || s.DaysLeft != 3 {
		t.Fatalf("days left = %d overdue=%v, want 3 overdue", s.DaysLeft, s.Overdue)
	}
	if s.TaskProgress != 75 {
		t.Fatalf("task progress = %d, want 75", s.TaskProgress)
	}
	if s.MaterialPercent != 60 {
		t.Fatalf("material percent = %d, want 60", s.MaterialPercent)
	}
	if s.TotalExpenses != 15000 || s.BudgetRemaining != 85000 {
		t.Fatalf("expenses = %v remaining = %v, want 15000 / 85000", s.TotalExpenses, s.BudgetRemaining)
	}
}
