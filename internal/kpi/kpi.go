// Package kpi computes derived project metrics from already-fetched records.
// Every function is pure: no storage, no network, no clock reads. Stored
// quantities are treated permissively; negative values count as zero rather
// than poisoning an aggregate.
package kpi

import (
	"math"
	"time"

	"sitetrack/internal/domain"
)

const dateLayout = "2006-01-02"

// parseDate accepts plain dates and full RFC3339 timestamps, at UTC.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

// DaysSpent returns the whole days elapsed since the project start, floored
// at zero. ok is false when the start date is absent or unparseable; that is
// a distinguished unknown state, not zero.
func DaysSpent(startDate string, today time.Time) (days int, ok bool) {
	start, ok := parseDate(startDate)
	if !ok {
		return 0, false
	}
	d := wholeDays(today.Sub(start))
	if d < 0 {
		d = 0
	}
	return d, true
}

// DaysLeft returns the whole days until the deadline. When the deadline has
// passed, overdue is true and days carries the overdue magnitude. known is
// false when the deadline is absent or unparseable.
func DaysLeft(deadline string, today time.Time) (days int, overdue bool, known bool) {
	end, ok := parseDate(deadline)
	if !ok {
		return 0, false, false
	}
	if today.After(end) {
		return wholeDays(today.Sub(end)), true, true
	}
	return wholeDays(end.Sub(today)), false, true
}

// nonNegative is the permissive coercion applied to stored numbers.
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// TaskProgressPercent is the mean task progress rounded to the nearest
// integer. An empty task list is 0%, not unknown.
func TaskProgressPercent(tasks []domain.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	var total float64
	for _, t := range tasks {
		p := nonNegative(float64(t.Progress))
		if p > 100 {
			p = 100
		}
		total += p
	}
	return int(math.Round(total / float64(len(tasks))))
}

// MaterialDispatchPercent is round(Σdispatched / Σrequired × 100) across the
// project's materials; 0 when nothing is required.
func MaterialDispatchPercent(materials []domain.Material) int {
	var required, dispatched float64
	for _, m := range materials {
		required += nonNegative(m.Required)
		dispatched += nonNegative(m.Dispatched)
	}
	if required <= 0 {
		return 0
	}
	return int(math.Round(dispatched / required * 100))
}

// MaterialBalance is required minus dispatched. It may go negative when a
// material is over-dispatched; that is deliberate, not clamped.
func MaterialBalance(m domain.Material) float64 {
	return nonNegative(m.Required) - nonNegative(m.Dispatched)
}

// MaterialProgress is the per-material dispatch percentage.
func MaterialProgress(m domain.Material) int {
	required := nonNegative(m.Required)
	if required <= 0 {
		return 0
	}
	return int(math.Round(nonNegative(m.Dispatched) / required * 100))
}

// TotalExpenses sums recorded amounts.
func TotalExpenses(expenses []domain.Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += nonNegative(e.Amount)
	}
	return total
}

// BudgetRemaining is budget minus total expenses; negative means overspent.
func BudgetRemaining(budget float64, expenses []domain.Expense) float64 {
	return nonNegative(budget) - TotalExpenses(expenses)
}

// Summary is the full KPI snapshot for one project.
type Summary struct {
	DaysSpent       int     `json:"days_spent"`
	DaysSpentKnown  bool    `json:"days_spent_known"`
	DaysLeft        int     `json:"days_left"`
	Overdue         bool    `json:"overdue"`
	DaysLeftKnown   bool    `json:"days_left_known"`
	TaskProgress    int     `json:"task_progress_percent"`
	MaterialPercent int     `json:"material_dispatch_percent"`
	TotalExpenses   float64 `json:"total_expenses"`
	Budget          float64 `json:"budget"`
	BudgetRemaining float64 `json:"budget_remaining"`
}

// Summarize computes every KPI for a project snapshot at the given instant.
func Summarize(p domain.Project, tasks []domain.Task, materials []domain.Material, expenses []domain.Expense, now time.Time) Summary {
	s := Summary{
		TaskProgress:    TaskProgressPercent(tasks),
		MaterialPercent: MaterialDispatchPercent(materials),
		TotalExpenses:   TotalExpenses(expenses),
		Budget:          nonNegative(p.Budget),
	}
	s.BudgetRemaining = s.Budget - s.TotalExpenses
	s.DaysSpent, s.DaysSpentKnown = DaysSpent(p.StartDate, now)
	s.DaysLeft, s.Overdue, s.DaysLeftKnown = DaysLeft(p.Deadline, now)
	return s
}
