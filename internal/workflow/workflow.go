// Package workflow holds the fixed 23-step template every project is seeded
// from, and the helpers that tie task IDs to their position in that sequence.
package workflow

import (
	"fmt"
	"regexp"
	"sort"

	"sitetrack/internal/domain"
)

// Step is one template entry: the task name and the role responsible for it.
type Step struct {
	Name        string `json:"name" yaml:"name"`
	Responsible string `json:"responsible" yaml:"responsible"`
}

// steps is the standard fabrication workflow, in execution order.
var steps = []Step{
	{"1. Understanding the System", "Project Manager"},
	{"2. Identifying Scope", "Site Engineer/Project coordinator"},
	{"3. Measurement", "Surveyor/Field Engineer"},
	{"4. Cross-Check Scope", "Site Engineer/Quality Inspector"},
	{"5. Calculate Project Cost", "Estimation Engineer/Cost Analyst"},
	{"6. Review Payment Terms", "Accounts Manager/Contract Specialist"},
	{"7. Calculate BOQ", "Estimation Engineer/Procurement Manager"},
	{"8. Compare Costs", "Procurement Manager/Cost Analyst"},
	{"9. Manage Materials", "Procurement Manager/Warehouse Supervisor"},
	{"10. Prepare BOQ for Production", "Production Planner"},
	{"11. Approval from Director", "Director/General Manager"},
	{"12. Production", "Production Supervisor"},
	{"13. Post-Production Check", "Quality Inspector"},
	{"14. Dispatch", "Logistics Manager"},
	{"15. Installation", "Site Engineer/Contractor"},
	{"16. Handover Measurements", "Surveyor/Field Engineer"},
	{"17. Cross-Check Final Work", "Quality Inspector/Site Engineer"},
	{"18. Create Abstract Invoice", "Accounts Manager"},
	{"19. Approval from Director", "Director/General Manager"},
	{"20. Process Invoice", "Accounts Executive"},
	{"21. Submit Bill On-Site", "Accounts Executive/Project Manager"},
	{"22. Payment Follow-Up", "Accounts Manager"},
	{"23. Submit No-Objection Letter", "Project Manager"},
}

// Steps returns a copy of the template so callers cannot mutate it.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// Len is the number of steps in the template.
func Len() int { return len(steps) }

// TaskID builds the conventional task identifier for a 1-based ordinal.
func TaskID(projectID string, ordinal int) string {
	return fmt.Sprintf("%s-T%d", projectID, ordinal)
}

var ordinalRe = regexp.MustCompile(`-T(\d+)$`)

// Ordinal extracts the 1-based workflow position embedded in a task ID.
// IDs without a parseable ordinal sort first, as ordinal 0.
func Ordinal(taskID string) int {
	m := ordinalRe.FindStringSubmatch(taskID)
	if m == nil {
		return 0
	}
	var n int
	fmt.Sscanf(m[1], "%d", &n)
	return n
}

// Sort orders tasks by their embedded ordinal, in place. This ordering is
// the workflow sequence and is load-bearing for sequential unlock.
func Sort(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Ordinal(tasks[i].ID) < Ordinal(tasks[j].ID)
	})
}

// StatusFor derives the task status from a progress value.
func StatusFor(progress int) string {
	switch {
	case progress >= 100:
		return domain.TaskCompleted
	case progress <= 0:
		return domain.TaskPending
	default:
		return domain.TaskInProgress
	}
}
