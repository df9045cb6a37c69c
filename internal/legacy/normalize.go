// Package legacy ingests JSON exports from the spreadsheet-era tracker.
// Old exports are inconsistent about field names and sometimes carry
// numbers as strings; normalization is confined here so the rest of the
// system only ever sees canonical records.
package legacy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sitetrack/internal/domain"
)

// Export is the parsed shape of a legacy dump.
type Export struct {
	Projects  []domain.Project
	Tasks     []domain.Task
	Materials []domain.Material
	Expenses  []domain.Expense
}

type rawExport struct {
	Projects  []rawProject  `json:"projects"`
	Tasks     []rawTask     `json:"tasks"`
	Materials []rawMaterial `json:"materials"`
	Expenses  []rawExpense  `json:"expenses"`
}

type rawProject struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ProjectName string  `json:"projectName"`
	ClientName  string  `json:"clientName"`
	Location    string  `json:"location"`
	ProjectLoc  string  `json:"projectLocation"`
	StartDate   string  `json:"startDate"`
	Deadline    string  `json:"deadline"`
	Budget      numeric `json:"budget"`
	Value       numeric `json:"projectValue"`
	Type        string  `json:"type"`
	Contractor  string  `json:"contractor"`
	Engineers   string  `json:"engineers"`
	Contact1    string  `json:"contact1"`
	Contact2    string  `json:"contact2"`
}

type rawTask struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	Name        string  `json:"name"`
	TaskName    string  `json:"taskName"`
	Responsible string  `json:"responsible"`
	DueDate     string  `json:"dueDate"`
	Progress    numeric `json:"progress"`
}

type rawMaterial struct {
	ProjectID  string  `json:"projectId"`
	Name       string  `json:"name"`
	Material   string  `json:"materialName"`
	Required   numeric `json:"requiredQty"`
	Req2       numeric `json:"required"`
	Dispatched numeric `json:"dispatchedQty"`
	Disp2      numeric `json:"dispatched"`
	Unit       string  `json:"unit"`
}

type rawExpense struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"projectId"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      numeric `json:"amount"`
	Category    string  `json:"category"`
}

// numeric accepts a JSON number, a numeric string, null, or an empty
// string, all collapsing to a float64. Anything unparseable is zero.
type numeric float64

func (n *numeric) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = numeric(v)
	return nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func clampQty(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Parse reads a legacy export and normalizes every record to the canonical
// field names. Records missing a usable identity are rejected with a
// positional error rather than silently dropped.
func Parse(data []byte) (Export, error) {
	var raw rawExport
	if err := json.Unmarshal(data, &raw); err != nil {
		return Export{}, fmt.Errorf("parse legacy export: %w", err)
	}

	var out Export
	for i, rp := range raw.Projects {
		name := firstOf(rp.Name, rp.ProjectName)
		if rp.ID == "" || name == "" {
			return Export{}, fmt.Errorf("project %d: id and name are required", i)
		}
		budget := float64(rp.Budget)
		if budget == 0 {
			budget = float64(rp.Value)
		}
		out.Projects = append(out.Projects, domain.Project{
			ID:         strings.TrimSpace(rp.ID),
			Name:       name,
			ClientName: strings.TrimSpace(rp.ClientName),
			Location:   firstOf(rp.Location, rp.ProjectLoc),
			StartDate:  strings.TrimSpace(rp.StartDate),
			Deadline:   strings.TrimSpace(rp.Deadline),
			Budget:     clampQty(budget),
			Type:       strings.TrimSpace(rp.Type),
			Contractor: strings.TrimSpace(rp.Contractor),
			Engineers:  strings.TrimSpace(rp.Engineers),
			Contact1:   strings.TrimSpace(rp.Contact1),
			Contact2:   strings.TrimSpace(rp.Contact2),
		})
	}
	for i, rt := range raw.Tasks {
		name := firstOf(rt.Name, rt.TaskName)
		if rt.ID == "" || rt.ProjectID == "" {
			return Export{}, fmt.Errorf("task %d: id and projectId are required", i)
		}
		progress := int(rt.Progress)
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		out.Tasks = append(out.Tasks, domain.Task{
			ID:          strings.TrimSpace(rt.ID),
			ProjectID:   strings.TrimSpace(rt.ProjectID),
			Name:        name,
			Responsible: strings.TrimSpace(rt.Responsible),
			DueDate:     strings.TrimSpace(rt.DueDate),
			Progress:    progress,
		})
	}
	for i, rm := range raw.Materials {
		name := firstOf(rm.Name, rm.Material)
		if rm.ProjectID == "" || name == "" {
			return Export{}, fmt.Errorf("material %d: projectId and name are required", i)
		}
		required := float64(rm.Required)
		if required == 0 {
			required = float64(rm.Req2)
		}
		dispatched := float64(rm.Dispatched)
		if dispatched == 0 {
			dispatched = float64(rm.Disp2)
		}
		out.Materials = append(out.Materials, domain.Material{
			ProjectID:  strings.TrimSpace(rm.ProjectID),
			Name:       name,
			Required:   clampQty(required),
			Dispatched: clampQty(dispatched),
			Unit:       strings.TrimSpace(rm.Unit),
		})
	}
	for i, re := range raw.Expenses {
		if re.ProjectID == "" {
			return Export{}, fmt.Errorf("expense %d: projectId is required", i)
		}
		out.Expenses = append(out.Expenses, domain.Expense{
			ID:          strings.TrimSpace(re.ID),
			ProjectID:   strings.TrimSpace(re.ProjectID),
			Date:        strings.TrimSpace(re.Date),
			Description: strings.TrimSpace(re.Description),
			Amount:      clampQty(float64(re.Amount)),
			Category:    strings.TrimSpace(re.Category),
		})
	}
	return out, nil
}
