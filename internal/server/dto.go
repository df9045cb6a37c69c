package server

import (
	"sitetrack/internal/domain"
	"sitetrack/internal/engine"
	"sitetrack/internal/kpi"
)

type CreateProjectRequest struct {
	ID         string  `json:"id" example:"HT-001"`
	Name       string  `json:"name" example:"Overhead Crane Gantry"`
	ClientName string  `json:"client_name,omitempty"`
	Location   string  `json:"location,omitempty"`
	StartDate  string  `json:"start_date,omitempty" format:"date"`
	Deadline   string  `json:"deadline,omitempty" format:"date"`
	Budget     float64 `json:"budget,omitempty" minimum:"0"`
	Type       string  `json:"type,omitempty"`
	Contractor string  `json:"contractor,omitempty"`
	Engineers  string  `json:"engineers,omitempty"`
	Contact1   string  `json:"contact1,omitempty"`
	Contact2   string  `json:"contact2,omitempty"`
}

// UpdateProjectRequest uses pointers so omitted fields stay untouched while
// explicit empty strings clear a field.
type UpdateProjectRequest struct {
	Name       *string  `json:"name,omitempty"`
	ClientName *string  `json:"client_name,omitempty"`
	Location   *string  `json:"location,omitempty"`
	StartDate  *string  `json:"start_date,omitempty"`
	Deadline   *string  `json:"deadline,omitempty"`
	Budget     *float64 `json:"budget,omitempty"`
	Type       *string  `json:"type,omitempty"`
	Contractor *string  `json:"contractor,omitempty"`
	Engineers  *string  `json:"engineers,omitempty"`
	Contact1   *string  `json:"contact1,omitempty"`
	Contact2   *string  `json:"contact2,omitempty"`
}

type UpdateTaskRequest struct {
	Progress int    `json:"progress" minimum:"0" maximum:"100"`
	DueDate  string `json:"due_date,omitempty" format:"date"`
	Force    bool   `json:"force,omitempty"`
}

// CreateMaterialRequest takes dispatched_quantity as an absolute starting
// total; subsequent dispatch calls add deltas on top of it.
type CreateMaterialRequest struct {
	Name       string  `json:"name" example:"Cement"`
	Required   float64 `json:"required_quantity" minimum:"0"`
	Dispatched float64 `json:"dispatched_quantity,omitempty" minimum:"0"`
	Unit       string  `json:"unit,omitempty" example:"bags"`
}

type DispatchRequest struct {
	Quantity float64 `json:"quantity" exclusiveMinimum:"0"`
}

type CreateExpenseRequest struct {
	Date        string  `json:"date" format:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount" exclusiveMinimum:"0"`
	Category    string  `json:"category,omitempty"`
}

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type ProjectCreatedResponse struct {
	Project     domain.Project `json:"project"`
	TasksSeeded int            `json:"tasks_seeded"`
}

type MaterialResponse struct {
	domain.Material
	Balance         float64 `json:"balance"`
	DispatchPercent int     `json:"dispatch_percent"`
}

type DashboardResponse struct {
	Project   domain.Project     `json:"project"`
	Tasks     []domain.Task      `json:"tasks"`
	Materials []MaterialResponse `json:"materials"`
	Expenses  []domain.Expense   `json:"expenses"`
	KPIs      kpi.Summary        `json:"kpis"`
}

type ImportResponse struct {
	Projects  int `json:"projects"`
	Tasks     int `json:"tasks"`
	Materials int `json:"materials"`
	Expenses  int `json:"expenses"`
}

func materialResponse(m domain.Material) MaterialResponse {
	return MaterialResponse{
		Material:        m,
		Balance:         kpi.MaterialBalance(m),
		DispatchPercent: kpi.MaterialProgress(m),
	}
}

func mapMaterials(items []domain.Material) []MaterialResponse {
	res := make([]MaterialResponse, len(items))
	for i, m := range items {
		res[i] = materialResponse(m)
	}
	return res
}

func dashboardResponse(s engine.Snapshot) DashboardResponse {
	return DashboardResponse{
		Project:   s.Project,
		Tasks:     s.Tasks,
		Materials: mapMaterials(s.Materials),
		Expenses:  s.Expenses,
		KPIs:      s.KPIs,
	}
}
