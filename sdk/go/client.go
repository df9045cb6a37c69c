// Package sitetracksdk is a minimal SiteTrack HTTP API client.
package sitetracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a SiteTrack server.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project mirrors the API project model.
type Project struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ClientName string  `json:"client_name"`
	Location   string  `json:"location"`
	StartDate  string  `json:"start_date"`
	Deadline   string  `json:"deadline"`
	Budget     float64 `json:"budget"`
	Type       string  `json:"type"`
	Contractor string  `json:"contractor"`
	Engineers  string  `json:"engineers"`
	Contact1   string  `json:"contact1"`
	Contact2   string  `json:"contact2"`
}

// Task mirrors the API task model.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Responsible string `json:"responsible"`
	DueDate     string `json:"due_date"`
	Progress    int    `json:"progress"`
	Status      string `json:"status"`
}

// Material mirrors the API material model plus derived fields.
type Material struct {
	ProjectID       string  `json:"project_id"`
	Name            string  `json:"name"`
	Required        float64 `json:"required_quantity"`
	Dispatched      float64 `json:"dispatched_quantity"`
	Unit            string  `json:"unit"`
	Balance         float64 `json:"balance"`
	DispatchPercent int     `json:"dispatch_percent"`
}

// Expense mirrors the API expense model.
type Expense struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	RecordedBy  string  `json:"recorded_by"`
}

// KPIs mirrors the computed dashboard numbers.
type KPIs struct {
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

// Dashboard is the full project snapshot.
type Dashboard struct {
	Project   Project    `json:"project"`
	Tasks     []Task     `json:"tasks"`
	Materials []Material `json:"materials"`
	Expenses  []Expense  `json:"expenses"`
	KPIs      KPIs       `json:"kpis"`
}

// ProjectCreated is the create-project response.
type ProjectCreated struct {
	Project     Project `json:"project"`
	TasksSeeded int     `json:"tasks_seeded"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login authenticates and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context, name, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"name": name, "password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateProject registers a project; the server seeds its workflow.
func (c *Client) CreateProject(ctx context.Context, p Project) (ProjectCreated, error) {
	var resp ProjectCreated
	err := c.do(ctx, http.MethodPost, "v1/projects", p, &resp)
	return resp, err
}

// Projects lists all projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v1/projects", nil, &resp)
	return resp, err
}

// Project fetches one project.
func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(id, ""), nil, &resp)
	return resp, err
}

// DeleteProject removes a project and everything under it.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(id, ""), nil, nil)
}

// Tasks lists a project's workflow tasks in step order.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "tasks"), nil, &resp)
	return resp, err
}

// UpdateTaskProgress sets a task's progress; status is derived server-side.
func (c *Client) UpdateTaskProgress(ctx context.Context, taskID string, progress int, force bool) (Task, error) {
	var resp Task
	body := map[string]any{"progress": progress}
	if force {
		body["force"] = true
	}
	endpoint := fmt.Sprintf("v1/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// MaterialCreate is the create-material request. Dispatched is the absolute
// starting total; later Dispatch calls add to it.
type MaterialCreate struct {
	Name       string  `json:"name"`
	Required   float64 `json:"required_quantity"`
	Dispatched float64 `json:"dispatched_quantity,omitempty"`
	Unit       string  `json:"unit,omitempty"`
}

// CreateMaterial registers a material line.
func (c *Client) CreateMaterial(ctx context.Context, projectID string, m MaterialCreate) (Material, error) {
	var resp Material
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "materials"), m, &resp)
	return resp, err
}

// Dispatch records a dispatch quantity against a material.
func (c *Client) Dispatch(ctx context.Context, projectID, name string, quantity float64) (Material, error) {
	var resp Material
	endpoint := c.projectPath(projectID, fmt.Sprintf("materials/%s/dispatch", url.PathEscape(name)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"quantity": quantity}, &resp)
	return resp, err
}

// AddExpense records an expense.
func (c *Client) AddExpense(ctx context.Context, projectID, date, description string, amount float64, category string) (Expense, error) {
	var resp Expense
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "expenses"), map[string]any{
		"date": date, "description": description, "amount": amount, "category": category,
	}, &resp)
	return resp, err
}

// Dashboard fetches the full snapshot with KPIs.
func (c *Client) Dashboard(ctx context.Context, projectID string) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "dashboard"), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(id, p string) string {
	base := fmt.Sprintf("v1/projects/%s", url.PathEscape(id))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
