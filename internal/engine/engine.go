package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitetrack/internal/config"
	"sitetrack/internal/domain"
	"sitetrack/internal/events"
	"sitetrack/internal/kpi"
	"sitetrack/internal/repo"
	"sitetrack/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// steps returns the workflow template, preferring a config override.
func (e Engine) steps() []workflow.Step {
	if e.Config != nil && len(e.Config.Workflow.Steps) > 0 {
		res := make([]workflow.Step, len(e.Config.Workflow.Steps))
		for i, s := range e.Config.Workflow.Steps {
			res[i] = workflow.Step{Name: s.Name, Responsible: s.Responsible}
		}
		return res
	}
	return workflow.Steps()
}

// ProjectCreateOptions are parameters for registering a project.
type ProjectCreateOptions struct {
	ID         string
	Name       string
	ClientName string
	Location   string
	StartDate  string
	Deadline   string
	Budget     float64
	Type       string
	Contractor string
	Engineers  string
	Contact1   string
	Contact2   string
	ActorID    string
}

// CreateProject registers a project and seeds its full task workflow in one
// transaction. Either the project arrives with every step or not at all.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, []domain.Task, error) {
	opts.ID = strings.TrimSpace(opts.ID)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.ID == "" {
		return domain.Project{}, nil, errors.New("project id is required")
	}
	if opts.Name == "" {
		return domain.Project{}, nil, errors.New("project name is required")
	}
	if opts.Budget < 0 {
		return domain.Project{}, nil, errors.New("budget must not be negative")
	}
	for _, d := range []string{opts.StartDate, opts.Deadline} {
		if err := validDate(d); err != nil {
			return domain.Project{}, nil, err
		}
	}

	now := e.nowStamp()
	p := domain.Project{
		ID:         opts.ID,
		Name:       opts.Name,
		ClientName: opts.ClientName,
		Location:   opts.Location,
		StartDate:  opts.StartDate,
		Deadline:   opts.Deadline,
		Budget:     opts.Budget,
		Type:       opts.Type,
		Contractor: opts.Contractor,
		Engineers:  opts.Engineers,
		Contact1:   opts.Contact1,
		Contact2:   opts.Contact2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	steps := e.steps()
	tasks := make([]domain.Task, len(steps))
	for i, s := range steps {
		tasks[i] = domain.Task{
			ID:          workflow.TaskID(p.ID, i+1),
			ProjectID:   p.ID,
			Name:        s.Name,
			Responsible: s.Responsible,
			Progress:    0,
			Status:      domain.TaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, nil, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.InsertTasksTx(ctx, tx, tasks); err != nil {
		return domain.Project{}, nil, fmt.Errorf("seed workflow: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"name": p.Name, "budget": p.Budget,
	}); err != nil {
		return domain.Project{}, nil, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.seeded", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"tasks": len(tasks),
	}); err != nil {
		return domain.Project{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, nil, err
	}
	return p, tasks, nil
}

// UpdateProject applies a partial edit to project details.
func (e Engine) UpdateProject(ctx context.Context, id string, u repo.ProjectUpdate, actorID string) (domain.Project, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return domain.Project{}, errors.New("project name must not be empty")
	}
	if u.Budget != nil && *u.Budget < 0 {
		return domain.Project{}, errors.New("budget must not be negative")
	}
	for _, d := range []*string{u.StartDate, u.Deadline} {
		if d != nil {
			if err := validDate(*d); err != nil {
				return domain.Project{}, err
			}
		}
	}
	if err := e.Repo.UpdateProject(ctx, id, u, e.nowStamp()); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, nil, "project.updated", id, "project", id, actorID, nil); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

// DeleteProject removes a project and all its tasks, materials, and expenses
// in one transaction. A half-deleted project is never observable.
func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTasksByProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.DeleteMaterialsByProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.DeleteExpensesByProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Repo.DeleteProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", id, "project", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskProgressOptions are parameters for updating a workflow step.
type TaskProgressOptions struct {
	TaskID   string
	Progress int
	DueDate  string
	// Force skips the sequential-unlock check. Site reality sometimes runs
	// ahead of paperwork.
	Force   bool
	ActorID string
}

// UpdateTaskProgress sets a step's progress. Status is always derived from
// progress, never accepted from the caller. Unless forced, a step may only
// move off zero once every earlier step is completed.
func (e Engine) UpdateTaskProgress(ctx context.Context, opts TaskProgressOptions) (domain.Task, error) {
	if opts.Progress < 0 || opts.Progress > 100 {
		return domain.Task{}, errors.New("progress must be between 0 and 100")
	}
	if err := validDate(opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Task{}, err
	}

	if opts.Progress > 0 && !opts.Force {
		if err := e.checkSequence(ctx, t); err != nil {
			return domain.Task{}, err
		}
	}

	status := workflow.StatusFor(opts.Progress)
	due := opts.DueDate
	if due == "" {
		due = t.DueDate
	}
	if err := e.Repo.UpdateTaskProgress(ctx, t.ID, opts.Progress, status, due, e.nowStamp()); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, nil, "task.progress.updated", t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"progress": opts.Progress, "status": status, "forced": opts.Force,
	}); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// checkSequence rejects progress on a step while an earlier step is not yet
// completed.
func (e Engine) checkSequence(ctx context.Context, t domain.Task) error {
	ord := workflow.Ordinal(t.ID)
	if ord <= 1 {
		return nil
	}
	tasks, err := e.Repo.ListTasks(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	for _, prev := range tasks {
		po := workflow.Ordinal(prev.ID)
		if po == 0 || po >= ord {
			continue
		}
		if prev.Status != domain.TaskCompleted {
			return fmt.Errorf("step %d (%s) is not completed; finish it first or use force", po, prev.Name)
		}
	}
	return nil
}

// MaterialCreateOptions are parameters for registering a material line.
// Dispatched is an absolute starting total, not a delta; later dispatches
// accumulate on top of it.
type MaterialCreateOptions struct {
	ProjectID  string
	Name       string
	Required   float64
	Dispatched float64
	Unit       string
	ActorID    string
}

func (e Engine) CreateMaterial(ctx context.Context, opts MaterialCreateOptions) (domain.Material, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.Material{}, errors.New("material name is required")
	}
	if opts.Required < 0 {
		return domain.Material{}, errors.New("required quantity must not be negative")
	}
	if opts.Dispatched < 0 {
		return domain.Material{}, errors.New("dispatched quantity must not be negative")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Material{}, err
	}
	now := e.nowStamp()
	m := domain.Material{
		ProjectID:  opts.ProjectID,
		Name:       opts.Name,
		Required:   opts.Required,
		Dispatched: opts.Dispatched,
		Unit:       opts.Unit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertMaterial(ctx, m); err != nil {
		return domain.Material{}, err
	}
	if err := e.Events.Append(ctx, nil, "material.created", m.ProjectID, "material", m.Name, opts.ActorID, events.EventPayload{
		"required": m.Required, "dispatched": m.Dispatched, "unit": m.Unit,
	}); err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

// RecordDispatch adds a delta to a material's running dispatched total. The
// material must already exist; a dispatch never creates one.
func (e Engine) RecordDispatch(ctx context.Context, projectID, name string, quantity float64, actorID string) (domain.Material, error) {
	if quantity <= 0 {
		return domain.Material{}, errors.New("dispatch quantity must be positive")
	}
	m, err := e.Repo.GetMaterial(ctx, projectID, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Material{}, fmt.Errorf("material %q not found in project %s; add it before dispatching", name, projectID)
		}
		return domain.Material{}, err
	}
	m.Dispatched += quantity
	m.UpdatedAt = e.nowStamp()
	if err := e.Repo.UpdateDispatched(ctx, m.ProjectID, m.Name, m.Dispatched, m.UpdatedAt); err != nil {
		return domain.Material{}, err
	}
	if err := e.Events.Append(ctx, nil, "material.dispatched", m.ProjectID, "material", m.Name, actorID, events.EventPayload{
		"quantity": quantity, "total": m.Dispatched,
	}); err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

// ExpenseCreateOptions are parameters for recording an expense.
type ExpenseCreateOptions struct {
	ProjectID   string
	Date        string
	Description string
	Amount      float64
	Category    string
	ActorID     string
}

func (e Engine) AddExpense(ctx context.Context, opts ExpenseCreateOptions) (domain.Expense, error) {
	opts.Description = strings.TrimSpace(opts.Description)
	if opts.Date == "" {
		return domain.Expense{}, errors.New("expense date is required")
	}
	if err := validDate(opts.Date); err != nil {
		return domain.Expense{}, err
	}
	if opts.Description == "" {
		return domain.Expense{}, errors.New("expense description is required")
	}
	if opts.Amount <= 0 {
		return domain.Expense{}, errors.New("expense amount must be positive")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Expense{}, err
	}
	now := e.nowStamp()
	exp := domain.Expense{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Date:        opts.Date,
		Description: opts.Description,
		Amount:      opts.Amount,
		Category:    opts.Category,
		RecordedBy:  opts.ActorID,
		CreatedAt:   now,
	}
	if err := e.Repo.InsertExpense(ctx, exp); err != nil {
		return domain.Expense{}, err
	}
	if err := e.Events.Append(ctx, nil, "expense.recorded", exp.ProjectID, "expense", exp.ID, opts.ActorID, events.EventPayload{
		"amount": exp.Amount, "date": exp.Date,
	}); err != nil {
		return domain.Expense{}, err
	}
	return exp, nil
}

// Snapshot is everything the dashboard needs for one project in one shot.
type Snapshot struct {
	Project   domain.Project    `json:"project"`
	Tasks     []domain.Task     `json:"tasks"`
	Materials []domain.Material `json:"materials"`
	Expenses  []domain.Expense  `json:"expenses"`
	KPIs      kpi.Summary       `json:"kpis"`
}

// LoadSnapshot assembles a project's records and computed KPIs.
func (e Engine) LoadSnapshot(ctx context.Context, projectID string) (Snapshot, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	materials, err := e.Repo.ListMaterials(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	expenses, err := e.Repo.ListExpenses(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Project:   p,
		Tasks:     tasks,
		Materials: materials,
		Expenses:  expenses,
		KPIs:      kpi.Summarize(p, tasks, materials, expenses, e.now()),
	}, nil
}

func validDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return nil
}
