package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/db"
	"sitetrack/internal/domain"
	"sitetrack/internal/engine"
	"sitetrack/internal/kpi"
	"sitetrack/internal/migrate"
	"sitetrack/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("HiTek Fabrication"))
	eng.Now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedProject(t *testing.T, env testEnv, id string) domain.Project {
	t.Helper()
	p, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID:        id,
		Name:      "Overhead Crane Gantry",
		StartDate: "2026-03-01",
		Deadline:  "2026-06-01",
		Budget:    100000,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestCreateProjectSeedsFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	_, tasks, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "HT-001", Name: "Gantry", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if len(tasks) != workflow.Len() {
		t.Fatalf("seeded %d tasks, want %d", len(tasks), workflow.Len())
	}

	listed, err := env.Engine.Repo.ListTasks(env.Ctx, "HT-001")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(listed) != workflow.Len() {
		t.Fatalf("stored %d tasks, want %d", len(listed), workflow.Len())
	}
	for i, task := range listed {
		if got := workflow.Ordinal(task.ID); got != i+1 {
			t.Fatalf("task %d has id %s (ordinal %d)", i, task.ID, got)
		}
		if task.Progress != 0 || task.Status != domain.TaskPending {
			t.Fatalf("task %s seeded as %d%%/%s, want 0/Pending", task.ID, task.Progress, task.Status)
		}
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "no id"}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "P1"}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "P1", Name: "x", StartDate: "03/01/2026"}); err == nil {
		t.Fatal("expected error for bad date format")
	}

	seedProject(t, env, "HT-001")
	_, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "HT-001", Name: "dup"})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate id: got %v", err)
	}
	// failed duplicate must not leave stray tasks behind
	tasks, err := env.Engine.Repo.ListTasks(env.Ctx, "HT-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != workflow.Len() {
		t.Fatalf("duplicate attempt disturbed seeded tasks: %d", len(tasks))
	}
}

func TestUpdateTaskProgressDerivesStatus(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")

	task, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-001", 1), Progress: 40, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.Status != domain.TaskInProgress {
		t.Fatalf("status = %s, want In Progress", task.Status)
	}

	task, err = env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: task.ID, Progress: 100, ActorID: "tester",
	})
	if err != nil || task.Status != domain.TaskCompleted {
		t.Fatalf("to 100: %v, status %s", err, task.Status)
	}

	task, err = env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: task.ID, Progress: 0, ActorID: "tester",
	})
	if err != nil || task.Status != domain.TaskPending {
		t.Fatalf("back to 0: %v, status %s", err, task.Status)
	}

	if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: task.ID, Progress: 120,
	}); err == nil {
		t.Fatal("expected range error for progress 120")
	}
}

func TestSequentialUnlock(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")

	// step 3 is locked while steps 1 and 2 are pending
	_, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-001", 3), Progress: 10, ActorID: "tester",
	})
	if err == nil {
		t.Fatal("expected sequence error on step 3")
	}

	// force bypasses the gate
	if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-001", 3), Progress: 10, Force: true, ActorID: "tester",
	}); err != nil {
		t.Fatalf("forced update: %v", err)
	}

	// completing 1 and 2 unlocks 3 normally
	for ord := 1; ord <= 2; ord++ {
		if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
			TaskID: workflow.TaskID("HT-001", ord), Progress: 100, ActorID: "tester",
		}); err != nil {
			t.Fatalf("complete step %d: %v", ord, err)
		}
	}
	if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-001", 3), Progress: 50, ActorID: "tester",
	}); err != nil {
		t.Fatalf("step 3 after unlock: %v", err)
	}

	// setting a step back to zero never needs the gate
	if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-001", 3), Progress: 0, ActorID: "tester",
	}); err != nil {
		t.Fatalf("reset to zero: %v", err)
	}
}

func TestDispatchIsAdditive(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")

	if _, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: "HT-001", Name: "Cement", Required: 1000, Unit: "bags", ActorID: "tester",
	}); err != nil {
		t.Fatalf("create material: %v", err)
	}

	if _, err := env.Engine.RecordDispatch(env.Ctx, "HT-001", "Cement", 200, "tester"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	m, err := env.Engine.RecordDispatch(env.Ctx, "HT-001", "Cement", 300, "tester")
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if m.Dispatched != 500 {
		t.Fatalf("dispatched = %v, want 500", m.Dispatched)
	}

	// dispatch against an unknown material is an error, never an implicit create
	_, err = env.Engine.RecordDispatch(env.Ctx, "HT-001", "Steel Beams", 10, "tester")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unknown material: got %v", err)
	}
	materials, _ := env.Engine.Repo.ListMaterials(env.Ctx, "HT-001")
	if len(materials) != 1 {
		t.Fatalf("dispatch created a material: %d rows", len(materials))
	}

	if _, err := env.Engine.RecordDispatch(env.Ctx, "HT-001", "Cement", -5, "tester"); err == nil {
		t.Fatal("expected error for non-positive quantity")
	}
}

func TestMaterialStartingDispatchedQuantity(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")

	// the starting total is absolute; later dispatches add deltas on top
	m, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: "HT-001", Name: "Cement", Required: 1000, Dispatched: 200, Unit: "bags", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}
	if m.Dispatched != 200 {
		t.Fatalf("starting dispatched = %v, want 200", m.Dispatched)
	}

	m, err = env.Engine.RecordDispatch(env.Ctx, "HT-001", "Cement", 300, "tester")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if m.Dispatched != 500 {
		t.Fatalf("dispatched = %v, want 500", m.Dispatched)
	}
	if got := kpi.MaterialBalance(m); got != 500 {
		t.Fatalf("balance = %v, want 500", got)
	}
	if got := kpi.MaterialProgress(m); got != 50 {
		t.Fatalf("dispatch percent = %d, want 50", got)
	}

	if _, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: "HT-001", Name: "Sand", Required: 100, Dispatched: -1, ActorID: "tester",
	}); err == nil {
		t.Fatal("expected error for negative starting dispatched quantity")
	}
}

func TestExpenseValidation(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")

	cases := []engine.ExpenseCreateOptions{
		{ProjectID: "HT-001", Description: "steel", Amount: 100},                             // no date
		{ProjectID: "HT-001", Date: "2026-03-05", Amount: 100},                               // no description
		{ProjectID: "HT-001", Date: "2026-03-05", Description: "steel", Amount: 0},           // zero amount
		{ProjectID: "HT-001", Date: "2026-03-05", Description: "steel", Amount: -4},          // negative
		{ProjectID: "HT-001", Date: "05-03-2026", Description: "steel", Amount: 100},         // bad date
		{ProjectID: "missing", Date: "2026-03-05", Description: "steel", Amount: 100},        // unknown project
	}
	for i, opts := range cases {
		if _, err := env.Engine.AddExpense(env.Ctx, opts); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}

	exp, err := env.Engine.AddExpense(env.Ctx, engine.ExpenseCreateOptions{
		ProjectID: "HT-001", Date: "2026-03-05", Description: "Steel plates", Amount: 15000, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("valid expense: %v", err)
	}
	if exp.ID == "" {
		t.Fatal("expense id not assigned")
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "HT-001")
	if _, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: "HT-001", Name: "Cement", Required: 100, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddExpense(env.Ctx, engine.ExpenseCreateOptions{
		ProjectID: "HT-001", Date: "2026-03-05", Description: "steel", Amount: 100, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.DeleteProject(env.Ctx, "HT-001", "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.Engine.Repo.GetProject(env.Ctx, "HT-001"); err == nil {
		t.Fatal("project still present")
	}
	tasks, _ := env.Engine.Repo.ListTasks(env.Ctx, "HT-001")
	materials, _ := env.Engine.Repo.ListMaterials(env.Ctx, "HT-001")
	expenses, _ := env.Engine.Repo.ListExpenses(env.Ctx, "HT-001")
	if len(tasks)+len(materials)+len(expenses) != 0 {
		t.Fatalf("orphans left: %d tasks %d materials %d expenses", len(tasks), len(materials), len(expenses))
	}

	if err := env.Engine.DeleteProject(env.Ctx, "HT-001", "tester"); err == nil {
		t.Fatal("expected not found on second delete")
	}
}

func TestSnapshotKPIs(t *testing.T) {
	env := newTestEnv(t)
	// Now is fixed at 2026-03-10; deadline 2026-03-07 is three days past.
	_, _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "HT-002", Name: "Storage Tank", StartDate: "2026-03-01", Deadline: "2026-03-07",
		Budget: 100000, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		ProjectID: "HT-002", Name: "Plate", Required: 100, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordDispatch(env.Ctx, "HT-002", "Plate", 40, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddExpense(env.Ctx, engine.ExpenseCreateOptions{
		ProjectID: "HT-002", Date: "2026-03-05", Description: "plates", Amount: 15000, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateTaskProgress(env.Ctx, engine.TaskProgressOptions{
		TaskID: workflow.TaskID("HT-002", 1), Progress: 100, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	snap, err := env.Engine.LoadSnapshot(env.Ctx, "HT-002")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.KPIs.DaysSpent != 9 || !snap.KPIs.DaysSpentKnown {
		t.Fatalf("days spent = %d, want 9", snap.KPIs.DaysSpent)
	}
	if !snap.KPIs.Overdue || snap.KPIs.DaysLeft != 3 {
		t.Fatalf("overdue = %v days = %d, want overdue by 3", snap.KPIs.Overdue, snap.KPIs.DaysLeft)
	}
	if snap.KPIs.MaterialPercent != 40 {
		t.Fatalf("material percent = %d, want 40", snap.KPIs.MaterialPercent)
	}
	if snap.KPIs.TotalExpenses != 15000 || snap.KPIs.BudgetRemaining != 85000 {
		t.Fatalf("expenses %v remaining %v, want 15000/85000", snap.KPIs.TotalExpenses, snap.KPIs.BudgetRemaining)
	}
	want := int((100.0 / float64(workflow.Len())) + 0.5)
	if snap.KPIs.TaskProgress != want {
		t.Fatalf("task progress = %d, want %d", snap.KPIs.TaskProgress, want)
	}
}
