package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sitetrack/internal/domain"
	"sitetrack/internal/events"
	"sitetrack/internal/legacy"
	"sitetrack/internal/workflow"
)

// ImportCounts reports how many records an import wrote.
type ImportCounts struct {
	Projects  int `json:"projects"`
	Tasks     int `json:"tasks"`
	Materials int `json:"materials"`
	Expenses  int `json:"expenses"`
}

// Import writes a normalized legacy export in one transaction. Imported
// tasks keep the ids the old tracker assigned; statuses are rederived from
// progress since old exports were unreliable about them.
func (e Engine) Import(ctx context.Context, export legacy.Export, actorID string) (ImportCounts, error) {
	now := e.nowStamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ImportCounts{}, err
	}
	defer tx.Rollback()

	var counts ImportCounts
	for _, p := range export.Projects {
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
			return ImportCounts{}, fmt.Errorf("import project %s: %w", p.ID, err)
		}
		counts.Projects++
	}
	for _, t := range export.Tasks {
		t.Status = workflow.StatusFor(t.Progress)
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := e.Repo.InsertTasksTx(ctx, tx, []domain.Task{t}); err != nil {
			return ImportCounts{}, fmt.Errorf("import task %s: %w", t.ID, err)
		}
		counts.Tasks++
	}
	for _, m := range export.Materials {
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := e.Repo.InsertMaterialTx(ctx, tx, m); err != nil {
			return ImportCounts{}, fmt.Errorf("import material %s/%s: %w", m.ProjectID, m.Name, err)
		}
		counts.Materials++
	}
	for _, exp := range export.Expenses {
		if exp.ID == "" {
			exp.ID = uuid.NewString()
		}
		exp.CreatedAt = now
		if err := e.Repo.InsertExpenseTx(ctx, tx, exp); err != nil {
			return ImportCounts{}, fmt.Errorf("import expense %s: %w", exp.ID, err)
		}
		counts.Expenses++
	}
	if err := e.Events.Append(ctx, tx, "legacy.imported", "", "import", "", actorID, events.EventPayload{
		"projects": counts.Projects, "tasks": counts.Tasks,
		"materials": counts.Materials, "expenses": counts.Expenses,
	}); err != nil {
		return ImportCounts{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportCounts{}, err
	}
	return counts, nil
}
