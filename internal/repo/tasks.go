package repo

import (
	"context"
	"database/sql"

	"sitetrack/internal/domain"
	"sitetrack/internal/workflow"
)

const taskCols = `id,project_id,name,responsible,due_date,progress,status,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	err := scan(&t.ID, &t.ProjectID, &t.Name, &t.Responsible, &t.DueDate,
		&t.Progress, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// ListTasks returns a project's tasks in workflow order. Ordering happens
// here rather than in SQL because the step ordinal lives inside the id.
func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	workflow.Sort(res)
	return res, nil
}

func (r Repo) InsertTasksTx(ctx context.Context, tx *sql.Tx, tasks []domain.Task) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.ID, t.ProjectID, t.Name, t.Responsible,
			t.DueDate, t.Progress, t.Status, t.CreatedAt, t.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTaskProgress writes progress, the derived status, and the due date
// together so a task row never holds a progress/status pair that disagrees.
func (r Repo) UpdateTaskProgress(ctx context.Context, id string, progress int, status, dueDate, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE tasks SET progress=?, status=?, due_date=?, updated_at=? WHERE id=?`,
		progress, status, dueDate, updatedAt, id)
	return affectedOrNotFound(res, err)
}

func (r Repo) DeleteTasksByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id=?`, projectID)
	return err
}
