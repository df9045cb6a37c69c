package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitetrack/internal/domain"
)

const materialCols = `project_id,name,required,dispatched,unit,created_at,updated_at`

func scanMaterial(scan func(...any) error) (domain.Material, error) {
	var m domain.Material
	err := scan(&m.ProjectID, &m.Name, &m.Required, &m.Dispatched, &m.Unit,
		&m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) GetMaterial(ctx context.Context, projectID, name string) (domain.Material, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+materialCols+` FROM materials WHERE project_id=? AND name=?`, projectID, name)
	return scanMaterial(row.Scan)
}

func (r Repo) ListMaterials(ctx context.Context, projectID string) ([]domain.Material, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+materialCols+` FROM materials WHERE project_id=? ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertMaterial(ctx context.Context, m domain.Material) error {
	return r.InsertMaterialTx(ctx, nil, m)
}

func (r Repo) InsertMaterialTx(ctx context.Context, tx *sql.Tx, m domain.Material) error {
	var ex execer = r.DB
	if tx != nil {
		ex = tx
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO materials(`+materialCols+`) VALUES (?,?,?,?,?,?,?)`,
		m.ProjectID, m.Name, m.Required, m.Dispatched, m.Unit, m.CreatedAt, m.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("material %q already exists for project %s", m.Name, m.ProjectID)
	}
	return err
}

// UpdateDispatched writes the new running total as an absolute value. The
// additive arithmetic happens in the engine, inside its read-then-write.
func (r Repo) UpdateDispatched(ctx context.Context, projectID, name string, dispatched float64, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE materials SET dispatched=?, updated_at=? WHERE project_id=? AND name=?`,
		dispatched, updatedAt, projectID, name)
	return affectedOrNotFound(res, err)
}

func (r Repo) DeleteMaterialsByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE project_id=?`, projectID)
	return err
}
