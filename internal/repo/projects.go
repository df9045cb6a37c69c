package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sitetrack/internal/domain"
)

const projectCols = `id,name,client_name,location,start_date,deadline,budget,type,contractor,engineers,contact1,contact2,created_at,updated_at`

func scanProject(scan func(...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.Name, &p.ClientName, &p.Location, &p.StartDate, &p.Deadline,
		&p.Budget, &p.Type, &p.Contractor, &p.Engineers, &p.Contact1, &p.Contact2,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	return r.InsertProjectTx(ctx, nil, p)
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	var ex execer = r.DB
	if tx != nil {
		ex = tx
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.ClientName, p.Location, p.StartDate, p.Deadline,
		p.Budget, p.Type, p.Contractor, p.Engineers, p.Contact1, p.Contact2,
		p.CreatedAt, p.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the mutable project fields. Nil means leave as is;
// empty string is a real value and clears the column.
type ProjectUpdate struct {
	Name       *string
	ClientName *string
	Location   *string
	StartDate  *string
	Deadline   *string
	Budget     *float64
	Type       *string
	Contractor *string
	Engineers  *string
	Contact1   *string
	Contact2   *string
}

func (r Repo) UpdateProject(ctx context.Context, id string, u ProjectUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.ClientName != nil {
		set("client_name", *u.ClientName)
	}
	if u.Location != nil {
		set("location", *u.Location)
	}
	if u.StartDate != nil {
		set("start_date", *u.StartDate)
	}
	if u.Deadline != nil {
		set("deadline", *u.Deadline)
	}
	if u.Budget != nil {
		set("budget", *u.Budget)
	}
	if u.Type != nil {
		set("type", *u.Type)
	}
	if u.Contractor != nil {
		set("contractor", *u.Contractor)
	}
	if u.Engineers != nil {
		set("engineers", *u.Engineers)
	}
	if u.Contact1 != nil {
		set("contact1", *u.Contact1)
	}
	if u.Contact2 != nil {
		set("contact2", *u.Contact2)
	}
	if len(fields) == 0 {
		return nil
	}
	set("updated_at", updatedAt)
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	return affectedOrNotFound(res, err)
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	return affectedOrNotFound(res, err)
}
