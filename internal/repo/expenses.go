package repo

import (
	"context"
	"database/sql"

	"sitetrack/internal/domain"
)

const expenseCols = `id,project_id,date,description,amount,category,recorded_by,created_at`

func scanExpense(scan func(...any) error) (domain.Expense, error) {
	var e domain.Expense
	err := scan(&e.ID, &e.ProjectID, &e.Date, &e.Description, &e.Amount,
		&e.Category, &e.RecordedBy, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) InsertExpense(ctx context.Context, e domain.Expense) error {
	return r.InsertExpenseTx(ctx, nil, e)
}

func (r Repo) InsertExpenseTx(ctx context.Context, tx *sql.Tx, e domain.Expense) error {
	var ex execer = r.DB
	if tx != nil {
		ex = tx
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO expenses(`+expenseCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, e.Date, e.Description, e.Amount, e.Category, e.RecordedBy, e.CreatedAt)
	return err
}

func (r Repo) ListExpenses(ctx context.Context, projectID string) ([]domain.Expense, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+expenseCols+` FROM expenses WHERE project_id=? ORDER BY date DESC, created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) DeleteExpensesByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE project_id=?`, projectID)
	return err
}
