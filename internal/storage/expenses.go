package storage

import (
	"context"
	"database/sql"

	"spendwise/internal/models"
)

const expenseColumns = "id, user_id, date, category, amount, description, COALESCE(receipt_path, '')"

// CreateExpense inserts a new expense and returns its id.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) (int64, error) {
	return db.insert(ctx,
		"INSERT INTO expenses (user_id, date, category, amount, description, receipt_path) VALUES (?, ?, ?, ?, ?, ?)",
		e.UserID, e.Date, e.Category, e.Amount, e.Description, nullString(e.ReceiptPath),
	)
}

// ListExpenses returns all of a user's expenses, newest date first.
func (db *DB) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	return db.listExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date DESC, id DESC",
		userID,
	)
}

// ListExpensesBetween returns a user's expenses dated in [from, to), oldest first.
func (db *DB) ListExpensesBetween(ctx context.Context, userID int64, from, to string) ([]models.Expense, error) {
	return db.listExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? AND date >= ? AND date < ? ORDER BY date, id",
		userID, from, to,
	)
}

// ListCategoryExpenses returns a user's expenses in category dated in [from, to], both bounds included.
func (db *DB) ListCategoryExpenses(ctx context.Context, userID int64, category, from, to string) ([]models.Expense, error) {
	return db.listExpenses(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? AND category = ? AND date BETWEEN ? AND ? ORDER BY date, id",
		userID, category, from, to,
	)
}

// DeleteExpense deletes an expense owned by userID. Deleting an expense that
// does not exist or belongs to someone else is not an error.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	_, err := db.exec(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	return err
}

func (db *DB) listExpenses(ctx context.Context, query string, args ...any) ([]models.Expense, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

func scanExpense(rows *sql.Rows) (models.Expense, error) {
	var e models.Expense
	err := rows.Scan(&e.ID, &e.UserID, &e.Date, &e.Category, &e.Amount, &e.Description, &e.ReceiptPath)
	return e, err
}
