package storage

import (
	"context"

	"spendwise/internal/models"
)

const budgetColumns = "id, user_id, category, amount, period, start_date"

// CreateBudget inserts a new budget and returns its id.
func (db *DB) CreateBudget(ctx context.Context, b *models.Budget) (int64, error) {
	return db.insert(ctx,
		"INSERT INTO budgets (user_id, category, amount, period, start_date) VALUES (?, ?, ?, ?, ?)",
		b.UserID, b.Category, b.Amount, string(b.Period), b.StartDate,
	)
}

// ListBudgets returns all of a user's budgets in creation order.
func (db *DB) ListBudgets(ctx context.Context, userID int64) ([]models.Budget, error) {
	return db.listBudgets(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE user_id = ? ORDER BY id",
		userID,
	)
}

// ListBudgetsByPeriod returns a user's budgets with the given period in creation order.
func (db *DB) ListBudgetsByPeriod(ctx context.Context, userID int64, period models.Period) ([]models.Budget, error) {
	return db.listBudgets(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE user_id = ? AND period = ? ORDER BY id",
		userID, string(period),
	)
}

// DeleteBudget deletes a budget owned by userID; absent or foreign ids are a no-op.
func (db *DB) DeleteBudget(ctx context.Context, userID, id int64) error {
	_, err := db.exec(ctx, "DELETE FROM budgets WHERE id = ? AND user_id = ?", id, userID)
	return err
}

func (db *DB) listBudgets(ctx context.Context, query string, args ...any) ([]models.Budget, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var (
			b      models.Budget
			period string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.Category, &b.Amount, &period, &b.StartDate); err != nil {
			return nil, err
		}
		b.Period = models.Period(period)
		budgets = append(budgets, b)
	}

	return budgets, rows.Err()
}
