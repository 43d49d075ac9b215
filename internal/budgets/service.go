package budgets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/log"
	"spendwise/internal/models"
	"spendwise/internal/storage"
)

// ErrUnknownPeriod is returned when a budget period has no defined window.
var ErrUnknownPeriod = errors.New("unknown budget period")

// NewBudget is the raw form input for Add.
type NewBudget struct {
	Category  string
	Amount    string
	Period    string
	StartDate string
}

// Status is a budget together with what has been spent against it.
type Status struct {
	models.Budget
	From      string
	To        string
	Spent     decimal.Decimal
	Remaining decimal.Decimal
}

// Over reports whether spending exceeded the budget.
func (s Status) Over() bool {
	return s.Remaining.IsNegative()
}

// Service implements budget bookkeeping.
type Service struct {
	db *storage.DB
}

// NewService creates a Service.
func NewService(db *storage.DB) *Service {
	return &Service{db: db}
}

// Add validates and stores a budget owned by userID.
func (s *Service) Add(ctx context.Context, userID int64, in NewBudget) (int64, error) {
	budget, err := parse(in)
	if err != nil {
		return 0, err
	}
	budget.UserID = userID

	id, err := s.db.CreateBudget(ctx, budget)
	if err != nil {
		return 0, fmt.Errorf("create budget: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentBudget).Info("Budget created",
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, userID,
		log.FieldBudgetID, id,
		log.FieldCategory, budget.Category)
	return id, nil
}

// Delete removes one of the user's budgets. Unknown or foreign ids are ignored.
func (s *Service) Delete(ctx context.Context, userID, budgetID int64) error {
	if err := s.db.DeleteBudget(ctx, userID, budgetID); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentBudget).Info("Budget deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldUserID, userID,
		log.FieldBudgetID, budgetID)
	return nil
}

// Window returns the date range a budget covers at now: it starts at start
// and ends at start plus the period length, or at now if that is earlier.
func Window(period models.Period, start, now time.Time) (from, to time.Time, err error) {
	days := period.Days()
	if days == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
	end := start.AddDate(0, 0, days)
	if now.Before(end) {
		end = now
	}
	return start, end, nil
}

// Status computes spending for each of the user's budgets at now. Expenses
// dated on either bound of the window are counted.
func (s *Service) Status(ctx context.Context, userID int64, now time.Time) ([]Status, error) {
	budgets, err := s.db.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	statuses := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		start, err := time.ParseInLocation(models.DateLayout, b.StartDate, now.Location())
		if err != nil {
			return nil, fmt.Errorf("budget %d: parse start date: %w", b.ID, err)
		}
		from, to, err := Window(b.Period, start, now)
		if err != nil {
			return nil, fmt.Errorf("budget %d: %w", b.ID, err)
		}

		st := Status{
			Budget: b,
			From:   from.Format(models.DateLayout),
			To:     to.Format(models.DateLayout),
			Spent:  decimal.Zero,
		}
		expenses, err := s.db.ListCategoryExpenses(ctx, userID, b.Category, st.From, st.To)
		if err != nil {
			return nil, fmt.Errorf("budget %d: list expenses: %w", b.ID, err)
		}
		for _, e := range expenses {
			st.Spent = st.Spent.Add(e.Amount)
		}
		st.Remaining = b.Amount.Sub(st.Spent)
		statuses = append(statuses, st)
	}

	return statuses, nil
}

func parse(in NewBudget) (*models.Budget, error) {
	category := strings.TrimSpace(in.Category)
	amountText := strings.TrimSpace(in.Amount)
	period := models.Period(strings.ToLower(strings.TrimSpace(in.Period)))
	startDate := strings.TrimSpace(in.StartDate)

	if category == "" || amountText == "" || period == "" || startDate == "" {
		return nil, fmt.Errorf("%w: category, amount, period and start date are required", models.ErrValidation)
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be a positive number", models.ErrValidation)
	}
	if !period.IsValid() {
		return nil, fmt.Errorf("%w: period must be monthly, quarterly or yearly", models.ErrValidation)
	}
	if _, err := time.Parse(models.DateLayout, startDate); err != nil {
		return nil, fmt.Errorf("%w: start date must be YYYY-MM-DD", models.ErrValidation)
	}

	return &models.Budget{
		Category:  category,
		Amount:    amount.Round(2),
		Period:    period,
		StartDate: startDate,
	}, nil
}
