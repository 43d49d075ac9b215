package expenses

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/log"
	"spendwise/internal/metrics"
	"spendwise/internal/models"
	"spendwise/internal/receipts"
	"spendwise/internal/storage"
)

// Upload is an optional receipt attached to a new expense.
type Upload struct {
	Filename string
	Body     io.Reader
}

// NewExpense is the raw form input for Add.
type NewExpense struct {
	Date        string
	Category    string
	Amount      string
	Description string
	Receipt     *Upload
}

// Service implements expense bookkeeping for a single user at a time.
type Service struct {
	db       *storage.DB
	receipts receipts.Store
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates a Service. store may be nil, in which case receipts are dropped.
func NewService(db *storage.DB, store receipts.Store, m *metrics.Metrics) *Service {
	return &Service{db: db, receipts: store, metrics: m, now: time.Now}
}

// Add validates and stores a new expense owned by userID. A receipt that
// cannot be stored anywhere is logged and the expense is saved without it.
func (s *Service) Add(ctx context.Context, userID int64, in NewExpense) (int64, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentExpense)

	expense, err := parse(in)
	if err != nil {
		return 0, err
	}
	expense.UserID = userID

	if in.Receipt != nil && in.Receipt.Filename != "" && s.receipts != nil {
		key := receipts.Key(userID, s.now(), in.Receipt.Filename)
		ref, err := s.receipts.Store(ctx, in.Receipt.Body, key)
		if err != nil {
			logger.Error("Failed to store receipt, saving expense without it",
				log.FieldUserID, userID,
				log.FieldKey, key,
				log.FieldError, err)
		} else {
			expense.ReceiptPath = ref
		}
	}

	id, err := s.db.CreateExpense(ctx, expense)
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	s.metrics.ExpenseCreated()
	logger.Info("Expense created",
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, userID,
		log.FieldExpenseID, id,
		log.FieldCategory, expense.Category)
	return id, nil
}

// List returns the user's expenses, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Expense, error) {
	expenses, err := s.db.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentExpense).Debug("Expenses listed",
		log.FieldOperation, log.OpList,
		log.FieldUserID, userID,
		"count", len(expenses))
	return expenses, nil
}

// Delete removes one of the user's expenses. Unknown or foreign ids are ignored.
func (s *Service) Delete(ctx context.Context, userID, expenseID int64) error {
	if err := s.db.DeleteExpense(ctx, userID, expenseID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentExpense).Info("Expense deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldUserID, userID,
		log.FieldExpenseID, expenseID)
	return nil
}

func parse(in NewExpense) (*models.Expense, error) {
	date := strings.TrimSpace(in.Date)
	category := strings.TrimSpace(in.Category)
	amountText := strings.TrimSpace(in.Amount)

	if date == "" || category == "" || amountText == "" {
		return nil, fmt.Errorf("%w: date, category and amount are required", models.ErrValidation)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", models.ErrValidation)
	}
	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("%w: amount must be a number", models.ErrValidation)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", models.ErrValidation)
	}

	return &models.Expense{
		Date:        date,
		Category:    category,
		Amount:      amount.Round(2),
		Description: strings.TrimSpace(in.Description),
	}, nil
}
