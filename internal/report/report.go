package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/log"
	"spendwise/internal/models"
	"spendwise/internal/storage"
)

// DefaultCurrencyPrefix is used when no prefix is configured.
const DefaultCurrencyPrefix = "Rs. "

// CategoryLine is one row of the category summary.
type CategoryLine struct {
	Category  string
	Spent     decimal.Decimal
	Budget    decimal.Decimal
	HasBudget bool
}

// Remaining is budget minus spent when a budget exists, zero otherwise.
func (l CategoryLine) Remaining() decimal.Decimal {
	if !l.HasBudget {
		return decimal.Zero
	}
	return l.Budget.Sub(l.Spent)
}

// Report is the monthly expense report of one user.
type Report struct {
	Month      string
	Start      string
	End        string
	Expenses   []models.Expense
	Categories []CategoryLine
	Total      decimal.Decimal

	currency string
}

// Generator builds monthly reports.
type Generator struct {
	db       *storage.DB
	currency string
}

// NewGenerator creates a Generator that formats amounts with currency.
func NewGenerator(db *storage.DB, currency string) *Generator {
	if currency == "" {
		currency = DefaultCurrencyPrefix
	}
	return &Generator{db: db, currency: currency}
}

// MonthWindow returns the half-open date range [first of month, first of
// next month) for a YYYY-MM string.
func MonthWindow(month string) (start, end string, err error) {
	t, err := time.Parse(models.MonthLayout, month)
	if err != nil {
		return "", "", fmt.Errorf("%w: month must be YYYY-MM", models.ErrValidation)
	}
	return t.Format(models.DateLayout), t.AddDate(0, 1, 0).Format(models.DateLayout), nil
}

// Generate assembles the report for month; an empty month means the month of now.
func (g *Generator) Generate(ctx context.Context, userID int64, month string, now time.Time) (*Report, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		month = now.Format(models.MonthLayout)
	}
	start, end, err := MonthWindow(month)
	if err != nil {
		return nil, err
	}

	expenses, err := g.db.ListExpensesBetween(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	budgets, err := g.db.ListBudgetsByPeriod(ctx, userID, models.PeriodMonthly)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	// Later budgets for the same category replace earlier ones.
	budgetByCategory := make(map[string]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		budgetByCategory[b.Category] = b.Amount
	}

	r := &Report{
		Month:    month,
		Start:    start,
		End:      end,
		Expenses: expenses,
		Total:    decimal.Zero,
		currency: g.currency,
	}
	index := make(map[string]int)
	for _, e := range expenses {
		r.Total = r.Total.Add(e.Amount)
		i, ok := index[e.Category]
		if !ok {
			i = len(r.Categories)
			index[e.Category] = i
			budget, hasBudget := budgetByCategory[e.Category]
			r.Categories = append(r.Categories, CategoryLine{
				Category:  e.Category,
				Spent:     decimal.Zero,
				Budget:    budget,
				HasBudget: hasBudget,
			})
		}
		r.Categories[i].Spent = r.Categories[i].Spent.Add(e.Amount)
	}

	log.FromContext(ctx).WithComponent(log.ComponentReport).Info("Report generated",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, userID,
		log.FieldMonth, month)
	return r, nil
}

// Filename is the attachment name, e.g. expense_report_January_2024.csv.
func (r *Report) Filename() string {
	t, err := time.Parse(models.MonthLayout, r.Month)
	if err != nil {
		return "expense_report.csv"
	}
	return "expense_report_" + t.Format("January_2006") + ".csv"
}

// WriteCSV serializes the report.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	rows := [][]string{
		{"Monthly Expense Report", r.Month},
		{},
		{"Date", "Category", "Amount", "Description"},
	}
	for _, e := range r.Expenses {
		rows = append(rows, []string{e.Date, e.Category, r.money(e.Amount), e.Description})
	}

	rows = append(rows,
		[]string{},
		[]string{"Category Summary"},
		[]string{"Category", "Spent", "Budget", "Remaining"},
	)
	for _, c := range r.Categories {
		rows = append(rows, []string{c.Category, r.money(c.Spent), r.money(c.Budget), r.money(c.Remaining())})
	}

	rows = append(rows,
		[]string{},
		[]string{"Total Expenses", r.money(r.Total)},
	)

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func (r *Report) money(d decimal.Decimal) string {
	return r.currency + d.StringFixed(2)
}
