package expenses

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/models"
)

// Summary is the dashboard view of a user's expenses.
type Summary struct {
	Total          decimal.Decimal
	MonthTotal     decimal.Decimal
	Categories     []string
	CategoryTotals map[string]decimal.Decimal
	Months         []string
	MonthTotals    map[string]decimal.Decimal
}

// CategoryTotal is one entry of Summary.ByCategory.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
}

// MonthTotal is one entry of Summary.ByMonth.
type MonthTotal struct {
	Month string
	Total decimal.Decimal
}

// Summarize derives the dashboard figures. The current month is taken from
// now; categories keep first-seen order and months are sorted ascending.
func Summarize(expenses []models.Expense, now time.Time) Summary {
	currentMonth := now.Format(models.MonthLayout)
	sum := Summary{
		Total:          decimal.Zero,
		MonthTotal:     decimal.Zero,
		CategoryTotals: make(map[string]decimal.Decimal),
		MonthTotals:    make(map[string]decimal.Decimal),
	}

	for _, e := range expenses {
		sum.Total = sum.Total.Add(e.Amount)

		month := e.Month()
		if month == currentMonth {
			sum.MonthTotal = sum.MonthTotal.Add(e.Amount)
		}

		if _, ok := sum.CategoryTotals[e.Category]; !ok {
			sum.Categories = append(sum.Categories, e.Category)
		}
		sum.CategoryTotals[e.Category] = sum.CategoryTotals[e.Category].Add(e.Amount)

		if _, ok := sum.MonthTotals[month]; !ok {
			sum.Months = append(sum.Months, month)
		}
		sum.MonthTotals[month] = sum.MonthTotals[month].Add(e.Amount)
	}

	slices.Sort(sum.Months)
	return sum
}

// ByCategory lists category totals in first-seen order.
func (s Summary) ByCategory() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, CategoryTotal{Category: c, Total: s.CategoryTotals[c]})
	}
	return out
}

// ByMonth lists month totals in ascending month order.
func (s Summary) ByMonth() []MonthTotal {
	out := make([]MonthTotal, 0, len(s.Months))
	for _, m := range s.Months {
		out = append(out, MonthTotal{Month: m, Total: s.MonthTotals[m]})
	}
	return out
}
