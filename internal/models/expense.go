package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the text form of every calendar day stored in the database.
const DateLayout = "2006-01-02"

// MonthLayout is the year-month prefix of DateLayout.
const MonthLayout = "2006-01"

// ErrValidation marks user-correctable input errors.
var ErrValidation = errors.New("validation error")

// Expense represents a financial expense record.
type Expense struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReceiptPath string          `json:"receipt_path,omitempty"`
}

// Month returns the YYYY-MM prefix of the expense date.
func (e Expense) Month() string {
	if len(e.Date) < len(MonthLayout) {
		return e.Date
	}
	return e.Date[:len(MonthLayout)]
}

// Period is the length of a budget window.
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// Periods lists the recognized budget periods in display order.
var Periods = []Period{PeriodMonthly, PeriodQuarterly, PeriodYearly}

// IsValid reports whether p is one of the recognized periods.
func (p Period) IsValid() bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	default:
		return false
	}
}

// Days returns the window length of the period, or 0 if p is unknown.
func (p Period) Days() int {
	switch p {
	case PeriodMonthly:
		return 30
	case PeriodQuarterly:
		return 90
	case PeriodYearly:
		return 365
	default:
		return 0
	}
}

// Budget is a spending ceiling for one category over a recurring period.
type Budget struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Period    Period          `json:"period"`
	StartDate string          `json:"start_date"`
}

// User represents a user account. PasswordHash is empty for accounts that
// only sign in through Google; GoogleID is empty for local accounts.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email,omitempty"`
	GoogleID     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether the account can sign in locally.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Session represents a user session.
type Session struct {
	Token      string    `json:"token"`
	UserID     int64     `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	Remembered bool      `json:"remembered"`
}
