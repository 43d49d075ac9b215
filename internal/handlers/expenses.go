package handlers

import (
	"errors"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"spendwise/internal/charts"
	"spendwise/internal/expenses"
	"spendwise/internal/log"
	"spendwise/internal/models"
	"spendwise/internal/receipts"
)

// MaxUploadSize bounds the multipart body of the add-expense form.
const MaxUploadSize = 10 << 20

// IndexData is the view model of the dashboard.
type IndexData struct {
	Page
	Expenses []models.Expense
	Summary  expenses.Summary
	Today    string
}

// Index displays the expense list and its summary.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	list, err := h.expenses.List(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "Failed to list expenses", err)
		return
	}

	now := h.now()
	h.render(w, r, "index.html", IndexData{
		Page:     h.page(w, r, "Expenses"),
		Expenses: list,
		Summary:  expenses.Summarize(list, now),
		Today:    now.Format(models.DateLayout),
	})
}

// AddExpenseData is the view model of the add-expense form.
type AddExpenseData struct {
	Page
	Today string
}

// AddExpensePage displays the add-expense form.
func (h *Handlers) AddExpensePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "add_expense.html", AddExpenseData{
		Page:  h.page(w, r, "Add Expense"),
		Today: h.now().Format(models.DateLayout),
	})
}

// AddExpense handles the add-expense form, including an optional receipt.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.FromContext(r.Context()).Warn("Invalid expense form", log.FieldError, err)
		h.redirectWithFlash(w, r, "/add_expense", "error", "The upload is too large or malformed")
		return
	}

	in := expenses.NewExpense{
		Date:        r.FormValue("date"),
		Category:    r.FormValue("category"),
		Amount:      r.FormValue("amount"),
		Description: r.FormValue("description"),
	}

	file, header, err := r.FormFile("receipt")
	switch {
	case err == nil:
		defer file.Close()
		in.Receipt = &expenses.Upload{Filename: header.Filename, Body: file}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		log.FromContext(r.Context()).Warn("Unreadable receipt upload", log.FieldError, err)
	}

	if _, err := h.expenses.Add(r.Context(), user.ID, in); err != nil {
		if errors.Is(err, models.ErrValidation) {
			h.redirectWithFlash(w, r, "/add_expense", "error", validationMessage(err))
			return
		}
		log.FromContext(r.Context()).Error("Failed to add expense", log.FieldError, err)
		h.redirectWithFlash(w, r, "/add_expense", "error", "An error occurred while adding the expense")
		return
	}

	h.redirectWithFlash(w, r, "/", "success", "Expense added successfully")
}

// DeleteExpense removes one of the caller's expenses.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.FormValue("expense_id"), 10, 64)
	if err != nil {
		h.redirectWithFlash(w, r, "/", "error", "Invalid expense ID")
		return
	}

	if err := h.expenses.Delete(r.Context(), user.ID, id); err != nil {
		log.FromContext(r.Context()).Error("Failed to delete expense", log.FieldExpenseID, id, log.FieldError, err)
		h.redirectWithFlash(w, r, "/", "error", genericError)
		return
	}

	h.redirectWithFlash(w, r, "/", "success", "Expense deleted successfully")
}

// Receipt serves a locally stored receipt. Only the owner's files, whose
// names start with their user id, are reachable.
func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	name := r.PathValue("name")

	if h.receipts == nil || name == "" || strings.ContainsAny(name, `/\`) ||
		!strings.HasPrefix(name, strconv.FormatInt(user.ID, 10)+"_") {
		http.NotFound(w, r)
		return
	}

	p, err := h.receipts.Path(path.Join(receipts.Directory, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(p); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, p)
}

// CategoryChart renders the caller's spending per category.
func (h *Handlers) CategoryChart(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, charts.CategoryPie)
}

// MonthlyChart renders the caller's spending per month.
func (h *Handlers) MonthlyChart(w http.ResponseWriter, r *http.Request) {
	h.chart(w, r, charts.MonthlyTrend)
}

func (h *Handlers) chart(w http.ResponseWriter, r *http.Request, draw func(expenses.Summary, string) ([]byte, error)) {
	user := GetUserFromContext(r)
	list, err := h.expenses.List(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "Failed to list expenses", err)
		return
	}

	png, err := draw(expenses.Summarize(list, h.now()), h.opts.CurrencyPrefix)
	if errors.Is(err, charts.ErrNoData) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		serverError(w, r, "Failed to render chart", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
