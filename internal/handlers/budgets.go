package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"spendwise/internal/budgets"
	"spendwise/internal/log"
	"spendwise/internal/models"
)

// BudgetData is the view model of the budget page.
type BudgetData struct {
	Page
	Budgets []budgets.Status
	Periods []models.Period
	Today   string
	Month   string
}

// Budget displays the caller's budgets with spending against each.
func (h *Handlers) Budget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	now := h.now()

	statuses, err := h.budgets.Status(r.Context(), user.ID, now)
	if err != nil {
		serverError(w, r, "Failed to compute budget status", err)
		return
	}

	h.render(w, r, "budget.html", BudgetData{
		Page:    h.page(w, r, "Budgets"),
		Budgets: statuses,
		Periods: models.Periods,
		Today:   now.Format(models.DateLayout),
		Month:   now.Format(models.MonthLayout),
	})
}

// AddBudget handles the add-budget form.
func (h *Handlers) AddBudget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	in := budgets.NewBudget{
		Category:  r.FormValue("category"),
		Amount:    r.FormValue("amount"),
		Period:    r.FormValue("period"),
		StartDate: r.FormValue("start_date"),
	}
	if _, err := h.budgets.Add(r.Context(), user.ID, in); err != nil {
		if errors.Is(err, models.ErrValidation) {
			h.redirectWithFlash(w, r, "/budget", "error", validationMessage(err))
			return
		}
		log.FromContext(r.Context()).Error("Failed to add budget", log.FieldError, err)
		h.redirectWithFlash(w, r, "/budget", "error", genericError)
		return
	}

	h.redirectWithFlash(w, r, "/budget", "success", "Budget added successfully")
}

// DeleteBudget removes one of the caller's budgets.
func (h *Handlers) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := strconv.ParseInt(r.FormValue("budget_id"), 10, 64)
	if err != nil {
		h.redirectWithFlash(w, r, "/budget", "error", "Invalid budget ID")
		return
	}

	if err := h.budgets.Delete(r.Context(), user.ID, id); err != nil {
		log.FromContext(r.Context()).Error("Failed to delete budget", log.FieldBudgetID, id, log.FieldError, err)
		h.redirectWithFlash(w, r, "/budget", "error", genericError)
		return
	}

	h.redirectWithFlash(w, r, "/budget", "success", "Budget deleted successfully")
}

// DownloadReport streams the monthly CSV report as an attachment.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	month := r.URL.Query().Get("month")

	rep, err := h.reports.Generate(r.Context(), user.ID, month, h.now())
	if errors.Is(err, models.ErrValidation) {
		h.redirectWithFlash(w, r, "/budget", "error", "Month must be YYYY-MM")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to generate report", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename()+`"`)
	if err := rep.WriteCSV(w); err != nil {
		log.FromContext(r.Context()).Error("Failed to write report", log.FieldMonth, rep.Month, log.FieldError, err)
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentReport).Info("Report downloaded",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, user.ID,
		log.FieldMonth, rep.Month)
}
