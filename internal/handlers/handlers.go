package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/auth"
	"spendwise/internal/budgets"
	"spendwise/internal/expenses"
	"spendwise/internal/log"
	"spendwise/internal/models"
	"spendwise/internal/receipts"
	"spendwise/internal/report"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
	// FlashCookieName carries a one-shot message across a redirect.
	FlashCookieName = "flash"
	// StateCookieName carries the signed OAuth state.
	StateCookieName = "oauth_state"

	genericError = "An error occurred. Please try again."
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the request-independent settings of the HTTP layer.
type Options struct {
	SecretKey        []byte
	SecureCookies    bool
	CurrencyPrefix   string
	OAuthRedirectURL string
}

// Deps are the services the handlers delegate to.
type Deps struct {
	Auth      *auth.Service
	Expenses  *expenses.Service
	Budgets   *budgets.Service
	Reports   *report.Generator
	Receipts  *receipts.LocalStore
	DB        Pinger
	Templates fs.FS
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth      *auth.Service
	expenses  *expenses.Service
	budgets   *budgets.Service
	reports   *report.Generator
	receipts  *receipts.LocalStore
	db        Pinger
	templates fs.FS
	opts      Options
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, opts Options) *Handlers {
	if opts.CurrencyPrefix == "" {
		opts.CurrencyPrefix = report.DefaultCurrencyPrefix
	}
	return &Handlers{
		auth:      deps.Auth,
		expenses:  deps.Expenses,
		budgets:   deps.Budgets,
		reports:   deps.Reports,
		receipts:  deps.Receipts,
		db:        deps.DB,
		templates: deps.Templates,
		opts:      opts,
		now:       time.Now,
	}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication. Remembered
// sessions renewed by the auth service get a fresh cookie.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		id, err := h.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				log.FromContext(r.Context()).Error("Session lookup failed", log.FieldError, err)
			}
			// Invalid or expired session, clear the cookie
			h.clearCookie(w, SessionCookieName)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		if id.Renewed {
			h.setSessionCookie(w, &id.Session)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, id.User)
		logger := log.FromContext(ctx).With(log.FieldUserID, id.User.ID)
		ctx = log.NewContext(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Healthz reports whether the database answers.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			log.FromContext(r.Context()).Error("Health check failed", log.FieldError, err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, s *models.Session) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.Remembered {
		c.MaxAge = int(time.Until(s.ExpiresAt).Seconds())
	}
	http.SetCookie(w, c)
}

func (h *Handlers) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func (h *Handlers) setFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(kind + ":" + message)),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	h.clearCookie(w, FlashCookieName)

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil
	}
	return &Flash{Kind: kind, Message: message}
}

func (h *Handlers) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, kind, message string) {
	h.setFlash(w, kind, message)
	http.Redirect(w, r, to, http.StatusFound)
}

// Page is embedded in every view model.
type Page struct {
	Title         string
	User          *models.User
	Flash         *Flash
	GoogleEnabled bool
}

func (h *Handlers) page(w http.ResponseWriter, r *http.Request, title string) Page {
	return Page{
		Title:         title,
		User:          GetUserFromContext(r),
		Flash:         h.popFlash(w, r),
		GoogleEnabled: h.auth != nil && h.auth.GoogleEnabled(),
	}
}

func (h *Handlers) funcs() template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal) string {
			return h.opts.CurrencyPrefix + d.StringFixed(2)
		},
		"isURL": func(s string) bool {
			return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
		},
	}
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(h.funcs()).ParseFS(h.templates, "base.html", viewName)
	if err != nil {
		log.FromContext(r.Context()).Error("Template error", "template", viewName, log.FieldError, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		log.FromContext(r.Context()).Error("Template execution error", "template", viewName, log.FieldError, err)
	}
}

// serverError logs err and answers with a plain 500 without internal detail.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log.FromContext(r.Context()).Error(msg, log.FieldError, err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, models.ErrValidation.Error()+": "); ok {
		msg = rest
	}
	if msg == "" {
		return genericError
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
