package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/log"
	"spendwise/internal/models"
)

const (
	stateMaxAge    = 10 * time.Minute
	rememberSuffix = ":r"
)

// LoginPage displays the login form.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", h.page(w, r, "Login"))
}

// RegisterPage displays the registration form.
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", h.page(w, r, "Register"))
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	remember := r.Form.Has("remember")

	session, err := h.auth.Login(r.Context(), username, password, remember)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			log.FromContext(r.Context()).Error("Login failed", log.FieldError, err)
		}
		data := h.page(w, r, "Login")
		data.Flash = &Flash{Kind: "error", Message: "Invalid username or password"}
		h.render(w, r, "login.html", data)
		return
	}

	h.setSessionCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	_, err := h.auth.Register(r.Context(), username, password)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/login", "success", "Registration successful")
	case errors.Is(err, auth.ErrUsernameTaken):
		h.redirectWithFlash(w, r, "/register", "error", "Username already exists")
	case errors.Is(err, models.ErrValidation):
		h.redirectWithFlash(w, r, "/register", "error", "Username and password are required")
	default:
		log.FromContext(r.Context()).Error("Registration failed", log.FieldError, err)
		h.redirectWithFlash(w, r, "/register", "error", genericError)
	}
}

// Logout ends the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			log.FromContext(r.Context()).Error("Logout failed", log.FieldError, err)
		}
	}
	h.clearCookie(w, SessionCookieName)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// GoogleLogin redirects to the provider's consent page. The state is kept in
// a signed short-lived cookie and carries the remember-me choice.
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.auth.GoogleEnabled() {
		h.redirectWithFlash(w, r, "/login", "error", "Google authentication failed")
		return
	}

	state := auth.NewState()
	if r.URL.Query().Has("remember") {
		state += rememberSuffix
	}

	target, err := h.auth.AuthCodeURL(r.Context(), state, h.redirectURL(r))
	if err != nil {
		log.FromContext(r.Context()).Error("Google discovery failed", log.FieldError, err)
		h.redirectWithFlash(w, r, "/login", "error", "Google authentication failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    auth.SignState(h.opts.SecretKey, state),
		Path:     "/google_login",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleCallback completes the authorization code flow.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentAuth)
	fail := func(reason string, err error) {
		logger.Warn("Google authentication failed", "reason", reason, log.FieldError, err)
		h.redirectWithFlash(w, r, "/login", "error", "Google authentication failed")
	}

	cookie, err := r.Cookie(StateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/google_login",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil {
		fail("missing state cookie", err)
		return
	}

	state, ok := auth.VerifyState(h.opts.SecretKey, cookie.Value)
	query := r.URL.Query()
	if !ok || state == "" || state != query.Get("state") {
		fail("state mismatch", auth.ErrOAuthFailure)
		return
	}
	if e := query.Get("error"); e != "" {
		fail("provider error", errors.New(e))
		return
	}

	code := query.Get("code")
	if code == "" {
		fail("missing code", auth.ErrOAuthFailure)
		return
	}

	remember := strings.HasSuffix(state, rememberSuffix)
	session, err := h.auth.OAuthLogin(r.Context(), code, h.redirectURL(r), remember)
	if err != nil {
		fail("exchange", err)
		return
	}

	h.setSessionCookie(w, session)
	http.Redirect(w, r, "/", http.StatusFound)
}

// redirectURL is the configured override or the callback on the host that
// served the request.
func (h *Handlers) redirectURL(r *http.Request) string {
	if h.opts.OAuthRedirectURL != "" {
		return h.opts.OAuthRedirectURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/google_login/callback"
}
