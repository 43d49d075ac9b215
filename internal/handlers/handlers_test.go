package handlers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendwise/internal/auth"
	"spendwise/internal/budgets"
	"spendwise/internal/expenses"
	"spendwise/internal/models"
	"spendwise/internal/receipts"
	"spendwise/internal/report"
	"spendwise/internal/storage"
	"spendwise/web"
)

var testSecret = []byte("test-secret")

// HandlersTestSuite drives the handlers against an in-memory database and
// the embedded templates.
type HandlersTestSuite struct {
	suite.Suite
	db        *storage.DB
	ctx       context.Context
	uploadDir string
	auth      *auth.Service
	expenses  *expenses.Service
	h         *Handlers
	alice     *models.User
	bob       *models.User
}

func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.uploadDir = suite.T().TempDir()

	local := receipts.NewLocalStore(suite.uploadDir)
	suite.auth = auth.NewService(db, nil, nil)
	suite.expenses = expenses.NewService(db, receipts.NewFallback(nil, local, nil), nil)
	suite.h = NewHandlers(Deps{
		Auth:      suite.auth,
		Expenses:  suite.expenses,
		Budgets:   budgets.NewService(db),
		Reports:   report.NewGenerator(db, ""),
		Receipts:  local,
		DB:        db,
		Templates: web.Templates(),
	}, Options{SecretKey: testSecret})
	suite.h.now = func() time.Time { return time.Date(2024, 1, 25, 12, 0, 0, 0, time.UTC) }

	suite.alice, err = suite.auth.Register(suite.ctx, "alice", "wonderland")
	require.NoError(suite.T(), err)
	suite.bob, err = suite.auth.Register(suite.ctx, "bob", "builder")
	require.NoError(suite.T(), err)
}

func (suite *HandlersTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func withUser(r *http.Request, u *models.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, u))
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	c := findCookie(rec, FlashCookieName)
	require.NotNil(t, c, "expected a flash cookie")
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	require.NoError(t, err)
	_, msg, _ := strings.Cut(string(raw), ":")
	return msg
}

func (suite *HandlersTestSuite) addExpense(u *models.User, date, category, amount string) {
	_, err := suite.expenses.Add(suite.ctx, u.ID, expenses.NewExpense{Date: date, Category: category, Amount: amount})
	require.NoError(suite.T(), err)
}

func (suite *HandlersTestSuite) TestRegister() {
	rec := httptest.NewRecorder()
	suite.h.Register(rec, postForm("/register", url.Values{"username": {"carol"}, "password": {"secret"}}))
	assert.Equal(suite.T(), http.StatusFound, rec.Code)
	assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))
	assert.Equal(suite.T(), "Registration successful", flashOf(suite.T(), rec))

	rec = httptest.NewRecorder()
	suite.h.Register(rec, postForm("/register", url.Values{"username": {"carol"}, "password": {"other"}}))
	assert.Equal(suite.T(), "/register", rec.Header().Get("Location"))
	assert.Equal(suite.T(), "Username already exists", flashOf(suite.T(), rec))

	rec = httptest.NewRecorder()
	suite.h.Register(rec, postForm("/register", url.Values{"username": {""}, "password": {"x"}}))
	assert.Equal(suite.T(), "/register", rec.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestLogin() {
	rec := httptest.NewRecorder()
	suite.h.Login(rec, postForm("/login", url.Values{"username": {"alice"}, "password": {"wonderland"}}))
	assert.Equal(suite.T(), http.StatusSeeOther, rec.Code)
	assert.Equal(suite.T(), "/", rec.Header().Get("Location"))

	cookie := findCookie(rec, SessionCookieName)
	require.NotNil(suite.T(), cookie)
	assert.Zero(suite.T(), cookie.MaxAge, "plain sessions use a browser-session cookie")
	assert.True(suite.T(), cookie.HttpOnly)

	rec = httptest.NewRecorder()
	suite.h.Login(rec, postForm("/login", url.Values{"username": {"alice"}, "password": {"wonderland"}, "remember": {"on"}}))
	cookie = findCookie(rec, SessionCookieName)
	require.NotNil(suite.T(), cookie)
	assert.Greater(suite.T(), cookie.MaxAge, int((30 * 24 * time.Hour).Seconds()))
}

func (suite *HandlersTestSuite) TestLoginFailure() {
	rec := httptest.NewRecorder()
	suite.h.Login(rec, postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "Invalid username or password")
	assert.Nil(suite.T(), findCookie(rec, SessionCookieName))
}

func (suite *HandlersTestSuite) TestAuthMiddleware() {
	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
	})
	protected := suite.h.AuthMiddleware(next)

	// No cookie
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(suite.T(), http.StatusFound, rec.Code)
	assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))

	// Unknown token clears the cookie
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "bogus"})
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))
	cleared := findCookie(rec, SessionCookieName)
	require.NotNil(suite.T(), cleared)
	assert.Equal(suite.T(), -1, cleared.MaxAge)

	// Valid session
	session, err := suite.auth.Login(suite.ctx, "alice", "wonderland", false)
	require.NoError(suite.T(), err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.Token})
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	require.NotNil(suite.T(), seen)
	assert.Equal(suite.T(), suite.alice.ID, seen.ID)
}

func (suite *HandlersTestSuite) TestLogout() {
	session, err := suite.auth.Login(suite.ctx, "alice", "wonderland", false)
	require.NoError(suite.T(), err)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.Token})
	rec := httptest.NewRecorder()
	suite.h.Logout(rec, req)
	assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))

	_, err = suite.auth.Authenticate(suite.ctx, session.Token)
	assert.ErrorIs(suite.T(), err, auth.ErrUnauthenticated)
}

func (suite *HandlersTestSuite) TestIndex() {
	suite.addExpense(suite.alice, "2024-01-05", "Food", "12.50")
	suite.addExpense(suite.alice, "2023-12-20", "Rent", "500")
	suite.addExpense(suite.bob, "2024-01-06", "Secret", "99")

	rec := httptest.NewRecorder()
	suite.h.Index(rec, withUser(httptest.NewRequest(http.MethodGet, "/", nil), suite.alice))
	require.Equal(suite.T(), http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(suite.T(), body, "<html")
	assert.Contains(suite.T(), body, "Rs. 512.50")
	assert.Contains(suite.T(), body, "Rs. 12.50", "month total")
	assert.Contains(suite.T(), body, "Food")
	assert.NotContains(suite.T(), body, "Secret")
}

func (suite *HandlersTestSuite) TestPartialRender() {
	req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), suite.alice)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	suite.h.Index(rec, req)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.NotContains(suite.T(), rec.Body.String(), "<html")
	assert.Contains(suite.T(), rec.Body.String(), "No expenses yet.")
}

func (suite *HandlersTestSuite) TestAddExpenseWithReceipt() {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(suite.T(), mw.WriteField("date", "2024-01-05"))
	require.NoError(suite.T(), mw.WriteField("category", "Food"))
	require.NoError(suite.T(), mw.WriteField("amount", "12.5"))
	require.NoError(suite.T(), mw.WriteField("description", "Lunch"))
	fw, err := mw.CreateFormFile("receipt", "lunch bill.jpg")
	require.NoError(suite.T(), err)
	_, err = fw.Write([]byte("jpeg-bytes"))
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/add_expense", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	suite.h.AddExpense(rec, withUser(req, suite.alice))

	assert.Equal(suite.T(), http.StatusFound, rec.Code)
	assert.Equal(suite.T(), "/", rec.Header().Get("Location"))
	assert.Equal(suite.T(), "Expense added successfully", flashOf(suite.T(), rec))

	list, err := suite.expenses.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	ref := list[0].ReceiptPath
	require.True(suite.T(), strings.HasPrefix(ref, receipts.Directory+"/"+strconv.FormatInt(suite.alice.ID, 10)+"_"), ref)
	assert.True(suite.T(), strings.HasSuffix(ref, "_lunch_bill.jpg"), ref)

	data, err := os.ReadFile(filepath.Join(suite.uploadDir, ref))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "jpeg-bytes", string(data))

	// The owner can fetch the receipt, others cannot.
	name := strings.TrimPrefix(ref, receipts.Directory+"/")
	get := func(u *models.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/receipts/"+name, nil)
		req.SetPathValue("name", name)
		rec := httptest.NewRecorder()
		suite.h.Receipt(rec, withUser(req, u))
		return rec
	}
	rec = get(suite.alice)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "jpeg-bytes", rec.Body.String())
	assert.Equal(suite.T(), http.StatusNotFound, get(suite.bob).Code)
}

func (suite *HandlersTestSuite) TestAddExpenseValidation() {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing fields", url.Values{"date": {"2024-01-05"}}, "Date, category and amount are required"},
		{"bad amount", url.Values{"date": {"2024-01-05"}, "category": {"Food"}, "amount": {"abc"}}, "Amount must be a number"},
		{"bad date", url.Values{"date": {"05/01/2024"}, "category": {"Food"}, "amount": {"1"}}, "Date must be YYYY-MM-DD"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			rec := httptest.NewRecorder()
			suite.h.AddExpense(rec, withUser(postForm("/add_expense", tt.form), suite.alice))
			assert.Equal(suite.T(), "/add_expense", rec.Header().Get("Location"))
			assert.Equal(suite.T(), tt.want, flashOf(suite.T(), rec))
		})
	}

	list, err := suite.expenses.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func (suite *HandlersTestSuite) TestDeleteExpense() {
	suite.addExpense(suite.alice, "2024-01-05", "Food", "10")
	list, err := suite.expenses.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	id := strconv.FormatInt(list[0].ID, 10)

	// Bob cannot delete Alice's expense, and is not told so.
	rec := httptest.NewRecorder()
	suite.h.DeleteExpense(rec, withUser(postForm("/delete_expense", url.Values{"expense_id": {id}}), suite.bob))
	assert.Equal(suite.T(), "/", rec.Header().Get("Location"))
	list, err = suite.expenses.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), list, 1)

	rec = httptest.NewRecorder()
	suite.h.DeleteExpense(rec, withUser(postForm("/delete_expense", url.Values{"expense_id": {id}}), suite.alice))
	assert.Equal(suite.T(), "Expense deleted successfully", flashOf(suite.T(), rec))
	list, err = suite.expenses.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)
}

func (suite *HandlersTestSuite) TestBudgets() {
	rec := httptest.NewRecorder()
	suite.h.AddBudget(rec, withUser(postForm("/add_budget", url.Values{
		"category":   {"Food"},
		"amount":     {"100"},
		"period":     {"monthly"},
		"start_date": {"2024-01-01"},
	}), suite.alice))
	assert.Equal(suite.T(), "/budget", rec.Header().Get("Location"))
	assert.Equal(suite.T(), "Budget added successfully", flashOf(suite.T(), rec))

	suite.addExpense(suite.alice, "2024-01-10", "Food", "40")

	rec = httptest.NewRecorder()
	suite.h.Budget(rec, withUser(httptest.NewRequest(http.MethodGet, "/budget", nil), suite.alice))
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(suite.T(), body, "Rs. 100.00")
	assert.Contains(suite.T(), body, "Rs. 40.00")
	assert.Contains(suite.T(), body, "Rs. 60.00")

	rec = httptest.NewRecorder()
	suite.h.AddBudget(rec, withUser(postForm("/add_budget", url.Values{
		"category":   {"Food"},
		"amount":     {"100"},
		"period":     {"weekly"},
		"start_date": {"2024-01-01"},
	}), suite.alice))
	assert.Equal(suite.T(), "Period must be monthly, quarterly or yearly", flashOf(suite.T(), rec))
}

func (suite *HandlersTestSuite) TestDownloadReport() {
	suite.addExpense(suite.alice, "2024-01-05", "Food", "10")

	req := httptest.NewRequest(http.MethodGet, "/download_report?month=2024-01", nil)
	rec := httptest.NewRecorder()
	suite.h.DownloadReport(rec, withUser(req, suite.alice))

	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(suite.T(), `attachment; filename="expense_report_January_2024.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(suite.T(), strings.HasPrefix(rec.Body.String(), "Monthly Expense Report,2024-01\r\n"))
	assert.Contains(suite.T(), rec.Body.String(), "Total Expenses,Rs. 10.00")

	req = httptest.NewRequest(http.MethodGet, "/download_report?month=2024-13", nil)
	rec = httptest.NewRecorder()
	suite.h.DownloadReport(rec, withUser(req, suite.alice))
	assert.Equal(suite.T(), http.StatusFound, rec.Code)
}

func (suite *HandlersTestSuite) TestCharts() {
	rec := httptest.NewRecorder()
	suite.h.CategoryChart(rec, withUser(httptest.NewRequest(http.MethodGet, "/charts/categories.png", nil), suite.alice))
	assert.Equal(suite.T(), http.StatusNoContent, rec.Code)

	suite.addExpense(suite.alice, "2024-01-05", "Food", "10")

	rec = httptest.NewRecorder()
	suite.h.MonthlyChart(rec, withUser(httptest.NewRequest(http.MethodGet, "/charts/monthly.png", nil), suite.alice))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "image/png", rec.Header().Get("Content-Type"))
}

func (suite *HandlersTestSuite) TestGoogleDisabled() {
	rec := httptest.NewRecorder()
	suite.h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/google_login", nil))
	assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))
	assert.Equal(suite.T(), "Google authentication failed", flashOf(suite.T(), rec))
}

func (suite *HandlersTestSuite) TestGoogleCallbackRejectsBadState() {
	signed := auth.SignState(testSecret, "expected")

	tests := []struct {
		name   string
		cookie string
		query  string
	}{
		{"missing cookie", "", "state=expected&code=abc"},
		{"state mismatch", signed, "state=other&code=abc"},
		{"forged cookie", auth.SignState([]byte("other-secret"), "expected"), "state=expected&code=abc"},
		{"provider error", signed, "state=expected&error=access_denied"},
		{"missing code", signed, "state=expected"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodGet, "/google_login/callback?"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: StateCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			suite.h.GoogleCallback(rec, req)
			assert.Equal(suite.T(), "/login", rec.Header().Get("Location"))
			assert.Equal(suite.T(), "Google authentication failed", flashOf(suite.T(), rec))
			assert.Nil(suite.T(), findCookie(rec, SessionCookieName))
		})
	}
}

func (suite *HandlersTestSuite) TestHealthz() {
	rec := httptest.NewRecorder()
	suite.h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "ok", rec.Body.String())
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestRedirectURL(t *testing.T) {
	h := NewHandlers(Deps{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "http://example.com/google_login", nil)
	assert.Equal(t, "http://example.com/google_login/callback", h.redirectURL(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com/google_login/callback", h.redirectURL(req))

	h = NewHandlers(Deps{}, Options{OAuthRedirectURL: "https://app.test/cb"})
	assert.Equal(t, "https://app.test/cb", h.redirectURL(req))
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

func TestFlashRoundTrip(t *testing.T) {
	h := NewHandlers(Deps{}, Options{})

	rec := httptest.NewRecorder()
	h.setFlash(rec, "success", "Saved: all good")
	c := findCookie(rec, FlashCookieName)
	require.NotNil(t, c)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	f := h.popFlash(rec, req)
	require.NotNil(t, f)
	assert.Equal(t, "success", f.Kind)
	assert.Equal(t, "Saved: all good", f.Message)
	assert.Equal(t, -1, findCookie(rec, FlashCookieName).MaxAge)
}
