package expenses

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendwise/internal/log"
	"spendwise/internal/models"
	"spendwise/internal/receipts"
	"spendwise/internal/storage"
)

type failingStore struct{}

func (failingStore) Store(context.Context, io.Reader, string) (string, error) {
	return "", errors.Join(receipts.ErrStorage, errors.New("disk full"))
}

func (failingStore) Backend() string { return "broken" }

// ServiceTestSuite runs the expense service on an in-memory database.
type ServiceTestSuite struct {
	suite.Suite
	db    *storage.DB
	ctx   context.Context
	svc   *Service
	root  string
	alice *models.User
	bob   *models.User
}

func (suite *ServiceTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.root = suite.T().TempDir()

	suite.svc = NewService(db, receipts.NewLocalStore(suite.root), nil)
	suite.svc.now = func() time.Time { return time.Date(2024, 1, 5, 12, 30, 0, 0, time.UTC) }

	suite.alice, err = db.CreateUser(suite.ctx, "alice", "$2a$10$hash")
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser(suite.ctx, "bob", "$2a$10$hash")
	require.NoError(suite.T(), err)
}

func (suite *ServiceTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *ServiceTestSuite) add(userID int64, date, category, amount string) int64 {
	id, err := suite.svc.Add(suite.ctx, userID, NewExpense{Date: date, Category: category, Amount: amount})
	require.NoError(suite.T(), err)
	return id
}

func (suite *ServiceTestSuite) TestAddAndList() {
	suite.add(suite.alice.ID, "2024-01-03", "Food", "10")
	suite.add(suite.alice.ID, "2024-01-10", "Rent", "500.5")
	suite.add(suite.bob.ID, "2024-01-11", "Food", "99")

	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 2)
	assert.Equal(suite.T(), "2024-01-10", list[0].Date, "newest first")
	assert.Equal(suite.T(), "2024-01-03", list[1].Date)
	assert.True(suite.T(), list[0].Amount.Equal(decimal.RequireFromString("500.50")))
}

func (suite *ServiceTestSuite) TestListLogsOperation() {
	suite.add(suite.alice.ID, "2024-01-03", "Food", "10")

	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: &buf})
	ctx := log.NewContext(suite.ctx, logger)

	_, err := suite.svc.List(ctx, suite.alice.ID)
	require.NoError(suite.T(), err)

	out := buf.String()
	assert.Contains(suite.T(), out, "component=expense")
	assert.Contains(suite.T(), out, "operation=list")
	assert.Contains(suite.T(), out, "count=1")
}

func (suite *ServiceTestSuite) TestAddValidation() {
	tests := []struct {
		name string
		in   NewExpense
	}{
		{"missing date", NewExpense{Category: "Food", Amount: "1"}},
		{"missing category", NewExpense{Date: "2024-01-01", Amount: "1"}},
		{"missing amount", NewExpense{Date: "2024-01-01", Category: "Food"}},
		{"non-numeric amount", NewExpense{Date: "2024-01-01", Category: "Food", Amount: "ten"}},
		{"negative amount", NewExpense{Date: "2024-01-01", Category: "Food", Amount: "-1"}},
		{"bad date", NewExpense{Date: "01/02/2024", Category: "Food", Amount: "1"}},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.svc.Add(suite.ctx, suite.alice.ID, tt.in)
			assert.ErrorIs(suite.T(), err, models.ErrValidation)
		})
	}

	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list, "invalid input must not be stored")
}

func (suite *ServiceTestSuite) TestAddZeroAmount() {
	suite.add(suite.alice.ID, "2024-01-03", "Food", "0")

	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), list, 1)
}

func (suite *ServiceTestSuite) TestAddWithReceipt() {
	_, err := suite.svc.Add(suite.ctx, suite.alice.ID, NewExpense{
		Date:     "2024-01-05",
		Category: "Food",
		Amount:   "12.00",
		Receipt:  &Upload{Filename: "lunch bill.jpg", Body: strings.NewReader("jpeg")},
	})
	require.NoError(suite.T(), err)

	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)

	want := "receipts/" + itoa(suite.alice.ID) + "_20240105123000_lunch_bill.jpg"
	assert.Equal(suite.T(), want, list[0].ReceiptPath)

	data, err := os.ReadFile(filepath.Join(suite.root, filepath.FromSlash(want)))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "jpeg", string(data))
}

func (suite *ServiceTestSuite) TestAddReceiptFailureStillSaves() {
	suite.svc.receipts = failingStore{}

	_, err := suite.svc.Add(suite.ctx, suite.alice.ID, NewExpense{
		Date:     "2024-01-05",
		Category: "Food",
		Amount:   "12",
		Receipt:  &Upload{Filename: "a.jpg", Body: strings.NewReader("x")},
	})
	require.NoError(suite.T(), err)

	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	assert.Empty(suite.T(), list[0].ReceiptPath)
}

func (suite *ServiceTestSuite) TestDeleteIsOwnerScoped() {
	id := suite.add(suite.alice.ID, "2024-01-03", "Food", "10")

	require.NoError(suite.T(), suite.svc.Delete(suite.ctx, suite.bob.ID, id))
	list, err := suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), list, 1, "another user's delete must be a no-op")

	require.NoError(suite.T(), suite.svc.Delete(suite.ctx, suite.alice.ID, id))
	list, err = suite.svc.List(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)

	assert.NoError(suite.T(), suite.svc.Delete(suite.ctx, suite.alice.ID, id), "deleting twice is fine")
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestSummarize(t *testing.T) {
	d := decimal.RequireFromString
	expenses := []models.Expense{
		{Date: "2024-02-10", Category: "Rent", Amount: d("500")},
		{Date: "2024-02-01", Category: "Food", Amount: d("12.5")},
		{Date: "2024-01-20", Category: "Food", Amount: d("7.5")},
		{Date: "2023-12-31", Category: "Travel", Amount: d("80")},
	}
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	sum := Summarize(expenses, now)

	assert.True(t, sum.Total.Equal(d("600")))
	assert.True(t, sum.MonthTotal.Equal(d("512.5")))
	assert.Equal(t, []string{"Rent", "Food", "Travel"}, sum.Categories)
	assert.True(t, sum.CategoryTotals["Food"].Equal(d("20")))
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-02"}, sum.Months)
	assert.True(t, sum.MonthTotals["2024-02"].Equal(d("512.5")))

	byMonth := sum.ByMonth()
	require.Len(t, byMonth, 3)
	assert.Equal(t, "2023-12", byMonth[0].Month)
	assert.True(t, byMonth[0].Total.Equal(d("80")))

	byCategory := sum.ByCategory()
	require.Len(t, byCategory, 3)
	assert.Equal(t, "Rent", byCategory[0].Category)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, time.Now())

	assert.True(t, sum.Total.IsZero())
	assert.True(t, sum.MonthTotal.IsZero())
	assert.Empty(t, sum.Categories)
	assert.Empty(t, sum.Months)
}
