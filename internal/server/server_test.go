package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/ledgermail/internal/categorize"
	"github.com/fennwick/ledgermail/internal/engine"
	"github.com/fennwick/ledgermail/internal/extract"
	"github.com/fennwick/ledgermail/internal/forecast"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
	"github.com/fennwick/ledgermail/internal/testutil"
)

type fakeMail struct {
	messages map[string]*model.EmailMessage
	listed   []string
}

func (f *fakeMail) ListMessages(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return f.listed, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*model.EmailMessage, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %s", id)
	}
	return msg, nil
}

func receiptMessage(id, subject, body string) *model.EmailMessage {
	return &model.EmailMessage{
		ID:      id,
		Subject: subject,
		From:    "orders@example.com",
		SentAt:  time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		Payload: &model.MessagePart{
			MimeType: "text/plain",
			Data:     base64.RawURLEncoding.EncodeToString([]byte(body)),
		},
	}
}

type testServer struct {
	*httptest.Server
	db *testutil.TestDB
}

func newTestServer(t *testing.T, mailClient service.MailClient, categoryNames ...string) *testServer {
	t.Helper()

	db := testutil.SetupTestDB(t, categoryNames...)

	categorizer := categorize.NewCategorizer(db.Storage, nil, nil)
	extractors := []extract.Extractor{extract.NewHeuristicExtractor()}
	factory := func(_ context.Context, _ *model.User) (service.MailClient, error) {
		return mailClient, nil
	}
	eng := engine.New(db.Storage, categorizer, extractors, factory)

	forecaster := forecast.NewForecaster(db.Storage)
	recommender := forecast.NewBudgetRecommender(db.Storage, forecaster)

	srv := New("", db.Storage, eng, forecaster, recommender, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, db: db}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (ts *testServer) seedExpense(t *testing.T, date time.Time, amount, merchant, category string) *model.Expense {
	t.Helper()

	ctx := context.Background()
	expense := &model.Expense{
		UserID:   ts.db.User.ID,
		Date:     date,
		Amount:   decimal.RequireFromString(amount),
		Merchant: merchant,
		EmailID:  fmt.Sprintf("seed-%s-%s-%s", merchant, amount, date.Format("2006-01-02")),
	}
	if category != "" {
		cat, err := ts.db.Storage.GetCategoryByName(ctx, ts.db.User.ID, category)
		require.NoError(t, err)
		expense.CategoryID = &cat.ID
		expense.CategoryName = cat.Name
	}
	require.NoError(t, ts.db.Storage.CreateExpense(ctx, expense))
	return expense
}

func TestGoogleAuthRegistersUserWithDefaultCategories(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})

	resp, body := ts.do(t, http.MethodPost, "/api/auth/google", map[string]string{
		"email":         "new@example.com",
		"refresh_token": "token-123",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	userID := int64(body["user_id"].(float64))
	categories, err := ts.db.Storage.GetCategories(context.Background(), userID)
	require.NoError(t, err)

	names := make([]string, 0, len(categories))
	for _, cat := range categories {
		names = append(names, cat.Name)
	}
	assert.ElementsMatch(t, model.DefaultCategories, names)
}

func TestGoogleAuthKeepsExistingCategories(t *testing.T) {
	ts := newTestServer(t, &fakeMail{}, "Groceries")

	resp, _ := ts.do(t, http.MethodPost, "/api/auth/google", map[string]string{
		"email":         ts.db.User.Email,
		"refresh_token": "rotated-token",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	categories, err := ts.db.Storage.GetCategories(context.Background(), ts.db.User.ID)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Groceries", categories[0].Name)
}

func TestGoogleAuthRejectsMissingFields(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})

	resp, _ := ts.do(t, http.MethodPost, "/api/auth/google", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCategoryLifecycle(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})
	userID := ts.db.User.ID

	resp, body := ts.do(t, http.MethodPost, "/api/categories", map[string]any{
		"user_id": userID, "name": "Groceries",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := body["category"].(map[string]any)
	id := int64(created["id"].(float64))
	assert.Equal(t, "Groceries", created["name"])

	// Creating the same name again resolves to the existing row
	resp, body = ts.do(t, http.MethodPost, "/api/categories", map[string]any{
		"user_id": userID, "name": "groceries",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(id), body["category"].(map[string]any)["id"])

	resp, body = ts.do(t, http.MethodPut, fmt.Sprintf("/api/categories/%d", id), map[string]any{
		"name": "Food Shopping",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Food Shopping", body["category"].(map[string]any)["name"])

	resp, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/categories?user_id=%d", userID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["categories"], 1)

	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t, &fakeMail{}, "Groceries")
	userID := ts.db.User.ID

	resp, body := ts.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"user_id":  userID,
		"date":     "2025-06-01",
		"amount":   "42.75",
		"merchant": "Whole Foods",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := body["expense"].(map[string]any)
	id := int64(created["id"].(float64))
	assert.Equal(t, "42.75", created["amount"])
	assert.Equal(t, "2025-06-01", created["date"])

	cat, err := ts.db.Storage.GetCategoryByName(context.Background(), userID, "Groceries")
	require.NoError(t, err)

	resp, body = ts.do(t, http.MethodPut, fmt.Sprintf("/api/expenses/%d", id), map[string]any{
		"amount":      "50.00",
		"category_id": cat.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := body["expense"].(map[string]any)
	assert.Equal(t, "50", updated["amount"])
	assert.Equal(t, "Groceries", updated["category"])
	assert.Equal(t, "Whole Foods", updated["merchant"])

	resp, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/expenses?user_id=%d", userID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["expenses"])
}

func TestListExpensesFiltersByDateRange(t *testing.T) {
	ts := newTestServer(t, &fakeMail{}, "Groceries")

	ts.seedExpense(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), "10.00", "May Mart", "Groceries")
	ts.seedExpense(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), "20.00", "June Mart", "Groceries")

	path := fmt.Sprintf("/api/expenses?user_id=%d&start_date=2025-06-01&end_date=2025-06-30", ts.db.User.ID)
	resp, body := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	expenses := body["expenses"].([]any)
	require.Len(t, expenses, 1)
	assert.Equal(t, "June Mart", expenses[0].(map[string]any)["merchant"])
}

func TestDashboardSummary(t *testing.T) {
	ts := newTestServer(t, &fakeMail{}, "Groceries", "Entertainment")

	now := time.Now()
	monthDay := time.Date(now.Year(), now.Month(), 2, 0, 0, 0, 0, time.UTC)
	ts.seedExpense(t, monthDay, "30.00", "Whole Foods", "Groceries")
	ts.seedExpense(t, monthDay, "20.00", "Whole Foods", "Groceries")
	ts.seedExpense(t, monthDay, "15.00", "Cinema", "Entertainment")
	ts.seedExpense(t, monthDay, "5.00", "Corner Shop", "")
	// Outside the current month, excluded from the summary
	ts.seedExpense(t, monthDay.AddDate(0, -2, 0), "99.00", "Old Shop", "Groceries")

	resp, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/dashboard/summary?user_id=%d", ts.db.User.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "70", body["total_spending"])

	byCategory := body["spending_by_category"].(map[string]any)
	assert.Equal(t, "50", byCategory["Groceries"])
	assert.Equal(t, "15", byCategory["Entertainment"])
	assert.Equal(t, "5", byCategory["Uncategorized"])

	topMerchants := body["top_merchants"].(map[string]any)
	assert.Equal(t, "50", topMerchants["Whole Foods"])
	assert.Equal(t, "15", topMerchants["Cinema"])
}

func TestBuildDashboardSummary(t *testing.T) {
	expense := func(merchant, category, amount string) model.Expense {
		return model.Expense{
			Merchant:     merchant,
			CategoryName: category,
			Amount:       decimal.RequireFromString(amount),
		}
	}

	summary := buildDashboardSummary([]model.Expense{
		expense("Whole Foods", "Groceries", "50.00"),
		expense("Whole Foods", "Groceries", "20.00"),
		expense("Shell", "Transportation", "15.00"),
		expense("Corner Cafe", "", "5.00"),
		expense("A Store", "Shopping", "1.00"),
		expense("B Store", "Shopping", "1.00"),
		expense("C Store", "Shopping", "1.00"),
	})

	assert.Equal(t, "93", summary.TotalSpending.String())
	assert.Equal(t, "70", summary.SpendingByCategory["Groceries"].String())
	assert.Equal(t, "5", summary.SpendingByCategory["Uncategorized"].String())

	// Five merchants at most; the tied stragglers rank alphabetically
	require.Len(t, summary.TopMerchants, 5)
	assert.Equal(t, "Whole Foods", summary.TopMerchants[0].Merchant)
	assert.Equal(t, "Shell", summary.TopMerchants[1].Merchant)
	assert.Equal(t, "Corner Cafe", summary.TopMerchants[2].Merchant)
	assert.Equal(t, "A Store", summary.TopMerchants[3].Merchant)
	assert.Equal(t, "B Store", summary.TopMerchants[4].Merchant)

	empty := buildDashboardSummary(nil)
	assert.True(t, empty.TotalSpending.IsZero())
	assert.Empty(t, empty.TopMerchants)
}

func TestForecastRequiresHistory(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})

	resp, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/forecast?user_id=%d", ts.db.User.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestForecastReturnsPredictions(t *testing.T) {
	ts := newTestServer(t, &fakeMail{}, "Groceries")

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		ts.seedExpense(t, start.AddDate(0, 0, i), "25.00", fmt.Sprintf("Mart %d", i), "Groceries")
	}

	resp, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/forecast?user_id=%d&days=7", ts.db.User.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	predictions := body["predictions"].([]any)
	require.Len(t, predictions, 7)

	first := predictions[0].(map[string]any)
	assert.NotEmpty(t, first["date"])
	assert.GreaterOrEqual(t, first["amount"].(float64), 0.0)
}

func TestBudgetRecommendationsRequireHistory(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})

	resp, _ := ts.do(t, http.MethodGet, fmt.Sprintf("/api/budget/recommendations?user_id=%d", ts.db.User.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessSingleMessage(t *testing.T) {
	mailClient := &fakeMail{messages: map[string]*model.EmailMessage{
		"msg-1": receiptMessage("msg-1", "Receipt from Uber Eats", "Order total $23.50"),
	}}
	ts := newTestServer(t, mailClient, "Uncategorized")

	resp, body := ts.do(t, http.MethodPost, "/api/process", map[string]any{
		"user_id":    ts.db.User.ID,
		"message_id": "msg-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "persisted", body["status"])
	assert.NotZero(t, body["expense_id"])

	// Reprocessing reports a duplicate skip
	resp, body = ts.do(t, http.MethodPost, "/api/process", map[string]any{
		"user_id":    ts.db.User.ID,
		"message_id": "msg-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "skipped", body["status"])
	assert.Equal(t, "duplicate", body["reason"])
}

func TestProcessSweep(t *testing.T) {
	mailClient := &fakeMail{
		listed: []string{"msg-1", "msg-2"},
		messages: map[string]*model.EmailMessage{
			"msg-1": receiptMessage("msg-1", "Receipt from Acme Corp", "Total amount $10.00"),
			"msg-2": receiptMessage("msg-2", "Hello", "no expense here"),
		},
	}
	ts := newTestServer(t, mailClient, "Uncategorized")

	resp, body := ts.do(t, http.MethodPost, "/api/process", map[string]any{"since_days": 30})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(1), body["users"])
	assert.Equal(t, float64(2), body["messages"])
	assert.Equal(t, float64(1), body["persisted"])
	assert.Equal(t, float64(1), body["skipped"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeMail{})

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
