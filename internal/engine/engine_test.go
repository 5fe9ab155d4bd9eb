package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/ledgermail/internal/categorize"
	"github.com/fennwick/ledgermail/internal/extract"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
	"github.com/fennwick/ledgermail/internal/testutil"
)

// fakeMail serves canned messages.
type fakeMail struct {
	messages map[string]*model.EmailMessage
	failIDs  map[string]bool
	listed   []string
}

func (f *fakeMail) ListMessages(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return f.listed, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*model.EmailMessage, error) {
	if f.failIDs[id] {
		return nil, errors.New("transient provider error")
	}
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

func newTestEngine(t *testing.T, db *testutil.TestDB, mailClient service.MailClient) *Engine {
	t.Helper()

	categorizer := categorize.NewCategorizer(db.Storage, nil, nil)
	extractors := []extract.Extractor{extract.NewHeuristicExtractor()}
	factory := func(_ context.Context, _ *model.User) (service.MailClient, error) {
		return mailClient, nil
	}

	return New(db.Storage, categorizer, extractors, factory)
}

func TestProcessMessagePersistsExpense(t *testing.T) {
	db := testutil.SetupTestDB(t, "Uncategorized")
	mailClient := &fakeMail{messages: map[string]*model.EmailMessage{
		"msg-1": receiptMessage("msg-1", "Receipt from Uber Eats",
			"Order total $23.50. Order number: ABC-1"),
	}}
	eng := newTestEngine(t, db, mailClient)

	result, err := eng.ProcessMessage(context.Background(), db.User.ID, "msg-1")
	require.NoError(t, err)

	assert.Equal(t, service.StatusPersisted, result.Status)
	require.NotZero(t, result.ExpenseID)

	expense, err := db.Storage.GetExpenseByID(context.Background(), result.ExpenseID)
	require.NoError(t, err)
	assert.Equal(t, "Uber Eats", expense.Merchant)
	assert.Equal(t, "23.50", expense.Amount.StringFixed(2))
	assert.Equal(t, "ABC-1", expense.Description)
	assert.Equal(t, "Restaurant", expense.CategoryName)
	assert.Equal(t, "msg-1", expense.EmailID)
}

func TestProcessMessageIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mailClient := &fakeMail{messages: map[string]*model.EmailMessage{
		"msg-1": receiptMessage("msg-1", "Receipt from Acme Corp", "Total amount $10.00"),
	}}
	eng := newTestEngine(t, db, mailClient)

	first, err := eng.ProcessMessage(context.Background(), db.User.ID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, service.StatusPersisted, first.Status)

	second, err := eng.ProcessMessage(context.Background(), db.User.ID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, service.StatusSkipped, second.Status)
	assert.Equal(t, service.SkipDuplicate, second.Reason)
}

func TestProcessMessageSkipsInvalidCandidate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mailClient := &fakeMail{messages: map[string]*model.EmailMessage{
		"msg-1": receiptMessage("msg-1", "Your order has shipped", "See you soon!"),
	}}
	eng := newTestEngine(t, db, mailClient)

	result, err := eng.ProcessMessage(context.Background(), db.User.ID, "msg-1")
	require.NoError(t, err)

	assert.Equal(t, service.StatusSkipped, result.Status)
	assert.Equal(t, service.SkipNoValidCandidate, result.Reason)

	expenses, err := db.Storage.GetExpenses(context.Background(), db.User.ID, service.ExpenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestProcessMessageWithoutFloorLeavesUncategorized(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mailClient := &fakeMail{messages: map[string]*model.EmailMessage{
		"msg-1": receiptMessage("msg-1", "Receipt from Corner Shop", "Total amount $12.00"),
	}}
	eng := newTestEngine(t, db, mailClient)

	result, err := eng.ProcessMessage(context.Background(), db.User.ID, "msg-1")
	require.NoError(t, err)
	require.Equal(t, service.StatusPersisted, result.Status)

	expense, err := db.Storage.GetExpenseByID(context.Background(), result.ExpenseID)
	require.NoError(t, err)
	assert.Nil(t, expense.CategoryID)
	assert.Empty(t, expense.CategoryName)
}

func TestFetchAndProcessSurvivesPerMessageFailures(t *testing.T) {
	db := testutil.SetupTestDB(t, "Uncategorized")
	mailClient := &fakeMail{
		listed: []string{"good", "broken", "junk"},
		messages: map[string]*model.EmailMessage{
			"good": receiptMessage("good", "Receipt from Acme Corp", "Total amount $10.00"),
			"junk": receiptMessage("junk", "Hello", "no expense here"),
		},
		failIDs: map[string]bool{"broken": true},
	}
	eng := newTestEngine(t, db, mailClient)

	summary, err := eng.FetchAndProcess(context.Background(), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Users)
	assert.Equal(t, 3, summary.Messages)
	assert.Equal(t, 1, summary.Persisted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
}

func TestFetchAndProcessSweepsAllUsers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.CreateUser("second@example.com")

	mailClient := &fakeMail{listed: nil}
	eng := newTestEngine(t, db, mailClient)

	summary, err := eng.FetchAndProcess(context.Background(), time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Users)
}
