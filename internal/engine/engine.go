// Package engine orchestrates the expense pipeline: fetch, extract,
// validate, categorize, persist.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fennwick/ledgermail/internal/categorize"
	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/extract"
	"github.com/fennwick/ledgermail/internal/mail"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
)

// MailClientFactory builds a mail client for a user's stored credentials.
type MailClientFactory func(ctx context.Context, user *model.User) (service.MailClient, error)

// Notifier receives events for expenses the pipeline persists.
type Notifier interface {
	ExpenseCreated(userID int64, expense *model.Expense)
}

// Engine runs the message-to-expense pipeline. Extractor tiers are tried in
// order until one produces a candidate that passes validation.
type Engine struct {
	storage     service.Storage
	categorizer *categorize.Categorizer
	newClient   MailClientFactory
	notifier    Notifier
	extractors  []extract.Extractor
	retryOpts   service.RetryOptions
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier wires an event sink for persisted expenses.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithRetryOptions overrides retry behavior for model-backed calls.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(e *Engine) { e.retryOpts = opts }
}

// New creates a pipeline engine.
func New(storage service.Storage, categorizer *categorize.Categorizer, extractors []extract.Extractor, factory MailClientFactory, opts ...Option) *Engine {
	e := &Engine{
		storage:     storage,
		categorizer: categorizer,
		extractors:  extractors,
		newClient:   factory,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     15 * time.Second,
			Multiplier:   2.0,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage runs the pipeline for a single provider message. It is
// idempotent: reprocessing a persisted message yields a duplicate skip.
func (e *Engine) ProcessMessage(ctx context.Context, userID int64, messageID string) (service.ProcessResult, error) {
	user, err := e.storage.GetUser(ctx, userID)
	if err != nil {
		return service.ProcessResult{}, err
	}

	client, err := e.newClient(ctx, user)
	if err != nil {
		return service.ProcessResult{}, fmt.Errorf("%w: %w", common.ErrMailConnection, err)
	}

	return e.processWith(ctx, client, user, messageID)
}

// processWith is the pipeline body, reusing an already-built mail client.
func (e *Engine) processWith(ctx context.Context, client service.MailClient, user *model.User, messageID string) (service.ProcessResult, error) {
	// Dedup before any extraction work; extraction is the expensive step.
	existing, err := e.storage.GetExpenseByEmailID(ctx, messageID)
	if err != nil {
		return service.ProcessResult{}, err
	}
	if existing != nil {
		slog.Debug("message already processed", "user_id", user.ID, "message_id", messageID)
		return service.ProcessResult{Status: service.StatusSkipped, Reason: service.SkipDuplicate}, nil
	}

	msg, err := client.GetMessage(ctx, messageID)
	if err != nil {
		return service.ProcessResult{}, fmt.Errorf("%w: %w", common.ErrMailConnection, err)
	}

	body := mail.ExtractBody(msg.Payload)

	candidate, ok := e.extractCandidate(ctx, msg, body)
	if !ok {
		slog.Info("no valid expense candidate",
			"user_id", user.ID, "message_id", messageID, "subject", msg.Subject)
		return service.ProcessResult{Status: service.StatusSkipped, Reason: service.SkipNoValidCandidate}, nil
	}

	assignment, err := e.categorizer.Categorize(ctx, user.ID, candidate.Merchant, candidate.Description)
	if err != nil {
		return service.ProcessResult{}, err
	}

	expense := &model.Expense{
		UserID:      user.ID,
		Date:        *candidate.Date,
		Amount:      *candidate.Amount,
		Merchant:    candidate.Merchant,
		Description: candidate.Description,
		EmailID:     messageID,
	}
	if assignment.Assigned() {
		expense.CategoryID = &assignment.CategoryID
		expense.CategoryName = assignment.CategoryName
	}

	if err := e.storage.CreateExpense(ctx, expense); err != nil {
		// A concurrent run won the commit race; the message is processed.
		if errors.Is(err, common.ErrDuplicateEntry) {
			return service.ProcessResult{Status: service.StatusSkipped, Reason: service.SkipDuplicate}, nil
		}
		return service.ProcessResult{}, err
	}

	slog.Info("expense persisted",
		"user_id", user.ID,
		"expense_id", expense.ID,
		"merchant", expense.Merchant,
		"amount", expense.Amount,
		"category", assignment.CategoryName,
		"category_source", assignment.Source)

	if e.notifier != nil {
		e.notifier.ExpenseCreated(user.ID, expense)
	}

	return service.ProcessResult{Status: service.StatusPersisted, ExpenseID: expense.ID}, nil
}

// extractCandidate tries each extractor tier in order and returns the first
// candidate that passes validation.
func (e *Engine) extractCandidate(ctx context.Context, msg *model.EmailMessage, body string) (model.Candidate, bool) {
	for _, extractor := range e.extractors {
		var candidate model.Candidate

		err := common.WithRetry(ctx, func() error {
			var exErr error
			candidate, exErr = extractor.Extract(ctx, msg, body)
			if exErr != nil && !common.IsRetryable(exErr) {
				return &common.RetryableError{Err: exErr, Retryable: false}
			}
			return exErr
		}, e.retryOpts)
		if err != nil {
			if errors.Is(err, common.ErrExtractorUnavailable) {
				slog.Debug("extractor unavailable", "extractor", extractor.Name())
			} else {
				slog.Warn("extraction failed", "extractor", extractor.Name(), "error", err)
			}
			continue
		}

		if err := extract.Validate(candidate); err != nil {
			slog.Debug("candidate rejected",
				"extractor", extractor.Name(), "error", err)
			continue
		}

		return candidate, true
	}

	return model.Candidate{}, false
}

// FetchSummary aggregates a sweep across users.
type FetchSummary struct {
	Users     int
	Messages  int
	Persisted int
	Skipped   int
	Failed    int
}

// FetchAndProcess lists purchase emails for every registered user since the
// given time and runs the pipeline per message. A single message's failure
// never aborts the sweep.
func (e *Engine) FetchAndProcess(ctx context.Context, since time.Time) (FetchSummary, error) {
	users, err := e.storage.GetUsers(ctx)
	if err != nil {
		return FetchSummary{}, err
	}

	summary := FetchSummary{Users: len(users)}

	for i := range users {
		user := &users[i]

		if err := ctx.Err(); err != nil {
			return summary, err
		}

		client, err := e.newClient(ctx, user)
		if err != nil {
			slog.Error("failed to build mail client", "user_id", user.ID, "error", err)
			summary.Failed++
			continue
		}

		messageIDs, err := client.ListMessages(ctx, mail.PurchaseQuery, since)
		if err != nil {
			slog.Error("failed to list messages", "user_id", user.ID, "error", err)
			summary.Failed++
			continue
		}

		summary.Messages += len(messageIDs)

		for _, messageID := range messageIDs {
			result, err := e.processWith(ctx, client, user, messageID)
			switch {
			case err != nil:
				slog.Error("message processing failed",
					"user_id", user.ID, "message_id", messageID, "error", err)
				summary.Failed++
			case result.Status == service.StatusPersisted:
				summary.Persisted++
			default:
				summary.Skipped++
			}
		}
	}

	return summary, nil
}
