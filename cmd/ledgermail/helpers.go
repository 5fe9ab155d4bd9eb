package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fennwick/ledgermail/internal/categorize"
	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/config"
	"github.com/fennwick/ledgermail/internal/engine"
	"github.com/fennwick/ledgermail/internal/extract"
	"github.com/fennwick/ledgermail/internal/inference"
	"github.com/fennwick/ledgermail/internal/mail"
	"github.com/fennwick/ledgermail/internal/model"
	"github.com/fennwick/ledgermail/internal/service"
	"github.com/fennwick/ledgermail/internal/storage"
)

// initStorage opens the configured database and brings the schema current.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("could not open the expense database at %s", dbPath), err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initTrainedClassifier builds the per-user classifier backed by the
// configured artifact directory.
func initTrainedClassifier() (*categorize.TrainedClassifier, error) {
	dir, err := config.ModelsDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve models directory: %w", err)
	}
	return categorize.NewTrainedClassifier(dir), nil
}

// initInference builds the hosted-inference client. A missing API key is
// not fatal; the pipeline runs on heuristics alone.
func initInference() inference.Client {
	client, err := inference.NewClient(config.LoadInferenceConfig())
	if err != nil {
		if errors.Is(err, common.ErrMissingConfig) {
			slog.Info("no inference API key configured, running heuristics only")
		} else {
			slog.Warn("inference client unavailable", "error", err)
		}
		return nil
	}
	return client
}

// gmailFactory builds per-user Gmail clients from the stored refresh tokens.
func gmailFactory() (engine.MailClientFactory, error) {
	google, err := config.LoadGoogleConfig()
	if err != nil {
		return nil, common.NewUserError(
			"Google OAuth credentials are not configured; set google.client_id and google.client_secret", err)
	}

	return func(ctx context.Context, user *model.User) (service.MailClient, error) {
		return mail.NewGmailClient(ctx, google.ClientID, google.ClientSecret, user.RefreshToken)
	}, nil
}

// buildEngine wires the full pipeline: extractors, categorizer, mail factory.
func buildEngine(store service.Storage, inferrer inference.Client, opts ...engine.Option) (*engine.Engine, error) {
	trained, err := initTrainedClassifier()
	if err != nil {
		return nil, err
	}

	categorizer := categorize.NewCategorizer(store, trained, inferrer)

	extractors := []extract.Extractor{}
	if inferrer != nil {
		extractors = append(extractors, extract.NewModelExtractor(inferrer))
	}
	extractors = append(extractors, extract.NewHeuristicExtractor())

	factory, err := gmailFactory()
	if err != nil {
		return nil, err
	}

	return engine.New(store, categorizer, extractors, factory, opts...), nil
}
