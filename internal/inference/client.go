// Package inference provides clients for hosted NLP model endpoints used by
// extraction and categorization.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/fennwick/ledgermail/internal/common"
)

// Entity is a span recognized by a token-classification model.
type Entity struct {
	Text  string
	Label string
	Score float64
}

// ZeroShotResult is the best label chosen by a zero-shot classifier.
type ZeroShotResult struct {
	Label string
	Score float64
}

// Client abstracts the hosted model endpoints.
type Client interface {
	// TokenClassify runs named-entity recognition over text.
	TokenClassify(ctx context.Context, text string) ([]Entity, error)
	// ZeroShot classifies text against candidate labels.
	ZeroShot(ctx context.Context, text string, labels []string) (ZeroShotResult, error)
	// Close releases client resources.
	Close() error
}

// Config holds inference client configuration.
type Config struct {
	APIKey            string
	BaseURL           string
	NERModel          string
	ZeroShotModel     string
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// NewClient creates an inference client from config. A missing API key is not
// an error the pipeline stops for; callers degrade to heuristics when no
// client can be built.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: inference API key is required", common.ErrMissingConfig)
	}
	return newHuggingFaceClient(cfg)
}
