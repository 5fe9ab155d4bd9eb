// Package extract turns email text into candidate expense records.
package extract

import (
	"context"

	"github.com/fennwick/ledgermail/internal/model"
)

// Extractor produces a candidate expense from a message and its body text.
// Implementations are tried in order by the pipeline until one yields a
// candidate that passes validation. An extractor signals it cannot run at all
// with common.ErrExtractorUnavailable.
type Extractor interface {
	Extract(ctx context.Context, msg *model.EmailMessage, body string) (model.Candidate, error)
	Name() string
}
