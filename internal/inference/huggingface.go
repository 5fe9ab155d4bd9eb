package inference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fennwick/ledgermail/internal/common"
)

const defaultBaseURL = "https://api-inference.huggingface.co/models"

// huggingFaceClient implements the Client interface for the Hugging Face
// hosted inference API.
type huggingFaceClient struct {
	httpClient    *http.Client
	cache         *resultCache
	limiter       *rateLimiter
	apiKey        string
	baseURL       string
	nerModel      string
	zeroShotModel string
}

// newHuggingFaceClient creates a new hosted inference client.
func newHuggingFaceClient(cfg Config) (Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	nerModel := cfg.NERModel
	if nerModel == "" {
		nerModel = "dslim/bert-base-NER"
	}

	zeroShotModel := cfg.ZeroShotModel
	if zeroShotModel == "" {
		zeroShotModel = "facebook/bart-large-mnli"
	}

	return &huggingFaceClient{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		nerModel:      nerModel,
		zeroShotModel: zeroShotModel,
		cache:         newResultCache(cfg.CacheTTL),
		limiter:       newRateLimiter(cfg.RequestsPerMinute),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// TokenClassify runs the NER model over text.
func (c *huggingFaceClient) TokenClassify(ctx context.Context, text string) ([]Entity, error) {
	requestBody := map[string]any{
		"inputs": text,
		"parameters": map[string]any{
			"aggregation_strategy": "simple",
		},
	}

	body, err := c.post(ctx, c.nerModel, requestBody)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		EntityGroup string  `json:"entity_group"`
		Word        string  `json:"word"`
		Score       float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse NER response: %w", err)
	}

	entities := make([]Entity, 0, len(raw))
	for _, e := range raw {
		entities = append(entities, Entity{
			Text:  e.Word,
			Label: e.EntityGroup,
			Score: e.Score,
		})
	}

	return entities, nil
}

// ZeroShot classifies text against candidate labels and returns the best one.
func (c *huggingFaceClient) ZeroShot(ctx context.Context, text string, labels []string) (ZeroShotResult, error) {
	if len(labels) == 0 {
		return ZeroShotResult{}, fmt.Errorf("at least one candidate label is required")
	}

	key := cacheKey(text, labels)
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	requestBody := map[string]any{
		"inputs": text,
		"parameters": map[string]any{
			"candidate_labels": labels,
		},
	}

	body, err := c.post(ctx, c.zeroShotModel, requestBody)
	if err != nil {
		return ZeroShotResult{}, err
	}

	var raw struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ZeroShotResult{}, fmt.Errorf("failed to parse zero-shot response: %w", err)
	}
	if len(raw.Labels) == 0 || len(raw.Scores) == 0 {
		return ZeroShotResult{}, fmt.Errorf("no labels in zero-shot response")
	}

	// Labels come back sorted by score descending
	result := ZeroShotResult{Label: raw.Labels[0], Score: raw.Scores[0]}
	c.cache.set(key, result)

	return result, nil
}

// post sends a JSON request to a model endpoint and returns the raw response.
func (c *huggingFaceClient) post(ctx context.Context, model string, requestBody map[string]any) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("request failed: %w", err),
			Retryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", common.ErrRateLimit, string(body))
	case resp.StatusCode == http.StatusServiceUnavailable:
		// Cold models return 503 while they load
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("model %s is loading: %s", model, string(body)),
			Retryable: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("inference API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Close releases background resources.
func (c *huggingFaceClient) Close() error {
	c.cache.Close()
	c.limiter.Close()
	return nil
}

func cacheKey(text string, labels []string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + strings.Join(labels, "\x00")))
	return hex.EncodeToString(sum[:])
}
