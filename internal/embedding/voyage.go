// Package embedding is a small VoyageAI embeddings client.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagen/arematv/internal/log"
)

const (
	defaultBaseURL     = "https://api.voyageai.com/v1"
	defaultModel       = "voyage-3-lite"
	defaultBatchSize   = 128
	defaultHTTPTimeout = 30 * time.Second
)

// Input types understood by the API.
const (
	InputDocument = "document"
	InputQuery    = "query"
)

// Client calls the VoyageAI embeddings endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a VoyageAI embedding client.
// If model is empty, it defaults to "voyage-3-lite" (512 dimensions).
func NewClient(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

type embeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageErrorResponse struct {
	Detail string `json:"detail"`
}

// Embed embeds texts in a single request. inputType is InputDocument for
// stored content or InputQuery for search queries.
func (c *Client) Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(embeddingRequest{Input: texts, Model: c.model, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var voyageErr voyageErrorResponse
		_ = json.Unmarshal(respBody, &voyageErr)
		return nil, fmt.Errorf("voyage API %d: %s", resp.StatusCode, voyageErr.Detail)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// The API returns data indexed; place each vector at its input position.
	embeddings := make([][]float32, len(texts))
	for _, d := range embResp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("voyage API: missing embedding for input %d", i)
		}
	}

	logger := log.WithComponentFromContext(ctx, "embedding")
	logger.Debug().
		Int("inputs", len(texts)).
		Int("tokens", embResp.Usage.TotalTokens).
		Msg("embedded")
	return embeddings, nil
}

// ProgressFunc is called after each batch completes during EmbedBatch.
// batchIndex is 1-based.
type ProgressFunc func(batchIndex, totalBatches int)

// EmbedBatch splits texts into batches of batchSize and calls Embed for
// each. Results keep the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, inputType string, batchSize int, onProgress ...ProgressFunc) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	totalBatches := (len(texts) + batchSize - 1) / batchSize
	all := make([][]float32, 0, len(texts))

	for i, batchIdx := 0, 1; i < len(texts); i, batchIdx = i+batchSize, batchIdx+1 {
		end := min(i+batchSize, len(texts))
		batch, err := c.Embed(ctx, texts[i:end], inputType)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		all = append(all, batch...)
		for _, fn := range onProgress {
			fn(batchIdx, totalBatches)
		}
	}
	return all, nil
}
