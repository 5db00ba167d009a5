// Package llm is the client for the external program/university name
// standardizer. The service's judgments are trusted as-is; the pipeline only
// merges its output into the llm_generated_* columns.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/domain"
)

// Client calls the standardizer's HTTP normalize endpoint.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRetryCount(2),
		logger: logger,
	}
}

type normalizeRequest struct {
	Text string `json:"text"`
}

type normalizeResponse struct {
	Program    string `json:"standardized_program"`
	University string `json:"standardized_university"`
}

// Normalize asks the standardizer for canonical names of one program string.
func (c *Client) Normalize(ctx context.Context, text string) (domain.Standardized, error) {
	var out normalizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(normalizeRequest{Text: text}).
		SetResult(&out).
		Post("/normalize")
	if err != nil {
		return domain.Standardized{}, fmt.Errorf("call standardizer: %w", err)
	}
	if resp.IsError() {
		return domain.Standardized{}, fmt.Errorf("standardizer returned status %d", resp.StatusCode())
	}

	c.logger.Debug("standardized program",
		zap.String("input", text),
		zap.String("program", out.Program),
		zap.String("university", out.University))
	return domain.Standardized{Program: out.Program, University: out.University}, nil
}
