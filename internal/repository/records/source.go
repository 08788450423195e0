// Package records fetches index records from the platform API. The search
// service never talks to the platform database directly; the platform
// exposes index-ready record maps over HTTP.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds the platform API location.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Source fetches records over HTTP.
type Source struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an HTTP record source.
func New(cfg Config, logger *zap.Logger) *Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Source{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Fetch returns the record for one document, or nil when the platform no
// longer has it.
func (s *Source) Fetch(ctx context.Context, docType, id string) (map[string]any, error) {
	u := fmt.Sprintf("%s/records/%s/%s", s.baseURL, url.PathEscape(docType), url.PathEscape(id))

	var record map[string]any
	found, err := s.get(ctx, u, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return record, nil
}

// FetchMany returns the records that still exist among ids.
func (s *Source) FetchMany(ctx context.Context, docType string, ids []string) ([]map[string]any, error) {
	u := fmt.Sprintf("%s/records/%s?ids=%s",
		s.baseURL, url.PathEscape(docType), url.QueryEscape(strings.Join(ids, ",")))

	var body struct {
		Records []map[string]any `json:"records"`
	}
	if _, err := s.get(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.Records, nil
}

// IDs lists every indexable record id for a document type. Used by full
// reindex runs; the chunked FetchMany calls that follow do the heavy work.
func (s *Source) IDs(ctx context.Context, docType string) ([]string, error) {
	u := fmt.Sprintf("%s/records/%s/ids", s.baseURL, url.PathEscape(docType))

	var body struct {
		IDs []string `json:"ids"`
	}
	if _, err := s.get(ctx, u, &body); err != nil {
		return nil, err
	}
	return body.IDs, nil
}

// get runs one GET request. found is false on a 404.
func (s *Source) get(ctx context.Context, u string, out any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch records: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("fetch records: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode records response: %w", err)
	}
	return true, nil
}
