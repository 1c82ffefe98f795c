// Package remote implements the boundary clients the core consumes: the
// system-of-record REST interface and the S3-compatible object store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
)

// RecordConfig holds the system-of-record connection settings.
type RecordConfig struct {
	BaseURL string // e.g. https://project.example.co
	Token   string // bearer token / service key
	Table   string // remote table name, e.g. "estimations"
}

// RecordClient performs sparse partial updates keyed by entity id against
// a PostgREST-style endpoint. Updates are idempotent: repeating the same
// sparse field set is safe on retry.
type RecordClient struct {
	cfg        *RecordConfig
	httpClient *http.Client
}

// NewRecordClient creates a RecordClient with a bounded request timeout.
func NewRecordClient(cfg *RecordConfig) *RecordClient {
	return &RecordClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UpdateRecord PATCHes the sparse field map onto the row identified by
// entityID.
func (c *RecordClient) UpdateRecord(ctx context.Context, entityID string, fields map[string]interface{}) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSerialization, "failed to encode update", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?id=eq.%s",
		c.cfg.BaseURL, c.cfg.Table, url.QueryEscape(entityID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("apikey", c.cfg.Token)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "update request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrSyncFailed,
			fmt.Sprintf("update failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}
