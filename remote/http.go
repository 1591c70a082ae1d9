package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/progress"
)

// PushIDHeader carries a fresh UUID per upsert so the server can spot
// a retried request.
const PushIDHeader = "X-Sprout-Push-ID"

// SourceIDHeader identifies the pushing device.
const SourceIDHeader = "X-Sprout-Source-ID"

// HTTP talks to a PostgREST-style REST endpoint, such as Supabase.
// Progress rows live in /rest/v1/progress and pass-through jobs are
// inserted into /rest/v1/sync_events.
type HTTP struct {
	baseURL    string
	apiKey     string
	sourceID   string
	httpClient *http.Client
	debug      *sprout.DebugLogger
}

// NewHTTP creates a REST remote.
// sourceID is optional; if non-empty, it is sent as X-Sprout-Source-ID.
func NewHTTP(baseURL, apiKey, sourceID string) *HTTP {
	return &HTTP{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		sourceID: sourceID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *HTTP) WithHTTPClient(client *http.Client) *HTTP {
	c.httpClient = client
	return c
}

// WithDebugLogger logs every request and response.
func (c *HTTP) WithDebugLogger(l *sprout.DebugLogger) *HTTP {
	c.debug = l
	return c
}

func (c *HTTP) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "sprout-client/1.0")
	if strings.TrimSpace(c.sourceID) != "" {
		req.Header.Set(SourceIDHeader, c.sourceID)
	}
}

func newSyncError(op string, statusCode int, body []byte) *sprout.SyncError {
	msg := ""
	if len(body) > 0 && statusCode >= 400 {
		if len(body) > 200 {
			msg = string(body[:200]) + "..."
		} else {
			msg = string(body)
		}
	}
	return &sprout.SyncError{
		Operation:  op,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, msg),
	}
}

// do sends req and returns the body of a 2xx response.
func (c *HTTP) do(op string, req *http.Request, body []byte) ([]byte, error) {
	c.setHeaders(req)
	c.debug.LogRequest(req.Method, req.URL.String(), body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.debug.LogError(op, err)
		return nil, &sprout.SyncError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sprout.SyncError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.debug.LogResponse(resp.StatusCode, resp.Status, respBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newSyncError(op, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// UpsertProgress implements sprout.Remote.
func (c *HTTP) UpsertProgress(ctx context.Context, records []progress.Record) error {
	rows, err := sprout.RowsFromRecords(records)
	if err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}

	u := c.baseURL + "/rest/v1/progress?on_conflict=learner_id,item_id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	req.Header.Set(PushIDHeader, uuid.NewString())

	_, err = c.do("upsert_progress", req, body)
	return err
}

// SelectProgress implements sprout.Remote.
func (c *HTTP) SelectProgress(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("learner_id", "eq."+learnerID)
	q.Set("order", "item_id.asc")
	if !since.IsZero() {
		q.Set("updated_at", "gt."+since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/progress?"+q.Encode(), nil)
	if err != nil {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do("select_progress", req, nil)
	if err != nil {
		return nil, err
	}

	var rows []sprout.ProgressRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: fmt.Errorf("decode rows: %w", err)}
	}
	records, err := sprout.RecordsFromRows(rows)
	if err != nil {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: err}
	}
	return records, nil
}

type eventRow struct {
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	SourceID string          `json:"source_id,omitempty"`
}

// Deliver implements sprout.Remote.
func (c *HTTP) Deliver(ctx context.Context, kind string, payload []byte) error {
	body, err := json.Marshal(eventRow{Kind: kind, Payload: payload, SourceID: c.sourceID})
	if err != nil {
		return &sprout.SyncError{Operation: "deliver", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/sync_events", bytes.NewReader(body))
	if err != nil {
		return &sprout.SyncError{Operation: "deliver", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	_, err = c.do("deliver", req, body)
	return err
}

// Ping implements sprout.Remote.
func (c *HTTP) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/progress?select=learner_id&limit=1", nil)
	if err != nil {
		return &sprout.SyncError{Operation: "ping", Err: err}
	}
	_, err = c.do("ping", req, nil)
	return err
}
