// Package api is the HTTP client for the reference check server: job
// submission, cancellation, history and detail fetches.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
	"github.com/zjrosen/refcheck/internal/log"
)

const defaultUnaryTimeout = 30 * time.Second

// Client talks to the server's REST endpoints.
type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

// New creates a client for baseURL using a default http.Client.
func New(baseURL string) *Client {
	return NewWithClient(baseURL, &http.Client{})
}

// NewWithClient creates a client using the supplied http.Client.
func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

// WithUnaryTimeout returns a copy using timeout for each request.
func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

// RequestError is a non-2xx answer from the server.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

// SubmitCheck starts a job. File sources are uploaded as multipart form
// data; url and text sources are sent as JSON.
func (c *Client) SubmitCheck(ctx context.Context, sub Submission) (Started, error) {
	if strings.TrimSpace(sub.Source.Value) == "" {
		return Started{}, domain.ErrEmptySource
	}
	fields := submitRequest{
		SourceType:  string(sub.Source.Kind),
		SourceValue: sub.Source.Value,
		LLMProvider: sub.Model,
		BatchID:     sub.BatchID,
		BatchLabel:  sub.BatchLabel,
	}
	if fields.SourceType == "" {
		fields.SourceType = string(domain.SourceURL)
	}

	var (
		payload []byte
		err     error
	)
	if sub.Source.Kind == domain.SourceFile {
		payload, err = c.submitFile(ctx, fields, sub.Source)
	} else {
		payload, err = c.request(ctx, http.MethodPost, "/api/check", nil, fields)
	}
	if err != nil {
		return Started{}, fmt.Errorf("submit check: %w", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Started{}, fmt.Errorf("decode submit response: %w", err)
	}
	if resp.SessionID == "" || resp.CheckID == 0 {
		return Started{}, fmt.Errorf("submit check: server response lacks session or check id")
	}
	log.Info(log.CatAPI, "check submitted", "session", resp.SessionID, "check", resp.CheckID)
	return Started{
		SessionID: domain.SessionID(resp.SessionID),
		CheckID:   resp.CheckID,
		Source:    resp.Source,
	}, nil
}

func (c *Client) submitFile(ctx context.Context, fields submitRequest, src domain.Source) ([]byte, error) {
	f, err := os.Open(src.Value) //nolint:gosec // G304: user selected upload
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close() //nolint:errcheck

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	name := src.Filename
	if name == "" {
		name = filepath.Base(src.Value)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	for k, v := range map[string]string{
		"source_type":  fields.SourceType,
		"llm_provider": fields.LLMProvider,
		"batch_id":     fields.BatchID,
		"batch_label":  fields.BatchLabel,
	} {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/api/check", nil, buf, w.FormDataContentType())
}

// Cancel asks the server to stop the job behind session.
func (c *Client) Cancel(ctx context.Context, session domain.SessionID) error {
	_, err := c.request(ctx, http.MethodPost, "/api/cancel/"+url.PathEscape(string(session)), nil, nil)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", session, err)
	}
	return nil
}

// ListChecks returns up to limit history summaries, newest first.
func (c *Client) ListChecks(ctx context.Context, limit int) ([]*domain.Record, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	payload, err := c.request(ctx, http.MethodGet, "/api/history", query, nil)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	var rows []checkRecord
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	out := make([]*domain.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetCheckDetail fetches one record including its reference results.
func (c *Client) GetCheckDetail(ctx context.Context, id domain.CheckID) (*domain.Record, error) {
	payload, err := c.request(ctx, http.MethodGet, historyPath(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get check %d: %w", id, err)
	}
	var row checkRecord
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, fmt.Errorf("decode check %d: %w", id, err)
	}
	if row.ID == 0 {
		row.ID = id
	}
	return row.toDomain(true)
}

// Rename sets the custom label of a check.
func (c *Client) Rename(ctx context.Context, id domain.CheckID, label string) error {
	if _, err := c.request(ctx, http.MethodPatch, historyPath(id), nil, renameRequest{CustomLabel: label}); err != nil {
		return fmt.Errorf("rename check %d: %w", id, err)
	}
	return nil
}

// Delete removes a check from the server's history.
func (c *Client) Delete(ctx context.Context, id domain.CheckID) error {
	if _, err := c.request(ctx, http.MethodDelete, historyPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete check %d: %w", id, err)
	}
	return nil
}

// ListActiveSessions returns the jobs the server is still running.
func (c *Client) ListActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	payload, err := c.request(ctx, http.MethodGet, "/api/checks/active", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	var out []ActiveSession
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode active sessions: %w", err)
	}
	return out, nil
}

func historyPath(id domain.CheckID) string {
	return "/api/history/" + strconv.FormatInt(int64(id), 10)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, reqBody, contentType)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		log.ErrorErr(log.CatAPI, "request failed", err, "method", method, "path", path)
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(payload))
		var er errorResponse
		if json.Unmarshal(payload, &er) == nil && er.text() != "" {
			msg = er.text()
		}
		log.Warn(log.CatAPI, "request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: msg}
	}
	return payload, nil
}
