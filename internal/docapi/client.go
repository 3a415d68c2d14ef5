// Package docapi is a client for the document backend's REST API: signed
// upload targets, document registration, analysis jobs and listings.
//
// Every backend request carries the caller's bearer token and a fresh
// X-Request-ID. A 401 from any endpoint surfaces as an *APIError that
// matches ErrUnauthorized, so callers can short-circuit on session expiry
// without treating it as a transient failure.
package docapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout bounds each backend API call. Transfers use their own
	// client without a total timeout, since large files may take a while.
	defaultTimeout = 30 * time.Second

	pathSignedUpload  = "documents/supabase/signed-upload/"
	pathCreate        = "documents/create/"
	pathList          = "documents/list/"
	pathOverview      = "documents/overview/"
	pathDeleteFmt     = "documents/delete/%d/"
	pathFullAnalysFmt = "analysis/full-analysis/%d/"
)

// Client calls the document backend.
type Client struct {
	httpClient     *http.Client
	transferClient *http.Client
	baseURL        string
}

// NewClient creates a client for the API rooted at baseURL
// (e.g. "https://api.example.com/api/"). A trailing slash is added if missing.
func NewClient(baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		transferClient: &http.Client{},
		baseURL:        baseURL,
	}
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- Upload ---

// RequestWriteLocation asks the backend for a one-time write target. The
// backend clears any previous object at the same logical path.
func (c *Client) RequestWriteLocation(ctx context.Context, token string, req WriteLocationRequest) (*WriteLocation, error) {
	var resp writeLocationResponse
	if err := c.do(ctx, http.MethodPost, pathSignedUpload, token, req, &resp); err != nil {
		return nil, fmt.Errorf("request write location: %w", err)
	}
	if resp.Results == nil || resp.Results.SignedURL == "" || resp.Results.Path == "" {
		return nil, fmt.Errorf("request write location: backend did not return signed_url/path")
	}
	log.Debug().Str("path", resp.Results.Path).Str("method", resp.Results.Method).Msg("Write location issued")
	return resp.Results, nil
}

// Transfer writes body to the signed target using the method and headers
// the backend supplied. Success is decided by the status code alone.
// The bearer token is not forwarded to storage.
func (c *Client) Transfer(ctx context.Context, loc *WriteLocation, body io.Reader, size int64) error {
	method := loc.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, loc.SignedURL, body)
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.ContentLength = size
	for k, v := range loc.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/pdf")
	}

	startTime := time.Now()
	httpResp, err := c.transferClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Storage transfer response")
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Int64("bytes", size).Msg("Storage transfer response")

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return &APIError{
			Op:         "upload to storage",
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(text)),
		}
	}
	return nil
}

// RegisterDocument creates the document record for an object already in
// storage and returns it. A response without an id is an error.
func (c *Client) RegisterDocument(ctx context.Context, token string, req RegisterRequest) (*Document, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, pathCreate, token, req, &resp); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}
	doc := resp.Document
	if doc.ID == 0 && resp.Results != nil {
		doc = *resp.Results
	}
	if doc.ID == 0 {
		return nil, fmt.Errorf("register document: document created but ID not returned")
	}
	log.Info().Int64("documentId", doc.ID).Str("path", req.FilePath).Msg("Document registered")
	return &doc, nil
}

// DeleteDocument soft-deletes a document.
func (c *Client) DeleteDocument(ctx context.Context, token string, documentID int64) error {
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf(pathDeleteFmt, documentID), token, nil, nil); err != nil {
		return fmt.Errorf("delete document %d: %w", documentID, err)
	}
	return nil
}

// --- Analysis ---

// StartAnalysis submits the full-analysis job for a document.
func (c *Client) StartAnalysis(ctx context.Context, token string, documentID int64) (*StartAnalysisResponse, error) {
	var resp StartAnalysisResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf(pathFullAnalysFmt, documentID), token, nil, &resp); err != nil {
		return nil, fmt.Errorf("start analysis for document %d: %w", documentID, err)
	}
	log.Info().Int64("documentId", documentID).Int64("jobId", resp.Job.ID).Msg("Analysis job submitted")
	return &resp, nil
}

// AnalysisStatus fetches the current status snapshot for a document.
func (c *Client) AnalysisStatus(ctx context.Context, token string, documentID int64) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathFullAnalysFmt, documentID), token, nil, &resp); err != nil {
		return nil, fmt.Errorf("get analysis status for document %d: %w", documentID, err)
	}
	if resp.Document.DocumentStatus == "" {
		return nil, fmt.Errorf("get analysis status for document %d: response has no document_status", documentID)
	}
	return &resp, nil
}

// --- Listing ---

// ListDocuments returns one page of documents. next is either empty for
// the first page or a "next" link from a previous page. A link to any host
// other than the API's fails with ErrForeignHost.
func (c *Client) ListDocuments(ctx context.Context, token, next string) (*DocumentPage, error) {
	path := pathList
	if next != "" {
		path = next
	}
	var page DocumentPage
	if err := c.do(ctx, http.MethodGet, path, token, nil, &page); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &page, nil
}

// Overview returns the dashboard counters.
func (c *Client) Overview(ctx context.Context, token string) (*OverviewStats, error) {
	var resp overviewResponse
	if err := c.do(ctx, http.MethodGet, pathOverview, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	return &resp.Results, nil
}

// --- Internal helpers ---

// resolve joins a relative endpoint onto the base URL. Absolute URLs (such
// as pagination links) must name the API host; their scheme is forced to
// the base URL's so a proxy-generated http link never downgrades the call.
func (c *Client) resolve(path string) (string, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return c.baseURL + strings.TrimPrefix(path, "/"), nil
	}
	target, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", path, err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	if !strings.EqualFold(target.Host, base.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignHost, target.Host)
	}
	target.Scheme = base.Scheme
	return target.String(), nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint, err := c.resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Str("requestId", requestID).Msg("API request")
	startTime := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("API response")
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Str("requestId", requestID).Msg("API response")

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := &APIError{
			Op:         method + " " + path,
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		var detail struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if sonic.Unmarshal(raw, &detail) == nil {
			apiErr.Detail = detail.Detail
			if apiErr.Detail == "" {
				apiErr.Detail = detail.Message
			}
		}
		if httpResp.StatusCode == http.StatusUnauthorized {
			log.Warn().Str("path", path).Msg("API rejected credentials")
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(raw), 200))
	}
	return nil
}
