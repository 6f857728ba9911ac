package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/fwojciec/eka"
)

// Interface compliance check.
var _ eka.ChatBackend = (*Client)(nil)

// Client talks to the EKA backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the backend base URL. Useful for testing with httptest.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new [Client] with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StreamChat posts the question to the streaming chat endpoint and returns
// the response body as soon as the status line is in. Non-success statuses
// return an [eka.StatusError] carrying the response body.
func (c *Client) StreamChat(ctx context.Context, req eka.ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, chatStreamPath, chatBody(req))
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	if !success(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("backend: %w", eka.ErrNoBody)
	}
	return resp.Body, nil
}

// Chat asks a question and waits for the complete answer.
func (c *Client) Chat(ctx context.Context, req eka.ChatRequest) (eka.Answer, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, chatPath, chatBody(req))
	if err != nil {
		return eka.Answer{}, fmt.Errorf("backend: %w", err)
	}
	var out apiAnswer
	if err := c.do(httpReq, &out); err != nil {
		return eka.Answer{}, err
	}
	return eka.Answer{Answer: out.Answer, Citations: convertCitations(out.Citations)}, nil
}

// Documents lists ingested documents. Listings do not include the text.
func (c *Client) Documents(ctx context.Context) ([]eka.Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+documentsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	var out []apiDocument
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	docs := make([]eka.Document, len(out))
	for i, d := range out {
		docs[i] = convertDocument(d)
	}
	return docs, nil
}

// Document fetches one document with its text. A missing document returns
// an [eka.StatusError] whose NotFound method reports true.
func (c *Client) Document(ctx context.Context, id string) (eka.Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL(id), nil)
	if err != nil {
		return eka.Document{}, fmt.Errorf("backend: %w", err)
	}
	var out apiDocument
	if err := c.do(httpReq, &out); err != nil {
		return eka.Document{}, err
	}
	return convertDocument(out), nil
}

// DeleteDocument removes a document and its chunks.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.documentURL(id), nil)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	return c.do(httpReq, nil)
}

// UploadFile sends a file for ingestion. The name is used by the backend
// to pick a parser and as the document title.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader, mode string) (eka.IngestResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return eka.IngestResult{}, fmt.Errorf("backend: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return eka.IngestResult{}, fmt.Errorf("backend: read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return eka.IngestResult{}, fmt.Errorf("backend: %w", err)
	}

	u := c.baseURL + uploadPath + "?" + url.Values{"mode": {modeOrAuto(mode)}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return eka.IngestResult{}, fmt.Errorf("backend: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out apiIngestResult
	if err := c.do(httpReq, &out); err != nil {
		return eka.IngestResult{}, err
	}
	return eka.IngestResult{DocID: out.DocID, Chunks: out.Chunks}, nil
}

// IngestURL asks the backend to fetch and ingest a web page or video. An
// empty source lets the backend detect it.
func (c *Client) IngestURL(ctx context.Context, rawURL, mode, source string) (eka.IngestResult, error) {
	if source == "" {
		source = "auto"
	}
	body := apiIngestURLRequest{URL: rawURL, Mode: modeOrAuto(mode), Source: source}
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, ingestURLPath, body)
	if err != nil {
		return eka.IngestResult{}, fmt.Errorf("backend: %w", err)
	}
	var out apiIngestResult
	if err := c.do(httpReq, &out); err != nil {
		return eka.IngestResult{}, err
	}
	return eka.IngestResult{DocID: out.DocID, Chunks: out.Chunks}, nil
}

// Health reports backend readiness. An unhealthy dependency is not an
// error; check the OK field.
func (c *Client) Health(ctx context.Context) (eka.Health, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return eka.Health{}, fmt.Errorf("backend: %w", err)
	}
	var out apiHealth
	if err := c.do(httpReq, &out); err != nil {
		return eka.Health{}, err
	}
	return eka.Health{OK: out.OK, App: out.App, Env: out.Env, Deps: out.Deps}, nil
}

func (c *Client) documentURL(id string) string {
	return c.baseURL + documentsPath + url.PathEscape(id)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and decodes a JSON response into out. A nil out discards
// the body.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return parseHTTPError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

func chatBody(req eka.ChatRequest) apiChatRequest {
	return apiChatRequest{
		Question:     req.Question,
		Mode:         req.Mode,
		Jurisdiction: req.Jurisdiction,
		Status:       req.Status,
	}
}

func modeOrAuto(mode string) string {
	if mode == "" {
		return "auto"
	}
	return mode
}

func success(code int) bool {
	return code >= 200 && code < 300
}

// parseHTTPError reads the body of a failed response. The body text is kept
// verbatim so users see what the server said.
func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("backend: %w", &eka.StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(body)),
	})
}

func convertCitations(in []apiCitation) []eka.Citation {
	if in == nil {
		return nil
	}
	out := make([]eka.Citation, len(in))
	for i, c := range in {
		out[i] = eka.Citation{
			Ref:         c.Ref,
			DocID:       deref(c.DocID),
			ChunkID:     deref(c.ChunkID),
			Title:       deref(c.Title),
			Source:      deref(c.Source),
			HeadingPath: c.HeadingPath,
			Page:        c.Page,
			Score:       c.Score,
			Snippet:     deref(c.Snippet),
		}
	}
	return out
}

func convertDocument(d apiDocument) eka.Document {
	id := d.DocID
	if id == "" {
		id = d.ID
	}
	return eka.Document{
		ID:     id,
		Title:  deref(d.Title),
		Source: d.Source,
		Mode:   deref(d.Mode),
		Text:   d.RawText,
		Meta:   d.Meta,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
