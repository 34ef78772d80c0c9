// Package remote is the HTTP client for the media download service contract.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout = 30 * time.Second
	sessionHeader  = "X-Client-Session"
	maxErrorBody   = 512
)

// Client talks to the download service.
type Client struct {
	baseURL    *url.URL
	apiPrefix  string
	sessionID  string
	httpClient *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration
	// Transport replaces http.DefaultTransport under the tracing wrapper.
	Transport http.RoundTripper
	// TracerProvider and Propagator default to the otel globals.
	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator
}

// New constructs a client for the service at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url must be absolute: %q", opts.BaseURL)
	}
	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagator != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(opts.Propagator))
	}
	return &Client{
		baseURL:   base,
		apiPrefix: "/" + strings.Trim(prefix, "/") + "/",
		sessionID: uuid.NewString(),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport, otelOpts...),
		},
	}, nil
}

// SessionID identifies this client in request headers.
func (c *Client) SessionID() string { return c.sessionID }

// Info calls POST info.
func (c *Client) Info(ctx context.Context, rawURL string) (Metadata, error) {
	var out infoResponse
	if err := c.doJSON(ctx, "info", http.MethodPost, c.apiPath("info"), infoRequest{URL: rawURL}, &out); err != nil {
		return Metadata{}, err
	}
	if out.Error != "" {
		return Metadata{}, &RemoteError{Op: "info", StatusCode: http.StatusOK, Message: out.Error}
	}
	return out.Metadata, nil
}

// StartDownload calls POST download and returns the task id.
func (c *Client) StartDownload(ctx context.Context, req DownloadRequest) (string, error) {
	var out downloadResponse
	if err := c.doJSON(ctx, "download", http.MethodPost, c.apiPath("download"), req, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", &RemoteError{Op: "download", StatusCode: http.StatusOK, Message: out.Error}
	}
	if out.TaskID == "" {
		return "", &RemoteError{Op: "download", StatusCode: http.StatusOK, Message: "response carried no task_id"}
	}
	return out.TaskID, nil
}

// Status calls GET status/{id}.
func (c *Client) Status(ctx context.Context, taskID string) (TaskStatus, error) {
	var out TaskStatus
	if err := c.doJSON(ctx, "status", http.MethodGet, c.apiPath("status", taskID), nil, &out); err != nil {
		return TaskStatus{}, err
	}
	// unknown ids come back as a bare {"error": ...} with no status
	if out.Status == "" && out.Error != "" {
		return TaskStatus{}, &RemoteError{Op: "status", StatusCode: http.StatusOK, Message: out.Error}
	}
	return out, nil
}

// Cancel calls POST cancel. The service acknowledges only.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, "cancel", http.MethodPost, c.apiPath("cancel"), cancelRequest{TaskID: taskID}, nil)
}

// History calls GET history.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out []HistoryEntry
	if err := c.doJSON(ctx, "history", http.MethodGet, c.apiPath("history"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete calls DELETE files/{name}.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.doJSON(ctx, "delete", http.MethodDelete, c.apiPath("files", name), nil, nil)
}

// CookiesStatus calls GET cookies-status.
func (c *Client) CookiesStatus(ctx context.Context) (bool, error) {
	var out cookiesStatusResponse
	if err := c.doJSON(ctx, "cookies-status", http.MethodGet, c.apiPath("cookies-status"), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// UploadCookies posts a cookies file as multipart field "file".
func (c *Client) UploadCookies(ctx context.Context, filename string, content io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, content); err != nil {
		return errors.Wrap(err, "copy cookies into form")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "close multipart writer")
	}
	resp, err := c.send(ctx, http.MethodPost, c.apiPath("upload-cookies"), &buf, mw.FormDataContentType())
	if err != nil {
		return errors.Wrap(err, "upload-cookies")
	}
	defer resp.Body.Close()
	var out envelope
	if err := decodeResponse("upload-cookies", resp, &out); err != nil {
		return err
	}
	if out.Error != "" {
		return &RemoteError{Op: "upload-cookies", StatusCode: resp.StatusCode, Message: out.Error}
	}
	return nil
}

// ArtifactPath is the site-relative download path for an artifact.
func ArtifactPath(name string) string { return "downloads/" + url.PathEscape(name) }

// ViewPath is the site-relative inline view path for an artifact.
func ViewPath(name string) string { return "view/" + url.PathEscape(name) }

// URL resolves a site-relative path against the base URL.
func (c *Client) URL(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if unescaped, err := url.PathUnescape(u.Path); err == nil && unescaped != u.Path {
		u.RawPath = u.Path
		u.Path = unescaped
	}
	return u.String()
}

// Fetch streams the body of a site-relative path into w.
func (c *Client) Fetch(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, c.URL(path), nil, "")
	if err != nil {
		return 0, errors.Wrapf(err, "fetch %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errorFromBody("fetch", resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrapf(err, "copy %s", path)
	}
	return n, nil
}

func (c *Client) apiPath(endpoint string, params ...string) string {
	p := c.apiPrefix + endpoint
	for _, param := range params {
		p += "/" + url.PathEscape(param)
	}
	return c.URL(p)
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "%s: marshal request", op)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	resp, err := c.send(ctx, method, endpoint, body, contentType)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer resp.Body.Close()
	return decodeResponse(op, resp, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(sessionHeader, c.sessionID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Str("method", method).Str("url", endpoint).Err(err).Msg("remote call failed")
		return nil, err
	}
	log.Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("remote call completed")
	return resp, nil
}

// decodeResponse maps the body onto out. A body carrying "error" wins over
// the status code, which is how the service reports most failures.
func decodeResponse(op string, resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "%s: read body", op)
	}
	var env envelope
	if len(bytes.TrimSpace(data)) > 0 && json.Unmarshal(data, &env) == nil && env.Error != "" && resp.StatusCode >= 300 {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: env.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: truncate(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

func errorFromBody(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env envelope
	if json.Unmarshal(data, &env) == nil && env.Error != "" {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: env.Error}
	}
	return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: truncate(string(data))}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
