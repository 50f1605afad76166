// ABOUTME: HTTP client for the prediction server: multipart upload in, validated envelope out.
// ABOUTME: Transport problems and engine failures are reported as distinct error types.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/2389-research/mammoscope/predict"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// DefaultTimeout covers the slowest configured pipeline plus upload time.
const DefaultTimeout = 5 * time.Minute

var errNotJSON = errors.New("response is not JSON")

// Upload is one image to submit.
type Upload struct {
	Name string
	Data []byte
}

// Options are per-request flags.
type Options struct {
	Mock  bool
	Debug bool
}

// Predictor produces a prediction for an upload. Client and Local implement it.
type Predictor interface {
	Predict(ctx context.Context, up Upload, opts Options) (*predict.Result, error)
}

// TransportError means the request did not yield a usable envelope: the
// network failed, the status was not 2xx, or the body was not a valid envelope.
type TransportError struct {
	Status      int
	ContentType string
	Message     string // server error text, when the body was an envelope
	Err         error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// EnvelopeError carries a well-formed failure envelope from the server.
type EnvelopeError struct {
	Message     string
	Diagnostics string
}

func (e *EnvelopeError) Error() string { return e.Message }

// Client talks to a mammoscope server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Predictor = (*Client)(nil)

// Predict submits up to the single-prediction pipeline.
func (c *Client) Predict(ctx context.Context, up Upload, opts Options) (*predict.Result, error) {
	return post[predict.Result](ctx, c, "/", up, opts, true)
}

// Compare submits up to the model comparison pipeline.
func (c *Client) Compare(ctx context.Context, up Upload, opts Options) (*predict.Comparison, error) {
	return post[predict.Comparison](ctx, c, "/compare", up, opts, false)
}

func post[T any](ctx context.Context, c *Client, path string, up Upload, opts Options, ajax bool) (*T, error) {
	body, contentType, err := multipartBody(up, opts, ajax)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + path
	if opts.Debug {
		url += "?debug=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if media, _, _ := mime.ParseMediaType(ct); media != "application/json" {
		return nil, &TransportError{Status: resp.StatusCode, ContentType: ct, Err: errNotJSON}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Status: resp.StatusCode, ContentType: ct, Err: err}
	}

	var env predict.Envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, ContentType: ct, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if err := env.Check(); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, ContentType: ct, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Status: resp.StatusCode, ContentType: ct, Message: env.Message()}
	}
	if !env.OK {
		return nil, &EnvelopeError{Message: env.Message(), Diagnostics: env.Diagnostics}
	}
	return env.Result, nil
}

func multipartBody(up Upload, opts Options, ajax bool) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if ajax {
		if err := mw.WriteField("ajax", "1"); err != nil {
			return nil, "", err
		}
	}
	if opts.Mock {
		if err := mw.WriteField("mock", "1"); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("image", up.Name)
	if err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := fw.Write(up.Data); err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("build upload: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
