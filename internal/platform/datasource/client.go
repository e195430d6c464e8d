// Package datasource is the HTTP client for the practice API. Every response
// is decoded into an explicit type and checked before it is handed to the
// caller; every failure comes back as *Error.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// ResourceKind is an API collection path relative to the base URL.
type ResourceKind string

const (
	DoctorPatients   ResourceKind = "doctors/patients"
	DoctorVisits     ResourceKind = "doctors/visits"
	DoctorFollowUps  ResourceKind = "doctors/follow-ups"
	PatientVisits    ResourceKind = "patients/visits"
	PatientFollowUps ResourceKind = "patients/follow-ups"
	Visits           ResourceKind = "visits"
)

// Path joins the collection with optional sub-paths.
func (k ResourceKind) Path(parts ...string) string {
	p := "/" + string(k)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// RecordID identifies a created record.
type RecordID string

// Credentials supplies the bearer token for each request. An empty token
// sends the request unauthenticated.
type Credentials interface {
	Raw() string
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http   *resty.Client
	creds  Credentials
	logger zerolog.Logger
}

// New builds a client. Requests are never retried automatically.
func New(cfg Config, creds Credentials, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		creds:  creds,
		logger: logger.With().Str("component", "datasource").Logger(),
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(c.authorize)
	return c
}

func (c *Client) authorize(_ *resty.Client, req *resty.Request) error {
	if c.creds != nil {
		if tok := c.creds.Raw(); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	req.SetHeader(RequestIDHeader, uuid.NewString())
	return nil
}

// do executes one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if method == http.MethodPost {
		req.SetHeader("Idempotency-Key", uuid.NewString())
	}

	c.logger.Debug().Str("op", op).Str("method", method).Str("path", path).Msg(op + " called")

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error().Err(err).Str("op", op).Str("path", path).Msg(op + " failed")
		return nil, newError(Transport, op, path, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		e := statusError(op, path, resp.StatusCode(), serverMessage(resp.Body()))
		c.logger.Warn().Str("op", op).Str("path", path).Int("status", resp.StatusCode()).Str("kind", e.Kind.String()).Msg(op + " rejected")
		return nil, e
	}

	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode()).Dur("latency", resp.Time()).Msg(op + " succeeded")
	return resp.Body(), nil
}

// serverMessage pulls "message" out of an error body, if it has one.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func decode[T any](op, path string, body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, newError(Decode, op, path, err)
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Query fetches one page of a collection. The whole query state is sent,
// defaults included, and the returned page is checked for consistency.
func Query[T any](ctx context.Context, c *Client, kind ResourceKind, schema *query.Schema, st query.State) (*pagination.Page[T], error) {
	const op = "query"
	path := kind.Path()
	body, err := c.do(ctx, op, http.MethodGet, path, schema.Params(st), nil)
	if err != nil {
		return nil, err
	}
	page, err := decode[pagination.Page[T]](op, path, body)
	if err != nil {
		return nil, err
	}
	if page.Rows == nil {
		page.Rows = []T{}
	}
	if err := page.Validate(); err != nil {
		return nil, newError(Shape, op, path, err)
	}
	return page, nil
}

// Get fetches one record.
func Get[T any](ctx context.Context, c *Client, kind ResourceKind, id string) (*T, error) {
	const op = "get"
	path := kind.Path(id)
	body, err := c.do(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[T](op, path, body)
}

// Create posts payload to the collection and returns the new record's id.
func (c *Client) Create(ctx context.Context, kind ResourceKind, payload any) (RecordID, error) {
	const op = "create"
	path := kind.Path()
	body, err := c.do(ctx, op, http.MethodPost, path, nil, payload)
	if err != nil {
		return "", err
	}
	created, err := decode[struct {
		ID string `json:"id"`
	}](op, path, body)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", newError(Shape, op, path, errors.New("response has no id"))
	}
	return RecordID(created.ID), nil
}

// Update replaces record id with payload.
func (c *Client) Update(ctx context.Context, kind ResourceKind, id string, payload any) error {
	if id == "" {
		return newError(Invalid, "update", kind.Path(), errors.New("id is required"))
	}
	_, err := c.do(ctx, "update", http.MethodPut, kind.Path(id), nil, payload)
	return err
}

// UpdateField replaces one field of record id, e.g. PUT follow-ups/{id}/status.
func (c *Client) UpdateField(ctx context.Context, kind ResourceKind, id, field string, payload any) error {
	if id == "" {
		return newError(Invalid, "update", kind.Path(), errors.New("id is required"))
	}
	_, err := c.do(ctx, "update", http.MethodPut, kind.Path(id, field), nil, payload)
	return err
}

// File is a downloaded document. The caller closes Body.
type File struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

// Download streams a binary resource. The file name comes from the
// Content-Disposition header when the server sends one.
func (c *Client) Download(ctx context.Context, path string) (*File, error) {
	const op = "download"
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	c.logger.Debug().Str("op", op).Str("path", path).Msg(op + " called")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return nil, newError(Transport, op, path, err)
	}
	raw := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		var msg []byte
		if raw != nil {
			msg, _ = io.ReadAll(io.LimitReader(raw, 64<<10))
			raw.Close()
		}
		return nil, statusError(op, path, resp.StatusCode(), serverMessage(msg))
	}
	if raw == nil {
		return nil, newError(Shape, op, path, fmt.Errorf("empty body"))
	}

	f := &File{ContentType: resp.Header().Get("Content-Type"), Body: raw}
	if _, params, err := mime.ParseMediaType(resp.Header().Get("Content-Disposition")); err == nil {
		f.Name = params["filename"]
	}
	c.logger.Debug().Str("op", op).Str("file", f.Name).Msg(op + " succeeded")
	return f, nil
}

// ---------------------------------------------------------------------------
// Browser adapter
// ---------------------------------------------------------------------------

// Resource serves pages of one collection to a record browser.
type Resource[T any] struct {
	Client *Client
	Kind   ResourceKind
	Schema *query.Schema
}

func (r Resource[T]) Fetch(ctx context.Context, st query.State) (*pagination.Page[T], error) {
	return Query[T](ctx, r.Client, r.Kind, r.Schema, st)
}
