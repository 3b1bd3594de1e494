// Package gateway translates typed search requests into provider API calls.
// Each search type maps to its own predicate shape; phone and email results
// are augmented with the searched contact so it always appears on the rows.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"peoplefinder/internal/session"
	dErrors "peoplefinder/pkg/domain-errors"
)

var tracer = otel.Tracer("peoplefinder/gateway")

// requiredPackages are the provider data packages every search subscribes to.
var requiredPackages = []string{"people_enhanced_v6", "cell_phones_v2", "emails_v2"}

const searchPath = "/people/search"

// InvalidAddressError rejects an address search that cannot be executed.
// Street is the one component the provider requires.
type InvalidAddressError struct {
	Missing string
}

func (e *InvalidAddressError) Error() string {
	return "invalid address: missing " + e.Missing
}

// Client is the upstream query gateway. It implements session.Gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
	fields     []string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a gateway client for the provider at baseURL. The token is sent
// as X-AUTH-TOKEN on every request.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "upstream base URL is required")
	}
	fields, err := loadFieldNames()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "load field projection")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     slog.Default(),
		fields:     fields,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// searchBody is the provider wire format for one search call.
type searchBody struct {
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
	Fields   []string        `json:"fields"`
	Packages []string        `json:"packages"`
	Filter   *session.Filter `json:"filter,omitempty"`
	Query    string          `json:"query,omitempty"`
	Sort     session.Sort    `json:"sort,omitempty"`
}

// Validate checks that a request is structurally executable. It never touches
// the network, so callers can gate paid work on it.
func (c *Client) Validate(req session.SearchRequest) error {
	if !req.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid search type %q", req.Type)
	}

	switch req.Type {
	case session.SearchByAddress:
		if req.Query.Address == nil {
			return dErrors.Wrap(&InvalidAddressError{Missing: "address properties"}, dErrors.CodeInvalidInput, "invalid address")
		}
		if req.Query.Address.Street == "" {
			return dErrors.Wrap(&InvalidAddressError{Missing: "street"}, dErrors.CodeInvalidInput, "invalid address")
		}
	default:
		if strings.TrimSpace(req.Query.Text) == "" {
			return dErrors.Newf(dErrors.CodeInvalidInput, "%s search requires a query", req.Type)
		}
	}
	return nil
}

// Execute runs one search against the provider and returns the normalized,
// augmented page of results.
func (c *Client) Execute(ctx context.Context, req session.SearchRequest) (*session.Result, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "gateway.search")
	span.SetAttributes(
		attribute.String("search.type", req.Type.String()),
		attribute.Int("search.limit", req.Limit),
		attribute.Int("search.offset", req.Offset),
	)
	defer span.End()

	body := c.buildBody(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode search request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(payload))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-AUTH-TOKEN", c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailed, "search request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailed, "read search response")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		msg := upstreamMessage(respBody)
		c.logger.WarnContext(ctx, "provider rejected search",
			"status", resp.StatusCode,
			"type", req.Type,
			"message", msg,
		)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "provider rejected credentials: %s", msg)
		default:
			return nil, dErrors.Newf(dErrors.CodeUpstreamFailed, "provider returned %d: %s", resp.StatusCode, msg)
		}
	}

	var result session.Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamFailed, "decode search response")
	}
	if result.Documents == nil {
		result.Documents = []session.Person{}
	}

	augment(req, result.Documents)
	return &result, nil
}

// buildBody maps the typed request onto the provider's predicate shapes.
func (c *Client) buildBody(req session.SearchRequest) searchBody {
	body := searchBody{
		Limit:    req.Limit,
		Offset:   req.Offset,
		Fields:   c.fields,
		Packages: requiredPackages,
		Sort:     req.Sort,
	}
	if body.Limit <= 0 {
		body.Limit = session.DefaultLimit
	}

	switch req.Type {
	case session.SearchByName:
		body.Query = req.Query.Text
		body.Filter = req.Filters
	case session.SearchByEmail:
		f := session.Match("emails.address", req.Query.Text)
		body.Filter = &f
	case session.SearchByPhone:
		f := session.Match("cell_phones.phone", req.Query.Text)
		body.Filter = &f
	case session.SearchByAddress:
		f := session.Match("street", strings.ToLower(req.Query.Address.Street))
		body.Filter = &f
		body.Query = req.Query.Address.FreeText()
	}
	return body
}

// augment prepends the searched contact to each result row so the term the
// user searched for is always visible, even when the provider omits it.
func augment(req session.SearchRequest, persons []session.Person) {
	value := strings.TrimSpace(req.Query.Text)
	if value == "" {
		return
	}

	switch req.Type {
	case session.SearchByPhone:
		for i := range persons {
			if hasPhone(persons[i].CellPhones, value) {
				continue
			}
			persons[i].CellPhones = append(
				[]session.CellPhone{{Phone: value, Active: true}},
				persons[i].CellPhones...,
			)
		}
	case session.SearchByEmail:
		for i := range persons {
			if hasEmail(persons[i].Emails, value) {
				continue
			}
			persons[i].Emails = append(
				[]session.EmailAddress{{Address: value}},
				persons[i].Emails...,
			)
		}
	}
}

func hasPhone(phones []session.CellPhone, value string) bool {
	for _, p := range phones {
		if p.Phone == value {
			return true
		}
	}
	return false
}

func hasEmail(emails []session.EmailAddress, value string) bool {
	for _, e := range emails {
		if e.Address == value {
			return true
		}
	}
	return false
}

// upstreamMessage digs the human-readable reason out of a provider error
// body, which has carried several shapes across API versions.
func upstreamMessage(body []byte) string {
	for _, path := range []string{"error.message", "errors.0.message", "message", "error"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	if len(body) == 0 {
		return "no response body"
	}
	return "unrecognized error body"
}
