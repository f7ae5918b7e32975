package memberpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	apiPrefix    = "/wp-json/mp/v1"
	apiKeyHeader = "MEMBERPRESS-API-KEY"
	pageSize     = 100
	maxBodyBytes = 1 << 20
)

var (
	ErrTransport      = errors.New("memberpress transport failure")
	ErrNotConfigured  = errors.New("API key not configured")
	ErrMemberNotFound = errors.New("member not found")
)

// APIError is a reachable remote that answered with a non-success status or body.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("memberpress api error: status=%d message=%s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message returns the remote's own message for API errors and err.Error() otherwise.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

type Config struct {
	BaseURL       string
	APIKey        string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	LookupTimeout time.Duration
}

// Client talks to the MemberPress REST API of one site.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	readTimeout   time.Duration
	writeTimeout  time.Duration
	lookupTimeout time.Duration
	cache         MembershipCache
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		httpClient:    httpClient,
		readTimeout:   cfg.ReadTimeout,
		writeTimeout:  cfg.WriteTimeout,
		lookupTimeout: cfg.LookupTimeout,
	}
	if c.readTimeout <= 0 {
		c.readTimeout = 20 * time.Second
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 30 * time.Second
	}
	if c.lookupTimeout <= 0 {
		c.lookupTimeout = 10 * time.Second
	}
	return c
}

// WithCache attaches a membership cache and returns the client.
func (c *Client) WithCache(cache MembershipCache) *Client {
	c.cache = cache
	return c
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

func (c *Client) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	q := url.Values{}
	setID(q, "member", f.Member)
	setID(q, "membership", f.Membership)
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	q.Set("per_page", strconv.Itoa(pageSize))

	rows, err := c.getList(ctx, "/transactions", q)
	if err != nil {
		return nil, err
	}
	return decodeRows[Transaction](ctx, "/transactions", rows), nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error {
	_, err := c.do(ctx, c.writeTimeout, http.MethodPut, "/transactions/"+strconv.FormatInt(id, 10), nil, update)
	return err
}

// RefundTransaction asks the remote to refund id and notify the member. A nil
// amount is a full refund.
func (c *Client) RefundTransaction(ctx context.Context, id int64, amount *string) (RefundResult, error) {
	body := map[string]interface{}{"send_notification": true}
	if amount != nil && *amount != "" {
		body["amount"] = *amount
	}

	raw, err := c.do(ctx, c.writeTimeout, http.MethodPost, "/transactions/"+strconv.FormatInt(id, 10)+"/refund", nil, body)
	if err != nil {
		return RefundResult{}, err
	}
	obj, err := decodeResult(raw)
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{
		RefundedAmount: textField(obj, "refunded_amount"),
		Total:          textField(obj, "total"),
		Body:           obj,
	}, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, f SubscriptionFilter) ([]Subscription, error) {
	q := url.Values{}
	setID(q, "member", f.Member)
	setID(q, "membership", f.Membership)
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	q.Set("per_page", strconv.Itoa(pageSize))

	rows, err := c.getList(ctx, "/subscriptions", q)
	if err != nil {
		return nil, err
	}
	return decodeRows[Subscription](ctx, "/subscriptions", rows), nil
}

// CancelSubscription stops auto-billing for id and notifies the member.
func (c *Client) CancelSubscription(ctx context.Context, id int64) (CancelResult, error) {
	body := map[string]interface{}{"send_notification": true}
	raw, err := c.do(ctx, c.writeTimeout, http.MethodPost, "/subscriptions/"+strconv.FormatInt(id, 10)+"/cancel", nil, body)
	if err != nil {
		return CancelResult{}, err
	}
	obj, err := decodeResult(raw)
	if err != nil {
		return CancelResult{}, err
	}
	return CancelResult{
		Status:    textField(obj, "status"),
		ExpiresAt: textField(obj, "expires_at"),
		Body:      obj,
	}, nil
}

func (c *Client) GetMembership(ctx context.Context, id int64) (Membership, error) {
	if c.cache != nil {
		if m, ok := c.cache.Get(ctx, id); ok {
			return m, nil
		}
	}

	raw, err := c.do(ctx, c.lookupTimeout, http.MethodGet, "/memberships/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return Membership{}, err
	}
	var m Membership
	if err := json.Unmarshal(raw, &m); err != nil {
		return Membership{}, fmt.Errorf("failed to decode membership %d: %w", id, err)
	}
	if m.ID == 0 {
		m.ID = ID(id)
	}
	if c.cache != nil {
		c.cache.Set(ctx, m)
	}
	return m, nil
}

func (c *Client) GetMember(ctx context.Context, id int64) (Member, error) {
	raw, err := c.do(ctx, c.lookupTimeout, http.MethodGet, "/members/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return Member{}, err
	}
	var m Member
	if err := json.Unmarshal(raw, &m); err != nil {
		return Member{}, fmt.Errorf("failed to decode member %d: %w", id, err)
	}
	return m, nil
}

// FindMemberByEmail searches members and returns the one whose email matches exactly.
func (c *Client) FindMemberByEmail(ctx context.Context, email string) (Member, error) {
	email = strings.TrimSpace(email)
	q := url.Values{}
	q.Set("search", email)
	q.Set("per_page", strconv.Itoa(pageSize))

	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()
	rows, err := c.getList(ctx, "/members", q)
	if err != nil {
		return Member{}, err
	}
	for _, m := range decodeRows[Member](ctx, "/members", rows) {
		if strings.EqualFold(strings.TrimSpace(m.Email), email) {
			return m, nil
		}
	}
	return Member{}, ErrMemberNotFound
}

// Ping checks that the API key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, c.lookupTimeout, http.MethodGet, "/me", nil, nil)
	return err
}

// getList fetches a JSON array as raw rows. Anything that is not an array
// reads as empty, which is how the API answers filters with no matches on
// some installs.
func (c *Client) getList(ctx context.Context, path string, q url.Values) ([]json.RawMessage, error) {
	raw, err := c.do(ctx, c.readTimeout, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return rows, nil
}

// decodeRows decodes each row on its own; a malformed row is skipped so one
// odd record does not hide the rest of the list.
func decodeRows[T any](ctx context.Context, path string, rows []json.RawMessage) []T {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			slog.WarnContext(ctx, "skipping malformed row", "path", path, "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, q url.Values, body interface{}) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + apiPrefix + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTransport, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
			Body:       string(raw),
		}
	}
	return raw, nil
}

// decodeResult accepts any non-empty JSON body as success. Only objects carry
// fields; other shapes come back as an empty map.
func decodeResult(raw []byte) (map[string]interface{}, error) {
	unknown := &APIError{StatusCode: http.StatusOK, Message: "Unknown error", Body: string(raw)}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, unknown
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 {
			return nil, unknown
		}
		return t, nil
	case []interface{}:
		if len(t) == 0 {
			return nil, unknown
		}
	case string:
		if t == "" || t == "0" {
			return nil, unknown
		}
	case float64:
		if t == 0 {
			return nil, unknown
		}
	case bool:
		if !t {
			return nil, unknown
		}
	default:
		return nil, unknown
	}
	return map[string]interface{}{}, nil
}

func errorMessage(raw []byte) string {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if s := textField(obj, "message"); s != "" {
			return s
		}
		if s := textField(obj, "error"); s != "" {
			return s
		}
	}
	return "Unknown error"
}

func textField(obj map[string]interface{}, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func setID(q url.Values, key string, id int64) {
	if id > 0 {
		q.Set(key, strconv.FormatInt(id, 10))
	}
}
