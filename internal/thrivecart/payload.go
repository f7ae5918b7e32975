package thrivecart

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrMissingEmail     = errors.New("Missing email")
	ErrMissingProductID = errors.New("Missing product ID")
)

// Payload is a form-encoded webhook delivery. Nested fields use bracket keys
// such as customer[email]; accessors report whether a field was present.
type Payload struct {
	values url.Values
}

func NewPayload(values url.Values) Payload {
	if values == nil {
		values = url.Values{}
	}
	return Payload{values: values}
}

// ParseForm decodes an application/x-www-form-urlencoded body.
func ParseForm(body []byte) (Payload, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Payload{}, fmt.Errorf("invalid webhook form: %w", err)
	}
	return NewPayload(values), nil
}

// Field looks up a nested field. Field("customer", "email") reads customer[email].
// Dotted keys (customer.email) are accepted as a fallback for JSON-flattened senders.
func (p Payload) Field(path ...string) (string, bool) {
	if len(path) == 0 {
		return "", false
	}
	key := path[0]
	for _, part := range path[1:] {
		key += "[" + part + "]"
	}
	if vs, ok := p.values[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	if len(path) > 1 {
		if vs, ok := p.values[strings.Join(path, ".")]; ok && len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}

// First returns the first present, non-empty value among the given paths.
func (p Payload) First(paths ...[]string) (string, bool) {
	for _, path := range paths {
		if v, ok := p.Field(path...); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (p Payload) Event() string {
	v, _ := p.Field("event")
	return v
}

func (p Payload) Secret() (string, bool) {
	return p.Field("thrivecart_secret")
}

// Email returns customer[email], falling back to customer_email.
func (p Payload) Email() (string, error) {
	if v, ok := p.First([]string{"customer", "email"}, []string{"customer_email"}); ok {
		return v, nil
	}
	return "", ErrMissingEmail
}

var productPaths = map[Kind][][]string{
	Refund: {
		{"refund", "product_id"},
		{"refund", "id"},
		{"refund", "bump_id"},
		{"refund", "upsell_id"},
		{"base_product"},
	},
	Cancellation: {
		{"subscription", "id"},
		{"subscription_id"},
		{"base_product"},
	},
}

// ProductID extracts the billing product id using the lookup order for kind.
func (p Payload) ProductID(kind Kind) (string, error) {
	v, ok := p.First(productPaths[kind]...)
	if !ok || v == "null" {
		return "", ErrMissingProductID
	}
	return v, nil
}

// RefundAmount converts refund[amount] from cents to a two-decimal string.
// It returns false when the field is absent or unusable, meaning a full refund.
func (p Payload) RefundAmount() (string, bool) {
	raw, ok := p.Field("refund", "amount")
	if !ok {
		return "", false
	}
	cents, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || cents < 0 {
		return "", false
	}
	return strconv.FormatFloat(cents/100, 'f', 2, 64), true
}

// RefundType is informational: "full" unless the sender says otherwise.
func (p Payload) RefundType() string {
	if v, ok := p.First([]string{"refund", "type"}); ok {
		return v
	}
	return "full"
}

// SubscriptionID is the billing subscription reference, if the order had one.
func (p Payload) SubscriptionID() (string, bool) {
	v, ok := p.First([]string{"subscription_id"}, []string{"subscription", "id"})
	if !ok || v == "null" {
		return "", false
	}
	return v, true
}

// BillingPeriodEnd returns subscription[billing_period_end] as epoch seconds.
func (p Payload) BillingPeriodEnd() (int64, bool) {
	raw, ok := p.First([]string{"subscription", "billing_period_end"})
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return secs, true
}

// Redacted returns the payload as a flat map without the shared secret, for logs.
func (p Payload) Redacted() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, vs := range p.values {
		if k == "thrivecart_secret" || len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}
