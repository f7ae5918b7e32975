package memberpress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID accepts ids encoded either as JSON numbers or numeric strings.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s, err := rawText(b)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

// Text accepts strings and numbers and keeps their textual form.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, err := rawText(b)
	if err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

func rawText(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	if b[0] == '{' || b[0] == '[' {
		return "", fmt.Errorf("unexpected value %s", string(b))
	}
	return string(b), nil
}

// Ref accepts either a bare id or an embedded object carrying an id.
type Ref struct {
	ID ID `json:"id"`
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			ID ID `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		r.ID = obj.ID
		return nil
	}
	return r.ID.UnmarshalJSON(b)
}

type Transaction struct {
	ID         ID     `json:"id"`
	Status     string `json:"status"`
	Total      Text   `json:"total"`
	Amount     Text   `json:"amount"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  Text   `json:"expires_at"`
	Gateway    string `json:"gateway"`
	TransNum   Text   `json:"trans_num"`
	Member     Ref    `json:"member"`
	Membership Ref    `json:"membership"`
}

type Subscription struct {
	ID        ID     `json:"id"`
	Status    string `json:"status"`
	ExpiresAt Text   `json:"expires_at"`
	Gateway   string `json:"gateway"`
}

// Membership is the product definition; only the billing period matters here.
type Membership struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Period      Text   `json:"period"`
	PeriodType  string `json:"period_type"`
	PeriodCount Text   `json:"period_count"`
}

// BillingPeriod returns the renewal unit and count. The API reports the count in
// period and the unit in period_type; older installs put the unit in period and the
// count in period_count. Anything unusable falls back to one month.
func (m Membership) BillingPeriod() (string, int) {
	if m.PeriodType != "" {
		if n, err := strconv.Atoi(string(m.Period)); err == nil && n > 0 {
			return m.PeriodType, n
		}
		return m.PeriodType, 1
	}
	if unit := string(m.Period); unit != "" {
		if _, err := strconv.Atoi(unit); err != nil {
			n, err := strconv.Atoi(string(m.PeriodCount))
			if err != nil || n <= 0 {
				n = 1
			}
			return unit, n
		}
	}
	return "month", 1
}

type Member struct {
	ID                ID           `json:"id"`
	Email             string       `json:"email"`
	Username          string       `json:"username"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	ActiveMemberships []Membership `json:"active_memberships"`
}

// HasMembership reports whether membershipID is among the member's active memberships.
func (m Member) HasMembership(membershipID int64) bool {
	for _, ms := range m.ActiveMemberships {
		if int64(ms.ID) == membershipID {
			return true
		}
	}
	return false
}

type TransactionFilter struct {
	Member     int64
	Membership int64
	Status     string
}

type SubscriptionFilter struct {
	Member     int64
	Membership int64
	Status     string
}

// TransactionUpdate is the body of PUT /transactions/{id}. Empty fields are omitted.
type TransactionUpdate struct {
	Status    string `json:"status,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// RefundResult is the remote answer to a successful refund request.
type RefundResult struct {
	RefundedAmount string
	Total          string
	Body           map[string]interface{}
}

// CancelResult is the remote answer to a successful cancel request.
type CancelResult struct {
	Status    string
	ExpiresAt string
	Body      map[string]interface{}
}
