package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PaymentType narrows which kind of purchase a mapping is meant for.
// It is informational only; resolution never filters on it.
type PaymentType string

const (
	PaymentAny        PaymentType = "any"
	PaymentOneTime    PaymentType = "onetime"
	PaymentMonthly    PaymentType = "recurring_monthly"
	PaymentThreeMonth PaymentType = "recurring_3month"
	PaymentSixMonth   PaymentType = "recurring_6month"
	PaymentAnnual     PaymentType = "recurring_annual"
	PaymentTrial      PaymentType = "trial"
)

var paymentLabels = map[PaymentType]string{
	PaymentAny:        "Any",
	PaymentOneTime:    "One-Time",
	PaymentMonthly:    "Monthly",
	PaymentThreeMonth: "3 Months",
	PaymentSixMonth:   "6 Months",
	PaymentAnnual:     "Annual",
	PaymentTrial:      "Trial",
}

// Label returns the human readable name used in notifications.
func (p PaymentType) Label() string {
	if l, ok := paymentLabels[p]; ok {
		return l
	}
	return string(p)
}

// ProductIDs holds product identifiers as they were stored. A stored value may be
// a list, a comma-separated string, or a single scalar; Normalize flattens all three.
type ProductIDs []string

func (p *ProductIDs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("product ids: %w", err)
		}
		out := make(ProductIDs, 0, len(raw))
		for _, r := range raw {
			s, err := scalarString(r)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*p = out
		return nil
	}
	s, err := scalarString(b)
	if err != nil {
		return err
	}
	*p = ProductIDs{s}
	return nil
}

func (p *ProductIDs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		out := make(ProductIDs, 0, len(node.Content))
		for _, n := range node.Content {
			out = append(out, n.Value)
		}
		*p = out
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*p = nil
			return nil
		}
		*p = ProductIDs{node.Value}
	default:
		return fmt.Errorf("product ids: unsupported yaml node at line %d", node.Line)
	}
	return nil
}

// Normalize splits every stored value on commas, trims, and drops empty pieces.
func (p ProductIDs) Normalize() []string {
	out := make([]string, 0, len(p))
	for _, raw := range p {
		for _, piece := range strings.Split(raw, ",") {
			if piece = strings.TrimSpace(piece); piece != "" {
				out = append(out, piece)
			}
		}
	}
	return out
}

func scalarString(b json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return "", fmt.Errorf("product id: %w", err)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("product id: unsupported value %s", string(b))
	}
}

// Flag is the stored active switch. Only JSON true and the string "1" turn it on.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", `"1"`:
		*f = true
	default:
		*f = false
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte(`"1"`), nil
	}
	return []byte(`"0"`), nil
}

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	*f = Flag(node.Value == "true" || node.Value == "1")
	return nil
}

// Entry maps one or more billing product ids to a membership.
type Entry struct {
	MembershipID    int64       `json:"membership_id" yaml:"membership_id" validate:"required,gt=0"`
	ProductIDs      ProductIDs  `json:"tc_product_ids,omitempty" yaml:"tc_product_ids,omitempty"`
	LegacyProductID ProductIDs  `json:"tc_product_id,omitempty" yaml:"tc_product_id,omitempty"`
	PaymentType     PaymentType `json:"payment_type,omitempty" yaml:"payment_type,omitempty" validate:"omitempty,oneof=any onetime recurring_monthly recurring_3month recurring_6month recurring_annual trial"`
	Label           string      `json:"label" yaml:"label,omitempty" validate:"max=200"`
	Active          *Flag       `json:"active,omitempty" yaml:"active,omitempty"`
}

// IsActive treats a missing flag as active so legacy entries keep working.
func (e Entry) IsActive() bool {
	return e.Active == nil || bool(*e.Active)
}

// Products returns the normalized product ids, preferring tc_product_ids over the legacy field.
func (e Entry) Products() []string {
	if ids := e.ProductIDs.Normalize(); len(ids) > 0 {
		return ids
	}
	return e.LegacyProductID.Normalize()
}

// Contains reports whether productID is one of the entry's products.
func (e Entry) Contains(productID string) bool {
	productID = strings.TrimSpace(productID)
	for _, id := range e.Products() {
		if id == productID {
			return true
		}
	}
	return false
}

// Table is an ordered list of entries. Order decides which entry wins on overlap.
type Table []Entry

// Active counts entries that are switched on and carry at least one product id.
func (t Table) Active() int {
	n := 0
	for _, e := range t {
		if e.IsActive() && len(e.Products()) > 0 {
			n++
		}
	}
	return n
}
