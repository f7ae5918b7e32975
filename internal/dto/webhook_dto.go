package dto

// WebhookVersion is reported by the capability probe.
const WebhookVersion = "2.2.2"

// WebhookCapabilities answers GET on the webhook URL. ThriveCart uses it to
// check that the endpoint is alive before saving the webhook.
type WebhookCapabilities struct {
	OK       bool            `json:"ok"`
	Message  string          `json:"message"`
	Version  string          `json:"version"`
	Features WebhookFeatures `json:"features"`
}

type WebhookFeatures struct {
	MultipleProductsPerMembership bool `json:"multiple_products_per_membership"`
	PaymentTypeFiltering          bool `json:"payment_type_filtering"`
	RefundProcessing              bool `json:"refund_processing"`
	BackwardsCompatible           bool `json:"backwards_compatible"`
}

func DefaultCapabilities() WebhookCapabilities {
	return WebhookCapabilities{
		OK:      true,
		Message: "ThriveCart to MemberPress sync webhook ready. POST refund or cancellation events here.",
		Version: WebhookVersion,
		Features: WebhookFeatures{
			MultipleProductsPerMembership: true,
			PaymentTypeFiltering:          true,
			RefundProcessing:              true,
			BackwardsCompatible:           true,
		},
	}
}
