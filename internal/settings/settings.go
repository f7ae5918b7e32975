package settings

import (
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
)

// Settings is one consistent view of the persisted options. Webhook processing
// takes a snapshot per event and never reads the store mid-flow.
type Settings struct {
	WebhookSecret    string          `json:"webhook_secret"`
	APIKey           string          `json:"api_key"`
	BaseURL          string          `json:"base_url"`
	AdminEmail       string          `json:"admin_email"`
	LogDays          int             `json:"log_days"`
	Mappings         []mapping.Entry `json:"mappings"`
	MappingsMigrated bool            `json:"mappings_migrated_v2"`
}

const DefaultLogDays = 30

func (s Settings) clone() Settings {
	out := s
	if s.Mappings != nil {
		out.Mappings = make([]mapping.Entry, len(s.Mappings))
		copy(out.Mappings, s.Mappings)
	}
	return out
}

// Masked returns a copy safe to show to administrators.
func (s Settings) Masked() Settings {
	out := s.clone()
	out.WebhookSecret = mask(s.WebhookSecret)
	out.APIKey = mask(s.APIKey)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// Persisted option keys.
const (
	keyWebhookSecret    = "webhook_secret"
	keyAPIKey           = "api_key"
	keyBaseURL          = "base_url"
	keyAdminEmail       = "admin_email"
	keyLogDays          = "log_days"
	keyMappings         = "mappings"
	keyMappingsMigrated = "mappings_migrated_v2"
)
