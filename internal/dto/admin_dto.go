package dto

import (
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/models"
)

// StatusCheck is one line of the admin status page.
type StatusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type StatusOptions struct {
	LogDays    int    `json:"log_days"`
	AdminEmail string `json:"admin_email"`
}

type StatusResponse struct {
	OK                  bool              `json:"ok"`
	Checks              []StatusCheck     `json:"checks"`
	MemberPressDetected bool              `json:"memberpress_detected"`
	SecretConfigured    bool              `json:"secret_configured"`
	APIConnected        bool              `json:"api_connected"`
	ActiveMappings      int               `json:"active_mappings"`
	MappingOverlaps     []mapping.Overlap `json:"mapping_overlaps"`
	Options             StatusOptions     `json:"options"`
}

// SettingsUpdateRequest changes individual options. Absent fields keep their value.
type SettingsUpdateRequest struct {
	WebhookSecret *string `json:"webhook_secret" validate:"omitempty,min=8,max=200"`
	APIKey        *string `json:"api_key" validate:"omitempty,max=200"`
	BaseURL       *string `json:"base_url" validate:"omitempty,url"`
	AdminEmail    *string `json:"admin_email" validate:"omitempty,email"`
	LogDays       *int    `json:"log_days" validate:"omitnil,min=1,max=365"`
}

// MappingsRequest replaces the whole mapping table.
type MappingsRequest struct {
	Mappings []mapping.Entry `json:"mappings" validate:"dive"`
}

type SimulateCancelRequest struct {
	Email        string `json:"email" validate:"required,email"`
	MembershipID int64  `json:"membership_id" validate:"required,gt=0"`
}

type LogsResponse struct {
	Logs  []models.SyncLog `json:"logs"`
	Count int              `json:"count"`
}
