package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SyncLog is a persisted log line. Webhook processing writes one per step so an
// administrator can trace what happened to a delivery.
type SyncLog struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"not null;index" json:"timestamp"`
	Level        string         `gorm:"size:10;not null;index" json:"level"`
	Message      string         `gorm:"type:text" json:"message"`
	RequestID    string         `gorm:"size:64;index" json:"request_id"`
	Event        string         `gorm:"size:100;index" json:"event"`
	ActionType   string         `gorm:"size:20" json:"action_type"`
	Email        string         `gorm:"size:255;index" json:"email"`
	ProductID    string         `gorm:"size:100" json:"product_id"`
	MembershipID *int64         `json:"membership_id"`
	Error        string         `gorm:"type:text" json:"error"`
	LatencyMs    int            `json:"latency_ms"`
	Extra        datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"extra"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
