package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/settings"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/thrivecart"
)

const (
	ActionRefund       = "refund"
	ActionCancellation = "cancellation"
)

var (
	ErrUnauthenticated = errors.New("webhook authentication failed")
	ErrValidation      = errors.New("validation failed")
	ErrMemberNotFound  = errors.New("User not found")
	ErrNoMapping       = errors.New("No mapping found for product")
	ErrAPIKeyMissing   = errors.New("API key not configured")
)

// SettingsSource hands out one consistent settings view per call.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// ClientFactory builds a MemberPress client from a settings snapshot.
type ClientFactory func(s settings.Settings) MembershipAPI

// Notifier receives the outcome of every processed refund or cancellation.
type Notifier interface {
	Notify(ctx context.Context, api MembershipAPI, note Notification)
}

// SyncResult is what processing one webhook produced.
type SyncResult struct {
	OK           bool           `json:"ok"`
	Error        string         `json:"error,omitempty"`
	Message      string         `json:"message,omitempty"`
	UserID       int64          `json:"user_id,omitempty"`
	MembershipID int64          `json:"membership_id,omitempty"`
	ActionType   string         `json:"action_type,omitempty"`
	ProductID    string         `json:"product_id,omitempty"`
	Mapping      *mapping.Entry `json:"mapping,omitempty"`
	Results      []Outcome      `json:"results,omitempty"`

	err error
}

// Err returns the sentinel behind a rejected or failed result, if any.
func (r SyncResult) Err() error {
	return r.err
}

// Rejected reports whether the delivery failed authentication.
func (r SyncResult) Rejected() bool {
	return errors.Is(r.err, ErrUnauthenticated)
}

func failed(err error) SyncResult {
	msg := err.Error()
	var inner interface{ Unwrap() []error }
	if errors.As(err, &inner) {
		if errs := inner.Unwrap(); len(errs) > 1 {
			msg = errs[len(errs)-1].Error()
		}
	}
	return SyncResult{OK: false, Error: msg, err: err}
}

func validation(err error) SyncResult {
	return failed(fmt.Errorf("%w: %w", ErrValidation, err))
}

// SyncService turns ThriveCart webhooks into MemberPress access changes.
type SyncService struct {
	settings  SettingsSource
	newClient ClientFactory
	notifier  Notifier
	now       func() time.Time
}

func NewSyncService(src SettingsSource, newClient ClientFactory, notifier Notifier, now func() time.Time) *SyncService {
	if now == nil {
		now = time.Now
	}
	return &SyncService{
		settings:  src,
		newClient: newClient,
		notifier:  notifier,
		now:       now,
	}
}

// Authenticate compares the configured secret with the one in the payload in
// constant time. An empty value on either side fails.
func Authenticate(configured string, p thrivecart.Payload) bool {
	received, ok := p.Secret()
	if configured == "" || !ok || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(received)) == 1
}

// Process runs one delivery through authentication, classification, mapping
// and the remote side effects, then notifies the administrator.
func (s *SyncService) Process(ctx context.Context, p thrivecart.Payload) SyncResult {
	cfg := s.settings.Snapshot()
	event := p.Event()

	if !Authenticate(cfg.WebhookSecret, p) {
		_, hasSecret := p.Secret()
		slog.WarnContext(ctx, "webhook authentication failed",
			"event", event,
			"secret_configured", cfg.WebhookSecret != "",
			"secret_received", hasSecret,
		)
		return SyncResult{OK: false, Error: "Unauthorized", err: ErrUnauthenticated}
	}

	kind := thrivecart.Classify(event)
	if kind == thrivecart.Ignored {
		slog.InfoContext(ctx, "event ignored", "event", event)
		return SyncResult{OK: true, Message: "Event type ignored"}
	}

	email, err := p.Email()
	if err != nil {
		slog.WarnContext(ctx, "missing customer email", "event", event, "payload", p.Redacted())
		return validation(err)
	}

	productID, err := p.ProductID(kind)
	if err != nil {
		slog.WarnContext(ctx, "missing product id", "event", event, "action_type", kind.String(), "payload", p.Redacted())
		return validation(err)
	}

	slog.InfoContext(ctx, "processing event", "event", event, "action_type", kind.String(), "email", email, "product_id", productID)

	if cfg.APIKey == "" {
		slog.ErrorContext(ctx, "memberpress api key not set", "event", event)
		return failed(ErrAPIKeyMissing)
	}
	api := s.newClient(cfg)

	member, err := api.FindMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, memberpress.ErrMemberNotFound) {
			slog.WarnContext(ctx, "user not found", "email", email)
			return validation(ErrMemberNotFound)
		}
		slog.ErrorContext(ctx, "user lookup failed", "email", email, "error", err)
		return failed(fmt.Errorf("user lookup failed: %w", err))
	}
	userID := int64(member.ID)

	entry, ok := mapping.Resolve(productID, cfg.Mappings)
	if !ok {
		slog.WarnContext(ctx, "no mapping found", "product_id", productID, "mappings", len(cfg.Mappings))
		return validation(ErrNoMapping)
	}
	membershipID := entry.MembershipID

	slog.InfoContext(ctx, "mapping found",
		"product_id", productID,
		"membership_id", membershipID,
		"payment_type", entry.PaymentType,
		"label", entry.Label,
	)

	controller := NewAccessController(api, s.now)
	var results []Outcome
	action := kind.String()
	switch kind {
	case thrivecart.Refund:
		var amount *string
		if a, ok := p.RefundAmount(); ok {
			amount = &a
		}
		subscriptionID, isSubscription := p.SubscriptionID()
		slog.InfoContext(ctx, "processing refund",
			"user_id", userID,
			"refund_type", p.RefundType(),
			"refund_amount", refundLabel(amount),
			"is_subscription", isSubscription,
			"subscription_id", subscriptionID,
		)
		results = controller.Refund(ctx, userID, membershipID, amount)
	case thrivecart.Cancellation:
		results = controller.Cancel(ctx, userID, membershipID, p)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, api, Notification{
			AdminEmail:   cfg.AdminEmail,
			Action:       action,
			UserEmail:    email,
			UserID:       userID,
			MembershipID: membershipID,
			ProductID:    productID,
			Mapping:      entry,
			Results:      results,
		})
	}

	slog.InfoContext(ctx, "event processed",
		"user_id", userID,
		"membership_id", membershipID,
		"action_type", action,
		"results", results,
	)

	return SyncResult{
		OK:           true,
		UserID:       userID,
		MembershipID: membershipID,
		ActionType:   action,
		ProductID:    productID,
		Mapping:      &entry,
		Results:      results,
	}
}

// SimulateCancellation runs the cancellation path for a member without a
// webhook. It is the admin tool for checking a mapping end to end.
func (s *SyncService) SimulateCancellation(ctx context.Context, email string, membershipID int64) SyncResult {
	cfg := s.settings.Snapshot()
	if cfg.APIKey == "" {
		return failed(ErrAPIKeyMissing)
	}
	api := s.newClient(cfg)

	member, err := api.FindMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, memberpress.ErrMemberNotFound) {
			return validation(ErrMemberNotFound)
		}
		return failed(fmt.Errorf("user lookup failed: %w", err))
	}

	userID := int64(member.ID)

	// Search results may omit memberships; the full record is the source of truth.
	var message string
	if full, err := api.GetMember(ctx, userID); err != nil {
		slog.WarnContext(ctx, "member details unavailable", "user_id", userID, "error", err)
	} else if !full.HasMembership(membershipID) {
		message = fmt.Sprintf("Member has no active membership #%d", membershipID)
		slog.WarnContext(ctx, "simulating cancellation without active membership", "user_id", userID, "membership_id", membershipID)
	}

	results := NewAccessController(api, s.now).Cancel(ctx, userID, membershipID, thrivecart.NewPayload(nil))
	slog.InfoContext(ctx, "simulated cancellation", "user_id", userID, "membership_id", membershipID, "results", results)
	return SyncResult{
		OK:           true,
		Message:      message,
		UserID:       userID,
		MembershipID: membershipID,
		ActionType:   ActionCancellation,
		Results:      results,
	}
}
