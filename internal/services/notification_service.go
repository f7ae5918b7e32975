package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/getsentry/sentry-go"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notification describes one processed event for the administrator.
type Notification struct {
	AdminEmail   string
	Action       string
	UserEmail    string
	UserID       int64
	MembershipID int64
	ProductID    string
	Mapping      mapping.Entry
	Results      []Outcome
}

// NotificationService emails the administrator after each processed event.
// It is best-effort: errors and panics are logged and reported, never returned.
type NotificationService struct {
	mailer Mailer
	now    func() time.Time
}

func NewNotificationService(mailer Mailer, now func() time.Time) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{mailer: mailer, now: now}
}

// Notify sends the email. api is used to look up the membership title and may be nil.
func (n *NotificationService) Notify(ctx context.Context, api MembershipAPI, note Notification) {
	if note.AdminEmail == "" || n.mailer == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "notification panicked", "action", note.Action, "panic", r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	subject, body := n.compose(ctx, api, note)
	if err := n.mailer.Send(ctx, note.AdminEmail, subject, body); err != nil {
		slog.ErrorContext(ctx, "notification email failed", "action", note.Action, "to", note.AdminEmail, "error", err)
		sentry.CaptureException(fmt.Errorf("notification email failed: %w", err))
		return
	}
	slog.InfoContext(ctx, "notification sent", "action", note.Action, "to", note.AdminEmail)
}

func (n *NotificationService) compose(ctx context.Context, api MembershipAPI, note Notification) (string, string) {
	subject := "ThriveCart cancellation synced"
	description := "CANCELLATION - Access until end of period"
	if note.Action == ActionRefund {
		subject = "⚠️ ThriveCart REFUND processed"
		description = "REFUND - Access terminated immediately"
	}

	paymentType := note.Mapping.PaymentType
	if paymentType == "" {
		paymentType = mapping.PaymentAny
	}

	results, err := json.Marshal(note.Results)
	if err != nil {
		results = []byte("[]")
	}

	body := fmt.Sprintf(
		"Action Type: %s\n\nUser: %s (ID %d)\nMembership: %s (ID: %d)\nThriveCart Product ID: %s\nPayment Type: %s\nResults: %s\nTime: %s",
		description,
		note.UserEmail,
		note.UserID,
		membershipName(ctx, api, note.MembershipID),
		note.MembershipID,
		note.ProductID,
		paymentType.Label(),
		string(results),
		n.now().UTC().Format("2006-01-02 15:04")+" UTC",
	)
	return subject, body
}

func membershipName(ctx context.Context, api MembershipAPI, id int64) string {
	fallback := fmt.Sprintf("Membership #%d", id)
	if api == nil {
		return fallback
	}
	ms, err := api.GetMembership(ctx, id)
	if err != nil || ms.Title == "" {
		return fallback
	}
	return ms.Title
}
