package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/expiration"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/thrivecart"
)

// MembershipAPI is the part of the MemberPress REST API the sync engine drives.
type MembershipAPI interface {
	ListTransactions(ctx context.Context, f memberpress.TransactionFilter) ([]memberpress.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, update memberpress.TransactionUpdate) error
	RefundTransaction(ctx context.Context, id int64, amount *string) (memberpress.RefundResult, error)
	ListSubscriptions(ctx context.Context, f memberpress.SubscriptionFilter) ([]memberpress.Subscription, error)
	CancelSubscription(ctx context.Context, id int64) (memberpress.CancelResult, error)
	GetMembership(ctx context.Context, id int64) (memberpress.Membership, error)
	FindMemberByEmail(ctx context.Context, email string) (memberpress.Member, error)
	GetMember(ctx context.Context, id int64) (memberpress.Member, error)
	Ping(ctx context.Context) error
}

// Outcome is the result of one remote side effect. Exactly one of Success or
// Error is set, except for informational outcomes that only carry Message.
type Outcome struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	TransID int64  `json:"trans_id,omitempty"`
	SubID   int64  `json:"sub_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Code    int    `json:"code,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	Method  string `json:"method,omitempty"`

	ExpiresAt              string `json:"expires_at,omitempty"`
	AccessUntilEndOfPeriod bool   `json:"access_until_end_of_period,omitempty"`
	AutoBillingStopped     bool   `json:"auto_billing_stopped,omitempty"`

	RefundedAmount        string `json:"refunded_amount,omitempty"`
	OriginalAmount        string `json:"original_amount,omitempty"`
	Partial               *bool  `json:"partial,omitempty"`
	SubscriptionCancelled string `json:"subscription_cancelled,omitempty"`
	AccessRevoked         string `json:"access_revoked,omitempty"`

	StatisticsUpdated bool `json:"statistics_updated,omitempty"`
	EmailSent         bool `json:"email_sent,omitempty"`
}

const (
	MethodExistingExpiration = "existing_expiration"
	MethodWebhookPeriodEnd   = "webhook_billing_period_end"
	MethodDefaultCalculation = "default_calculation"
	MethodFallback           = "fallback"
)

// AccessController applies refunds and cancellations to MemberPress. Remote
// failures never surface as errors; they become error outcomes.
type AccessController struct {
	api MembershipAPI
	now func() time.Time
}

func NewAccessController(api MembershipAPI, now func() time.Time) *AccessController {
	if now == nil {
		now = time.Now
	}
	return &AccessController{api: api, now: now}
}

// Refund refunds the member's latest complete transaction for the membership.
// A nil amount refunds in full.
func (a *AccessController) Refund(ctx context.Context, memberID, membershipID int64, amount *string) []Outcome {
	txns, err := a.api.ListTransactions(ctx, memberpress.TransactionFilter{
		Member:     memberID,
		Membership: membershipID,
		Status:     "complete",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch transactions for refund", "user_id", memberID, "membership_id", membershipID, "error", err)
		return []Outcome{{Error: "Failed to fetch transactions: " + memberpress.Message(err), Code: memberpress.StatusCode(err)}}
	}
	if len(txns) == 0 {
		slog.InfoContext(ctx, "no complete transactions found to refund", "user_id", memberID, "membership_id", membershipID)
		return []Outcome{{Error: "No complete transactions found to refund"}}
	}

	latest, ok := latestTransaction(txns)
	if !ok {
		return []Outcome{{Error: "No valid transaction found"}}
	}
	transID := int64(latest.ID)
	original := string(latest.Total)
	if original == "" {
		original = "0.00"
	}

	partial := amount != nil && *amount != ""
	slog.InfoContext(ctx, "refunding transaction",
		"trans_id", transID,
		"original_amount", original,
		"refund_amount", refundLabel(amount),
	)

	res, err := a.api.RefundTransaction(ctx, transID, amount)
	if err != nil {
		slog.WarnContext(ctx, "refund api failed, trying manual fallback",
			"trans_id", transID,
			"code", memberpress.StatusCode(err),
			"error", memberpress.Message(err),
		)
		return []Outcome{a.fallbackRefund(ctx, transID)}
	}

	refunded := res.RefundedAmount
	if refunded == "" {
		refunded = res.Total
	}
	if refunded == "" && partial {
		refunded = *amount
	}

	slog.InfoContext(ctx, "refund processed", "trans_id", transID, "refunded_amount", refunded, "partial", partial)
	return []Outcome{{
		Success:               true,
		TransID:               transID,
		Status:                "refunded",
		RefundedAmount:        refunded,
		OriginalAmount:        original,
		Partial:               &partial,
		SubscriptionCancelled: "automatic",
		AccessRevoked:         "automatic",
		StatisticsUpdated:     true,
		EmailSent:             true,
		Message:               "Refund processed via MemberPress native API",
	}}
}

// fallbackRefund marks the transaction refunded directly. That path does not
// revoke access on the remote side, so the expiration is forced to now as well.
func (a *AccessController) fallbackRefund(ctx context.Context, transID int64) Outcome {
	err := a.api.UpdateTransaction(ctx, transID, memberpress.TransactionUpdate{Status: "refunded"})
	if err != nil {
		slog.ErrorContext(ctx, "fallback refund failed", "trans_id", transID, "error", err)
		return Outcome{
			Error:   "Refund API failed and fallback failed",
			TransID: transID,
			Code:    memberpress.StatusCode(err),
		}
	}

	revoked := "immediate"
	expiresAt := expiration.Format(a.now())
	if err := a.api.UpdateTransaction(ctx, transID, memberpress.TransactionUpdate{ExpiresAt: expiresAt}); err != nil {
		slog.ErrorContext(ctx, "fallback refund could not expire access", "trans_id", transID, "error", err)
		revoked = "failed"
		expiresAt = ""
	}

	slog.InfoContext(ctx, "fallback refund applied", "trans_id", transID, "access_revoked", revoked)
	return Outcome{
		Success:       true,
		TransID:       transID,
		Status:        "refunded",
		Method:        MethodFallback,
		ExpiresAt:     expiresAt,
		AccessRevoked: revoked,
		Message:       "Transaction marked as refunded (fallback method)",
	}
}

// Cancel stops every active subscription of the member for the membership.
// Access stays until the end of the paid period. Members without a subscription
// object (manual gateways, one-time purchases) go through HandleNonRecurring.
func (a *AccessController) Cancel(ctx context.Context, memberID, membershipID int64, payload thrivecart.Payload) []Outcome {
	subs, err := a.api.ListSubscriptions(ctx, memberpress.SubscriptionFilter{
		Member:     memberID,
		Membership: membershipID,
		Status:     "active",
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch subscriptions for cancellation, trying non-recurring path",
			"user_id", memberID, "membership_id", membershipID, "error", err)
		return a.HandleNonRecurring(ctx, memberID, membershipID, payload)
	}
	if len(subs) == 0 {
		slog.InfoContext(ctx, "no active subscriptions found, trying non-recurring path", "user_id", memberID, "membership_id", membershipID)
		return a.HandleNonRecurring(ctx, memberID, membershipID, payload)
	}

	var outcomes []Outcome
	for _, sub := range subs {
		subID := int64(sub.ID)
		if subID <= 0 || sub.Status != "active" {
			continue
		}

		res, err := a.api.CancelSubscription(ctx, subID)
		if err != nil {
			slog.ErrorContext(ctx, "cancellation api failed",
				"sub_id", subID,
				"code", memberpress.StatusCode(err),
				"error", memberpress.Message(err),
			)
			outcomes = append(outcomes, Outcome{
				Error: "Cancellation API failed: " + memberpress.Message(err),
				SubID: subID,
				Code:  memberpress.StatusCode(err),
			})
			continue
		}

		status := res.Status
		if status == "" {
			status = "cancelled"
		}
		slog.InfoContext(ctx, "subscription cancelled", "sub_id", subID, "status", status, "expires_at", res.ExpiresAt)
		outcomes = append(outcomes, Outcome{
			Success:                true,
			SubID:                  subID,
			Status:                 status,
			ExpiresAt:              res.ExpiresAt,
			AccessUntilEndOfPeriod: true,
			AutoBillingStopped:     true,
			StatisticsUpdated:      true,
			EmailSent:              true,
			Message:                "Cancellation processed via MemberPress native API",
		})
	}

	if len(outcomes) == 0 {
		slog.InfoContext(ctx, "no subscriptions were cancelled, trying non-recurring path", "user_id", memberID, "membership_id", membershipID)
		return a.HandleNonRecurring(ctx, memberID, membershipID, payload)
	}
	return outcomes
}

// HandleNonRecurring makes sure the member's latest complete transaction carries
// a real expiration, so access ends at the close of the paid period.
func (a *AccessController) HandleNonRecurring(ctx context.Context, memberID, membershipID int64, payload thrivecart.Payload) []Outcome {
	txns, err := a.api.ListTransactions(ctx, memberpress.TransactionFilter{
		Member:     memberID,
		Membership: membershipID,
		Status:     "complete",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch transactions for cancellation", "user_id", memberID, "membership_id", membershipID, "error", err)
		return []Outcome{{Error: "Failed to fetch transactions", Code: memberpress.StatusCode(err)}}
	}
	if len(txns) == 0 {
		slog.InfoContext(ctx, "no complete transactions found for cancellation", "user_id", memberID, "membership_id", membershipID)
		return []Outcome{{Message: "No transactions found"}}
	}

	latest, ok := latestTransaction(txns)
	if !ok {
		return []Outcome{{Error: "No valid transaction found"}}
	}
	transID := int64(latest.ID)
	gateway := latest.Gateway
	if gateway == "" {
		gateway = "unknown"
	}
	current := string(latest.ExpiresAt)

	if expiration.IsValid(current, a.now()) {
		slog.InfoContext(ctx, "using existing transaction expiration", "trans_id", transID, "gateway", gateway, "expires_at", current)
		return []Outcome{{
			Success:   true,
			TransID:   transID,
			Gateway:   gateway,
			ExpiresAt: current,
			Method:    MethodExistingExpiration,
			Message:   "Using existing transaction expiration",
		}}
	}

	slog.InfoContext(ctx, "transaction has no valid expiration, setting one", "trans_id", transID, "current_expires_at", current)

	if end, ok := payload.BillingPeriodEnd(); ok {
		expiresAt := expiration.Format(expiration.FromPeriodEnd(end))
		if a.pushExpiration(ctx, transID, expiresAt) {
			return []Outcome{{
				Success:   true,
				TransID:   transID,
				ExpiresAt: expiresAt,
				Method:    MethodWebhookPeriodEnd,
				Message:   "Expiration set from ThriveCart webhook",
			}}
		}
	}

	if out, ok := a.defaultExpiration(ctx, latest, membershipID); ok {
		return []Outcome{out}
	}

	return []Outcome{{Error: "Failed to set expiration", TransID: transID}}
}

// defaultExpiration mirrors the "Default" button of the MemberPress admin:
// created_at plus the membership's billing period.
func (a *AccessController) defaultExpiration(ctx context.Context, txn memberpress.Transaction, membershipID int64) (Outcome, bool) {
	transID := int64(txn.ID)
	created, err := expiration.Parse(txn.CreatedAt)
	if err != nil {
		slog.WarnContext(ctx, "cannot calculate expiration without created_at", "trans_id", transID, "error", err)
		return Outcome{}, false
	}

	ms, err := a.api.GetMembership(ctx, membershipID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch membership details", "membership_id", membershipID, "error", err)
		return Outcome{}, false
	}
	unit, count := ms.BillingPeriod()

	expires, err := expiration.Default(created, unit, count)
	if err != nil {
		slog.WarnContext(ctx, "membership period has no expiration", "membership_id", membershipID, "unit", unit, "count", count, "error", err)
		return Outcome{}, false
	}
	expiresAt := expiration.Format(expires)
	if !a.pushExpiration(ctx, transID, expiresAt) {
		return Outcome{}, false
	}

	slog.InfoContext(ctx, "transaction expiration set by default calculation",
		"trans_id", transID,
		"created_at", txn.CreatedAt,
		"unit", unit,
		"count", count,
		"expires_at", expiresAt,
	)
	return Outcome{
		Success:   true,
		TransID:   transID,
		ExpiresAt: expiresAt,
		Method:    MethodDefaultCalculation,
		Message:   "Expiration calculated and set (created_at + period)",
	}, true
}

func (a *AccessController) pushExpiration(ctx context.Context, transID int64, expiresAt string) bool {
	if err := a.api.UpdateTransaction(ctx, transID, memberpress.TransactionUpdate{ExpiresAt: expiresAt}); err != nil {
		slog.ErrorContext(ctx, "failed to update transaction expiration", "trans_id", transID, "expires_at", expiresAt, "error", err)
		return false
	}
	slog.InfoContext(ctx, "transaction expiration updated", "trans_id", transID, "expires_at", expiresAt)
	return true
}

// latestTransaction picks the highest id. Ties keep the first one seen.
func latestTransaction(txns []memberpress.Transaction) (memberpress.Transaction, bool) {
	var latest memberpress.Transaction
	found := false
	for _, t := range txns {
		if t.ID > latest.ID {
			latest = t
			found = true
		}
	}
	return latest, found
}

func refundLabel(amount *string) string {
	if amount == nil || *amount == "" {
		return "full"
	}
	return *amount
}
