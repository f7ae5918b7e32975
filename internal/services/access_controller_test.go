package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/thrivecart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func emptyPayload() thrivecart.Payload { return thrivecart.NewPayload(nil) }

func TestRefundFullSuccess(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{
		{ID: 5, Total: "10.00"},
		{ID: 9, Total: "49.00"},
		{ID: 7, Total: "20.00"},
	}
	api.refund = memberpress.RefundResult{Total: "49.00"}

	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	require.Len(t, out, 1)
	o := out[0]
	assert.True(t, o.Success)
	assert.Equal(t, int64(9), o.TransID)
	assert.Equal(t, "refunded", o.Status)
	assert.Equal(t, "49.00", o.RefundedAmount)
	assert.Equal(t, "49.00", o.OriginalAmount)
	require.NotNil(t, o.Partial)
	assert.False(t, *o.Partial)
	assert.Equal(t, "automatic", o.SubscriptionCancelled)
	assert.Equal(t, "automatic", o.AccessRevoked)
	assert.True(t, o.StatisticsUpdated)
	assert.True(t, o.EmailSent)

	assert.Equal(t, []string{"list_transactions", "refund"}, api.ops())
	assert.Nil(t, api.calls[1].Amount)
}

func TestRefundPartialUsesRemoteAmount(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9, Total: "49.00"}}
	api.refund = memberpress.RefundResult{RefundedAmount: "25.00", Total: "49.00"}

	amount := "25.00"
	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, &amount)
	require.Len(t, out, 1)
	assert.True(t, *out[0].Partial)
	assert.Equal(t, "25.00", out[0].RefundedAmount)
	require.NotNil(t, api.calls[1].Amount)
	assert.Equal(t, "25.00", *api.calls[1].Amount)
}

func TestRefundPartialFallsBackToRequestedAmount(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9}}
	api.refund = memberpress.RefundResult{Body: map[string]interface{}{"ok": true}}

	amount := "12.50"
	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, &amount)
	assert.Equal(t, "12.50", out[0].RefundedAmount)
	assert.Equal(t, "0.00", out[0].OriginalAmount)
}

func TestRefundListFailures(t *testing.T) {
	api := newFakeAPI()
	api.txnErr = transportError()
	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Error, "Failed to fetch transactions")

	api = newFakeAPI()
	out = NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "No complete transactions found to refund", out[0].Error)
	assert.Equal(t, []string{"list_transactions"}, api.ops())

	api = newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 0}}
	out = NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	assert.Equal(t, "No valid transaction found", out[0].Error)
}

func TestRefundFallbackRevokesAccess(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9}}
	api.refundErr = apiError(400, "Gateway does not support refunds")

	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	require.Len(t, out, 1)
	o := out[0]
	assert.True(t, o.Success)
	assert.Equal(t, MethodFallback, o.Method)
	assert.Equal(t, "Transaction marked as refunded (fallback method)", o.Message)
	assert.Equal(t, "immediate", o.AccessRevoked)
	assert.Equal(t, "2025-06-01 12:00:00", o.ExpiresAt)

	updates := api.updates()
	require.Len(t, updates, 2)
	assert.Equal(t, memberpress.TransactionUpdate{Status: "refunded"}, updates[0].Update)
	assert.Equal(t, memberpress.TransactionUpdate{ExpiresAt: "2025-06-01 12:00:00"}, updates[1].Update)
	assert.Equal(t, int64(9), updates[1].ID)
}

func TestRefundFallbackFailure(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9}}
	api.refundErr = transportError()
	api.updateErrs = []error{apiError(500, "boom")}

	out := NewAccessController(api, clock).Refund(context.Background(), 3, 12, nil)
	require.Len(t, out, 1)
	assert.False(t, out[0].Success)
	assert.Equal(t, "Refund API failed and fallback failed", out[0].Error)
	assert.Equal(t, int64(9), out[0].TransID)
	assert.Equal(t, 500, out[0].Code)
	assert.Len(t, api.updates(), 1)
}

func TestCancelActiveSubscriptions(t *testing.T) {
	api := newFakeAPI()
	api.subs = []memberpress.Subscription{
		{ID: 4, Status: "active"},
		{ID: 5, Status: "cancelled"},
		{ID: 6, Status: "active"},
		{ID: 8, Status: "active"},
	}
	api.cancelRes[4] = memberpress.CancelResult{Status: "cancelled", ExpiresAt: "2025-07-01 00:00:00"}
	api.cancelErr[6] = apiError(409, "Already cancelled")
	api.cancelRes[8] = memberpress.CancelResult{}

	out := NewAccessController(api, clock).Cancel(context.Background(), 3, 12, emptyPayload())
	require.Len(t, out, 3)

	assert.True(t, out[0].Success)
	assert.Equal(t, int64(4), out[0].SubID)
	assert.Equal(t, "2025-07-01 00:00:00", out[0].ExpiresAt)
	assert.True(t, out[0].AccessUntilEndOfPeriod)
	assert.True(t, out[0].AutoBillingStopped)

	assert.Equal(t, "Cancellation API failed: Already cancelled", out[1].Error)
	assert.Equal(t, int64(6), out[1].SubID)
	assert.Equal(t, 409, out[1].Code)

	assert.True(t, out[2].Success)
	assert.Equal(t, "cancelled", out[2].Status, "status defaults when the remote omits it")

	assert.Equal(t, []string{"list_subscriptions", "cancel", "cancel", "cancel"}, api.ops())
}

func TestCancelFallsBackToNonRecurring(t *testing.T) {
	tests := []struct {
		name string
		subs []memberpress.Subscription
		err  error
	}{
		{name: "transport failure", err: transportError()},
		{name: "no subscriptions"},
		{name: "none active", subs: []memberpress.Subscription{{ID: 4, Status: "expired"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.subs = tt.subs
			api.subErr = tt.err
			api.txns = []memberpress.Transaction{{ID: 9, ExpiresAt: "2025-12-31 23:59:59", Gateway: "manual"}}

			out := NewAccessController(api, clock).Cancel(context.Background(), 3, 12, emptyPayload())
			require.Len(t, out, 1)
			assert.Equal(t, MethodExistingExpiration, out[0].Method)
			assert.Empty(t, api.updates())
		})
	}
}

func TestNonRecurringNoTransactions(t *testing.T) {
	api := newFakeAPI()
	out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
	require.Len(t, out, 1)
	assert.Equal(t, "No transactions found", out[0].Message)
	assert.Empty(t, out[0].Error)
	assert.False(t, out[0].Success)
}

func TestNonRecurringExistingExpiration(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{
		{ID: 2, ExpiresAt: "2020-01-01 00:00:00"},
		{ID: 9, ExpiresAt: "2025-06-01 12:00:01", Gateway: "manual"},
	}

	out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, int64(9), out[0].TransID)
	assert.Equal(t, "manual", out[0].Gateway)
	assert.Equal(t, "2025-06-01 12:00:01", out[0].ExpiresAt)
	assert.Empty(t, api.updates())
}

func TestNonRecurringFromWebhookPeriodEnd(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9, ExpiresAt: "0000-00-00 00:00:00"}}
	p := thrivecart.NewPayload(url.Values{"subscription[billing_period_end]": {"1767225600"}})

	out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, p)
	require.Len(t, out, 1)
	assert.Equal(t, MethodWebhookPeriodEnd, out[0].Method)
	assert.Equal(t, "Expiration set from ThriveCart webhook", out[0].Message)
	assert.Equal(t, "2026-01-01 00:00:00", out[0].ExpiresAt)

	updates := api.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "2026-01-01 00:00:00", updates[0].Update.ExpiresAt)
}

func TestNonRecurringDefaultCalculation(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9, ExpiresAt: "Never", CreatedAt: "2025-01-31 09:15:00"}}
	api.membership = memberpress.Membership{ID: 12, Period: "1", PeriodType: "months"}

	out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, MethodDefaultCalculation, out[0].Method)
	assert.Equal(t, "2025-02-28 09:15:00", out[0].ExpiresAt)
	assert.Equal(t, []string{"list_transactions", "get_membership", "update"}, api.ops())
}

func TestNonRecurringWebhookFailureFallsToDefault(t *testing.T) {
	api := newFakeAPI()
	api.txns = []memberpress.Transaction{{ID: 9, CreatedAt: "2025-03-15 00:00:00"}}
	api.membership = memberpress.Membership{Period: "year"}
	api.updateErrs = []error{apiError(500, "boom")}
	p := thrivecart.NewPayload(url.Values{"subscription[billing_period_end]": {"1767225600"}})

	out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, p)
	require.Len(t, out, 1)
	assert.Equal(t, MethodDefaultCalculation, out[0].Method)
	assert.Equal(t, "2026-03-15 00:00:00", out[0].ExpiresAt)
}

func TestNonRecurringFailures(t *testing.T) {
	t.Run("update rejected", func(t *testing.T) {
		api := newFakeAPI()
		api.txns = []memberpress.Transaction{{ID: 9, CreatedAt: "2025-03-15 00:00:00"}}
		api.updateErrs = []error{apiError(500, "boom")}

		out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
		require.Len(t, out, 1)
		assert.Equal(t, "Failed to set expiration", out[0].Error)
		assert.Equal(t, int64(9), out[0].TransID)
	})

	t.Run("no created_at", func(t *testing.T) {
		api := newFakeAPI()
		api.txns = []memberpress.Transaction{{ID: 9}}

		out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
		assert.Equal(t, "Failed to set expiration", out[0].Error)
		assert.Empty(t, api.updates())
	})

	t.Run("membership lookup fails", func(t *testing.T) {
		api := newFakeAPI()
		api.txns = []memberpress.Transaction{{ID: 9, CreatedAt: "2025-03-15 00:00:00"}}
		api.msErr = transportError()

		out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
		assert.Equal(t, "Failed to set expiration", out[0].Error)
	})

	t.Run("list fails", func(t *testing.T) {
		api := newFakeAPI()
		api.txnErr = transportError()

		out := NewAccessController(api, clock).HandleNonRecurring(context.Background(), 3, 12, emptyPayload())
		assert.Equal(t, "Failed to fetch transactions", out[0].Error)
	})
}

func TestLatestTransactionTieKeepsFirst(t *testing.T) {
	txns := []memberpress.Transaction{
		{ID: 9, Gateway: "first"},
		{ID: 9, Gateway: "second"},
		{ID: 3},
	}
	got, ok := latestTransaction(txns)
	require.True(t, ok)
	assert.Equal(t, "first", got.Gateway)
}
