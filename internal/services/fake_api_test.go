package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
)

type call struct {
	Op     string
	ID     int64
	Update memberpress.TransactionUpdate
	Amount *string
}

// fakeAPI records every call and answers from canned data.
type fakeAPI struct {
	mu    sync.Mutex
	calls []call

	members    map[string]memberpress.Member
	memberErr  error
	txns       []memberpress.Transaction
	txnErr     error
	subs       []memberpress.Subscription
	subErr     error
	refund     memberpress.RefundResult
	refundErr  error
	cancelErr  map[int64]error
	cancelRes  map[int64]memberpress.CancelResult
	updateErrs []error
	membership memberpress.Membership
	msErr      error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		members: map[string]memberpress.Member{
			"ann@example.com": {ID: 3, Email: "ann@example.com"},
		},
		cancelErr: map[int64]error{},
		cancelRes: map[int64]memberpress.CancelResult{},
	}
}

func (f *fakeAPI) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeAPI) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Op)
	}
	return out
}

func (f *fakeAPI) updates() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == "update" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) ListTransactions(_ context.Context, _ memberpress.TransactionFilter) ([]memberpress.Transaction, error) {
	f.record(call{Op: "list_transactions"})
	return f.txns, f.txnErr
}

func (f *fakeAPI) UpdateTransaction(_ context.Context, id int64, u memberpress.TransactionUpdate) error {
	f.record(call{Op: "update", ID: id, Update: u})
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updateErrs) == 0 {
		return nil
	}
	err := f.updateErrs[0]
	f.updateErrs = f.updateErrs[1:]
	return err
}

func (f *fakeAPI) RefundTransaction(_ context.Context, id int64, amount *string) (memberpress.RefundResult, error) {
	f.record(call{Op: "refund", ID: id, Amount: amount})
	return f.refund, f.refundErr
}

func (f *fakeAPI) ListSubscriptions(_ context.Context, _ memberpress.SubscriptionFilter) ([]memberpress.Subscription, error) {
	f.record(call{Op: "list_subscriptions"})
	return f.subs, f.subErr
}

func (f *fakeAPI) CancelSubscription(_ context.Context, id int64) (memberpress.CancelResult, error) {
	f.record(call{Op: "cancel", ID: id})
	if err := f.cancelErr[id]; err != nil {
		return memberpress.CancelResult{}, err
	}
	return f.cancelRes[id], nil
}

func (f *fakeAPI) GetMembership(_ context.Context, id int64) (memberpress.Membership, error) {
	f.record(call{Op: "get_membership", ID: id})
	return f.membership, f.msErr
}

func (f *fakeAPI) FindMemberByEmail(_ context.Context, email string) (memberpress.Member, error) {
	f.record(call{Op: "find_member"})
	if f.memberErr != nil {
		return memberpress.Member{}, f.memberErr
	}
	m, ok := f.members[email]
	if !ok {
		return memberpress.Member{}, memberpress.ErrMemberNotFound
	}
	return m, nil
}

func (f *fakeAPI) GetMember(_ context.Context, id int64) (memberpress.Member, error) {
	f.record(call{Op: "get_member", ID: id})
	for _, m := range f.members {
		if int64(m.ID) == id {
			return m, nil
		}
	}
	return memberpress.Member{}, apiError(404, "Member not found")
}

func (f *fakeAPI) Ping(context.Context) error {
	f.record(call{Op: "ping"})
	return nil
}

func apiError(code int, msg string) error {
	return &memberpress.APIError{StatusCode: code, Message: msg}
}

func transportError() error {
	return fmt.Errorf("%w: connection refused", memberpress.ErrTransport)
}
