package memberpress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]interface{}
}

type fakeSite struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		APIKey: r.Header.Get("MEMBERPRESS-API-KEY"),
	}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	f.handler(w, r)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeSite) {
	t.Helper()
	site := &fakeSite{handler: handler}
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "key-123"}, srv.Client()), site
}

func TestListTransactions(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[
			{"id": 7, "status": "complete", "total": "29.00", "created_at": "2025-01-31 10:00:00", "expires_at": "0000-00-00 00:00:00", "gateway": "manual", "member": {"id": 3}, "membership": 12},
			{"id": "9", "status": "complete", "total": 49, "expires_at": null, "gateway": "stripe", "member": 3, "membership": {"id": 12, "title": "Gold"}}
		]`))
	})

	txns, err := client.ListTransactions(context.Background(), TransactionFilter{Member: 3, Membership: 12, Status: "complete"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, ID(7), txns[0].ID)
	assert.Equal(t, Text("29.00"), txns[0].Total)
	assert.Equal(t, ID(3), txns[0].Member.ID)
	assert.Equal(t, ID(12), txns[0].Membership.ID)
	assert.Equal(t, ID(9), txns[1].ID)
	assert.Equal(t, Text("49"), txns[1].Total)
	assert.Equal(t, Text(""), txns[1].ExpiresAt)
	assert.Equal(t, ID(12), txns[1].Membership.ID)

	require.Len(t, site.requests, 1)
	req := site.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/wp-json/mp/v1/transactions", req.Path)
	assert.Equal(t, "member=3&membership=12&per_page=100&status=complete", req.Query)
	assert.Equal(t, "key-123", req.APIKey)
}

func TestListNonArrayIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "nothing here"}`))
	})

	subs, err := client.ListSubscriptions(context.Background(), SubscriptionFilter{Member: 1, Membership: 2, Status: "active"})
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestListSkipsMalformedRows(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": "abc", "status": "active"},
			{"id": 4, "status": "active"},
			{"id": 5, "status": "active", "expires_at": {"date": "2025-01-01"}}
		]`))
	})

	subs, err := client.ListSubscriptions(context.Background(), SubscriptionFilter{Member: 1, Membership: 2, Status: "active"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ID(4), subs[0].ID)
}

func TestRefundTransaction(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 9, "status": "refunded", "refunded_amount": "25.00", "total": "49.00"}`))
	})

	amount := "25.00"
	res, err := client.RefundTransaction(context.Background(), 9, &amount)
	require.NoError(t, err)
	assert.Equal(t, "25.00", res.RefundedAmount)
	assert.Equal(t, "49.00", res.Total)

	req := site.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/wp-json/mp/v1/transactions/9/refund", req.Path)
	assert.Equal(t, true, req.Body["send_notification"])
	assert.Equal(t, "25.00", req.Body["amount"])
}

func TestRefundTransactionFullOmitsAmount(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 49}`))
	})

	res, err := client.RefundTransaction(context.Background(), 9, nil)
	require.NoError(t, err)
	assert.Equal(t, "", res.RefundedAmount)
	assert.Equal(t, "49", res.Total)
	assert.NotContains(t, site.requests[0].Body, "amount")
}

func TestRemoteErrors(t *testing.T) {
	t.Run("status error carries remote message", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": "mp_err", "message": "Gateway does not support refunds"}`))
		})
		_, err := client.RefundTransaction(context.Background(), 9, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, StatusCode(err))
		assert.Equal(t, "Gateway does not support refunds", Message(err))
	})

	t.Run("empty success body is a failure", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		_, err := client.CancelSubscription(context.Background(), 4)
		require.Error(t, err)
		assert.Equal(t, http.StatusOK, StatusCode(err))
		assert.Equal(t, "Unknown error", Message(err))
	})

	t.Run("non-empty array body is a success", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id": 9}]`))
		})
		res, err := client.RefundTransaction(context.Background(), 9, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Total)
	})

	t.Run("empty array or false body is a failure", func(t *testing.T) {
		for _, body := range []string{`[]`, `false`, `null`, `""`} {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := client.RefundTransaction(context.Background(), 9, nil)
			require.Error(t, err, body)
			assert.Equal(t, "Unknown error", Message(err))
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		base := srv.URL
		srv.Close()
		client := NewClient(Config{BaseURL: base, APIKey: "k", ReadTimeout: time.Second}, nil)
		_, err := client.ListTransactions(context.Background(), TransactionFilter{Member: 1})
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Equal(t, 0, StatusCode(err))
	})

	t.Run("missing key", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "https://example.com"}, nil)
		assert.ErrorIs(t, client.Ping(context.Background()), ErrNotConfigured)
	})
}

func TestCancelSubscription(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 4, "status": "cancelled", "expires_at": "2026-01-01 00:00:00"}`))
	})

	res, err := client.CancelSubscription(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", res.Status)
	assert.Equal(t, "2026-01-01 00:00:00", res.ExpiresAt)
	assert.Equal(t, "/wp-json/mp/v1/subscriptions/4/cancel", site.requests[0].Path)
	assert.Equal(t, true, site.requests[0].Body["send_notification"])
}

func TestUpdateTransaction(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 9}`))
	})

	err := client.UpdateTransaction(context.Background(), 9, TransactionUpdate{ExpiresAt: "2025-02-28 10:00:00"})
	require.NoError(t, err)
	req := site.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, map[string]interface{}{"expires_at": "2025-02-28 10:00:00"}, req.Body)
}

func TestGetMember(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "3", "email": "ann@example.com", "active_memberships": [{"id": "12"}]}`))
	})

	m, err := client.GetMember(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, ID(3), m.ID)
	assert.True(t, m.HasMembership(12))
	assert.False(t, m.HasMembership(13))
	assert.Equal(t, "/wp-json/mp/v1/members/3", site.requests[0].Path)
}

func TestFindMemberByEmail(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 1, "email": "ann.other@example.com"},
			{"id": 2, "email": "Ann@Example.com", "active_memberships": [{"id": 12, "title": "Gold"}]}
		]`))
	})

	m, err := client.FindMemberByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, ID(2), m.ID)
	assert.True(t, m.HasMembership(12))
	assert.Equal(t, "/wp-json/mp/v1/members", site.requests[0].Path)

	_, err = client.FindMemberByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

type mapCache struct {
	items map[int64]Membership
}

func (c *mapCache) Get(_ context.Context, id int64) (Membership, bool) {
	m, ok := c.items[id]
	return m, ok
}

func (c *mapCache) Set(_ context.Context, m Membership) {
	c.items[int64(m.ID)] = m
}

func TestGetMembershipUsesCache(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 12, "title": "Gold", "period": 3, "period_type": "months"}`))
	})
	cache := &mapCache{items: map[int64]Membership{}}
	client.WithCache(cache)

	m, err := client.GetMembership(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "Gold", m.Title)

	_, err = client.GetMembership(context.Background(), 12)
	require.NoError(t, err)
	assert.Len(t, site.requests, 1)
}

func TestBillingPeriod(t *testing.T) {
	tests := []struct {
		name      string
		m         Membership
		wantUnit  string
		wantCount int
	}{
		{"period and period_type", Membership{Period: "3", PeriodType: "months"}, "months", 3},
		{"legacy unit in period", Membership{Period: "year", PeriodCount: "2"}, "year", 2},
		{"legacy unit without count", Membership{Period: "week"}, "week", 1},
		{"nothing set", Membership{}, "month", 1},
		{"bad count", Membership{Period: "x", PeriodType: "days"}, "days", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, count := tt.m.BillingPeriod()
			assert.Equal(t, tt.wantUnit, unit)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestPing(t *testing.T) {
	client, site := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("MEMBERPRESS-API-KEY") != "key-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id": 1}`))
	})

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "/wp-json/mp/v1/me", site.requests[0].Path)
}
