package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newKV() *mapKV { return &mapKV{m: map[string]string{}} }

func (k *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok, nil
}

func (k *mapKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	return nil
}

func (k *mapKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.m[key]; ok {
		return false, nil
	}
	k.m[key] = value
	return true, nil
}

func (k *mapKV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}

type fakeGateway struct {
	tokens   atomic.Int32
	ipns     atomic.Int32
	submits  atomic.Int32
	statuses atomic.Int32

	submitCode int
	statusCode int
	statusDown bool // every status query answers 500 with an error body
	status     map[string]any
	lastSubmit map[string]any
}

func (f *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc(pathToken, func(w http.ResponseWriter, r *http.Request) {
		f.tokens.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["consumer_secret"] != "secret" {
			reply(w, http.StatusOK, map[string]any{"error": map[string]string{"code": "invalid_consumer_key_or_secret_provided"}, "status": "500"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"token": "tok", "expiryDate": time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339Nano), "status": "200"})
	})
	mux.HandleFunc(pathIPN, func(w http.ResponseWriter, r *http.Request) {
		f.ipns.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		reply(w, http.StatusOK, map[string]any{"ipn_id": "ipn-1", "status": "200"})
	})
	mux.HandleFunc(pathSubmit, func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastSubmit)
		if f.submitCode != 0 {
			w.WriteHeader(f.submitCode)
			return
		}
		reply(w, http.StatusOK, map[string]any{
			"order_tracking_id": "T-1", "merchant_reference": f.lastSubmit["id"], "redirect_url": "https://pay/T-1", "status": "200",
		})
	})
	mux.HandleFunc(pathStatus, func(w http.ResponseWriter, r *http.Request) {
		n := f.statuses.Add(1)
		if f.statusDown {
			reply(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"code": "internal_error", "message": "try later"}, "status": "500"})
			return
		}
		if f.statusCode != 0 && n == 1 {
			w.WriteHeader(f.statusCode)
			return
		}
		if r.URL.Query().Get("orderTrackingId") != "T-1" {
			reply(w, http.StatusOK, map[string]any{"error": map[string]string{"code": "invalid_order_tracking_id"}, "status": "500"})
			return
		}
		reply(w, http.StatusOK, f.status)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeGateway, secret string) (*Client, *mapKV) {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	kv := newKV()
	c := New(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: secret,
		CallbackURL:    "http://localhost/payments/callback",
		IPNURL:         "http://localhost/payments/ipn",
		Currency:       "KES",
		Country:        "KE",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		RetryWait:      time.Millisecond,
	}, kv)
	return c, kv
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, LocalPaid, MapStatus("COMPLETED"))
	assert.Equal(t, LocalPaid, MapStatus(" completed "))
	assert.Equal(t, LocalFailed, MapStatus("FAILED"))
	assert.Equal(t, LocalFailed, MapStatus("INVALID"))
	assert.Equal(t, LocalPending, MapStatus("REVERSED"))
	assert.Equal(t, LocalPending, MapStatus("SOMETHING_NEW"))
	assert.False(t, Known("SOMETHING_NEW"))
}

func TestSubmitOrderCachesTokenAndIPN(t *testing.T) {
	f := &fakeGateway{}
	c, _ := newTestClient(t, f, "secret")
	req := ChargeRequest{MerchantReference: "o-1", Amount: decimal.RequireFromString("100.50"), Description: "order o-1"}

	s, err := c.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	_, err = c.SubmitOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "T-1", s.TrackingID)
	assert.Equal(t, "https://pay/T-1", s.RedirectURL)
	assert.Equal(t, int32(1), f.tokens.Load())
	assert.Equal(t, int32(1), f.ipns.Load())
	assert.Equal(t, int32(2), f.submits.Load())
	assert.Equal(t, 100.5, f.lastSubmit["amount"])
	assert.Equal(t, "ipn-1", f.lastSubmit["notification_id"])
	assert.Equal(t, "http://localhost/payments/callback", f.lastSubmit["callback_url"])
}

func TestTokenFailureIsAuthError(t *testing.T) {
	f := &fakeGateway{}
	c, _ := newTestClient(t, f, "wrong")

	_, err := c.Token(context.Background())

	assert.True(t, errors.Is(err, apperr.ErrGatewayAuthFailed))
}

func TestSubmitServerErrorIsAmbiguousAndNotRetried(t *testing.T) {
	f := &fakeGateway{submitCode: http.StatusInternalServerError}
	c, _ := newTestClient(t, f, "secret")

	_, err := c.SubmitOrder(context.Background(), ChargeRequest{MerchantReference: "o-1", Amount: decimal.NewFromInt(10)})

	assert.True(t, errors.Is(err, ErrSubmitAmbiguous))
	assert.True(t, errors.Is(err, apperr.ErrGatewayUnavailable))
	assert.Equal(t, int32(1), f.submits.Load())
}

func TestSubmitUnavailableIsRetriedThenDefinite(t *testing.T) {
	f := &fakeGateway{submitCode: http.StatusServiceUnavailable}
	c, _ := newTestClient(t, f, "secret")

	_, err := c.SubmitOrder(context.Background(), ChargeRequest{MerchantReference: "o-1", Amount: decimal.NewFromInt(10)})

	assert.True(t, errors.Is(err, apperr.ErrGatewayUnavailable))
	assert.False(t, errors.Is(err, ErrSubmitAmbiguous))
	assert.Equal(t, int32(3), f.submits.Load())
}

func TestStatusRetriesServerErrors(t *testing.T) {
	f := &fakeGateway{statusCode: http.StatusBadGateway, status: map[string]any{
		"payment_status_description": "Completed", "confirmation_code": "ABC123", "amount": 100,
		"merchant_reference": "o-1", "status_code": 1, "status": "200",
	}}
	c, _ := newTestClient(t, f, "secret")

	st, err := c.Status(context.Background(), "T-1")

	require.NoError(t, err)
	assert.Equal(t, LocalPaid, st.Local())
	assert.Equal(t, "ABC123", st.ConfirmationCode)
	assert.Equal(t, "o-1", st.MerchantReference)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Amount))
	assert.Equal(t, int32(2), f.statuses.Load())
}

func TestStatusUnknownTracking(t *testing.T) {
	f := &fakeGateway{}
	c, _ := newTestClient(t, f, "secret")

	_, err := c.Status(context.Background(), "T-404")

	assert.True(t, errors.Is(err, apperr.ErrUnknownTracking))
}

func TestStatusServerErrorIsNotUnknownTracking(t *testing.T) {
	f := &fakeGateway{statusDown: true}
	c, _ := newTestClient(t, f, "secret")

	_, err := c.Status(context.Background(), "T-1")

	assert.True(t, errors.Is(err, apperr.ErrGatewayUnavailable))
	assert.False(t, errors.Is(err, apperr.ErrUnknownTracking))
	assert.Equal(t, int32(3), f.statuses.Load())
}

func TestReadyFetchesTokenAndIPNOnce(t *testing.T) {
	f := &fakeGateway{}
	c, _ := newTestClient(t, f, "secret")

	require.NoError(t, c.Ready(context.Background()))
	require.NoError(t, c.Ready(context.Background()))

	assert.Equal(t, int32(1), f.tokens.Load())
	assert.Equal(t, int32(1), f.ipns.Load())
	assert.Equal(t, int32(0), f.submits.Load())
}

func TestReadyBadCredentials(t *testing.T) {
	f := &fakeGateway{}
	c, _ := newTestClient(t, f, "wrong")

	err := c.Ready(context.Background())

	assert.True(t, errors.Is(err, apperr.ErrGatewayAuthFailed))
	assert.Equal(t, int32(0), f.ipns.Load())
}
