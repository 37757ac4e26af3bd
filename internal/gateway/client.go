package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/redisx"
	"github.com/go-resty/resty/v2"
)

// ErrSubmitAmbiguous marks a charge submission whose outcome is unknown: the
// request may have reached the gateway. It must not be retried blindly.
var ErrSubmitAmbiguous = errors.New("charge submission outcome unknown")

const (
	pathToken  = "/api/Auth/RequestToken"
	pathIPN    = "/api/URLSetup/RegisterIPN"
	pathSubmit = "/api/Transactions/SubmitOrderRequest"
	pathStatus = "/api/Transactions/GetTransactionStatus"

	// refresh tokens a little before the gateway expires them
	tokenSkew = 30 * time.Second
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	IPNURL         string
	IPNID          string
	Currency       string
	Country        string
	Timeout        time.Duration
	MaxRetries     int
	// RetryWait is the first backoff step; later steps double up to 2s.
	RetryWait time.Duration
}

type Client struct {
	cfg Config
	kv  redisx.KV
	now func() time.Time

	// reads retries transport errors, 429 and 5xx: token, IPN setup and
	// status queries are safe to repeat.
	reads *resty.Client
	// submits retries only answers that prove no charge was created.
	submits *resty.Client

	mu sync.Mutex // serialises token refresh and IPN registration
}

func New(cfg Config, kv redisx.KV) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 200 * time.Millisecond
	}
	base := func() *resty.Client {
		return resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json").
			SetRetryCount(cfg.MaxRetries).
			SetRetryWaitTime(cfg.RetryWait).
			SetRetryMaxWaitTime(2 * time.Second)
	}
	return &Client{
		cfg: cfg,
		kv:  kv,
		now: time.Now,
		reads: base().AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}),
		submits: base().AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() == http.StatusServiceUnavailable)
		}),
	}
}

// Token returns a cached bearer token or requests a new one.
func (c *Client) Token(ctx context.Context) (string, error) {
	key := fmt.Sprintf(redisx.KeyGatewayToken, c.cfg.ConsumerKey)
	if tok, ok, err := c.kv.Get(ctx, key); err == nil && ok {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok, err := c.kv.Get(ctx, key); err == nil && ok {
		return tok, nil
	}

	var out tokenResponse
	resp, err := c.reads.R().SetContext(ctx).
		SetBody(tokenRequest{ConsumerKey: c.cfg.ConsumerKey, ConsumerSecret: c.cfg.ConsumerSecret}).
		SetResult(&out).SetError(&out).
		Post(pathToken)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGatewayAuthFailed, err, "request gateway token")
	}
	if resp.IsError() || out.Error != nil || out.Token == "" {
		return "", apperr.Errorf(apperr.ErrGatewayAuthFailed, "request gateway token: http %d %s", resp.StatusCode(), describe(out.Error, out.Message))
	}

	ttl := redisx.TTLGatewayToken
	if exp, err := time.Parse(time.RFC3339Nano, out.ExpiryDate); err == nil {
		if d := exp.Sub(c.now()) - tokenSkew; d > 0 {
			ttl = d
		}
	}
	if err := c.kv.Set(ctx, key, out.Token, ttl); err != nil {
		log.Printf("gateway token cache: %v", err)
	}
	return out.Token, nil
}

func (c *Client) dropToken(ctx context.Context) {
	_ = c.kv.Delete(ctx, fmt.Sprintf(redisx.KeyGatewayToken, c.cfg.ConsumerKey))
}

// IPNID returns the notification id for the configured IPN URL, registering
// the URL with the gateway the first time.
func (c *Client) IPNID(ctx context.Context) (string, error) {
	if c.cfg.IPNID != "" {
		return c.cfg.IPNID, nil
	}
	key := fmt.Sprintf(redisx.KeyGatewayIPN, c.cfg.IPNURL)
	if id, ok, err := c.kv.Get(ctx, key); err == nil && ok {
		return id, nil
	}

	tok, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok, err := c.kv.Get(ctx, key); err == nil && ok {
		return id, nil
	}

	var out ipnResponse
	resp, err := c.reads.R().SetContext(ctx).SetAuthToken(tok).
		SetBody(ipnRequest{URL: c.cfg.IPNURL, IPNNotificationType: "GET"}).
		SetResult(&out).SetError(&out).
		Post(pathIPN)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrGatewayUnavailable, err, "register ipn %s", c.cfg.IPNURL)
	}
	if resp.IsError() || out.Error != nil || out.IPNID == "" {
		return "", apperr.Errorf(apperr.ErrGatewayUnavailable, "register ipn %s: http %d %s", c.cfg.IPNURL, resp.StatusCode(), describe(out.Error, ""))
	}
	if err := c.kv.Set(ctx, key, out.IPNID, 0); err != nil {
		log.Printf("gateway ipn cache: %v", err)
	}
	log.Printf("gateway ipn registered: url=%s ipn_id=%s", c.cfg.IPNURL, out.IPNID)
	return out.IPNID, nil
}

// Ready makes sure a token and the IPN id are available, both cached after
// the first call.
func (c *Client) Ready(ctx context.Context) error {
	if _, err := c.Token(ctx); err != nil {
		return err
	}
	_, err := c.IPNID(ctx)
	return err
}

// SubmitOrder opens a charge session. Errors wrapping ErrSubmitAmbiguous mean
// the charge may exist and has to be settled through status queries.
func (c *Client) SubmitOrder(ctx context.Context, req ChargeRequest) (Session, error) {
	ipnID, err := c.IPNID(ctx)
	if err != nil {
		return Session{}, err
	}
	body := submitRequest{
		ID:             req.MerchantReference,
		Currency:       c.cfg.Currency,
		Amount:         req.Amount.InexactFloat64(),
		Description:    req.Description,
		CallbackURL:    c.cfg.CallbackURL,
		NotificationID: ipnID,
		BillingAddress: billingAddress{
			EmailAddress: req.Customer.Email,
			PhoneNumber:  req.Customer.Phone,
			CountryCode:  c.cfg.Country,
			FirstName:    req.Customer.FirstName,
			LastName:     req.Customer.LastName,
			Line1:        req.Customer.Address,
		},
	}

	var out submitResponse
	resp, err := c.authorized(ctx, func(tok string) (*resty.Response, error) {
		out = submitResponse{}
		return c.submits.R().SetContext(ctx).SetAuthToken(tok).
			SetBody(body).SetResult(&out).SetError(&out).
			Post(pathSubmit)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindExternal {
			return Session{}, err
		}
		return Session{}, apperr.Wrap(apperr.ErrGatewayUnavailable, errors.Join(ErrSubmitAmbiguous, err),
			"submit order %s", req.MerchantReference)
	}
	switch {
	case out.Error != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == http.StatusServiceUnavailable:
		return Session{}, apperr.Errorf(apperr.ErrGatewayUnavailable, "submit order %s rejected: http %d %s",
			req.MerchantReference, resp.StatusCode(), describe(out.Error, ""))
	case resp.StatusCode() >= 500 || out.OrderTrackingID == "":
		return Session{}, apperr.Wrap(apperr.ErrGatewayUnavailable, ErrSubmitAmbiguous, "submit order %s: http %d",
			req.MerchantReference, resp.StatusCode())
	case resp.IsError():
		return Session{}, apperr.Errorf(apperr.ErrGatewayUnavailable, "submit order %s rejected: http %d",
			req.MerchantReference, resp.StatusCode())
	}
	return Session{
		TrackingID:        out.OrderTrackingID,
		MerchantReference: out.MerchantReference,
		RedirectURL:       out.RedirectURL,
	}, nil
}

// Status asks the gateway for the authoritative state of a session.
func (c *Client) Status(ctx context.Context, trackingID string) (Status, error) {
	if trackingID == "" {
		return Status{}, apperr.Validation("tracking id is required")
	}
	var out statusResponse
	resp, err := c.authorized(ctx, func(tok string) (*resty.Response, error) {
		out = statusResponse{}
		return c.reads.R().SetContext(ctx).SetAuthToken(tok).
			SetQueryParam("orderTrackingId", trackingID).
			SetResult(&out).SetError(&out).
			Get(pathStatus)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindExternal {
			return Status{}, err
		}
		return Status{}, apperr.Wrap(apperr.ErrGatewayUnavailable, err, "status of %s", trackingID)
	}
	if resp.StatusCode() >= 500 {
		return Status{}, apperr.Errorf(apperr.ErrGatewayUnavailable, "status of %s: http %d %s", trackingID, resp.StatusCode(), describe(out.Error, ""))
	}
	if resp.StatusCode() == http.StatusNotFound ||
		(out.Error != nil && out.Error.Code != "" && out.PaymentStatusDescription == "") {
		return Status{}, apperr.Errorf(apperr.ErrUnknownTracking, "gateway has no record of %s: %s", trackingID, describe(out.Error, ""))
	}
	if resp.IsError() {
		return Status{}, apperr.Errorf(apperr.ErrGatewayUnavailable, "status of %s: http %d", trackingID, resp.StatusCode())
	}
	return Status{
		TrackingID:        trackingID,
		Description:       out.PaymentStatusDescription,
		ConfirmationCode:  out.ConfirmationCode,
		PaymentMethod:     out.PaymentMethod,
		Amount:            out.Amount,
		Currency:          out.Currency,
		MerchantReference: out.MerchantReference,
		StatusCode:        out.StatusCode,
	}, nil
}

// authorized runs call with a bearer token and, on 401, once more with a
// fresh token.
func (c *Client) authorized(ctx context.Context, call func(tok string) (*resty.Response, error)) (*resty.Response, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := call(tok)
	if err != nil || resp.StatusCode() != http.StatusUnauthorized {
		return resp, err
	}
	c.dropToken(ctx)
	if tok, err = c.Token(ctx); err != nil {
		return nil, err
	}
	return call(tok)
}

func describe(e *apiError, fallback string) string {
	if e == nil {
		return fallback
	}
	return strings.TrimSpace(e.Code + " " + e.Message)
}
