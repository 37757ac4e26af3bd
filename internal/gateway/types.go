package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LocalStatus is the gateway status folded into the local taxonomy.
type LocalStatus string

const (
	LocalPending LocalStatus = "pending"
	LocalPaid    LocalStatus = "paid"
	LocalFailed  LocalStatus = "failed"
)

// MapStatus folds the gateway vocabulary; anything unrecognised is pending.
func MapStatus(description string) LocalStatus {
	switch strings.ToUpper(strings.TrimSpace(description)) {
	case "COMPLETED":
		return LocalPaid
	case "FAILED", "INVALID":
		return LocalFailed
	default:
		return LocalPending
	}
}

// Known reports whether description is part of the vocabulary MapStatus
// understands. Unknown values are logged by callers.
func Known(description string) bool {
	switch strings.ToUpper(strings.TrimSpace(description)) {
	case "COMPLETED", "FAILED", "INVALID", "PENDING", "REVERSED", "":
		return true
	}
	return false
}

type Customer struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address   string `json:"address,omitempty"`
}

type ChargeRequest struct {
	// MerchantReference is echoed back by the gateway; the order id.
	MerchantReference string
	Amount            decimal.Decimal
	Description       string
	Customer          Customer
}

type Session struct {
	TrackingID        string `json:"tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
}

type Status struct {
	TrackingID        string
	Description       string
	ConfirmationCode  string
	PaymentMethod     string
	Amount            decimal.Decimal
	Currency          string
	MerchantReference string
	StatusCode        int
}

func (s Status) Local() LocalStatus { return MapStatus(s.Description) }

// wire formats

type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Error      *apiError `json:"error"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}

type ipnRequest struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
}

type ipnResponse struct {
	IPNID  string    `json:"ipn_id"`
	URL    string    `json:"url"`
	Error  *apiError `json:"error"`
	Status string    `json:"status"`
}

type billingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Line1        string `json:"line_1,omitempty"`
}

type submitRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress billingAddress `json:"billing_address"`
}

type submitResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Error             *apiError `json:"error"`
	Status            string    `json:"status"`
}

type statusResponse struct {
	PaymentMethod            string          `json:"payment_method"`
	Amount                   decimal.Decimal `json:"amount"`
	ConfirmationCode         string          `json:"confirmation_code"`
	PaymentStatusDescription string          `json:"payment_status_description"`
	Currency                 string          `json:"currency"`
	MerchantReference        string          `json:"merchant_reference"`
	StatusCode               int             `json:"status_code"`
	Error                    *apiError       `json:"error"`
	Status                   string          `json:"status"`
}
