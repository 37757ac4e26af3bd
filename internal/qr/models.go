package qr

import "time"

type Token struct {
	ID            string     `json:"id"`
	BusinessID    string     `json:"business_id"`
	Code          string     `json:"code"`
	UserID        string     `json:"user_id,omitempty"` // empty while unbound
	IsActive      bool       `json:"is_active"`
	ScanCount     int        `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t Token) Bound() bool { return t.UserID != "" }

// Binding is what a resolved token authorizes: a user acting at a business.
type Binding struct {
	TokenID    string
	BusinessID string
	UserID     string
}
