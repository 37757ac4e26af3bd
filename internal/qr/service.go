package qr

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/google/uuid"
)

const (
	CodeLength  = 8
	MaxBatch    = 100
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	genAttempts = 3
)

type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) Bind(ctx context.Context, tokenID, userID string) (Token, error) {
	if tokenID == "" || userID == "" {
		return Token{}, apperr.Validation("token id and user id are required")
	}
	t, err := s.Store.Bind(ctx, tokenID, userID, s.now())
	if err != nil {
		return Token{}, err
	}
	log.Printf("qr bound: token=%s business=%s user=%s", t.ID, t.BusinessID, userID)
	return t, nil
}

func (s *Service) Unbind(ctx context.Context, tokenID string) (Token, error) {
	if tokenID == "" {
		return Token{}, apperr.Validation("token id is required")
	}
	return s.Store.Unbind(ctx, tokenID)
}

// Resolve is the authorization gate for order creation: only an active,
// bound token yields a Binding. Every other outcome is ErrInvalidToken.
func (s *Service) Resolve(ctx context.Context, tokenID string) (Binding, error) {
	if tokenID == "" {
		return Binding{}, apperr.Errorf(apperr.ErrInvalidToken, "token id is required")
	}
	t, err := s.Store.Token(ctx, tokenID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Binding{}, apperr.Errorf(apperr.ErrInvalidToken, "token %s not found", tokenID)
	}
	if err != nil {
		return Binding{}, err
	}
	if !t.IsActive {
		return Binding{}, apperr.Errorf(apperr.ErrInvalidToken, "token %s is inactive", tokenID)
	}
	if !t.Bound() {
		return Binding{}, apperr.Errorf(apperr.ErrInvalidToken, "token %s is not bound", tokenID)
	}
	return Binding{TokenID: t.ID, BusinessID: t.BusinessID, UserID: t.UserID}, nil
}

// Generate creates qty fresh active tokens for a business.
func (s *Service) Generate(ctx context.Context, businessID string, qty int) ([]Token, error) {
	if businessID == "" {
		return nil, apperr.Validation("business id is required")
	}
	if qty < 1 || qty > MaxBatch {
		return nil, apperr.Validation("quantity must be between 1 and %d", MaxBatch)
	}
	var err error
	for attempt := 0; attempt < genAttempts; attempt++ {
		var tokens []Token
		tokens, err = s.batch(businessID, qty)
		if err != nil {
			return nil, err
		}
		err = s.Store.CreateTokens(ctx, tokens)
		if err == nil {
			log.Printf("qr generated: business=%s count=%d", businessID, qty)
			return tokens, nil
		}
		if !errors.Is(err, apperr.ErrCodeTaken) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Service) batch(businessID string, qty int) ([]Token, error) {
	now := s.now()
	seen := make(map[string]bool, qty)
	out := make([]Token, 0, qty)
	for len(out) < qty {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, Token{
			ID:         uuid.NewString(),
			BusinessID: businessID,
			Code:       code,
			IsActive:   true,
			CreatedAt:  now,
		})
	}
	return out, nil
}

func (s *Service) SetActive(ctx context.Context, tokenID string, active bool) (Token, error) {
	if tokenID == "" {
		return Token{}, apperr.Validation("token id is required")
	}
	return s.Store.SetActive(ctx, tokenID, active)
}

// Scan records a physical scan of code at a business. Inactive tokens are
// rejected and not counted.
func (s *Service) Scan(ctx context.Context, businessID, code string) (Token, error) {
	if businessID == "" || code == "" {
		return Token{}, apperr.Validation("business id and code are required")
	}
	t, err := s.Store.RecordScan(ctx, businessID, code, s.now())
	if errors.Is(err, apperr.ErrNotFound) {
		return Token{}, apperr.Errorf(apperr.ErrInvalidToken, "code %s not found", code)
	}
	return t, err
}

func NewCode() (string, error) {
	b := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeCharset[n.Int64()]
	}
	return string(b), nil
}
