package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
)

type Tokens struct{ db *DB }

func (s *Tokens) CreateTokens(_ context.Context, tokens []qr.Token) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	taken := map[string]bool{}
	for _, t := range s.db.tokens {
		taken[t.BusinessID+"/"+t.Code] = true
	}
	for _, t := range tokens {
		k := t.BusinessID + "/" + t.Code
		if taken[k] {
			return apperr.Errorf(apperr.ErrCodeTaken, "code %s already exists", t.Code)
		}
		taken[k] = true
	}
	for _, t := range tokens {
		s.db.tokens[t.ID] = t
	}
	return nil
}

func (s *Tokens) Token(_ context.Context, tokenID string) (qr.Token, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[tokenID]
	if !ok {
		return qr.Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	return t, nil
}

func (s *Tokens) Bind(_ context.Context, tokenID, userID string, at time.Time) (qr.Token, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[tokenID]
	if !ok {
		return qr.Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	if t.Bound() {
		return qr.Token{}, apperr.Errorf(apperr.ErrAlreadyBound, "qr token %s is already bound", tokenID)
	}
	for _, o := range s.db.tokens {
		if o.BusinessID == t.BusinessID && o.UserID == userID {
			return qr.Token{}, apperr.Errorf(apperr.ErrDuplicateBinding, "user %s already holds a token at this business", userID)
		}
	}
	t.UserID = userID
	t.AssignedAt = &at
	s.db.tokens[tokenID] = t
	return t, nil
}

func (s *Tokens) Unbind(_ context.Context, tokenID string) (qr.Token, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[tokenID]
	if !ok {
		return qr.Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	if !t.Bound() {
		return qr.Token{}, apperr.Errorf(apperr.ErrNotBound, "qr token %s is not bound", tokenID)
	}
	t.UserID = ""
	t.AssignedAt = nil
	s.db.tokens[tokenID] = t
	return t, nil
}

func (s *Tokens) SetActive(_ context.Context, tokenID string, active bool) (qr.Token, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[tokenID]
	if !ok {
		return qr.Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	t.IsActive = active
	s.db.tokens[tokenID] = t
	return t, nil
}

func (s *Tokens) RecordScan(_ context.Context, businessID, code string, at time.Time) (qr.Token, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, t := range s.db.tokens {
		if t.BusinessID != businessID || t.Code != code {
			continue
		}
		if !t.IsActive {
			return qr.Token{}, apperr.Errorf(apperr.ErrInvalidToken, "code %s is inactive", code)
		}
		t.ScanCount++
		t.LastScannedAt = &at
		s.db.tokens[id] = t
		return t, nil
	}
	return qr.Token{}, apperr.Errorf(apperr.ErrNotFound, "code %s not found", code)
}
