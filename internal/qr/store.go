package qr

import (
	"context"
	"time"
)

type Store interface {
	// CreateTokens inserts all tokens or none; a code clash returns ErrCodeTaken.
	CreateTokens(ctx context.Context, tokens []Token) error
	Token(ctx context.Context, tokenID string) (Token, error)
	// Bind sets the user only if the token has none (ErrAlreadyBound) and the
	// user holds no other token at that business (ErrDuplicateBinding).
	Bind(ctx context.Context, tokenID, userID string, at time.Time) (Token, error)
	// Unbind clears the user only if one is set (ErrNotBound).
	Unbind(ctx context.Context, tokenID string) (Token, error)
	SetActive(ctx context.Context, tokenID string, active bool) (Token, error)
	RecordScan(ctx context.Context, businessID, code string, at time.Time) (Token, error)
}
