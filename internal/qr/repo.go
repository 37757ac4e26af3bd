package qr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"

	constraintCode     = "qr_tokens_business_code_key"
	constraintUserOnce = "qr_tokens_business_user_key"
)

type Repo struct{ DB *pgxpool.Pool }

const tokenColumns = `id, business_id, code, COALESCE(user_id, ''), is_active, scan_count, last_scanned_at, assigned_at, created_at`

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.BusinessID, &t.Code, &t.UserID, &t.IsActive, &t.ScanCount, &t.LastScannedAt, &t.AssignedAt, &t.CreatedAt)
	return t, err
}

func (r *Repo) CreateTokens(ctx context.Context, tokens []Token) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`INSERT INTO qr_tokens(id, business_id, code, is_active, created_at) VALUES ($1,$2,$3,$4,$5)`,
			t.ID, t.BusinessID, t.Code, t.IsActive, t.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if violates(err, constraintCode) {
			return apperr.Wrap(apperr.ErrCodeTaken, err, "generate qr codes")
		}
		return fmt.Errorf("insert qr tokens: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repo) Token(ctx context.Context, tokenID string) (Token, error) {
	t, err := scanToken(r.DB.QueryRow(ctx, `SELECT `+tokenColumns+` FROM qr_tokens WHERE id=$1`, tokenID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	return t, err
}

func (r *Repo) Bind(ctx context.Context, tokenID, userID string, at time.Time) (Token, error) {
	t, err := scanToken(r.DB.QueryRow(ctx, `
		UPDATE qr_tokens SET user_id=$2, assigned_at=$3
		WHERE id=$1 AND user_id IS NULL
		RETURNING `+tokenColumns, tokenID, userID, at))
	if err == nil {
		return t, nil
	}
	if violates(err, constraintUserOnce) {
		return Token{}, apperr.Errorf(apperr.ErrDuplicateBinding, "user %s already holds a token at this business", userID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Token{}, fmt.Errorf("bind qr token %s: %w", tokenID, err)
	}
	if _, err := r.Token(ctx, tokenID); err != nil {
		return Token{}, err
	}
	return Token{}, apperr.Errorf(apperr.ErrAlreadyBound, "qr token %s is already bound", tokenID)
}

func (r *Repo) Unbind(ctx context.Context, tokenID string) (Token, error) {
	t, err := scanToken(r.DB.QueryRow(ctx, `
		UPDATE qr_tokens SET user_id=NULL, assigned_at=NULL
		WHERE id=$1 AND user_id IS NOT NULL
		RETURNING `+tokenColumns, tokenID))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Token{}, fmt.Errorf("unbind qr token %s: %w", tokenID, err)
	}
	if _, err := r.Token(ctx, tokenID); err != nil {
		return Token{}, err
	}
	return Token{}, apperr.Errorf(apperr.ErrNotBound, "qr token %s is not bound", tokenID)
}

func (r *Repo) SetActive(ctx context.Context, tokenID string, active bool) (Token, error) {
	t, err := scanToken(r.DB.QueryRow(ctx, `
		UPDATE qr_tokens SET is_active=$2 WHERE id=$1 RETURNING `+tokenColumns, tokenID, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return Token{}, apperr.Errorf(apperr.ErrNotFound, "qr token %s not found", tokenID)
	}
	return t, err
}

func (r *Repo) RecordScan(ctx context.Context, businessID, code string, at time.Time) (Token, error) {
	t, err := scanToken(r.DB.QueryRow(ctx, `
		UPDATE qr_tokens SET scan_count = scan_count + 1, last_scanned_at=$3
		WHERE business_id=$1 AND code=$2 AND is_active
		RETURNING `+tokenColumns, businessID, code, at))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Token{}, fmt.Errorf("record scan %s: %w", code, err)
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qr_tokens WHERE business_id=$1 AND code=$2)`,
		businessID, code).Scan(&exists); err != nil {
		return Token{}, err
	}
	if exists {
		return Token{}, apperr.Errorf(apperr.ErrInvalidToken, "code %s is inactive", code)
	}
	return Token{}, apperr.Errorf(apperr.ErrNotFound, "code %s not found", code)
}

func violates(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}
