package qr_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/ariefcatur/go-qr-orders/internal/apperr"
	"github.com/ariefcatur/go-qr-orders/internal/memstore"
	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() (*qr.Service, *memstore.DB) {
	db := memstore.New()
	db.PutToken(qr.Token{ID: "QR-001", BusinessID: "B1", Code: "AAAA0001", IsActive: true})
	db.PutToken(qr.Token{ID: "QR-002", BusinessID: "B1", Code: "AAAA0002", IsActive: true})
	db.PutToken(qr.Token{ID: "QR-101", BusinessID: "B2", Code: "AAAA0001", IsActive: true})
	return &qr.Service{Store: db.Tokens()}, db
}

func TestBindAndResolve(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Bind(ctx, "QR-001", "U1")
	require.NoError(t, err)

	b, err := svc.Resolve(ctx, "QR-001")
	require.NoError(t, err)
	assert.Equal(t, qr.Binding{TokenID: "QR-001", BusinessID: "B1", UserID: "U1"}, b)
}

func TestBindConflicts(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Bind(ctx, "QR-001", "U1")
	require.NoError(t, err)

	_, err = svc.Bind(ctx, "QR-001", "U2")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyBound))

	_, err = svc.Bind(ctx, "QR-002", "U1")
	assert.True(t, errors.Is(err, apperr.ErrDuplicateBinding))

	// another business is fine
	_, err = svc.Bind(ctx, "QR-101", "U1")
	assert.NoError(t, err)
}

func TestUnbind(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Unbind(ctx, "QR-001")
	assert.True(t, errors.Is(err, apperr.ErrNotBound))

	_, err = svc.Bind(ctx, "QR-001", "U1")
	require.NoError(t, err)
	tok, err := svc.Unbind(ctx, "QR-001")
	require.NoError(t, err)
	assert.False(t, tok.Bound())

	_, err = svc.Resolve(ctx, "QR-001")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestResolveRejectsInactiveAndUnknown(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Bind(ctx, "QR-001", "U1")
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, "QR-001", false)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "QR-001")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))

	_, err = svc.Resolve(ctx, "nope")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestGenerate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tokens, err := svc.Generate(ctx, "B1", 25)
	require.NoError(t, err)
	assert.Len(t, tokens, 25)

	format := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	seen := map[string]bool{}
	for _, tk := range tokens {
		assert.Regexp(t, format, tk.Code)
		assert.False(t, seen[tk.Code])
		seen[tk.Code] = true
		assert.True(t, tk.IsActive)
		assert.False(t, tk.Bound())
	}

	_, err = svc.Generate(ctx, "B1", 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = svc.Generate(ctx, "B1", qr.MaxBatch+1)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestScanCountsActiveTokensOnly(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tok, err := svc.Scan(ctx, "B1", "AAAA0001")
	require.NoError(t, err)
	assert.Equal(t, 1, tok.ScanCount)
	assert.NotNil(t, tok.LastScannedAt)

	_, err = svc.SetActive(ctx, "QR-001", false)
	require.NoError(t, err)
	_, err = svc.Scan(ctx, "B1", "AAAA0001")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))

	_, err = svc.Scan(ctx, "B1", "ZZZZ9999")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}
