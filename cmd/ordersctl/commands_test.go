package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ariefcatur/go-qr-orders/internal/qr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQRGenerate(t *testing.T) {
	out, err := run(t, "qr", "generate", "B1", "2")
	require.NoError(t, err)

	var ts []qr.Token
	require.NoError(t, json.Unmarshal([]byte(out), &ts))
	require.Len(t, ts, 2)
	assert.Len(t, ts[0].Code, 8)
	assert.Equal(t, "B1", ts[0].BusinessID)
}

func TestArgumentErrors(t *testing.T) {
	_, err := run(t, "qr", "generate", "B1", "many")
	assert.ErrorContains(t, err, "quantity")

	_, err = run(t, "refund", "tx-1", "ten")
	assert.ErrorContains(t, err, "amount")

	_, err = run(t, "reconcile")
	assert.Error(t, err)
}

func TestUnknownProductStock(t *testing.T) {
	_, err := run(t, "stock", "adjust", "nope", "5")
	assert.ErrorContains(t, err, "not found")
}
