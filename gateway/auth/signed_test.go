package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crowdsale/crypto"
)

func newStore(t *testing.T) *BoltNonceStore {
	t.Helper()
	store, err := NewBoltNonceStore(filepath.Join(t.TempDir(), "nonces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVerifierAcceptsSignedRequestOnce(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	verifier := NewVerifier(newStore(t), time.Minute, func() time.Time { return now })

	req, err := SignRequest(key, "withdraw", "n-1", now.Unix())
	require.NoError(t, err)

	principal, err := verifier.Verify(context.Background(), "withdraw", req)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Array(), principal.Account)

	_, err = verifier.Verify(context.Background(), "withdraw", req)
	require.ErrorIs(t, err, ErrNonceUsed)
}

func TestVerifierRejectsTampering(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	verifier := NewVerifier(nil, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	req, err := SignRequest(key, "refund", "n-1", now.Unix())
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, "withdraw", req)
	require.True(t, errors.Is(err, ErrSignerMismatch) || errors.Is(err, ErrInvalidSignature), "action must be bound: %v", err)

	forged := req
	forged.Account = crypto.FormatAccount(other.PubKey().Address().Array())
	_, err = verifier.Verify(ctx, "refund", forged)
	require.Error(t, err)

	stale, err := SignRequest(key, "refund", "n-2", now.Add(-time.Hour).Unix())
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, "refund", stale)
	require.ErrorIs(t, err, ErrTimestampSkew)

	garbled := req
	garbled.Signature = "zz"
	_, err = verifier.Verify(ctx, "refund", garbled)
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = verifier.Verify(ctx, "refund", SignedRequest{Account: req.Account})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestBoltNonceStorePrune(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	account := [20]byte{0xa1}
	base := time.Unix(1_700_000_000, 0)

	fresh, err := store.Reserve(ctx, account, "old", base)
	require.NoError(t, err)
	require.True(t, fresh)
	fresh, err = store.Reserve(ctx, account, "new", base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, fresh)
	fresh, err = store.Reserve(ctx, [20]byte{0xb0}, "old", base)
	require.NoError(t, err)
	require.True(t, fresh, "nonces are scoped per account")

	removed, err := store.Prune(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	fresh, err = store.Reserve(ctx, account, "new", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, fresh)
}
