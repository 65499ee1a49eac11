package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

const (
	maxAllowedTimestampSkew = 5 * time.Minute
	defaultTimestampSkew    = 2 * time.Minute
	maxNonceLength          = 128
)

var (
	ErrMissingField     = errors.New("signed request incomplete")
	ErrTimestampSkew    = errors.New("timestamp outside allowed skew")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature does not match account")
	ErrNonceUsed        = errors.New("nonce already used")
)

// SignedRequest is the body investors submit to act on their own position.
// Signature is a hex-encoded recoverable secp256k1 signature over Payload.
type SignedRequest struct {
	Account   string `json:"account"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// Payload returns the canonical bytes signed for action.
func Payload(action, account, nonce string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("crowdsale|%s|%s|%s|%d", action, strings.TrimSpace(account), strings.TrimSpace(nonce), timestamp))
}

// SignRequest builds a signed request for action with the supplied key.
func SignRequest(key *crypto.PrivateKey, action, nonce string, timestamp int64) (SignedRequest, error) {
	if key == nil {
		return SignedRequest{}, errors.New("signing key required")
	}
	account := crypto.FormatAccount(key.PubKey().Address().Array())
	sig, err := key.Sign(Payload(action, account, nonce, timestamp))
	if err != nil {
		return SignedRequest{}, err
	}
	return SignedRequest{
		Account:   account,
		Nonce:     nonce,
		Timestamp: timestamp,
		Signature: hex.EncodeToString(sig),
	}, nil
}

// NonceStore records nonces so a signed request is accepted once.
type NonceStore interface {
	Reserve(ctx context.Context, account [20]byte, nonce string, observed time.Time) (bool, error)
}

// Verifier authenticates investor requests by signature recovery.
type Verifier struct {
	nonces NonceStore
	skew   time.Duration
	nowFn  func() time.Time
}

func NewVerifier(nonces NonceStore, skew time.Duration, nowFn func() time.Time) *Verifier {
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if skew > maxAllowedTimestampSkew {
		skew = maxAllowedTimestampSkew
	}
	return &Verifier{nonces: nonces, skew: skew, nowFn: nowFn}
}

// Verify checks req for action and returns the signer as principal.
func (v *Verifier) Verify(ctx context.Context, action string, req SignedRequest) (crowdsale.Principal, error) {
	nonce := strings.TrimSpace(req.Nonce)
	if strings.TrimSpace(req.Account) == "" || nonce == "" || req.Signature == "" || req.Timestamp == 0 {
		return crowdsale.Principal{}, ErrMissingField
	}
	if len(nonce) > maxNonceLength {
		return crowdsale.Principal{}, fmt.Errorf("%w: nonce too long", ErrMissingField)
	}
	account, err := crypto.ParseAccount(req.Account)
	if err != nil {
		return crowdsale.Principal{}, err
	}
	now := v.nowFn().UTC()
	skew := now.Sub(time.Unix(req.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.skew {
		return crowdsale.Principal{}, fmt.Errorf("%w of %s", ErrTimestampSkew, v.skew)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Signature), "0x"))
	if err != nil {
		return crowdsale.Principal{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer, err := crypto.RecoverAccount(Payload(action, req.Account, nonce, req.Timestamp), sig)
	if err != nil {
		return crowdsale.Principal{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != account {
		return crowdsale.Principal{}, ErrSignerMismatch
	}
	if v.nonces != nil {
		fresh, err := v.nonces.Reserve(ctx, account, nonce, now)
		if err != nil {
			return crowdsale.Principal{}, fmt.Errorf("reserve nonce: %w", err)
		}
		if !fresh {
			return crowdsale.Principal{}, ErrNonceUsed
		}
	}
	return crowdsale.Principal{Account: account}, nil
}
