package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 account.
type AddressPrefix string

// AccountPrefix is the prefix for every sale participant account.
const AccountPrefix AddressPrefix = "sale"

// Address represents a 20-byte account with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Array returns the address as a fixed-size account identifier.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must decode to 20 bytes, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAccount accepts either a bech32 account or a 0x-prefixed hex string.
func ParseAccount(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, errors.New("account required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return out, fmt.Errorf("invalid hex account: %w", err)
		}
		if len(decoded) != 20 {
			return out, fmt.Errorf("hex account must be 20 bytes, got %d", len(decoded))
		}
		copy(out[:], decoded)
		return out, nil
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	if addr.Prefix() != AccountPrefix {
		return out, fmt.Errorf("unexpected account prefix %q", addr.Prefix())
	}
	return addr.Array(), nil
}

// FormatAccount renders a raw account identifier in bech32 form.
func FormatAccount(account [20]byte) string {
	return NewAddress(AccountPrefix, append([]byte(nil), account[:]...)).String()
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Sign produces a 65-byte recoverable signature over keccak256(payload).
func (k *PrivateKey) Sign(payload []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return crypto.Sign(crypto.Keccak256(payload), k.PrivateKey)
}

// RecoverAccount returns the account that produced sig over payload.
func RecoverAccount(payload, sig []byte) ([20]byte, error) {
	var out [20]byte
	if len(sig) != crypto.SignatureLength {
		return out, fmt.Errorf("crypto: signature must be %d bytes", crypto.SignatureLength)
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), sig)
	if err != nil {
		return out, fmt.Errorf("crypto: recover signer: %w", err)
	}
	copy(out[:], crypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}
