package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "investor.keystore")
	if err := SaveToKeystoreWithScrypt(path, key, "secret", keystore.LightScryptN, keystore.LightScryptP); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected permissions %v", info.Mode().Perm())
	}

	account, err := KeystoreAccount(path)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account != key.PubKey().Address().Array() {
		t.Fatalf("keystore account mismatch")
	}

	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("loaded key differs")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestSignatureRecovery(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sig, err := key.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	signer, err := RecoverAccount([]byte("payload"), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != key.PubKey().Address().Array() {
		t.Fatalf("recovered wrong signer")
	}
	other, err := RecoverAccount([]byte("tampered"), sig)
	if err == nil && other == signer {
		t.Fatalf("tampered payload must not recover the signer")
	}
	parsed, err := ParseAccount(FormatAccount(signer))
	if err != nil || parsed != signer {
		t.Fatalf("bech32 round trip failed: %v", err)
	}
	if _, err := ParseAccount("0x1234"); err == nil {
		t.Fatalf("expected short hex account to fail")
	}
}
