package crypto

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// SaveToKeystore writes key to an Ethereum v3 keystore file at path using the
// standard scrypt parameters. Parent directories are created with 0700
// permissions and the file is replaced atomically.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	return SaveToKeystoreWithScrypt(path, key, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
}

// SaveToKeystoreWithScrypt is SaveToKeystore with explicit scrypt cost
// parameters.
func SaveToKeystoreWithScrypt(path string, key *PrivateKey, passphrase string, scryptN, scryptP int) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, scryptN, scryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: failed to create keystore file")
	}

	src := filepath.Join(tmpDir, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(src, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// KeystoreAccount returns the account stored in the keystore at path without
// decrypting it.
func KeystoreAccount(path string) ([20]byte, error) {
	var out [20]byte
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(keyJSON, &header); err != nil {
		return out, err
	}
	return ParseAccount("0x" + strings.TrimPrefix(header.Address, "0x"))
}
