package core

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	coreerrors "crowdsale/core/errors"
	"crowdsale/storage"
)

// TestStateTransitionDoesNotUseFmtPrintf guards against debug prints that
// bypass structured logging on the commit path.
func TestStateTransitionDoesNotUseFmtPrintf(t *testing.T) {
	content, err := os.ReadFile("state_transition.go")
	if err != nil {
		t.Fatalf("failed to read state_transition.go: %v", err)
	}
	source := string(content)
	for _, banned := range []string{"fmt.Printf(", "log.Printf("} {
		if strings.Contains(source, banned) {
			t.Fatalf("state_transition.go should not use %s; prefer structured logging", banned)
		}
	}
}

func TestStateProcessorResumesFromHead(t *testing.T) {
	db, err := storage.NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	sp, err := NewStateProcessor(db)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	key := crypto.Keccak256([]byte("sale"))
	if err := sp.Trie.Update(key, []byte("v1")); err != nil {
		t.Fatalf("update: %v", err)
	}
	root, err := sp.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if sp.Version() != 1 || sp.CommittedRoot() != root {
		t.Fatalf("unexpected head version=%d root=%x", sp.Version(), sp.CommittedRoot())
	}

	if err := sp.Trie.Update(key, []byte("v2")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := sp.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	got, err := sp.Trie.Get(key)
	if err != nil || string(got) != "v1" {
		t.Fatalf("rollback must restore committed value, got %q err=%v", got, err)
	}

	reopened, err := NewStateProcessor(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Version() != 1 || reopened.CommittedRoot() != root {
		t.Fatalf("head not restored: version=%d root=%x", reopened.Version(), reopened.CommittedRoot())
	}
}

func TestStateProcessorRejectsCorruptHead(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	if err := db.Put(headKey, []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := NewStateProcessor(db); !errors.Is(err, coreerrors.ErrHeadCorrupt) {
		t.Fatalf("expected corrupt head error, got %v", err)
	}
	if _, err := NewStateProcessor(nil); !errors.Is(err, coreerrors.ErrNoStorage) {
		t.Fatalf("expected missing storage error, got %v", err)
	}
}
