package core

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "crowdsale/core/errors"
	"crowdsale/storage"
	"crowdsale/storage/trie"
)

// headKey stores the last committed state root and its version outside the
// trie so a restarted node resumes from it.
var headKey = []byte("crowdsale/head")

// head is the committed position of the state trie.
type head struct {
	Root    common.Hash
	Version uint64
}

func (h head) encode() []byte {
	buf := make([]byte, common.HashLength+8)
	copy(buf, h.Root.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], h.Version)
	return buf
}

func decodeHead(raw []byte) (head, error) {
	if len(raw) != common.HashLength+8 {
		return head{}, coreerrors.ErrHeadCorrupt
	}
	return head{
		Root:    common.BytesToHash(raw[:common.HashLength]),
		Version: binary.BigEndian.Uint64(raw[common.HashLength:]),
	}, nil
}

func loadHead(db storage.Database) (head, bool, error) {
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return head{}, false, nil
	}
	if err != nil {
		return head{}, false, err
	}
	h, err := decodeHead(raw)
	if err != nil {
		return head{}, false, err
	}
	return h, true, nil
}

// StateProcessor owns the state trie and tracks the committed root each call
// either builds on or rolls back to.
type StateProcessor struct {
	Trie          *trie.Trie
	db            storage.Database
	committedRoot common.Hash
	version       uint64
}

// NewStateProcessor opens the trie at the persisted head, or at the empty
// root for a fresh database.
func NewStateProcessor(db storage.Database) (*StateProcessor, error) {
	if db == nil {
		return nil, coreerrors.ErrNoStorage
	}
	h, ok, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if ok {
		root = h.Root.Bytes()
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	return &StateProcessor{
		Trie:          tr,
		db:            db,
		committedRoot: tr.Root(),
		version:       h.Version,
	}, nil
}

// CommittedRoot returns the root of the last successful commit.
func (sp *StateProcessor) CommittedRoot() common.Hash { return sp.committedRoot }

// Version returns the number of commits applied so far.
func (sp *StateProcessor) Version() uint64 { return sp.version }

// ResetToRoot discards in-memory changes and rewinds the trie to root.
func (sp *StateProcessor) ResetToRoot(root common.Hash) error {
	if err := sp.Trie.Reset(root); err != nil {
		return err
	}
	sp.committedRoot = root
	return nil
}

// Rollback rewinds to the last committed root.
func (sp *StateProcessor) Rollback() error {
	return sp.ResetToRoot(sp.committedRoot)
}

// Commit persists the current trie contents, records the new head and
// returns the resulting state root.
func (sp *StateProcessor) Commit() (common.Hash, error) {
	next := sp.version + 1
	newRoot, err := sp.Trie.Commit(sp.committedRoot, next)
	if err != nil {
		return common.Hash{}, err
	}
	if err := sp.db.Put(headKey, head{Root: newRoot, Version: next}.encode()); err != nil {
		return common.Hash{}, err
	}
	sp.committedRoot = newRoot
	sp.version = next
	return newRoot, nil
}
