// Package ledger implements the append-only bbolt-backed commit-receipt
// store of spec §3, §4.10: one bucket for receipts keyed by big-endian
// index, one bucket for chain metadata (the single active policy digest,
// the genesis previous-hash). Grounded on the teacher's bbolt store
// (clients/go/node/store/db.go: bolt.Open, bucket-per-table layout,
// chainDir/ensureDir helpers).
package ledger

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"coherence.dev/gate/internal/canon"
	"coherence.dev/gate/internal/receipt"
)

var (
	bucketReceipts = []byte("commit_receipts_by_index")
	bucketMeta     = []byte("chain_meta")

	metaKeyPolicyDigest = []byte("policy_digest")
	metaKeyGenesisPrev  = []byte("genesis_prev_hash")
	metaKeyHead         = []byte("head_index")
)

// Ledger is a single chain's append-only receipt store.
type Ledger struct {
	dir string
	db  *bolt.DB
}

// Open opens (creating if necessary) the bbolt-backed ledger under dir.
func Open(dir string) (*Ledger, error) {
	if dir == "" {
		return nil, fmt.Errorf("ledger: dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: mkdir: %w", err)
	}
	path := filepath.Join(dir, "ledger.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bbolt: %w", err)
	}
	l := &Ledger{dir: dir, db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketReceipts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("ledger: create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// InitGenesis pins the chain's single active policy digest and genesis
// previous-hash. It fails if the chain already has a different bundle
// pinned (spec §4.5: single-active-bundle-per-chain).
func (l *Ledger) InitGenesis(policyDigest, genesisPrevHash canon.Hash32) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if existing := meta.Get(metaKeyPolicyDigest); existing != nil {
			if string(existing) != policyDigest.Hex() {
				return fmt.Errorf("ledger: chain already pinned to policy digest %s, cannot re-init with %s", existing, policyDigest.Hex())
			}
			return nil // idempotent re-init with the same bundle
		}
		if err := meta.Put(metaKeyPolicyDigest, []byte(policyDigest.Hex())); err != nil {
			return err
		}
		return meta.Put(metaKeyGenesisPrev, []byte(genesisPrevHash.Hex()))
	})
}

// PolicyDigest returns the chain's pinned policy digest, if genesis has run.
func (l *Ledger) PolicyDigest() (canon.Hash32, bool, error) {
	var out canon.Hash32
	var ok bool
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKeyPolicyDigest)
		if v == nil {
			return nil
		}
		h, err := canon.ParseHash32(string(v))
		if err != nil {
			return err
		}
		out, ok = h, true
		return nil
	})
	return out, ok, err
}

// Append stores one commit receipt under its index. It rejects an index
// that is not exactly one greater than the current head (or zero for an
// empty chain), preserving append-only, gap-free chain order.
func (l *Ledger) Append(c receipt.Commit) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		receipts := tx.Bucket(bucketReceipts)

		wantIndex := 0
		if v := meta.Get(metaKeyHead); v != nil {
			wantIndex = int(binary.BigEndian.Uint64(v)) + 1
		}
		if c.Index != wantIndex {
			return fmt.Errorf("ledger: out-of-order append: got index %d, want %d", c.Index, wantIndex)
		}

		if err := receipts.Put(indexKey(c.Index), c.Canonical()); err != nil {
			return err
		}
		var head [8]byte
		binary.BigEndian.PutUint64(head[:], uint64(c.Index))
		return meta.Put(metaKeyHead, head[:])
	})
}

// Get returns the stored commit receipt's canonical bytes at index. The
// ledger never decodes receipts back into structured values — the replay
// verifier only ever needs the canonical bytes to re-derive identity
// hashes, not a live receipt.Commit value.
func (l *Ledger) Get(index int) ([]byte, bool, error) {
	var out []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(indexKey(index))
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Head returns the highest stored index and whether the chain is nonempty.
func (l *Ledger) Head() (int, bool, error) {
	var head int
	var ok bool
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKeyHead)
		if v == nil {
			return nil
		}
		head, ok = int(binary.BigEndian.Uint64(v)), true
		return nil
	})
	return head, ok, err
}

// All returns every stored receipt's canonical bytes in index order, for
// the replay verifier.
func (l *Ledger) All() ([][]byte, error) {
	var out [][]byte
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceipts).ForEach(func(k, v []byte) error {
			out = append(out, append([]byte(nil), v...))
			return nil
		})
	})
	return out, err
}

func indexKey(index int) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(index))
	return b[:]
}
