package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bitswalk/sketchforge/src/sketchd/db"
)

// Fingerprint identifies a binary by its SHA-256 digest and size
type Fingerprint struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// ComputeFingerprint hashes the file at path
func ComputeFingerprint(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return Fingerprint{SHA256: hex.EncodeToString(hash.Sum(nil)), Size: size}, nil
}

// FingerprintBytes hashes an in-memory binary
func FingerprintBytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{SHA256: hex.EncodeToString(sum[:]), Size: int64(len(data))}
}

// SizeExceededError is returned when a binary does not fit the target flash
type SizeExceededError struct {
	Size  int64
	Limit int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("sketch binary is %d bytes, exceeding the %d byte limit", e.Size, e.Limit)
}

// EnforceLimit fails when size is strictly greater than limit
func EnforceLimit(size, limit int64) error {
	if size > limit {
		return &SizeExceededError{Size: size, Limit: limit}
	}
	return nil
}

// FingerprintStore is the persistence the dedup store relies on
type FingerprintStore interface {
	FindByFingerprint(size int64, digest, excludeID string) (*db.Sketch, error)
	SaveFingerprintUnlessDuplicate(id, digest string, size int64) (string, error)
}

// DedupStore records fingerprints so that at most one sketch owns each
type DedupStore struct {
	store FingerprintStore
	locks keyedLocks
}

// NewDedupStore creates a dedup store on top of persistence
func NewDedupStore(store FingerprintStore) *DedupStore {
	return &DedupStore{store: store}
}

// IsDuplicate reports whether any sketch other than excludeID already owns
// the fingerprint
func (d *DedupStore) IsDuplicate(fp Fingerprint, excludeID string) (bool, error) {
	owner, err := d.store.FindByFingerprint(fp.Size, fp.SHA256, excludeID)
	if err != nil {
		return false, err
	}
	return owner != nil, nil
}

// Save stores the fingerprint on the sketch unless another sketch owns it,
// in which case the owner's ID is returned and nothing is written.
func (d *DedupStore) Save(sketchID string, fp Fingerprint) (string, error) {
	unlock := d.locks.Lock(fp.SHA256)
	defer unlock()
	return d.store.SaveFingerprintUnlessDuplicate(sketchID, fp.SHA256, fp.Size)
}

// keyedLocks hands out one mutex per key and forgets keys nobody holds
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function
func (k *keyedLocks) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
