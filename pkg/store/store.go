// Package store implements the content-addressed store: an immutable,
// append-only blob store keyed by (type, exact hash), with a
// similarity index for fuzzy discovery and mutable symbolic refs.
//
// Layout under the root directory, one subtree per object type:
//
//	<root>/<type>/objects/<hh>/<exact_hash>       content blob
//	<root>/<type>/objects/<hh>/<exact_hash>.json  stored metadata
//	<root>/<type>/index/<similarity_hash>.json    similarity bucket
//	<root>/<type>/refs/<sha256(name)>.json        symbolic ref
//
// where <hh> is the first byte of the exact hash, for filesystem
// fanout.
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/paninifs/engine/pkg/canonical"
	"github.com/paninifs/engine/pkg/hashing"
)

// ObjectType identifies the namespace an object is stored under.
type ObjectType string

const (
	TypePattern    ObjectType = "pattern"
	TypeGrammar    ObjectType = "grammar"
	TypeMetadata   ObjectType = "metadata"
	TypeDerivation ObjectType = "derivation"
)

var objectTypes = []ObjectType{TypePattern, TypeGrammar, TypeMetadata, TypeDerivation}

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case TypePattern, TypeGrammar, TypeMetadata, TypeDerivation:
		return true
	}
	return false
}

// Metadata is the persisted record accompanying every stored blob.
// It is immutable once written.
type Metadata struct {
	ExactHash      string            `json:"exact_hash"`
	Type           ObjectType        `json:"type"`
	SimilarityHash string            `json:"similarity_hash"`
	Size           int64             `json:"size"`
	Entropy        float64           `json:"entropy"`
	Negentropy     float64           `json:"negentropy"`
	CreatedAt      time.Time         `json:"created_at"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// Store is the content-addressed store rooted at a directory.
// Writes to the same exact hash are serialized; reads are lock-free.
type Store struct {
	root string

	// writeLocks serializes writers per hash prefix. A writer that
	// finds an existing blob under the same hash is a no-op.
	writeLocks [256]sync.Mutex

	// refLocks serializes symbolic-ref updates per type.
	refLocks map[ObjectType]*sync.Mutex
}

type Opt func(*Store)

func WithRoot(root string) Opt {
	return func(s *Store) {
		s.root = root
	}
}

// New creates a store rooted at the configured directory, creating the
// per-type layout on first use.
func New(opts ...Opt) (*Store, error) {
	s := &Store{refLocks: make(map[ObjectType]*sync.Mutex)}
	for _, opt := range opts {
		opt(s)
	}

	if s.root == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		s.root = filepath.Join(homeDir, ".panini", "store")
	}

	for _, t := range objectTypes {
		s.refLocks[t] = &sync.Mutex{}
		for _, sub := range []string{"objects", "index", "refs"} {
			if err := os.MkdirAll(filepath.Join(s.root, string(t), sub), 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Put canonicalizes content, computes both hashes, and persists the
// blob if absent. Storing identical bytes of the same type twice is
// idempotent: the second call returns the first call's hashes and
// writes nothing.
//
// Pattern, grammar and derivation content must be valid JSON and is
// normalized to canonical form before hashing. Metadata content is
// normalized when it is JSON and stored unchanged otherwise.
func (s *Store) Put(content []byte, typ ObjectType, labels map[string]string) (string, string, *Metadata, error) {
	if !typ.Valid() {
		return "", "", nil, fmt.Errorf("unknown object type %q", typ)
	}

	normalized, err := canonical.Normalize(content)
	switch {
	case err == nil:
		content = normalized
	case typ == TypeMetadata && errors.Is(err, canonical.ErrNotCanonicalizable):
		// binary metadata flows through unchanged
	default:
		return "", "", nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}

	exact := hashing.ExactHash(content)
	similarity := hashing.SimilarityHash(content, hashing.ObjectKind(typ))

	lock := &s.writeLocks[lockIndex(exact)]
	lock.Lock()
	defer lock.Unlock()

	blobPath := s.blobPath(typ, exact)
	if _, err := os.Stat(blobPath); err == nil {
		meta, err := s.loadMetadata(typ, exact)
		if err != nil {
			return "", "", nil, err
		}
		recordPut(typ, true)
		return exact, similarity, meta, nil
	} else if !os.IsNotExist(err) {
		return "", "", nil, fmt.Errorf("checking blob: %w", err)
	}

	meta := &Metadata{
		ExactHash:      exact,
		Type:           typ,
		SimilarityHash: similarity,
		Size:           int64(len(content)),
		Entropy:        hashing.Entropy(content),
		Negentropy:     hashing.Negentropy(content),
		CreatedAt:      time.Now().UTC(),
		Labels:         labels,
	}

	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return "", "", nil, fmt.Errorf("creating fanout directory: %w", err)
	}
	if err := atomic.WriteFile(blobPath, bytes.NewReader(content)); err != nil {
		return "", "", nil, fmt.Errorf("writing blob: %w", err)
	}
	if err := s.saveMetadata(typ, exact, meta); err != nil {
		return "", "", nil, err
	}
	if err := s.indexAdd(typ, similarity, exact); err != nil {
		return "", "", nil, err
	}

	slog.Debug("stored object", "type", typ, "hash", hashing.ShortHash(exact), "size", meta.Size)
	recordPut(typ, false)
	return exact, similarity, meta, nil
}

// Get retrieves a blob and its metadata. The blob's bytes are
// re-hashed on every read; a mismatch surfaces as *IntegrityError and
// is fatal for this read only.
func (s *Store) Get(exact string, typ ObjectType) ([]byte, *Metadata, error) {
	content, err := os.ReadFile(s.blobPath(typ, exact))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s/%s", ErrNotFound, typ, hashing.ShortHash(exact))
		}
		return nil, nil, fmt.Errorf("reading blob: %w", err)
	}

	if actual := hashing.ExactHash(content); actual != exact {
		slog.Error("corrupted blob", "type", typ, "hash", hashing.ShortHash(exact), "actual", hashing.ShortHash(actual))
		recordCorruption(typ)
		return nil, nil, &IntegrityError{ExactHash: exact, Actual: actual}
	}

	meta, err := s.loadMetadata(typ, exact)
	if err != nil {
		return nil, nil, err
	}
	recordGet(typ)
	return content, meta, nil
}

// Has reports whether a blob exists without reading it.
func (s *Store) Has(exact string, typ ObjectType) bool {
	_, err := os.Stat(s.blobPath(typ, exact))
	return err == nil
}

// List returns the metadata of every object of the given type, ordered
// by exact hash.
func (s *Store) List(typ ObjectType) ([]Metadata, error) {
	objectsDir := filepath.Join(s.root, string(typ), "objects")
	fanouts, err := os.ReadDir(objectsDir)
	if err != nil {
		return nil, fmt.Errorf("reading objects directory: %w", err)
	}

	var all []Metadata
	for _, fanout := range fanouts {
		if !fanout.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, fanout.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading fanout directory: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if filepath.Ext(name) == ".json" {
				continue
			}
			meta, err := s.loadMetadata(typ, name)
			if err != nil {
				slog.Warn("skipping object with unreadable metadata", "type", typ, "hash", hashing.ShortHash(name), "error", err)
				continue
			}
			all = append(all, *meta)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ExactHash < all[j].ExactHash })
	return all, nil
}

func lockIndex(exact string) int {
	raw, err := hex.DecodeString(exact[:2])
	if err != nil || len(raw) == 0 {
		return 0
	}
	return int(raw[0])
}

func (s *Store) blobPath(typ ObjectType, exact string) string {
	fanout := "00"
	if len(exact) >= 2 {
		fanout = exact[:2]
	}
	return filepath.Join(s.root, string(typ), "objects", fanout, exact)
}

func (s *Store) saveMetadata(typ ObjectType, exact string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := atomic.WriteFile(s.blobPath(typ, exact)+".json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func (s *Store) loadMetadata(typ ObjectType, exact string) (*Metadata, error) {
	data, err := os.ReadFile(s.blobPath(typ, exact) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: metadata for %s/%s", ErrNotFound, typ, hashing.ShortHash(exact))
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &meta, nil
}

func refFileName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:]) + ".json"
}
