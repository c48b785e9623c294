package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"

	"github.com/paninifs/engine/pkg/hashing"
)

// Ref is a named, mutable pointer to an immutable object. Refs repoint
// on version bumps (e.g. PNG/latest).
type Ref struct {
	Name      string     `json:"name"`
	Type      ObjectType `json:"type"`
	ExactHash string     `json:"exact_hash"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CreateRef upserts a symbolic pointer. The target object must already
// exist in the store.
func (s *Store) CreateRef(name string, typ ObjectType, exact string) error {
	if !typ.Valid() {
		return fmt.Errorf("unknown object type %q", typ)
	}
	if !s.Has(exact, typ) {
		return fmt.Errorf("%w: cannot create ref %q to absent object %s/%s", ErrNotFound, name, typ, hashing.ShortHash(exact))
	}

	lock := s.refLocks[typ]
	lock.Lock()
	defer lock.Unlock()

	ref := Ref{Name: name, Type: typ, ExactHash: exact, UpdatedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ref: %w", err)
	}

	path := filepath.Join(s.root, string(typ), "refs", refFileName(name))
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing ref: %w", err)
	}
	return nil
}

// ResolveRef returns the exact hash a name points to, or ErrNotFound.
func (s *Store) ResolveRef(name string, typ ObjectType) (string, error) {
	path := filepath.Join(s.root, string(typ), "refs", refFileName(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: ref %s/%s", ErrNotFound, typ, name)
		}
		return "", fmt.Errorf("reading ref: %w", err)
	}

	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", fmt.Errorf("unmarshaling ref: %w", err)
	}
	return ref.ExactHash, nil
}

// ListRefs returns all refs of a type, ordered by name.
func (s *Store) ListRefs(typ ObjectType) ([]Ref, error) {
	refsDir := filepath.Join(s.root, string(typ), "refs")
	entries, err := os.ReadDir(refsDir)
	if err != nil {
		return nil, fmt.Errorf("reading refs directory: %w", err)
	}

	var refs []Ref
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(refsDir, entry.Name()))
		if err != nil {
			continue
		}
		var ref Ref
		if err := json.Unmarshal(data, &ref); err != nil {
			continue
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
