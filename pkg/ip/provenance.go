// Package ip layers provenance, licensing, attribution and audit over
// the content-addressed store. The store itself stays IP-agnostic:
// records reference objects by hash, never the reverse.
package ip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// SourceType classifies where an object came from.
type SourceType string

const (
	SourceEmpiricalAnalysis SourceType = "EMPIRICAL_ANALYSIS"
	SourceManualCreation    SourceType = "MANUAL_CREATION"
	SourceCorpusExtraction  SourceType = "CORPUS_EXTRACTION"
	SourceConsensus         SourceType = "CONSENSUS"
	SourceDerivation        SourceType = "DERIVATION"
	SourceImport            SourceType = "IMPORT"
)

// Valid reports membership in the closed source-type set.
func (s SourceType) Valid() bool {
	switch s {
	case SourceEmpiricalAnalysis, SourceManualCreation, SourceCorpusExtraction,
		SourceConsensus, SourceDerivation, SourceImport:
		return true
	}
	return false
}

// EventType classifies evolution events.
type EventType string

const (
	EventCreated    EventType = "CREATED"
	EventRefined    EventType = "REFINED"
	EventMerged     EventType = "MERGED"
	EventValidated  EventType = "VALIDATED"
	EventDeprecated EventType = "DEPRECATED"
)

// ContributorRole classifies contributors on a provenance chain.
type ContributorRole string

const (
	RolePrimaryAuthor ContributorRole = "primary_author"
	RoleCoAuthor      ContributorRole = "co_author"
	RoleMaintainer    ContributorRole = "maintainer"
	RoleReviewer      ContributorRole = "reviewer"
	RoleTester        ContributorRole = "tester"
)

// Origin records how an object first came to exist.
type Origin struct {
	SourceType SourceType `json:"source_type" yaml:"source_type"`
	CreatedBy  string     `json:"created_by" yaml:"created_by"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	Dataset    string     `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Confidence float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Event is one append-only entry on an object's evolution timeline.
type Event struct {
	ID                string    `json:"id" yaml:"id"`
	Type              EventType `json:"type" yaml:"type"`
	Agent             string    `json:"agent" yaml:"agent"`
	OccurredAt        time.Time `json:"occurred_at" yaml:"occurred_at"`
	DerivationHash    string    `json:"derivation_hash,omitempty" yaml:"derivation_hash,omitempty"`
	CapabilitiesAdded []string  `json:"capabilities_added,omitempty" yaml:"capabilities_added,omitempty"`
	Reason            string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Contributor is one weighted participant on a chain. Percentages
// across a chain's contributors must not exceed 100.
type Contributor struct {
	ID            string          `json:"id" yaml:"id"`
	Role          ContributorRole `json:"role" yaml:"role"`
	Contributions []string        `json:"contributions,omitempty" yaml:"contributions,omitempty"`
	Percentage    float64         `json:"percentage" yaml:"percentage"`
}

// ProvenanceChain is the full per-object provenance record.
type ProvenanceChain struct {
	ObjectHash   string        `json:"object_hash" yaml:"object_hash"`
	ObjectType   string        `json:"object_type" yaml:"object_type"`
	Origin       Origin        `json:"origin" yaml:"origin"`
	Evolution    []Event       `json:"evolution,omitempty" yaml:"evolution,omitempty"`
	Contributors []Contributor `json:"contributors,omitempty" yaml:"contributors,omitempty"`
}

// ProvenanceManager persists chains under <root>/provenance, one JSON
// document per object hash.
type ProvenanceManager struct {
	dir string
}

func NewProvenanceManager(root string) (*ProvenanceManager, error) {
	dir := filepath.Join(root, "provenance")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating provenance directory: %w", err)
	}
	return &ProvenanceManager{dir: dir}, nil
}

// Create starts a chain for an object. Creating twice for the same
// hash fails.
func (m *ProvenanceManager) Create(objectHash, objectType string, origin Origin) (*ProvenanceChain, error) {
	if !origin.SourceType.Valid() {
		return nil, fmt.Errorf("%w: unknown source type %q", ErrIncompatible, origin.SourceType)
	}
	if _, err := os.Stat(m.path(objectHash)); err == nil {
		return nil, fmt.Errorf("provenance for %s already exists", objectHash)
	}
	if origin.CreatedAt.IsZero() {
		origin.CreatedAt = time.Now().UTC()
	}

	chain := &ProvenanceChain{
		ObjectHash: objectHash,
		ObjectType: objectType,
		Origin:     origin,
	}
	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// Load retrieves a chain, or ErrNoRecord.
func (m *ProvenanceManager) Load(objectHash string) (*ProvenanceChain, error) {
	data, err := os.ReadFile(m.path(objectHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: provenance for %s", ErrNoRecord, objectHash)
		}
		return nil, fmt.Errorf("reading provenance: %w", err)
	}
	var chain ProvenanceChain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("unmarshaling provenance: %w", err)
	}
	return &chain, nil
}

// RecordEvent appends one event to the evolution timeline. The
// timeline is append-only; events are never rewritten.
func (m *ProvenanceManager) RecordEvent(objectHash string, event Event) (*ProvenanceChain, error) {
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	chain.Evolution = append(chain.Evolution, event)
	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// AddContributor registers a weighted contributor. The chain's total
// percentage must stay at or below 100.
func (m *ProvenanceManager) AddContributor(objectHash string, contributor Contributor) (*ProvenanceChain, error) {
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}

	total := contributor.Percentage
	for _, c := range chain.Contributors {
		total += c.Percentage
	}
	if total > 100.0+percentageTolerance {
		return nil, fmt.Errorf("%w: contributions would sum to %.2f%%", ErrIncompatible, total)
	}

	chain.Contributors = append(chain.Contributors, contributor)
	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// FindByCreator returns the hashes of every object whose origin
// creator matches, sorted.
func (m *ProvenanceManager) FindByCreator(creator string) ([]string, error) {
	return m.scan(func(chain *ProvenanceChain) bool {
		return chain.Origin.CreatedBy == creator
	})
}

// FindByOrigin returns the hashes of every object with the given
// source type, sorted.
func (m *ProvenanceManager) FindByOrigin(sourceType SourceType) ([]string, error) {
	return m.scan(func(chain *ProvenanceChain) bool {
		return chain.Origin.SourceType == sourceType
	})
}

// FullHistory returns the chain with its evolution ordered by
// occurrence time (stable for equal stamps).
func (m *ProvenanceManager) FullHistory(objectHash string) (*ProvenanceChain, error) {
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chain.Evolution, func(i, j int) bool {
		return chain.Evolution[i].OccurredAt.Before(chain.Evolution[j].OccurredAt)
	})
	return chain, nil
}

// ExportYAML renders the chain as YAML. ImportYAML is its lossless
// inverse.
func (m *ProvenanceManager) ExportYAML(objectHash string) ([]byte, error) {
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(chain)
	if err != nil {
		return nil, fmt.Errorf("marshaling provenance to YAML: %w", err)
	}
	return out, nil
}

// ImportYAML installs a chain from its YAML form, overwriting any
// existing chain for the same hash (imports are authoritative).
func (m *ProvenanceManager) ImportYAML(data []byte) (*ProvenanceChain, error) {
	var chain ProvenanceChain
	if err := yaml.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("unmarshaling provenance YAML: %w", err)
	}
	if chain.ObjectHash == "" {
		return nil, fmt.Errorf("%w: imported chain has no object hash", ErrNoRecord)
	}
	if err := m.save(&chain); err != nil {
		return nil, err
	}
	return &chain, nil
}

func (m *ProvenanceManager) scan(match func(*ProvenanceChain) bool) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading provenance directory: %w", err)
	}
	var hashes []string
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var chain ProvenanceChain
		if err := json.Unmarshal(data, &chain); err != nil {
			continue
		}
		if match(&chain) {
			hashes = append(hashes, chain.ObjectHash)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (m *ProvenanceManager) save(chain *ProvenanceChain) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling provenance: %w", err)
	}
	if err := atomic.WriteFile(m.path(chain.ObjectHash), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing provenance: %w", err)
	}
	return nil
}

func (m *ProvenanceManager) path(objectHash string) string {
	return filepath.Join(m.dir, objectHash+".json")
}
