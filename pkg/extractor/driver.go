// Package extractor drives end-to-end extraction: probe the input
// against known magic numbers, compile the selected grammar, execute
// it, and persist the resulting record as a metadata object whose
// provenance references the grammar that produced it. Every record is
// therefore traceable to the exact grammar — and through the DAG and
// IP layers, to its whole lineage.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paninifs/engine/pkg/canonical"
	"github.com/paninifs/engine/pkg/grammar"
	"github.com/paninifs/engine/pkg/hashing"
	"github.com/paninifs/engine/pkg/ip"
	"github.com/paninifs/engine/pkg/pattern"
	"github.com/paninifs/engine/pkg/store"
)

// ErrNoGrammar indicates no registered selector matched the input.
var ErrNoGrammar = errors.New("no grammar matched input")

// Selector binds a magic-number probe to the grammar ref that parses
// the format.
type Selector struct {
	Format     string
	Signature  string // hex signature for the probe
	Offset     int
	GrammarRef string // symbolic ref, e.g. "PNG/latest"
}

// BuiltinSelectors covers the formats the corpus probes most often.
// A selector only fires if its grammar ref actually resolves.
var BuiltinSelectors = []Selector{
	{Format: "PNG", Signature: "89504E470D0A1A0A", GrammarRef: "PNG/latest"},
	{Format: "JPEG", Signature: "FFD8FF", GrammarRef: "JPEG/latest"},
	{Format: "GIF", Signature: "474946383761", GrammarRef: "GIF/latest"},
	{Format: "GIF", Signature: "474946383961", GrammarRef: "GIF/latest"},
	{Format: "WAV", Signature: "52494646", GrammarRef: "WAV/latest"},
	{Format: "PDF", Signature: "255044462D", GrammarRef: "PDF/latest"},
	{Format: "ZIP", Signature: "504B0304", GrammarRef: "ZIP/latest"},
}

// Record is the structured outcome of one extraction, stored as a
// metadata object.
type Record struct {
	Format        string         `json:"format"`
	GrammarHash   string         `json:"grammar_hash"`
	InputHash     string         `json:"input_hash"`
	InputSize     int            `json:"input_size"`
	BytesConsumed int            `json:"bytes_consumed"`
	Extracted     map[string]any `json:"extracted,omitempty"`
}

// Driver owns the selector table and the compiled-grammar cache.
type Driver struct {
	store     *store.Store
	cache     *grammar.Cache
	ipManager *ip.Manager
	selectors []Selector

	probes map[int]pattern.Pattern // index into selectors
}

// Opt configures a Driver.
type Opt func(*Driver)

// WithSelectors replaces the builtin selector table.
func WithSelectors(selectors []Selector) Opt {
	return func(d *Driver) {
		d.selectors = selectors
	}
}

// WithIPManager enables provenance registration for every record.
func WithIPManager(m *ip.Manager) Opt {
	return func(d *Driver) {
		d.ipManager = m
	}
}

// New builds a driver over the store.
func New(s *store.Store, opts ...Opt) (*Driver, error) {
	cache, err := grammar.NewCache(s, grammar.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		store:     s,
		cache:     cache,
		selectors: BuiltinSelectors,
		probes:    make(map[int]pattern.Pattern),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i, sel := range d.selectors {
		probe, err := pattern.New(pattern.MagicNumber, map[string]any{
			"signature": sel.Signature,
			"offset":    sel.Offset,
			"required":  false,
		})
		if err != nil {
			return nil, fmt.Errorf("selector %s: %w", sel.Format, err)
		}
		d.probes[i] = probe
	}
	return d, nil
}

// Select returns the grammar hash for the first selector whose probe
// matches and whose grammar ref resolves.
func (d *Driver) Select(data []byte) (string, *Selector, error) {
	for i := range d.selectors {
		sel := &d.selectors[i]
		result := d.probes[i].Match(data, 0)
		if !result.Success || result.Data["matched"] != true {
			continue
		}
		grammarHash, err := d.store.ResolveRef(sel.GrammarRef, store.TypeGrammar)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Debug("probe matched but grammar ref unresolved", "format", sel.Format, "ref", sel.GrammarRef)
				continue
			}
			return "", nil, err
		}
		return grammarHash, sel, nil
	}
	return "", nil, ErrNoGrammar
}

// Extract runs the full pipeline on the input bytes and returns the
// stored record together with its metadata-object hash.
func (d *Driver) Extract(ctx context.Context, data []byte, author string) (string, *Record, error) {
	grammarHash, sel, err := d.Select(data)
	if err != nil {
		return "", nil, err
	}

	compiled, err := d.cache.Get(grammarHash)
	if err != nil {
		return "", nil, err
	}

	execution, err := compiled.Execute(ctx, data)
	if err != nil {
		return "", nil, err
	}

	record := &Record{
		Format:        compiled.Doc.Format,
		GrammarHash:   grammarHash,
		InputHash:     hashing.ExactHash(data),
		InputSize:     len(data),
		BytesConsumed: execution.BytesConsumed,
		Extracted:     execution.Extracted,
	}

	content, err := canonical.Marshal(record)
	if err != nil {
		return "", nil, err
	}
	recordHash, _, _, err := d.store.Put(content, store.TypeMetadata, map[string]string{
		"format":  record.Format,
		"grammar": grammarHash,
	})
	if err != nil {
		return "", nil, err
	}

	if d.ipManager != nil {
		if _, err := d.ipManager.Provenance.Create(recordHash, string(store.TypeMetadata), ip.Origin{
			SourceType: ip.SourceCorpusExtraction,
			CreatedBy:  author,
			Dataset:    grammarHash,
		}); err != nil {
			slog.Warn("recording extraction provenance", "record", hashing.ShortHash(recordHash), "error", err)
		}
	}

	slog.Debug("extraction complete",
		"format", sel.Format,
		"grammar", hashing.ShortHash(grammarHash),
		"record", hashing.ShortHash(recordHash))
	return recordHash, record, nil
}
