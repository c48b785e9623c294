package extractor

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paninifs/engine/pkg/ip"
	"github.com/paninifs/engine/pkg/store"
)

func pngChunk(typ string, data []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	out = append(out, typ...)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(append([]byte(typ), data...)))
}

func buildPNG(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8
	ihdr[9] = 2

	out := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	out = append(out, pngChunk("IHDR", ihdr)...)
	out = append(out, pngChunk("IEND", nil)...)
	return out
}

func setupPNGGrammar(t *testing.T, s *store.Store) string {
	t.Helper()

	doc := map[string]any{
		"format":  "PNG",
		"version": "1.0",
		"composition": map[string]any{
			"policy": "SEQUENTIAL",
			"children": []any{
				map[string]any{
					"name":         "signature",
					"pattern_kind": "MAGIC_NUMBER",
					"config":       map[string]any{"signature": "89504E470D0A1A0A"},
				},
				map[string]any{
					"name":         "chunks",
					"pattern_kind": "CHUNK_STRUCTURE",
					"config": map[string]any{
						"checksum":   "crc32",
						"terminator": "IEND",
						"chunk_fields": map[string]any{
							"IHDR": []any{
								map[string]any{"name": "width", "type": "uint32"},
								map[string]any{"name": "height", "type": "uint32"},
							},
						},
					},
				},
			},
		},
		"metadata": map[string]any{
			"extract": []any{
				map[string]any{"field": "IHDR.width", "as": "image_width"},
				map[string]any{"field": "IHDR.height", "as": "image_height"},
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	exact, _, _, err := s.Put(raw, store.TypeGrammar, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateRef("PNG/latest", store.TypeGrammar, exact))
	return exact
}

func TestDriverExtractsPNG(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(store.WithRoot(t.TempDir()))
	require.NoError(t, err)
	grammarHash := setupPNGGrammar(t, s)

	driver, err := New(s)
	require.NoError(t, err)

	recordHash, record, err := driver.Extract(ctx, buildPNG(320, 200), "tester")
	require.NoError(t, err)
	assert.Equal(t, "PNG", record.Format)
	assert.Equal(t, grammarHash, record.GrammarHash)
	assert.EqualValues(t, 320, record.Extracted["image_width"])
	assert.EqualValues(t, 200, record.Extracted["image_height"])

	// The record is itself a stored, loadable metadata object.
	content, meta, err := s.Get(recordHash, store.TypeMetadata)
	require.NoError(t, err)
	assert.Equal(t, grammarHash, meta.Labels["grammar"])

	var loaded Record
	require.NoError(t, json.Unmarshal(content, &loaded))
	assert.Equal(t, record.InputHash, loaded.InputHash)
}

func TestDriverNoMatchingGrammar(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(store.WithRoot(t.TempDir()))
	require.NoError(t, err)

	driver, err := New(s)
	require.NoError(t, err)

	_, _, err = driver.Extract(ctx, []byte("just some text"), "tester")
	assert.ErrorIs(t, err, ErrNoGrammar)
}

func TestDriverProbeWithoutGrammarRef(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(store.WithRoot(t.TempDir()))
	require.NoError(t, err)

	driver, err := New(s)
	require.NoError(t, err)

	// JPEG magic matches a builtin probe, but no JPEG grammar is
	// registered: selection skips it rather than failing.
	_, _, err = driver.Extract(ctx, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, "tester")
	assert.ErrorIs(t, err, ErrNoGrammar)
}

func TestDriverRecordsProvenance(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := store.New(store.WithRoot(root))
	require.NoError(t, err)
	grammarHash := setupPNGGrammar(t, s)

	ipm, err := ip.NewManager(root)
	require.NoError(t, err)
	t.Cleanup(func() { ipm.Close() })

	driver, err := New(s, WithIPManager(ipm))
	require.NoError(t, err)

	recordHash, _, err := driver.Extract(ctx, buildPNG(64, 64), "corpus-runner")
	require.NoError(t, err)

	chain, err := ipm.Provenance.Load(recordHash)
	require.NoError(t, err)
	assert.Equal(t, ip.SourceCorpusExtraction, chain.Origin.SourceType)
	assert.Equal(t, grammarHash, chain.Origin.Dataset)
	assert.Equal(t, "corpus-runner", chain.Origin.CreatedBy)
}

func TestDriverCustomSelectors(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(store.WithRoot(t.TempDir()))
	require.NoError(t, err)

	doc := map[string]any{
		"format":  "CUSTOM",
		"version": "1.0",
		"composition": map[string]any{
			"pattern_kind": "MAGIC_NUMBER",
			"config":       map[string]any{"signature": "CAFEBABE"},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	exact, _, _, err := s.Put(raw, store.TypeGrammar, nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateRef("CUSTOM/latest", store.TypeGrammar, exact))

	driver, err := New(s, WithSelectors([]Selector{
		{Format: "CUSTOM", Signature: "CAFEBABE", GrammarRef: "CUSTOM/latest"},
	}))
	require.NoError(t, err)

	_, record, err := driver.Extract(ctx, []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00}, "t")
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM", record.Format)
}
