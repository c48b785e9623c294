package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindClosedSet(t *testing.T) {
	assert.Len(t, Kinds, 18)
	for _, k := range Kinds {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("TOTALLY_NEW").Valid())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("NOT_A_KIND", nil)
	assert.Error(t, err)
}

func TestEveryKindConstructsWithMinimalConfig(t *testing.T) {
	minimal := map[Kind]map[string]any{
		MagicNumber:       {"signature": "FFD8FF"},
		LengthPrefixed:    {},
		ChunkStructure:    {},
		HierarchicalTree:  {},
		Checksum:          {"algorithm": "crc32", "expected_offset": 8, "range_length": 8},
		HeaderBody:        {"header_length": 4},
		KeyValue:          {},
		SequentialRecords: {"record_length": 16},
		CompressedData:    {},
		TextMarkup:        {"markers": []any{"<?xml"}},
		BinaryField:       {"name": "width", "type": "uint32"},
		OffsetTable:       {},
		RIFFHeader:        {},
		RIFFChunk:         {},
		BoxStructure:      {},
		NestedBox:         {"containers": []any{"moov"}},
		XrefTable:         {},
		EOFMarker:         {"marker": "%%EOF"},
	}

	for _, kind := range Kinds {
		cfg, ok := minimal[kind]
		require.True(t, ok, "no minimal config for %s", kind)
		p, err := New(kind, cfg)
		require.NoError(t, err, "constructing %s", kind)
		assert.Equal(t, kind, p.Kind())

		// Declared config keys are how grammar compilation type-checks
		// a document before running it.
		for _, key := range p.RequiredConfig() {
			assert.NotEmpty(t, key)
		}
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{
		Kind:        MagicNumber,
		MissingKeys: []string{"signature"},
		Invalid:     []InvalidValue{{Key: "offset", Expected: "non-negative integer", Got: -1}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "signature")
	assert.Contains(t, msg, "offset")
	assert.Contains(t, msg, "MAGIC_NUMBER")
}

func TestMatchNeverReadsPastInput(t *testing.T) {
	// Every kind against an empty and a one-byte input: must return,
	// not panic, and never report consumption beyond the input.
	configs := map[Kind]map[string]any{
		MagicNumber:       {"signature": "FFD8FF"},
		LengthPrefixed:    {},
		ChunkStructure:    {},
		HierarchicalTree:  {},
		Checksum:          {"algorithm": "crc32", "expected_offset": 8, "range_length": 8},
		HeaderBody:        {"header_length": 4},
		KeyValue:          {},
		SequentialRecords: {"record_length": 16},
		CompressedData:    {},
		TextMarkup:        {"markers": []any{"<?xml"}},
		BinaryField:       {"name": "width", "type": "uint32"},
		OffsetTable:       {},
		RIFFHeader:        {},
		RIFFChunk:         {},
		BoxStructure:      {},
		NestedBox:         {"containers": []any{"moov"}},
		XrefTable:         {},
		EOFMarker:         {"marker": "%%EOF"},
	}

	for kind, cfg := range configs {
		p, err := New(kind, cfg)
		require.NoError(t, err, "constructing %s", kind)
		for _, data := range [][]byte{nil, {0x00}} {
			result := p.Match(data, 0)
			if result.Success {
				assert.LessOrEqual(t, result.BytesConsumed, len(data), "%s overconsumed", kind)
			} else {
				assert.NotNil(t, result.Err, "%s failed without error detail", kind)
			}
		}
	}
}
