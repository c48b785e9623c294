package pattern

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPNGChunk assembles length + type + data + CRC32(type+data).
func buildPNGChunk(typ string, data []byte) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	out = append(out, typ...)
	out = append(out, data...)
	crc := crc32.ChecksumIEEE(append([]byte(typ), data...))
	out = binary.BigEndian.AppendUint32(out, crc)
	return out
}

func buildIHDR(width, height uint32) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:], width)
	binary.BigEndian.PutUint32(data[4:], height)
	data[8] = 8 // bit depth
	data[9] = 6 // color type RGBA
	return data
}

var pngChunkConfig = map[string]any{
	"checksum":   "crc32",
	"terminator": "IEND",
	"chunk_fields": map[string]any{
		"IHDR": []any{
			map[string]any{"name": "width", "type": "uint32"},
			map[string]any{"name": "height", "type": "uint32"},
			map[string]any{"name": "bit_depth", "type": "uint8"},
			map[string]any{"name": "color_type", "type": "uint8"},
		},
	},
}

func TestChunkStructureParsesPNGChunks(t *testing.T) {
	p, err := New(ChunkStructure, pngChunkConfig)
	require.NoError(t, err)

	stream := buildPNGChunk("IHDR", buildIHDR(800, 600))
	stream = append(stream, buildPNGChunk("IDAT", []byte{1, 2, 3, 4})...)
	stream = append(stream, buildPNGChunk("IEND", nil)...)

	result := p.Match(stream, 0)
	require.True(t, result.Success)
	assert.Equal(t, len(stream), result.BytesConsumed)
	assert.Equal(t, 3, result.Data["chunk_count"])

	ihdr, ok := result.Data["IHDR"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, uint64(800), ihdr["width"])
	assert.Equal(t, uint64(600), ihdr["height"])

	for _, c := range result.Data["chunks"].([]any) {
		chunk := c.(map[string]any)
		assert.Equal(t, true, chunk["crc_valid"], "chunk %v", chunk["type"])
	}
}

func TestChunkStructureStopsAtTerminator(t *testing.T) {
	p, err := New(ChunkStructure, pngChunkConfig)
	require.NoError(t, err)

	stream := buildPNGChunk("IEND", nil)
	trailing := append(append([]byte{}, stream...), []byte("garbage")...)

	result := p.Match(trailing, 0)
	require.True(t, result.Success)
	assert.Equal(t, len(stream), result.BytesConsumed)
	assert.Equal(t, 1, result.Data["chunk_count"])
}

func TestChunkStructureDetectsBadCRC(t *testing.T) {
	p, err := New(ChunkStructure, pngChunkConfig)
	require.NoError(t, err)

	stream := buildPNGChunk("IHDR", buildIHDR(1, 1))
	stream[len(stream)-1] ^= 0xFF

	result := p.Match(stream, 0)
	require.True(t, result.Success)
	chunk := result.Data["chunks"].([]any)[0].(map[string]any)
	assert.Equal(t, false, chunk["crc_valid"])
	assert.NotNil(t, chunk["crc_expected"])
}

func TestChunkStructureTruncatedChunk(t *testing.T) {
	p, err := New(ChunkStructure, pngChunkConfig)
	require.NoError(t, err)

	stream := buildPNGChunk("IHDR", buildIHDR(1, 1))
	result := p.Match(stream[:10], 0)
	require.False(t, result.Success)
	require.NotNil(t, result.Err)
	assert.Equal(t, ChunkStructure, result.Err.Kind)
}

func TestChunkStructureLittleEndianNoChecksum(t *testing.T) {
	p, err := New(ChunkStructure, map[string]any{
		"byte_order": "little",
		"checksum":   "",
	})
	require.NoError(t, err)

	// One chunk: LE length 2, type "ABCD", data {9, 9}.
	stream := []byte{0x02, 0x00, 0x00, 0x00, 'A', 'B', 'C', 'D', 9, 9}
	result := p.Match(stream, 0)
	require.True(t, result.Success)
	assert.Equal(t, len(stream), result.BytesConsumed)
	chunk := result.Data["chunks"].([]any)[0].(map[string]any)
	assert.Equal(t, "ABCD", chunk["type"])
	assert.Equal(t, 2, chunk["length"])
}
