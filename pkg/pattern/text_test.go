package pattern

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextMarkupMatchesXML(t *testing.T) {
	p, err := New(TextMarkup, map[string]any{"markers": []any{"<?xml", "<svg"}})
	require.NoError(t, err)

	doc := []byte(`<?xml version="1.0"?><root/>`)
	result := p.Match(doc, 0)
	require.True(t, result.Success)
	assert.Equal(t, "<?xml", result.Data["marker"])
	assert.Equal(t, len(doc), result.BytesConsumed)
}

func TestTextMarkupNoMarker(t *testing.T) {
	p, err := New(TextMarkup, map[string]any{"markers": []any{"%PDF-"}})
	require.NoError(t, err)
	assert.False(t, p.Match([]byte("plain text"), 0).Success)
}

func TestTextMarkupRejectsBinary(t *testing.T) {
	p, err := New(TextMarkup, map[string]any{"markers": []any{"<?xml"}})
	require.NoError(t, err)

	data := append([]byte("<?xml"), 0xFF, 0xFE, 0x80)
	assert.False(t, p.Match(data, 0).Success)
}

func TestEOFMarkerFindsTrailer(t *testing.T) {
	p, err := New(EOFMarker, map[string]any{"marker": "%%EOF"})
	require.NoError(t, err)

	doc := []byte("%PDF-1.4 ... body ... %%EOF\n")
	result := p.Match(doc, 0)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Data["found"])
	assert.Equal(t, bytes.Index(doc, []byte("%%EOF")), result.Data["offset"])
}

func TestEOFMarkerMissingOptional(t *testing.T) {
	p, err := New(EOFMarker, map[string]any{"marker": "%%EOF"})
	require.NoError(t, err)

	result := p.Match([]byte("truncated pdf body"), 0)
	require.True(t, result.Success)
	assert.Equal(t, false, result.Data["matched"])
}

func TestEOFMarkerMissingRequired(t *testing.T) {
	p, err := New(EOFMarker, map[string]any{"marker": "%%EOF", "required": true})
	require.NoError(t, err)
	assert.False(t, p.Match([]byte("truncated pdf body"), 0).Success)
}

func TestXrefTableParsesSubsection(t *testing.T) {
	p, err := New(XrefTable, nil)
	require.NoError(t, err)

	// Three 20-byte entries, PDF style.
	xref := "xref\n0 3\n" +
		"0000000000 65535 f \n" +
		"0000000017 00000 n \n" +
		"0000000081 00000 n \n"
	result := p.Match([]byte(xref), 0)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.Data["entry_count"])

	sections := result.Data["sections"].([]any)
	entries := sections[0].(map[string]any)["entries"].([]any)
	second := entries[1].(map[string]any)
	assert.Equal(t, 17, second["offset"])
	assert.Equal(t, true, second["in_use"])
	assert.Equal(t, false, entries[0].(map[string]any)["in_use"])
}

func TestXrefTableMissingKeyword(t *testing.T) {
	p, err := New(XrefTable, nil)
	require.NoError(t, err)
	assert.False(t, p.Match([]byte("no cross references here"), 0).Success)
}

func TestCompressedDataDetectsGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(strings.Repeat("compressible ", 50)))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	p, err := New(CompressedData, nil)
	require.NoError(t, err)

	result := p.Match(buf.Bytes(), 0)
	require.True(t, result.Success)
	assert.Equal(t, "gzip", result.Data["algorithm"])
	assert.Equal(t, buf.Len(), result.BytesConsumed)
}

func TestCompressedDataDecodesZstd(t *testing.T) {
	plain := []byte(strings.Repeat("zstandard ", 100))
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(plain)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	p, err := New(CompressedData, map[string]any{"algorithm": "zstd", "decode": true})
	require.NoError(t, err)

	result := p.Match(buf.Bytes(), 0)
	require.True(t, result.Success)
	assert.Equal(t, len(plain), result.Data["decoded_size"])
	assert.Equal(t, plain, result.Data["decoded"])
}

func TestCompressedDataAlgorithmMismatch(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("data"))
	_ = gz.Close()

	p, err := New(CompressedData, map[string]any{"algorithm": "zstd"})
	require.NoError(t, err)
	assert.False(t, p.Match(buf.Bytes(), 0).Success)
}

func TestCompressedDataUnknownMagic(t *testing.T) {
	p, err := New(CompressedData, nil)
	require.NoError(t, err)
	assert.False(t, p.Match([]byte("plain old text"), 0).Success)
}

func TestOffsetTableExplicitCount(t *testing.T) {
	p, err := New(OffsetTable, map[string]any{"entry_count": 2, "offset_width": 16, "size_width": 16})
	require.NoError(t, err)

	data := []byte{0x00, 0x10, 0x00, 0x08, 0x00, 0x20, 0x00, 0x04}
	data = append(data, make([]byte, 64)...)
	result := p.Match(data, 0)
	require.True(t, result.Success)

	entries := result.Data["entries"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, 0x10, first["offset"])
	assert.Equal(t, 8, first["size"])
	assert.Equal(t, true, first["valid"])
}

func TestOffsetTableCountPrefix(t *testing.T) {
	p, err := New(OffsetTable, map[string]any{"offset_width": 16, "size_width": 16})
	require.NoError(t, err)

	data := []byte{0x00, 0x01, 0x00, 0x40, 0x00, 0x02}
	data = append(data, make([]byte, 80)...)
	result := p.Match(data, 0)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Data["entry_count"])
}

func TestOffsetTableTruncated(t *testing.T) {
	p, err := New(OffsetTable, map[string]any{"entry_count": 10})
	require.NoError(t, err)
	assert.False(t, p.Match(make([]byte, 8), 0).Success)
}
