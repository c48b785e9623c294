package root

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, storeRoot string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--store", storeRoot}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStorePutGetRoundTrip(t *testing.T) {
	storeRoot := t.TempDir()

	patternFile := filepath.Join(t.TempDir(), "png-magic.json")
	doc := `{"kind":"MAGIC_NUMBER","config":{"signature":"89504E470D0A1A0A"}}`
	require.NoError(t, os.WriteFile(patternFile, []byte(doc), 0o644))

	out, err := runCLI(t, storeRoot, "store", "put", "--type", "pattern", patternFile)
	require.NoError(t, err)
	exact := strings.Fields(out)[0]
	assert.Len(t, exact, 64)

	got, err := runCLI(t, storeRoot, "store", "get", "--type", "pattern", exact)
	require.NoError(t, err)
	assert.JSONEq(t, doc, got)

	listing, err := runCLI(t, storeRoot, "store", "ls", "--type", "pattern")
	require.NoError(t, err)
	assert.Contains(t, listing, exact[:12])
}

func TestRefSetAndGet(t *testing.T) {
	storeRoot := t.TempDir()

	grammarFile := filepath.Join(t.TempDir(), "g.json")
	doc := `{"format":"X","version":"1.0","composition":{"pattern_kind":"MAGIC_NUMBER","config":{"signature":"AB"}}}`
	require.NoError(t, os.WriteFile(grammarFile, []byte(doc), 0o644))

	out, err := runCLI(t, storeRoot, "store", "put", "--type", "grammar", grammarFile)
	require.NoError(t, err)
	exact := strings.Fields(out)[0]

	_, err = runCLI(t, storeRoot, "ref", "set", "--type", "grammar", "X/latest", exact)
	require.NoError(t, err)

	resolved, err := runCLI(t, storeRoot, "ref", "get", "--type", "grammar", "X/latest")
	require.NoError(t, err)
	assert.Equal(t, exact, strings.TrimSpace(resolved))

	refs, err := runCLI(t, storeRoot, "ref", "ls", "--type", "grammar")
	require.NoError(t, err)
	assert.Contains(t, refs, "X/latest")
}

func TestGrammarRunOnPNG(t *testing.T) {
	storeRoot := t.TempDir()
	work := t.TempDir()

	grammarDoc := map[string]any{
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
	grammarRaw, err := json.Marshal(grammarDoc)
	require.NoError(t, err)
	grammarFile := filepath.Join(work, "png.json")
	require.NoError(t, os.WriteFile(grammarFile, grammarRaw, 0o644))

	out, err := runCLI(t, storeRoot, "store", "put", "--type", "grammar", grammarFile)
	require.NoError(t, err)
	exact := strings.Fields(out)[0]
	_, err = runCLI(t, storeRoot, "ref", "set", "--type", "grammar", "PNG/v1.0", exact)
	require.NoError(t, err)

	pngFile := filepath.Join(work, "test.png")
	require.NoError(t, os.WriteFile(pngFile, buildTestPNG(800, 600), 0o644))

	result, err := runCLI(t, storeRoot, "grammar", "run", "PNG/v1.0", pngFile)
	require.NoError(t, err)
	assert.Contains(t, result, `"image_width": 800`)
	assert.Contains(t, result, `"image_height": 600`)
}

func TestStoreGetUnknownHashFails(t *testing.T) {
	storeRoot := t.TempDir()
	_, err := runCLI(t, storeRoot, "store", "get",
		"0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "panini")
}

func buildTestPNG(width, height uint32) []byte {
	chunk := func(typ string, data []byte) []byte {
		out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
		out = append(out, typ...)
		out = append(out, data...)
		return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8
	ihdr[9] = 2

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	png = append(png, chunk("IHDR", ihdr)...)
	png = append(png, chunk("IEND", nil)...)
	return png
}
