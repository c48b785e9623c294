package pattern

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// compressedData identifies a compressed stream by its magic bytes
// and, when decoding is requested, inflates it up to a configured
// bound so entropy analysis can run on the plaintext.
type compressedData struct {
	algorithm  string // gzip|zlib|zstd|auto
	decode     bool
	maxDecoded int
}

var compressionMagics = []struct {
	name  string
	magic []byte
}{
	{"gzip", []byte{0x1f, 0x8b}},
	{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{"zlib", []byte{0x78, 0x9c}},
	{"zlib", []byte{0x78, 0x01}},
	{"zlib", []byte{0x78, 0xda}},
}

func newCompressedData(cfg map[string]any) (*compressedData, error) {
	algorithm, ok := configString(cfg, "algorithm", "auto")
	if !ok {
		return nil, invalidValue(CompressedData, "algorithm", "gzip, zlib, zstd or auto", cfg["algorithm"])
	}
	switch algorithm {
	case "gzip", "zlib", "zstd", "auto":
	default:
		return nil, invalidValue(CompressedData, "algorithm", "gzip, zlib, zstd or auto", algorithm)
	}

	decode, ok := configBool(cfg, "decode", false)
	if !ok {
		return nil, invalidValue(CompressedData, "decode", "bool", cfg["decode"])
	}
	maxDecoded, ok := configInt(cfg, "max_decoded", 16*1024*1024)
	if !ok || maxDecoded <= 0 {
		return nil, invalidValue(CompressedData, "max_decoded", "positive integer", cfg["max_decoded"])
	}

	return &compressedData{algorithm: algorithm, decode: decode, maxDecoded: maxDecoded}, nil
}

func (p *compressedData) Kind() Kind { return CompressedData }

func (p *compressedData) RequiredConfig() []string { return nil }

func (p *compressedData) OptionalConfig() map[string]any {
	return map[string]any{"algorithm": "auto", "decode": false, "max_decoded": 16 * 1024 * 1024}
}

func (p *compressedData) Match(data []byte, offset int) MatchResult {
	rest := data[offset:]
	if len(rest) == 0 {
		return failure(CompressedData, offset, "no input")
	}

	detected := ""
	for _, m := range compressionMagics {
		if bytes.HasPrefix(rest, m.magic) {
			detected = m.name
			break
		}
	}
	if detected == "" {
		return failure(CompressedData, offset, "no known compression magic")
	}
	if p.algorithm != "auto" && p.algorithm != detected {
		return failure(CompressedData, offset, fmt.Sprintf(
			"expected %s stream, detected %s", p.algorithm, detected))
	}

	result := map[string]any{
		"algorithm":       detected,
		"compressed_size": len(rest),
	}

	if p.decode {
		decoded, err := p.inflate(detected, rest)
		if err != nil {
			return failure(CompressedData, offset, fmt.Sprintf("decoding %s stream: %v", detected, err))
		}
		result["decoded_size"] = len(decoded)
		result["decoded"] = decoded
	}

	return success(result, len(rest), map[string]any{
		"pattern": string(CompressedData),
	})
}

func (p *compressedData) inflate(algorithm string, b []byte) ([]byte, error) {
	var r io.Reader
	switch algorithm {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr.IOReadCloser()
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	decoded, err := io.ReadAll(io.LimitReader(r, int64(p.maxDecoded)+1))
	if err != nil {
		return nil, err
	}
	if len(decoded) > p.maxDecoded {
		return nil, fmt.Errorf("decoded stream exceeds %d byte bound", p.maxDecoded)
	}
	return decoded, nil
}
