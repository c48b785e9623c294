package pattern

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"hash/crc64"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// checksum computes a named algorithm over a declared byte range and
// compares it to the value stored at another location in the input.
// A mismatch is reported in the result but only fails the parent flow
// when the pattern is declared required.
type checksum struct {
	algorithm      string
	rangeOffset    int
	rangeLength    int // 0: to the start of the expected field
	expectedOffset int
	little         bool
	required       bool
	key            []byte // siphash only
}

var checksumSizes = map[string]int{
	"crc32":   4,
	"crc64":   8,
	"sha1":    20,
	"sha256":  32,
	"xxh64":   8,
	"siphash": 8,
}

func newChecksum(cfg map[string]any) (*checksum, error) {
	algorithm, ok := configString(cfg, "algorithm", "")
	if algorithm == "" {
		return nil, missingKey(Checksum, "algorithm")
	}
	if !ok {
		return nil, invalidValue(Checksum, "algorithm", "algorithm name", cfg["algorithm"])
	}
	if _, known := checksumSizes[algorithm]; !known {
		return nil, invalidValue(Checksum, "algorithm", "crc32, crc64, sha1, sha256, xxh64 or siphash", algorithm)
	}

	rangeOffset, ok := configInt(cfg, "range_offset", 0)
	if !ok || rangeOffset < 0 {
		return nil, invalidValue(Checksum, "range_offset", "non-negative integer", cfg["range_offset"])
	}
	rangeLength, ok := configInt(cfg, "range_length", 0)
	if !ok || rangeLength < 0 {
		return nil, invalidValue(Checksum, "range_length", "non-negative integer", cfg["range_length"])
	}

	if _, present := cfg["expected_offset"]; !present {
		return nil, missingKey(Checksum, "expected_offset")
	}
	expOff, ok := configInt(cfg, "expected_offset", 0)
	if !ok || expOff < 0 {
		return nil, invalidValue(Checksum, "expected_offset", "non-negative integer", cfg["expected_offset"])
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(Checksum, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	required, ok := configBool(cfg, "required", false)
	if !ok {
		return nil, invalidValue(Checksum, "required", "bool", cfg["required"])
	}

	key, keyPresent, ok := configBytes(cfg, "key")
	if !ok {
		return nil, invalidValue(Checksum, "key", "16-byte hex key", cfg["key"])
	}
	if algorithm == "siphash" {
		if !keyPresent {
			return nil, missingKey(Checksum, "key")
		}
		if len(key) != 16 {
			return nil, invalidValue(Checksum, "key", "16-byte key", len(key))
		}
	}

	return &checksum{
		algorithm:      algorithm,
		rangeOffset:    rangeOffset,
		rangeLength:    rangeLength,
		expectedOffset: expOff,
		little:         order == "little",
		required:       required,
		key:            key,
	}, nil
}

func (p *checksum) Kind() Kind { return Checksum }

func (p *checksum) RequiredConfig() []string { return []string{"algorithm", "expected_offset"} }

func (p *checksum) OptionalConfig() map[string]any {
	return map[string]any{
		"range_offset": 0, "range_length": 0, "byte_order": "big",
		"required": false, "key": nil,
	}
}

func (p *checksum) Match(data []byte, offset int) MatchResult {
	size := checksumSizes[p.algorithm]

	rangeStart := offset + p.rangeOffset
	expectedStart := offset + p.expectedOffset
	rangeEnd := rangeStart + p.rangeLength
	if p.rangeLength == 0 {
		rangeEnd = expectedStart
	}

	if rangeStart > len(data) || rangeEnd > len(data) || rangeEnd < rangeStart ||
		expectedStart+size > len(data) {
		return failure(Checksum, offset, "insufficient data for checksum range")
	}

	actual := p.compute(data[rangeStart:rangeEnd])
	expected := data[expectedStart : expectedStart+size]

	valid := hex.EncodeToString(actual) == hex.EncodeToString(expected)
	result := map[string]any{
		"algorithm": p.algorithm,
		"valid":     valid,
		"expected":  hex.EncodeToString(expected),
		"actual":    hex.EncodeToString(actual),
	}

	if !valid && p.required {
		return failure(Checksum, rangeStart, fmt.Sprintf(
			"%s mismatch: expected %s, actual %s",
			p.algorithm, hex.EncodeToString(expected), hex.EncodeToString(actual)))
	}

	return success(result, 0, map[string]any{
		"pattern": string(Checksum),
	})
}

func (p *checksum) compute(b []byte) []byte {
	switch p.algorithm {
	case "crc32":
		return p.encodeUint(uint64(crc32.ChecksumIEEE(b)), 4)
	case "crc64":
		return p.encodeUint(crc64.Checksum(b, crc64.MakeTable(crc64.ISO)), 8)
	case "sha1":
		sum := sha1.Sum(b)
		return sum[:]
	case "sha256":
		sum := sha256.Sum256(b)
		return sum[:]
	case "xxh64":
		return p.encodeUint(xxhash.Sum64(b), 8)
	case "siphash":
		return p.encodeUint(siphash.Hash(
			binary.LittleEndian.Uint64(p.key[:8]),
			binary.LittleEndian.Uint64(p.key[8:]),
			b), 8)
	}
	return nil
}

func (p *checksum) encodeUint(v uint64, size int) []byte {
	out := make([]byte, 8)
	if p.little {
		binary.LittleEndian.PutUint64(out, v)
		return out[:size]
	}
	binary.BigEndian.PutUint64(out, v)
	return out[8-size:]
}
