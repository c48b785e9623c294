package hashing

import (
	"bytes"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// ObjectKind selects the feature set used to derive a similarity
// signature. Raw byte statistics work well for pattern configs, while
// grammars are compared by the pattern kinds and combinators they
// compose, not by their literal bytes.
type ObjectKind string

const (
	KindPattern    ObjectKind = "pattern"
	KindGrammar    ObjectKind = "grammar"
	KindMetadata   ObjectKind = "metadata"
	KindDerivation ObjectKind = "derivation"
)

// signatureBuckets is the width of a similarity signature. Each bucket
// holds a 4-bit quantized proportion, so a signature is 16 hex chars.
//
// The feature sets below are part of the on-disk contract: changing
// them invalidates every persisted similarity index.
const signatureBuckets = 16

// grammarFeatures are the structural tokens counted when fingerprinting
// a grammar: the closed pattern-kind set plus the combinator roles.
var grammarFeatures = []string{
	"MAGIC_NUMBER", "LENGTH_PREFIXED", "CHUNK_STRUCTURE", "HIERARCHICAL_TREE",
	"CHECKSUM", "HEADER_BODY", "KEY_VALUE", "SEQUENTIAL_RECORDS",
	"COMPRESSED_DATA", "TEXT_MARKUP", "BINARY_FIELD", "OFFSET_TABLE",
	"RIFF_HEADER", "RIFF_CHUNK", "BOX_STRUCTURE", "NESTED_BOX",
	"XREF_TABLE", "EOF_MARKER",
	"SEQUENTIAL", "REPEATED", "OPTIONAL", "ALTERNATIVES",
	"pattern_ref",
}

// SimilarityHash derives the locality-sensitive signature for content
// of the given kind. The signature is a short hex string; callers must
// treat its internal structure as opaque and compare signatures only
// through Score.
func SimilarityHash(b []byte, kind ObjectKind) string {
	var hist [signatureBuckets]int

	switch kind {
	case KindGrammar:
		for _, feat := range grammarFeatures {
			n := bytes.Count(b, []byte(feat))
			if n == 0 {
				continue
			}
			bucket := xxhash.Sum64String(feat) % signatureBuckets
			hist[bucket] += n
		}
		// A grammar with no recognizable features degrades to byte
		// statistics so it still lands in a stable bucket.
		if sum(hist[:]) == 0 {
			byteHistogram(b, &hist)
		}
	default:
		byteHistogram(b, &hist)
	}

	return quantize(hist)
}

// Score compares two signatures and returns a similarity in [0, 1].
// Identical signatures score 1.0. Signatures of different widths
// (from a different engine version) score 0.
func Score(a, b string) float64 {
	av, aok := nibbles(a)
	bv, bok := nibbles(b)
	if !aok || !bok || len(av) != len(bv) {
		return 0
	}

	dist := 0
	for i := range av {
		d := int(av[i]) - int(bv[i])
		if d < 0 {
			d = -d
		}
		dist += d
	}
	return 1 - float64(dist)/float64(15*len(av))
}

func byteHistogram(b []byte, hist *[signatureBuckets]int) {
	for _, c := range b {
		hist[c>>4]++
	}
}

func sum(v []int) int {
	total := 0
	for _, n := range v {
		total += n
	}
	return total
}

// quantize maps each bucket's proportion of the total onto 4 bits and
// renders the result as hex. Quantization is what makes the signature
// locality-sensitive: small input changes rarely move a bucket across
// a quantization boundary.
func quantize(hist [signatureBuckets]int) string {
	total := sum(hist[:])
	sig := make([]byte, signatureBuckets/2)
	for i := 0; i < signatureBuckets; i += 2 {
		sig[i/2] = quantizeBucket(hist[i], total)<<4 | quantizeBucket(hist[i+1], total)
	}
	return hex.EncodeToString(sig)
}

func quantizeBucket(n, total int) byte {
	if total == 0 {
		return 0
	}
	q := n * 32 / total
	if q > 15 {
		q = 15
	}
	return byte(q)
}

func nibbles(sig string) ([]byte, bool) {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return nil, false
	}
	out := make([]byte, 0, len(raw)*2)
	for _, b := range raw {
		out = append(out, b>>4, b&0x0f)
	}
	return out, true
}
