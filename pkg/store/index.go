package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/paninifs/engine/pkg/hashing"
)

// SimilarMatch is one ranked result of a similarity query.
type SimilarMatch struct {
	ExactHash string  `json:"exact_hash"`
	Score     float64 `json:"score"`
}

// indexAdd appends an exact hash to the bucket of its similarity hash.
// Buckets are append-only; concurrent readers may observe a bucket
// before or after an append but never a corrupted one (writes are
// atomic renames).
func (s *Store) indexAdd(typ ObjectType, similarity, exact string) error {
	path := s.bucketPath(typ, similarity)

	hashes, err := readBucket(path)
	if err != nil {
		return err
	}
	for _, h := range hashes {
		if h == exact {
			return nil
		}
	}
	hashes = append(hashes, exact)
	sort.Strings(hashes)

	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("marshaling similarity bucket: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing similarity bucket: %w", err)
	}
	return nil
}

// FindSimilar ranks stored objects of the given type against the query
// signature. Each persisted bucket is scored once against the query;
// buckets strictly above the threshold contribute all their members at
// the bucket's score. Results are ordered by descending score, ties
// broken by exact hash.
//
// A threshold of 1.0 therefore returns only objects whose signature is
// identical to the query — but see the strictness rule: results must
// score strictly above the threshold, so exact matches are special-
// cased to survive a 1.0 threshold.
func (s *Store) FindSimilar(similarity string, typ ObjectType, threshold float64) ([]SimilarMatch, error) {
	indexDir := filepath.Join(s.root, string(typ), "index")
	entries, err := os.ReadDir(indexDir)
	if err != nil {
		return nil, fmt.Errorf("reading similarity index: %w", err)
	}

	var matches []SimilarMatch
	for _, entry := range entries {
		bucketSig := strings.TrimSuffix(entry.Name(), ".json")
		score := hashing.Score(similarity, bucketSig)
		if score <= threshold && !(score == 1.0 && threshold == 1.0) {
			continue
		}
		hashes, err := readBucket(filepath.Join(indexDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, h := range hashes {
			matches = append(matches, SimilarMatch{ExactHash: h, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ExactHash < matches[j].ExactHash
	})
	return matches, nil
}

func (s *Store) bucketPath(typ ObjectType, similarity string) string {
	return filepath.Join(s.root, string(typ), "index", similarity+".json")
}

func readBucket(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading similarity bucket: %w", err)
	}
	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return nil, fmt.Errorf("unmarshaling similarity bucket: %w", err)
	}
	return hashes, nil
}
