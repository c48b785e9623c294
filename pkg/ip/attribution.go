package ip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Credit is one weighted author on an attribution chain.
type Credit struct {
	Author        string   `json:"author"`
	Percentage    float64  `json:"percentage"`
	Contributions []string `json:"contributions,omitempty"`
}

// AttributionChain carries the per-object credit ledger used for
// citation generation. Credits must sum to 100 (within tolerance) for
// the chain to be complete.
type AttributionChain struct {
	ObjectHash string    `json:"object_hash"`
	ObjectType string    `json:"object_type"`
	Title      string    `json:"title"`
	Year       int       `json:"year"`
	CreatedAt  time.Time `json:"created_at"`
	Credits    []Credit  `json:"credits,omitempty"`
}

// TotalPercentage sums the chain's credits.
func (c *AttributionChain) TotalPercentage() float64 {
	total := 0.0
	for _, credit := range c.Credits {
		total += credit.Percentage
	}
	return total
}

// Complete reports whether credits sum to 100 within tolerance.
func (c *AttributionChain) Complete() bool {
	return math.Abs(c.TotalPercentage()-100.0) <= percentageTolerance
}

// AttributionManager persists chains under <root>/attributions.
type AttributionManager struct {
	dir string
}

func NewAttributionManager(root string) (*AttributionManager, error) {
	dir := filepath.Join(root, "attributions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating attributions directory: %w", err)
	}
	return &AttributionManager{dir: dir}, nil
}

// Create starts an attribution chain for an object.
func (m *AttributionManager) Create(objectHash, objectType, title string) (*AttributionChain, error) {
	if _, err := os.Stat(m.path(objectHash)); err == nil {
		return nil, fmt.Errorf("attribution for %s already exists", objectHash)
	}
	now := time.Now().UTC()
	chain := &AttributionChain{
		ObjectHash: objectHash,
		ObjectType: objectType,
		Title:      title,
		Year:       now.Year(),
		CreatedAt:  now,
	}
	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// Load returns a chain, or ErrNoRecord.
func (m *AttributionManager) Load(objectHash string) (*AttributionChain, error) {
	data, err := os.ReadFile(m.path(objectHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: attribution for %s", ErrNoRecord, objectHash)
		}
		return nil, fmt.Errorf("reading attribution: %w", err)
	}
	var chain AttributionChain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("unmarshaling attribution: %w", err)
	}
	return &chain, nil
}

// AddCredit registers a weighted credit. Credits for one author merge;
// the chain total must not exceed 100.
func (m *AttributionManager) AddCredit(objectHash, author string, percentage float64, contributions []string) (*AttributionChain, error) {
	if percentage <= 0 {
		return nil, fmt.Errorf("%w: credit percentage must be positive, got %.2f", ErrIncompatible, percentage)
	}
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}

	if chain.TotalPercentage()+percentage > 100.0+percentageTolerance {
		return nil, fmt.Errorf("%w: credits would sum to %.2f%%",
			ErrIncompatible, chain.TotalPercentage()+percentage)
	}

	merged := false
	for i := range chain.Credits {
		if chain.Credits[i].Author == author {
			chain.Credits[i].Percentage += percentage
			chain.Credits[i].Contributions = appendUnique(chain.Credits[i].Contributions, contributions...)
			merged = true
			break
		}
	}
	if !merged {
		chain.Credits = append(chain.Credits, Credit{
			Author:        author,
			Percentage:    percentage,
			Contributions: contributions,
		})
	}

	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// InheritFromParents distributes the remaining (100 - ownPercentage)
// across the parents' credits, scaled by each parent's relative
// weight, then union-merges same-author credits into the new chain.
// The new creator's own credit must already be on the chain.
func (m *AttributionManager) InheritFromParents(objectHash string, parentHashes []string, ownPercentage float64) (*AttributionChain, error) {
	if ownPercentage < 0 || ownPercentage > 100 {
		return nil, fmt.Errorf("%w: own percentage %.2f out of range", ErrIncompatible, ownPercentage)
	}
	chain, err := m.Load(objectHash)
	if err != nil {
		return nil, err
	}

	parents := make([]*AttributionChain, 0, len(parentHashes))
	totalWeight := 0.0
	for _, h := range parentHashes {
		parent, err := m.Load(h)
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
		totalWeight += parent.TotalPercentage()
	}
	if totalWeight == 0 {
		return chain, nil
	}

	inherited := 100.0 - ownPercentage
	for _, parent := range parents {
		parentShare := inherited * parent.TotalPercentage() / totalWeight
		parentTotal := parent.TotalPercentage()
		for _, credit := range parent.Credits {
			scaled := parentShare * credit.Percentage / parentTotal
			if scaled <= 0 {
				continue
			}
			merged := false
			for i := range chain.Credits {
				if chain.Credits[i].Author == credit.Author {
					chain.Credits[i].Percentage += scaled
					chain.Credits[i].Contributions = appendUnique(chain.Credits[i].Contributions, credit.Contributions...)
					merged = true
					break
				}
			}
			if !merged {
				chain.Credits = append(chain.Credits, Credit{
					Author:        credit.Author,
					Percentage:    scaled,
					Contributions: credit.Contributions,
				})
			}
		}
	}

	if err := m.save(chain); err != nil {
		return nil, err
	}
	return chain, nil
}

func (m *AttributionManager) save(chain *AttributionChain) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling attribution: %w", err)
	}
	if err := atomic.WriteFile(m.path(chain.ObjectHash), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing attribution: %w", err)
	}
	return nil
}

func (m *AttributionManager) path(objectHash string) string {
	return filepath.Join(m.dir, objectHash+".json")
}
