package ip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/natefinch/atomic"
)

// Family groups licenses by their broad legal shape.
type Family string

const (
	FamilyPermissive      Family = "permissive"
	FamilyCopyleft        Family = "copyleft"
	FamilyWeakCopyleft    Family = "weak_copyleft"
	FamilyCreativeCommons Family = "creative_commons"
	FamilyPublicDomain    Family = "public_domain"
	FamilyProprietary     Family = "proprietary"
)

// License describes one entry of the closed, well-known license table.
type License struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Family              Family `json:"family"`
	CommercialUse       bool   `json:"commercial_use"`
	DerivationAllowed   bool   `json:"derivation_allowed"`
	AttributionRequired bool   `json:"attribution_required"`
	ShareAlike          bool   `json:"share_alike"`
	PatentGrant         bool   `json:"patent_grant"`
}

// restrictiveness ranks licenses for most-restrictive-wins composite
// resolution. Higher wins.
func (l License) restrictiveness() int {
	switch {
	case l.Family == FamilyProprietary:
		return 5
	case l.ShareAlike && l.Family == FamilyCopyleft:
		return 4
	case l.ShareAlike:
		return 3
	case l.Family == FamilyWeakCopyleft:
		return 2
	case l.AttributionRequired:
		return 1
	default:
		return 0
	}
}

// knownLicenses is the closed table. Extending it is a deliberate
// decision, not a runtime affordance.
var knownLicenses = map[string]License{
	"MIT":          {ID: "MIT", Name: "MIT License", Family: FamilyPermissive, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true},
	"BSD-3-Clause": {ID: "BSD-3-Clause", Name: "BSD 3-Clause License", Family: FamilyPermissive, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true},
	"Apache-2.0":   {ID: "Apache-2.0", Name: "Apache License 2.0", Family: FamilyPermissive, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, PatentGrant: true},
	"GPL-2.0":      {ID: "GPL-2.0", Name: "GNU GPL v2", Family: FamilyCopyleft, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, ShareAlike: true},
	"GPL-3.0":      {ID: "GPL-3.0", Name: "GNU GPL v3", Family: FamilyCopyleft, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, ShareAlike: true, PatentGrant: true},
	"LGPL-3.0":     {ID: "LGPL-3.0", Name: "GNU LGPL v3", Family: FamilyWeakCopyleft, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, PatentGrant: true},
	"MPL-2.0":      {ID: "MPL-2.0", Name: "Mozilla Public License 2.0", Family: FamilyWeakCopyleft, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, PatentGrant: true},
	"CC-BY-4.0":    {ID: "CC-BY-4.0", Name: "Creative Commons Attribution 4.0", Family: FamilyCreativeCommons, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true},
	"CC-BY-SA-4.0": {ID: "CC-BY-SA-4.0", Name: "Creative Commons Attribution-ShareAlike 4.0", Family: FamilyCreativeCommons, CommercialUse: true, DerivationAllowed: true, AttributionRequired: true, ShareAlike: true},
	"CC-BY-ND-4.0": {ID: "CC-BY-ND-4.0", Name: "Creative Commons Attribution-NoDerivatives 4.0", Family: FamilyCreativeCommons, CommercialUse: true, AttributionRequired: true},
	"CC0-1.0":      {ID: "CC0-1.0", Name: "Creative Commons Zero 1.0", Family: FamilyPublicDomain, CommercialUse: true, DerivationAllowed: true},
	"Unlicense":    {ID: "Unlicense", Name: "The Unlicense", Family: FamilyPublicDomain, CommercialUse: true, DerivationAllowed: true},
	"Proprietary":  {ID: "Proprietary", Name: "All Rights Reserved", Family: FamilyProprietary},
}

// Compatibility verdicts.
type Compatibility string

const (
	Compatible   Compatibility = "compatible"
	Conditional  Compatibility = "conditional"
	Incompatible Compatibility = "incompatible"
)

// CompatibilityResult reports one pairwise check.
type CompatibilityResult struct {
	Compatibility Compatibility `json:"compatibility"`
	Conditions    []string      `json:"conditions,omitempty"`
	Conflicts     []string      `json:"conflicts,omitempty"`
}

// CompositeResult reports the license reduction across parents.
type CompositeResult struct {
	Compatible       bool     `json:"compatible"`
	ResultingLicense *License `json:"resulting_license,omitempty"`
	Conditions       []string `json:"conditions,omitempty"`
	Conflicts        []string `json:"conflicts,omitempty"`
}

// AppliedLicense records a license applied to one object.
type AppliedLicense struct {
	ObjectHash string    `json:"object_hash"`
	LicenseID  string    `json:"license_id"`
	AppliedBy  string    `json:"applied_by"`
	AppliedAt  time.Time `json:"applied_at"`
}

// LicenseManager persists applied licenses under <root>/licenses and
// answers compatibility queries over the closed table.
type LicenseManager struct {
	dir string
}

func NewLicenseManager(root string) (*LicenseManager, error) {
	dir := filepath.Join(root, "licenses")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating licenses directory: %w", err)
	}
	return &LicenseManager{dir: dir}, nil
}

// Known returns the license table entry for an ID.
func Known(licenseID string) (License, bool) {
	l, ok := knownLicenses[licenseID]
	return l, ok
}

// KnownIDs lists the closed table's identifiers, sorted.
func KnownIDs() []string {
	ids := make([]string, 0, len(knownLicenses))
	for id := range knownLicenses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply attaches a known license to an object, replacing any earlier
// application.
func (m *LicenseManager) Apply(objectHash, licenseID, appliedBy string) (*AppliedLicense, error) {
	if _, ok := knownLicenses[licenseID]; !ok {
		return nil, fmt.Errorf("%w: unknown license %q", ErrIncompatible, licenseID)
	}
	applied := &AppliedLicense{
		ObjectHash: objectHash,
		LicenseID:  licenseID,
		AppliedBy:  appliedBy,
		AppliedAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(applied, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling license record: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(m.dir, objectHash+".json"), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("writing license record: %w", err)
	}
	return applied, nil
}

// Load returns the applied license for an object, or ErrNoRecord.
func (m *LicenseManager) Load(objectHash string) (*AppliedLicense, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, objectHash+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: license for %s", ErrNoRecord, objectHash)
		}
		return nil, fmt.Errorf("reading license record: %w", err)
	}
	var applied AppliedLicense
	if err := json.Unmarshal(data, &applied); err != nil {
		return nil, fmt.Errorf("unmarshaling license record: %w", err)
	}
	return &applied, nil
}

// CheckCompatibility evaluates one (a, b) pair through the rule
// matrix: derivation permission, share-alike relicensing, and
// attribution union.
func (m *LicenseManager) CheckCompatibility(aID, bID string) (*CompatibilityResult, error) {
	a, ok := knownLicenses[aID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown license %q", ErrIncompatible, aID)
	}
	b, ok := knownLicenses[bID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown license %q", ErrIncompatible, bID)
	}

	result := &CompatibilityResult{Compatibility: Compatible}

	if aID == bID {
		if a.AttributionRequired {
			result.Conditions = append(result.Conditions, "attribution required")
		}
		return result, nil
	}

	if !a.DerivationAllowed {
		result.Compatibility = Incompatible
		result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s does not permit derivation", aID))
	}
	if !b.DerivationAllowed {
		result.Compatibility = Incompatible
		result.Conflicts = append(result.Conflicts, fmt.Sprintf("%s does not permit derivation", bID))
	}
	if result.Compatibility == Incompatible {
		return result, nil
	}

	if a.ShareAlike && b.ShareAlike {
		// Two distinct share-alike licenses each demand the derivative
		// stay under themselves.
		result.Compatibility = Incompatible
		result.Conflicts = append(result.Conflicts,
			fmt.Sprintf("share-alike forbids relicensing: %s vs %s", aID, bID))
		return result, nil
	}

	if a.ShareAlike || b.ShareAlike {
		shareAlike := aID
		if b.ShareAlike {
			shareAlike = bID
		}
		result.Compatibility = Conditional
		result.Conditions = append(result.Conditions,
			fmt.Sprintf("derivative must be licensed under %s", shareAlike))
	}

	if a.AttributionRequired || b.AttributionRequired {
		result.Conditions = append(result.Conditions, "attribution required")
	}
	return result, nil
}

// ComputeComposite reduces the licenses applied to the parents into
// the license of a derivative: pairwise checks, then most-restrictive
// wins (tie-break by license ID so the result is deterministic).
// A single parent composes to its own license.
func (m *LicenseManager) ComputeComposite(parentHashes []string) (*CompositeResult, error) {
	if len(parentHashes) == 0 {
		return &CompositeResult{Compatible: true}, nil
	}

	licenses := make([]License, 0, len(parentHashes))
	for _, h := range parentHashes {
		applied, err := m.Load(h)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, knownLicenses[applied.LicenseID])
	}

	result := &CompositeResult{Compatible: true}
	for i := 0; i < len(licenses); i++ {
		for j := i + 1; j < len(licenses); j++ {
			check, err := m.CheckCompatibility(licenses[i].ID, licenses[j].ID)
			if err != nil {
				return nil, err
			}
			if check.Compatibility == Incompatible {
				result.Compatible = false
				result.Conflicts = append(result.Conflicts, check.Conflicts...)
			}
			result.Conditions = appendUnique(result.Conditions, check.Conditions...)
		}
	}
	if !result.Compatible {
		return result, nil
	}

	winner := licenses[0]
	for _, l := range licenses[1:] {
		if l.restrictiveness() > winner.restrictiveness() ||
			(l.restrictiveness() == winner.restrictiveness() && l.ID < winner.ID) {
			winner = l
		}
	}
	result.ResultingLicense = &winner
	return result, nil
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range dst {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}
