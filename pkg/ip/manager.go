package ip

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// AccessController, Signer and Governance are future phases of the IP
// system. They are declared at interface level only; the Manager
// carries nil implementations until a phase lands.
type AccessController interface {
	CanRead(actor, objectHash string) bool
	CanDerive(actor, objectHash string) bool
}

type Signer interface {
	Sign(objectHash, signer string) ([]byte, error)
	Verify(objectHash string, signature []byte) (bool, error)
}

type Governance interface {
	Reputation(actor string) float64
}

// SubOpResult reports one best-effort sub-operation of a high-level
// IP call. Failures are recorded, never rolled back: partial IP
// registration is still useful.
type SubOpResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Record is the high-level outcome of RegisterObject or DeriveObject.
type Record struct {
	ObjectHash   string        `json:"object_hash"`
	ObjectType   string        `json:"object_type,omitempty"`
	Title        string        `json:"title"`
	DerivedFrom  []string      `json:"derived_from,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	LicenseID    string        `json:"license_id,omitempty"`
	SubOps       []SubOpResult `json:"sub_operations"`
}

// Summary is the joined per-object IP view.
type Summary struct {
	ObjectHash  string            `json:"object_hash"`
	Provenance  *ProvenanceChain  `json:"provenance,omitempty"`
	License     *AppliedLicense   `json:"license,omitempty"`
	Attribution *AttributionChain `json:"attribution,omitempty"`
	Audit       []AuditEntry      `json:"audit,omitempty"`
}

// Manager orchestrates the IP subsystems. Sub-operations are
// independent and best-effort.
type Manager struct {
	Provenance  *ProvenanceManager
	Licenses    *LicenseManager
	Attribution *AttributionManager
	Audit       *AuditTrail

	Access     AccessController
	Signatures Signer
	Gov        Governance
}

// NewManager wires the IP subsystems under a root directory, with the
// audit trail in <root>/ip/audit.db.
func NewManager(root string) (*Manager, error) {
	provenance, err := NewProvenanceManager(root)
	if err != nil {
		return nil, err
	}
	licenses, err := NewLicenseManager(root)
	if err != nil {
		return nil, err
	}
	attribution, err := NewAttributionManager(root)
	if err != nil {
		return nil, err
	}
	audit, err := NewAuditTrail(filepath.Join(root, "ip", "audit.db"))
	if err != nil {
		return nil, err
	}

	return &Manager{
		Provenance:  provenance,
		Licenses:    licenses,
		Attribution: attribution,
		Audit:       audit,
	}, nil
}

// Close releases held resources.
func (m *Manager) Close() error {
	if m.Audit != nil {
		return m.Audit.Close()
	}
	return nil
}

// RegisterRequest describes a new object's IP registration.
type RegisterRequest struct {
	ObjectHash string
	ObjectType string
	Title      string
	Creator    string
	SourceType SourceType
	LicenseID  string
}

// RegisterObject creates provenance, applies the license, and creates
// attribution with a single 100% creator credit — in one call. Each
// sub-operation reports independently.
func (m *Manager) RegisterObject(ctx context.Context, req RegisterRequest) *Record {
	if req.SourceType == "" {
		req.SourceType = SourceManualCreation
	}
	if req.LicenseID == "" {
		req.LicenseID = "CC-BY-4.0"
	}

	record := &Record{
		ObjectHash:   req.ObjectHash,
		ObjectType:   req.ObjectType,
		Title:        req.Title,
		RegisteredAt: time.Now().UTC(),
		LicenseID:    req.LicenseID,
	}

	_, err := m.Provenance.Create(req.ObjectHash, req.ObjectType, Origin{
		SourceType: req.SourceType,
		CreatedBy:  req.Creator,
	})
	record.report("provenance", err)

	_, err = m.Licenses.Apply(req.ObjectHash, req.LicenseID, req.Creator)
	record.report("license", err)

	_, err = m.Attribution.Create(req.ObjectHash, req.ObjectType, req.Title)
	if err == nil {
		_, err = m.Attribution.AddCredit(req.ObjectHash, req.Creator, 100.0, []string{"creation"})
	}
	record.report("attribution", err)

	m.auditBestEffort(ctx, record, req.ObjectHash, req.Creator, "register_object", req.Title)
	return record
}

// DeriveRequest describes a derivative's IP registration.
type DeriveRequest struct {
	NewHash       string
	ObjectType    string
	Parents       []string
	Creator       string
	Title         string
	OwnPercentage float64
}

// DeriveObject registers IP for a derivative: provenance with a
// DERIVATION origin, the composite parent license, the creator's own
// credit plus inherited parent attribution. Sub-operations are
// independent; a license conflict is recorded, not fatal.
func (m *Manager) DeriveObject(ctx context.Context, req DeriveRequest) *Record {
	if req.OwnPercentage <= 0 {
		req.OwnPercentage = 30.0
	}

	record := &Record{
		ObjectHash:   req.NewHash,
		ObjectType:   req.ObjectType,
		Title:        req.Title,
		DerivedFrom:  req.Parents,
		RegisteredAt: time.Now().UTC(),
	}

	_, err := m.Provenance.Create(req.NewHash, req.ObjectType, Origin{
		SourceType: SourceDerivation,
		CreatedBy:  req.Creator,
	})
	record.report("provenance", err)

	composite, err := m.Licenses.ComputeComposite(req.Parents)
	switch {
	case err != nil:
		record.report("license", err)
	case !composite.Compatible:
		record.report("license", fmt.Errorf("%w: %v", ErrIncompatible, composite.Conflicts))
	default:
		record.LicenseID = composite.ResultingLicense.ID
		_, err = m.Licenses.Apply(req.NewHash, composite.ResultingLicense.ID, req.Creator)
		record.report("license", err)
	}

	_, err = m.Attribution.Create(req.NewHash, req.ObjectType, req.Title)
	if err == nil {
		_, err = m.Attribution.AddCredit(req.NewHash, req.Creator, req.OwnPercentage,
			[]string{"derivation", "modification"})
	}
	if err == nil {
		_, err = m.Attribution.InheritFromParents(req.NewHash, req.Parents, req.OwnPercentage)
	}
	record.report("attribution", err)

	m.auditBestEffort(ctx, record, req.NewHash, req.Creator, "derive_object",
		fmt.Sprintf("%s from %d parents", req.Title, len(req.Parents)))
	return record
}

// FullSummary joins every subsystem's view of one object. Absent
// records appear as nil rather than failing the whole summary.
func (m *Manager) FullSummary(ctx context.Context, objectHash string) *Summary {
	summary := &Summary{ObjectHash: objectHash}

	if chain, err := m.Provenance.FullHistory(objectHash); err == nil {
		summary.Provenance = chain
	}
	if applied, err := m.Licenses.Load(objectHash); err == nil {
		summary.License = applied
	}
	if chain, err := m.Attribution.Load(objectHash); err == nil {
		summary.Attribution = chain
	}
	if entries, err := m.Audit.List(ctx, objectHash); err == nil {
		summary.Audit = entries
	}
	return summary
}

func (r *Record) report(name string, err error) {
	result := SubOpResult{Name: name, OK: err == nil}
	if err != nil {
		result.Error = err.Error()
		slog.Warn("IP sub-operation failed", "op", name, "object", r.ObjectHash, "error", err)
	}
	r.SubOps = append(r.SubOps, result)
}

func (m *Manager) auditBestEffort(ctx context.Context, record *Record, objectHash, actor, action, detail string) {
	_, err := m.Audit.Record(ctx, objectHash, actor, action, detail)
	record.report("audit", err)
}
