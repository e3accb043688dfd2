package domain

// TransitionResult is returned by manual and forced transitions.
type TransitionResult struct {
	Applied  bool  `json:"applied"`
	NewState State `json:"new_state"`
}

// VerifyResult is returned by automatic verification. From is the state the
// check started in; To is set only when at least one step applied.
type VerifyResult struct {
	Applied    bool          `json:"applied"`
	From       State         `json:"from_state"`
	To         *State        `json:"to_state,omitempty"`
	Steps      []StateChange `json:"-"`
	Superseded bool          `json:"superseded,omitempty"`
}

type SweepResult struct {
	Checked      int `json:"checked"`
	Transitioned int `json:"transitioned"`
	Failed       int `json:"failed"`
}

type SectionStatus string

const (
	SectionMissing  SectionStatus = "missing"
	SectionPartial  SectionStatus = "partial"
	SectionComplete SectionStatus = "complete"
)

// ComplianceStatus is kept apart from SectionStatus: having a document and
// having an acceptable one are different questions.
type ComplianceStatus string

const (
	CompliancePending      ComplianceStatus = "pending"
	ComplianceCompliant    ComplianceStatus = "compliant"
	ComplianceNonCompliant ComplianceStatus = "non_compliant"
)

type SectionProgress struct {
	SectionID             string           `json:"section_id"`
	Name                  string           `json:"name"`
	Obligatory            bool             `json:"obligatory"`
	Status                SectionStatus    `json:"status"`
	DocumentCount         int              `json:"document_count"`
	ActiveVersion         int              `json:"active_version,omitempty"`
	Evaluated             bool             `json:"evaluated"`
	Compliance            ComplianceStatus `json:"compliance"`
	RequiresClarification bool             `json:"requires_clarification,omitempty"`
}

type Progress struct {
	AuditID    string            `json:"audit_id"`
	Percent    int               `json:"percent"`
	Status     SectionStatus     `json:"status"`
	PerSection []SectionProgress `json:"per_section"`
}

// ObligatoryComplete reports whether every obligatory section has a document.
func (p Progress) ObligatoryComplete() bool {
	for _, s := range p.PerSection {
		if s.Obligatory && s.Status != SectionComplete {
			return false
		}
	}
	return true
}

// ObligatoryEvaluated reports whether every obligatory section has an active
// evaluation.
func (p Progress) ObligatoryEvaluated() bool {
	for _, s := range p.PerSection {
		if s.Obligatory && !s.Evaluated {
			return false
		}
	}
	return true
}

// ClarificationPending reports whether any active evaluation asks for
// clarification.
func (p Progress) ClarificationPending() bool {
	for _, s := range p.PerSection {
		if s.RequiresClarification {
			return true
		}
	}
	return false
}

// InventoryResult is the verdict for one inventory row.
type InventoryResult struct {
	Row          int             `json:"row"`
	Normalized   NormalizedAsset `json:"normalized"`
	Compliant    bool            `json:"compliant"`
	Reasons      []string        `json:"reasons"`
	Observations []string        `json:"observations,omitempty"`
}

type InventoryBatchResult struct {
	Results   []InventoryResult `json:"results"`
	Compliant int               `json:"compliant"`
	Failed    int               `json:"non_compliant"`
	Warnings  []ParseWarning    `json:"warnings,omitempty"`
}
