package models

import (
	"time"

	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// ChecklistKey is one of the closed set of examination requirements gating
// final approval. The catalog is fixed; free-form keys are rejected at the
// boundary.
type ChecklistKey string

const (
	KeyIdentityVerified ChecklistKey = "identity_verified"
	KeySurveyValid      ChecklistKey = "survey_valid"
	KeyTaxCleared       ChecklistKey = "tax_cleared"
	KeyNoOverlap        ChecklistKey = "no_overlap"
	KeyNotarySeal       ChecklistKey = "notary_seal"
	KeyFieldReport      ChecklistKey = "field_report"
)

var validChecklistKeys = map[ChecklistKey]bool{
	KeyIdentityVerified: true,
	KeySurveyValid:      true,
	KeyTaxCleared:       true,
	KeyNoOverlap:        true,
	KeyNotarySeal:       true,
	KeyFieldReport:      true,
}

// ParseChecklistKey constructs a ChecklistKey from external input.
func ParseChecklistKey(raw string) (ChecklistKey, error) {
	key := ChecklistKey(raw)
	if !validChecklistKeys[key] {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown checklist key %q", raw)
	}
	return key, nil
}

// Lot is a proposed child parcel on a subdivision case. Recorded verbatim;
// the lot-splitting legal effect on approval is pending product
// clarification and is not applied to the registry.
type Lot struct {
	ID           string  `json:"id"`
	AreaSqMeters float64 `json:"area"`
}

// CaseData is the open attribute bag of a case. It is opaque to storage
// (persisted as one JSON document) and interpreted only by the checklist
// policy and the engine.
type CaseData struct {
	Locality     string                `json:"locality,omitempty"`
	AreaSqMeters float64               `json:"area,omitempty"`
	ParcelNumber string                `json:"parcel_number,omitempty"`
	NewLots      []Lot                 `json:"new_lots,omitempty"`
	Checklist    map[ChecklistKey]bool `json:"checklist,omitempty"`

	// RejectionReason and TechnicalQuery are mutually exclusive per
	// transition; a later instance of the same action may overwrite.
	RejectionReason string `json:"rejection_reason,omitempty"`
	TechnicalQuery  string `json:"technical_query,omitempty"`

	// CadastreValidatedAt is non-nil iff validate-technical has been
	// accepted at least once. Transfers never carry it.
	CadastreValidatedAt *time.Time `json:"cadastre_validated_at,omitempty"`

	VisitDate     *time.Time `json:"visit_date,omitempty"`
	FeesPaidAt    *time.Time `json:"fees_paid_at,omitempty"`
	ReportURL     string     `json:"report_url,omitempty"`
	ReportFiledAt *time.Time `json:"report_filed_at,omitempty"`

	// Deed artifacts, set only by an accepted approve.
	DeedNumber string     `json:"deed_number,omitempty"`
	SealHash   string     `json:"seal_hash,omitempty"`
	SealedAt   *time.Time `json:"sealed_at,omitempty"`
}

// Case is the aggregate root of a land-administration request.
//
// Invariants:
//   - Status transitions only through the engine's transition table.
//   - Checklist entries are set true only by actors of the key's SOD class.
//   - Transfers and subdivisions reference an existing parcel; a new
//     registration has none until approval creates it.
//   - Version increments on every persisted mutation (optimistic lock).
//   - Terminal cases (approved, rejected) accept no further mutation.
type Case struct {
	ID            domain.CaseID    `json:"id"`
	Type          CaseType         `json:"type"`
	Status        CaseStatus       `json:"status"`
	Initiator     domain.ActorID   `json:"initiator"`
	RelatedParcel *domain.ParcelID `json:"related_parcel,omitempty"`
	Data          CaseData         `json:"data"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewCase constructs a submitted request in its entry state. Fee payment is
// the first transition; the case enters the pipeline as pending_payment.
func NewCase(id domain.CaseID, caseType CaseType, initiator domain.ActorID, relatedParcel *domain.ParcelID, data CaseData, now time.Time) (*Case, error) {
	if initiator.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case initiator is required")
	}
	switch caseType {
	case TypeTransfer, TypeSubdivision:
		if relatedParcel == nil || relatedParcel.IsNil() {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "%s cases require a related parcel", caseType)
		}
	case TypeNewRegistration:
		if relatedParcel != nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "new registrations acquire a parcel only on approval")
		}
		if data.ParcelNumber == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "new registrations require a proposed parcel number")
		}
	default:
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown case type %q", caseType)
	}
	if data.Checklist == nil {
		data.Checklist = map[ChecklistKey]bool{}
	}
	return &Case{
		ID:            id,
		Type:          caseType,
		Status:        StatusPendingPayment,
		Initiator:     initiator,
		RelatedParcel: relatedParcel,
		Data:          data,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ChecklistValue reads a key, defaulting absent entries to false.
func (c *Case) ChecklistValue(key ChecklistKey) bool {
	return c.Data.Checklist[key]
}

// Clone returns a deep copy so stores never hand out shared mutable state.
func (c *Case) Clone() *Case {
	clone := *c
	if c.RelatedParcel != nil {
		parcel := *c.RelatedParcel
		clone.RelatedParcel = &parcel
	}
	clone.Data.Checklist = make(map[ChecklistKey]bool, len(c.Data.Checklist))
	for key, value := range c.Data.Checklist {
		clone.Data.Checklist[key] = value
	}
	if c.Data.NewLots != nil {
		clone.Data.NewLots = append([]Lot(nil), c.Data.NewLots...)
	}
	clone.Data.CadastreValidatedAt = cloneTime(c.Data.CadastreValidatedAt)
	clone.Data.VisitDate = cloneTime(c.Data.VisitDate)
	clone.Data.FeesPaidAt = cloneTime(c.Data.FeesPaidAt)
	clone.Data.ReportFiledAt = cloneTime(c.Data.ReportFiledAt)
	clone.Data.SealedAt = cloneTime(c.Data.SealedAt)
	return &clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
