package models

import dErrors "landregistry/pkg/domain-errors"

// CaseStatus is the finite set of workflow states a case can occupy.
// Status only moves through the engine's transition table; nothing outside
// internal/cases/engine assigns it.
type CaseStatus string

const (
	StatusPendingPayment      CaseStatus = "pending_payment"
	StatusSubmitted           CaseStatus = "submitted"
	StatusPendingCommission   CaseStatus = "pending_commission"
	StatusCommissionVisit     CaseStatus = "commission_visit"
	StatusTechnicalValidation CaseStatus = "technical_validation"
	StatusOppositionPeriod    CaseStatus = "opposition_period"
	StatusGovernorApproval    CaseStatus = "governor_approval"
	StatusApproved            CaseStatus = "approved"
	StatusRejected            CaseStatus = "rejected"
)

var validStatuses = map[CaseStatus]bool{
	StatusPendingPayment:      true,
	StatusSubmitted:           true,
	StatusPendingCommission:   true,
	StatusCommissionVisit:     true,
	StatusTechnicalValidation: true,
	StatusOppositionPeriod:    true,
	StatusGovernorApproval:    true,
	StatusApproved:            true,
	StatusRejected:            true,
}

// TerminalStatuses are absorbing: once reached, the case accepts no further
// mutation, only reads for audit and history.
var TerminalStatuses = []CaseStatus{StatusApproved, StatusRejected}

// IsTerminal reports whether the status is absorbing.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseCaseStatus constructs a CaseStatus from external input.
func ParseCaseStatus(raw string) (CaseStatus, error) {
	status := CaseStatus(raw)
	if !validStatuses[status] {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown case status %q", raw)
	}
	return status, nil
}

// CaseType determines which pipeline stages and checklist keys apply.
// Immutable after creation.
type CaseType string

const (
	TypeNewRegistration CaseType = "new_registration"
	TypeTransfer        CaseType = "transfer"
	TypeSubdivision     CaseType = "subdivision"
)

var validTypes = map[CaseType]bool{
	TypeNewRegistration: true,
	TypeTransfer:        true,
	TypeSubdivision:     true,
}

// ParseCaseType constructs a CaseType from external input.
func ParseCaseType(raw string) (CaseType, error) {
	caseType := CaseType(raw)
	if !validTypes[caseType] {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown case type %q", raw)
	}
	return caseType, nil
}

// IsTransfer reports whether the case follows the short legal-only pipeline
// (submitted straight to governor review and sealing).
func (t CaseType) IsTransfer() bool {
	return t == TypeTransfer
}
