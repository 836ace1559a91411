package models

import (
	"time"

	dErrors "landregistry/pkg/domain-errors"
)

// Action names a role-gated command applied to a case. The wire form uses
// kebab-case to match the public API paths.
type Action string

const (
	ActionPayFees             Action = "pay-fees"
	ActionAuthorizeCommission Action = "authorize-commission"
	ActionScheduleVisit       Action = "schedule-visit"
	ActionUploadReport        Action = "upload-report"
	ActionValidateTechnical   Action = "validate-technical"
	ActionTechnicalQuery      Action = "technical-query"
	ActionRequestGovernor     Action = "request-governor-approval"
	ActionApprove             Action = "approve"
	ActionReject              Action = "reject"
)

var validActions = map[Action]bool{
	ActionPayFees:             true,
	ActionAuthorizeCommission: true,
	ActionScheduleVisit:       true,
	ActionUploadReport:        true,
	ActionValidateTechnical:   true,
	ActionTechnicalQuery:      true,
	ActionRequestGovernor:     true,
	ActionApprove:             true,
	ActionReject:              true,
}

// ParseAction constructs an Action from external input.
func ParseAction(raw string) (Action, error) {
	action := Action(raw)
	if !validActions[action] {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown action %q", raw)
	}
	return action, nil
}

// ActionPayload carries the action-specific inputs of an applied command.
// Fields irrelevant to the action are ignored by the engine.
type ActionPayload struct {
	// Reason backs reject and technical-query; both require it non-empty.
	Reason string `json:"reason,omitempty"`
	// VisitDate backs schedule-visit.
	VisitDate time.Time `json:"visit_date,omitempty"`
	// ReportURL backs upload-report.
	ReportURL string `json:"report_url,omitempty"`
	// Checklist is an optional patch applied before the transition guard
	// runs. Every entry passes the same SOD gate as a direct checklist
	// mutation; one violating key rejects the whole action.
	Checklist map[ChecklistKey]bool `json:"checklist,omitempty"`
}
