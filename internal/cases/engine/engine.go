// Package engine is the case lifecycle state machine. The transition table
// below is the single source of truth for which action moves a case from
// which status, under which capability, with which guard and side effect.
// Everything else (handlers, queue scoping, UI action lists) derives from
// it; no caller re-implements status branching.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"landregistry/internal/cases/models"
	"landregistry/internal/cases/policy"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/requestcontext"
)

type rule struct {
	from   models.CaseStatus
	action models.Action
	// capabilities is an any-of set; empty means the action is gated on the
	// case initiator instead of a capability.
	capabilities  []string
	initiatorOnly bool
	// transferOnly restricts the row to the short transfer pipeline.
	transferOnly bool
	to           models.CaseStatus
	guard        func(c *models.Case, p models.ActionPayload) error
	effect       func(c *models.Case, p models.ActionPayload, now time.Time)
}

var rules = []rule{
	{
		from:          models.StatusPendingPayment,
		action:        models.ActionPayFees,
		initiatorOnly: true,
		to:            models.StatusSubmitted,
		effect: func(c *models.Case, _ models.ActionPayload, now time.Time) {
			c.Data.FeesPaidAt = &now
		},
	},
	{
		from:         models.StatusSubmitted,
		action:       models.ActionAuthorizeCommission,
		capabilities: []string{policy.CapabilitySeal},
		to:           models.StatusPendingCommission,
		guard: func(c *models.Case, _ models.ActionPayload) error {
			if !c.ChecklistValue(models.KeyIdentityVerified) || !c.ChecklistValue(models.KeyTaxCleared) {
				return dErrors.New(dErrors.CodeChecklistIncomplete,
					"identity and tax clearance must be verified before authorizing the commission")
			}
			return nil
		},
	},
	{
		from:         models.StatusPendingCommission,
		action:       models.ActionScheduleVisit,
		capabilities: []string{policy.CapabilityScheduleVisit},
		to:           models.StatusCommissionVisit,
		guard: func(_ *models.Case, p models.ActionPayload) error {
			if p.VisitDate.IsZero() {
				return dErrors.New(dErrors.CodeBadRequest, "visit_date is required")
			}
			return nil
		},
		effect: func(c *models.Case, p models.ActionPayload, _ time.Time) {
			visit := p.VisitDate
			c.Data.VisitDate = &visit
		},
	},
	{
		from:         models.StatusCommissionVisit,
		action:       models.ActionUploadReport,
		capabilities: []string{policy.CapabilityUploadReport},
		to:           models.StatusTechnicalValidation,
		guard: func(_ *models.Case, p models.ActionPayload) error {
			if p.ReportURL == "" {
				return dErrors.New(dErrors.CodeBadRequest, "report_url is required")
			}
			return nil
		},
		effect: func(c *models.Case, p models.ActionPayload, now time.Time) {
			// The report artifact is filed here; the field_report checklist
			// key itself stays a cadastre certification (SOD).
			c.Data.ReportURL = p.ReportURL
			c.Data.ReportFiledAt = &now
		},
	},
	{
		from:         models.StatusTechnicalValidation,
		action:       models.ActionValidateTechnical,
		capabilities: []string{policy.CapabilityValidateTechnical},
		to:           models.StatusOppositionPeriod,
		guard: func(c *models.Case, _ models.ActionPayload) error {
			for _, key := range []models.ChecklistKey{models.KeySurveyValid, models.KeyNoOverlap, models.KeyFieldReport} {
				if !c.ChecklistValue(key) {
					return dErrors.Newf(dErrors.CodeChecklistIncomplete,
						"technical key %q must be certified before validation", key)
				}
			}
			return nil
		},
		effect: func(c *models.Case, _ models.ActionPayload, now time.Time) {
			c.Data.CadastreValidatedAt = &now
			c.Data.TechnicalQuery = ""
		},
	},
	{
		from:         models.StatusTechnicalValidation,
		action:       models.ActionTechnicalQuery,
		capabilities: []string{policy.CapabilityValidateTechnical},
		to:           models.StatusTechnicalValidation,
		guard: func(_ *models.Case, p models.ActionPayload) error {
			if p.Reason == "" {
				return dErrors.New(dErrors.CodeBadRequest, "a technical query requires a reason")
			}
			return nil
		},
		effect: func(c *models.Case, p models.ActionPayload, _ time.Time) {
			c.Data.TechnicalQuery = p.Reason
		},
	},
	{
		from:         models.StatusOppositionPeriod,
		action:       models.ActionRequestGovernor,
		capabilities: []string{policy.CapabilityStartNotice, policy.CapabilityRequestGovernor},
		to:           models.StatusGovernorApproval,
	},
	{
		from:         models.StatusGovernorApproval,
		action:       models.ActionApprove,
		capabilities: []string{policy.CapabilitySeal},
		to:           models.StatusApproved,
		guard:        guardReady,
		effect:       sealCase,
	},
	{
		// Transfers skip the commission, cadastre, and opposition stages
		// entirely: their legal-only checklist seals straight from intake.
		from:         models.StatusSubmitted,
		action:       models.ActionApprove,
		capabilities: []string{policy.CapabilitySeal},
		transferOnly: true,
		to:           models.StatusApproved,
		guard:        guardReady,
		effect:       sealCase,
	},
}

func guardReady(c *models.Case, _ models.ActionPayload) error {
	if policy.IsReady(c) {
		return nil
	}
	if !c.Type.IsTransfer() && c.Data.CadastreValidatedAt == nil {
		return dErrors.New(dErrors.CodeChecklistIncomplete,
			"sealing requires the formal cadastre validation stamp")
	}
	return dErrors.New(dErrors.CodeChecklistIncomplete,
		"every required checklist item must be certified before sealing")
}

func sealCase(c *models.Case, _ models.ActionPayload, now time.Time) {
	c.Data.SealedAt = &now
	c.Data.DeedNumber = deedNumber(c, now)
	c.Data.SealHash = sealHash(c, now)
}

func deedNumber(c *models.Case, now time.Time) string {
	short := c.ID.String()[:8]
	return fmt.Sprintf("DEED-%d-%s", now.Year(), short)
}

// sealHash is the tamper-evidence artifact stamped on the deed. It binds
// the case id, deed number, and sealing instant.
func sealHash(c *models.Case, now time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", c.ID, c.Data.DeedNumber, now.UnixNano()))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Engine evaluates actions against the transition table. It is pure: Apply
// never mutates its input and performs no I/O, which keeps every rule
// testable without a store.
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// Apply validates (transition, capability, SOD, guard) and returns the
// mutated successor of c, or a coded error. Rejections leave c untouched.
func (e *Engine) Apply(c *models.Case, action models.Action, actor requestcontext.Actor, payload models.ActionPayload, now time.Time) (*models.Case, error) {
	matched, err := matchRule(c, action)
	if err != nil {
		return nil, err
	}
	if err := checkActorAllowed(matched, c, actor); err != nil {
		return nil, err
	}

	next := c.Clone()
	if len(payload.Checklist) > 0 {
		if err := policy.ApplyChecklistPatch(next, payload.Checklist, actor); err != nil {
			return nil, err
		}
	}
	if matched.guard != nil {
		if err := matched.guard(next, payload); err != nil {
			return nil, err
		}
	}
	if action == models.ActionReject {
		applyRejection(next, payload)
	}
	if matched.effect != nil {
		matched.effect(next, payload, now)
	}
	next.Status = matched.to
	next.UpdatedAt = now
	return next, nil
}

// AllowedActions lists the actions the actor could currently attempt on the
// case. The UI renders (status, allowed actions) and never re-derives
// business rules.
func (e *Engine) AllowedActions(c *models.Case, actor requestcontext.Actor) []models.Action {
	var actions []models.Action
	for _, r := range rulesFor(c.Status) {
		if r.transferOnly && !c.Type.IsTransfer() {
			continue
		}
		if checkActorAllowed(r, c, actor) == nil {
			actions = append(actions, r.action)
		}
	}
	return actions
}

// ActionableStatuses derives the queue scope of a capability set: the
// statuses from which the actor has at least one valid action.
func (e *Engine) ActionableStatuses(actor requestcontext.Actor) []models.CaseStatus {
	if actor.Has(policy.CapabilityViewAll) {
		var all []models.CaseStatus
		for _, s := range orderedStatuses {
			if !s.IsTerminal() {
				all = append(all, s)
			}
		}
		return all
	}
	seen := map[models.CaseStatus]bool{}
	var statuses []models.CaseStatus
	for _, s := range orderedStatuses {
		for _, r := range rulesFor(s) {
			if r.initiatorOnly || seen[s] {
				continue
			}
			if actor.HasAny(r.capabilities...) {
				seen[s] = true
				statuses = append(statuses, s)
			}
		}
	}
	return statuses
}

var orderedStatuses = []models.CaseStatus{
	models.StatusPendingPayment,
	models.StatusSubmitted,
	models.StatusPendingCommission,
	models.StatusCommissionVisit,
	models.StatusTechnicalValidation,
	models.StatusOppositionPeriod,
	models.StatusGovernorApproval,
	models.StatusApproved,
	models.StatusRejected,
}

// rulesFor returns the table rows starting at the status, including the
// synthetic reject row available from every non-terminal state.
func rulesFor(status models.CaseStatus) []rule {
	if status.IsTerminal() {
		return nil
	}
	matched := make([]rule, 0, 3)
	for _, r := range rules {
		if r.from == status {
			matched = append(matched, r)
		}
	}
	matched = append(matched, rule{
		from:         status,
		action:       models.ActionReject,
		capabilities: []string{policy.CapabilitySeal},
		to:           models.StatusRejected,
		guard: func(_ *models.Case, p models.ActionPayload) error {
			if p.Reason == "" {
				return dErrors.New(dErrors.CodeBadRequest, "rejection requires a non-empty reason")
			}
			return nil
		},
	})
	return matched
}

func matchRule(c *models.Case, action models.Action) (rule, error) {
	for _, r := range rulesFor(c.Status) {
		if r.action != action {
			continue
		}
		if r.transferOnly && !c.Type.IsTransfer() {
			// The short approve path exists only for transfers; for every
			// other type the pair (submitted, approve) has no row.
			continue
		}
		return r, nil
	}
	return rule{}, dErrors.Newf(dErrors.CodeInvalidTransition,
		"action %q is not valid while the case is %s", action, c.Status)
}

func checkActorAllowed(r rule, c *models.Case, actor requestcontext.Actor) error {
	if r.initiatorOnly {
		if actor.ID != c.Initiator.String() {
			return dErrors.Newf(dErrors.CodeForbidden, "only the case initiator may %s", r.action)
		}
		return nil
	}
	if !actor.HasAny(r.capabilities...) {
		return dErrors.Newf(dErrors.CodeForbidden, "actor lacks the capability for %s", r.action)
	}
	return nil
}

func applyRejection(c *models.Case, p models.ActionPayload) {
	// rejection_reason and technical_query are mutually exclusive per
	// transition.
	c.Data.RejectionReason = p.Reason
	c.Data.TechnicalQuery = ""
}
