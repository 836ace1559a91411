package policy

import (
	"landregistry/internal/cases/models"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/requestcontext"
)

// SodClass partitions checklist keys for segregation of duties. Technical
// keys belong to the cadastre; legal keys to every non-technical authority.
type SodClass string

const (
	SodTechnical SodClass = "technical"
	SodLegal     SodClass = "legal"
)

var technicalKeys = map[models.ChecklistKey]bool{
	models.KeySurveyValid: true,
	models.KeyNoOverlap:   true,
	models.KeyFieldReport: true,
}

// ClassOf returns the SOD class of a checklist key.
func ClassOf(key models.ChecklistKey) SodClass {
	if technicalKeys[key] {
		return SodTechnical
	}
	return SodLegal
}

var (
	transferKeys = []models.ChecklistKey{
		models.KeyIdentityVerified,
		models.KeyTaxCleared,
		models.KeyNotarySeal,
		models.KeyNoOverlap,
	}
	registrationKeys = []models.ChecklistKey{
		models.KeyIdentityVerified,
		models.KeyTaxCleared,
		models.KeySurveyValid,
		models.KeyFieldReport,
		models.KeyNoOverlap,
	}
)

// RequiredKeys returns the checklist keys a case of the given type must
// satisfy before sealing. Transfers carry the legal-only short set;
// registrations and subdivisions share the full set.
func RequiredKeys(caseType models.CaseType) []models.ChecklistKey {
	if caseType.IsTransfer() {
		return append([]models.ChecklistKey(nil), transferKeys...)
	}
	return append([]models.ChecklistKey(nil), registrationKeys...)
}

// MayCertify reports whether the actor's capability set matches the key's
// SOD class. Technical keys require the technical-validation capability;
// legal keys require its absence (legal work is implicitly the domain of
// every non-technical authority).
func MayCertify(actor requestcontext.Actor, key models.ChecklistKey) bool {
	if ClassOf(key) == SodTechnical {
		return actor.Has(CapabilityValidateTechnical)
	}
	return !actor.Has(CapabilityValidateTechnical)
}

// SetChecklistItem mutates one checklist entry after the SOD check. It
// never advances status; a violation is a refused mutation, not a fatal
// error, and names the offending key and required class.
func SetChecklistItem(c *models.Case, key models.ChecklistKey, value bool, actor requestcontext.Actor) error {
	if !MayCertify(actor, key) {
		return dErrors.Newf(dErrors.CodeSodViolation,
			"checklist key %q may only be certified by the %s class", key, ClassOf(key))
	}
	if c.Data.Checklist == nil {
		c.Data.Checklist = map[models.ChecklistKey]bool{}
	}
	c.Data.Checklist[key] = value
	return nil
}

// ApplyChecklistPatch applies every entry of a patch through the SOD gate.
// One violating key rejects the whole patch; the case is left untouched.
func ApplyChecklistPatch(c *models.Case, patch map[models.ChecklistKey]bool, actor requestcontext.Actor) error {
	for key := range patch {
		if !MayCertify(actor, key) {
			return dErrors.Newf(dErrors.CodeSodViolation,
				"checklist key %q may only be certified by the %s class", key, ClassOf(key))
		}
	}
	for key, value := range patch {
		if err := SetChecklistItem(c, key, value, actor); err != nil {
			return err
		}
	}
	return nil
}

// IsReady is the completeness predicate gating the seal action: every
// required key true, and non-transfer cases additionally carry the formal
// cadastre stamp.
func IsReady(c *models.Case) bool {
	for _, key := range RequiredKeys(c.Type) {
		if !c.ChecklistValue(key) {
			return false
		}
	}
	if !c.Type.IsTransfer() && c.Data.CadastreValidatedAt == nil {
		return false
	}
	return true
}
