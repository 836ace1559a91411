// Package policy holds the pure rules around cases: who may do what
// (capabilities) and which examination items gate approval (checklist and
// its segregation-of-duties partition). No storage, no transport.
package policy

// Capability strings carried by actors. Assignment happens out-of-band
// (admin tooling); the engine only checks membership.
const (
	CapabilitySubmit            = "cases.submit"
	CapabilitySeal              = "cases.seal"
	CapabilityValidateTechnical = "cases.validate_technical"
	CapabilityUploadReport      = "cases.upload_report"
	CapabilityScheduleVisit     = "cases.schedule_visit"
	CapabilityRequestGovernor   = "cases.request_governor"
	CapabilityStartNotice       = "cases.start_notice"
	CapabilityViewAll           = "cases.view_all"
)

// Role presets mirror the authorities of the registration workflow. They
// exist as fixtures for token issuance and tests; production assignment is
// an admin concern outside this core.
var (
	RoleCitizen   = []string{CapabilitySubmit}
	RoleClerk     = []string{CapabilitySeal, CapabilityViewAll}
	RoleSurveyor  = []string{CapabilityUploadReport, CapabilityScheduleVisit}
	RoleCadastre  = []string{CapabilityValidateTechnical}
	RoleGovernor  = []string{CapabilityRequestGovernor, CapabilityStartNotice, CapabilityViewAll}
	RoleRegistrar = []string{CapabilitySeal, CapabilityScheduleVisit, CapabilityViewAll}
)
