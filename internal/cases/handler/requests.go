package handler

import (
	"time"

	"landregistry/internal/cases/models"
	"landregistry/internal/cases/service"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

// SubmitCaseRequest is the intake payload for POST /cases.
type SubmitCaseRequest struct {
	Type          string       `json:"type"`
	RelatedParcel string       `json:"related_parcel,omitempty"`
	Locality      string       `json:"locality,omitempty"`
	AreaSqMeters  float64      `json:"area,omitempty"`
	ParcelNumber  string       `json:"parcel_number,omitempty"`
	NewLots       []models.Lot `json:"new_lots,omitempty"`
}

// ToDomain validates the wire payload into a service request.
func (r SubmitCaseRequest) ToDomain() (service.SubmitRequest, error) {
	caseType, err := models.ParseCaseType(r.Type)
	if err != nil {
		return service.SubmitRequest{}, err
	}
	var relatedParcel *domain.ParcelID
	if r.RelatedParcel != "" {
		parcelID, err := domain.ParseParcelID(r.RelatedParcel)
		if err != nil {
			return service.SubmitRequest{}, err
		}
		relatedParcel = &parcelID
	}
	return service.SubmitRequest{
		Type:          caseType,
		RelatedParcel: relatedParcel,
		Data: models.CaseData{
			Locality:     r.Locality,
			AreaSqMeters: r.AreaSqMeters,
			ParcelNumber: r.ParcelNumber,
			NewLots:      r.NewLots,
		},
	}, nil
}

// ActionRequest is the payload for POST /cases/{id}/{action}. All fields
// are optional at the wire level; the engine enforces per-action
// requirements.
type ActionRequest struct {
	Reason    string          `json:"reason,omitempty"`
	VisitDate string          `json:"visit_date,omitempty"`
	ReportURL string          `json:"report_url,omitempty"`
	Checklist map[string]bool `json:"checklist,omitempty"`
}

// ToPayload validates the wire payload into an action payload.
func (r ActionRequest) ToPayload() (models.ActionPayload, error) {
	payload := models.ActionPayload{
		Reason:    r.Reason,
		ReportURL: r.ReportURL,
	}
	if r.VisitDate != "" {
		visitDate, err := time.Parse(time.RFC3339, r.VisitDate)
		if err != nil {
			return models.ActionPayload{}, dErrors.New(dErrors.CodeBadRequest, "visit_date must be RFC 3339")
		}
		payload.VisitDate = visitDate
	}
	if len(r.Checklist) > 0 {
		patch, err := parseChecklistPatch(r.Checklist)
		if err != nil {
			return models.ActionPayload{}, err
		}
		payload.Checklist = patch
	}
	return payload, nil
}

// SetChecklistRequest is the payload for PUT /cases/{id}/checklist.
type SetChecklistRequest struct {
	Items map[string]bool `json:"items"`
}

func parseChecklistPatch(raw map[string]bool) (map[models.ChecklistKey]bool, error) {
	patch := make(map[models.ChecklistKey]bool, len(raw))
	for rawKey, value := range raw {
		key, err := models.ParseChecklistKey(rawKey)
		if err != nil {
			return nil, err
		}
		patch[key] = value
	}
	return patch, nil
}
