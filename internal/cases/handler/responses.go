package handler

import (
	"time"

	"landregistry/internal/cases/models"
)

// CaseResponse wraps a case with the actions the caller may attempt next.
type CaseResponse struct {
	Case           *models.Case    `json:"case"`
	AllowedActions []models.Action `json:"allowed_actions,omitempty"`
}

// CaseListResponse is the envelope for queue and application listings.
type CaseListResponse struct {
	Cases []*models.Case `json:"cases"`
}

// NoticeResponse is the public projection of an opposition-period case. It
// exposes only what a posted notice would: no initiator, no checklist.
type NoticeResponse struct {
	CaseID       string    `json:"case_id"`
	Type         string    `json:"type"`
	Locality     string    `json:"locality,omitempty"`
	ParcelNumber string    `json:"parcel_number,omitempty"`
	PostedAt     time.Time `json:"posted_at"`
}

// NoticeListResponse is the public notice board payload.
type NoticeListResponse struct {
	Notices []NoticeResponse `json:"notices"`
}

func toNotices(cases []*models.Case) []NoticeResponse {
	notices := make([]NoticeResponse, 0, len(cases))
	for _, c := range cases {
		notices = append(notices, NoticeResponse{
			CaseID:       c.ID.String(),
			Type:         string(c.Type),
			Locality:     c.Data.Locality,
			ParcelNumber: c.Data.ParcelNumber,
			PostedAt:     c.UpdatedAt,
		})
	}
	return notices
}
