// Package registry is the book of record for parcels and deeds. Entries are
// created and reassigned exclusively by case approval; everything else is
// read access (owner properties, public search, deed verification).
package registry

import (
	"time"

	"landregistry/pkg/domain"
)

// Parcel is a registered piece of land.
type Parcel struct {
	ID           domain.ParcelID `json:"id"`
	ParcelNumber string          `json:"parcel_number"`
	Locality     string          `json:"locality"`
	AreaSqMeters float64         `json:"area_sq_meters"`
	Owner        domain.ActorID  `json:"owner"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Deed is the issued digital title: the legal artifact produced when a case
// is sealed. SealHash carries the tamper-evidence stamp from the sealing
// action.
type Deed struct {
	ID         domain.DeedID   `json:"id"`
	DeedNumber string          `json:"deed_number"`
	ParcelID   domain.ParcelID `json:"parcel_id"`
	Holder     domain.ActorID  `json:"holder"`
	CaseID     domain.CaseID   `json:"case_id"`
	SealHash   string          `json:"seal_hash"`
	IssuedAt   time.Time       `json:"issued_at"`
}
