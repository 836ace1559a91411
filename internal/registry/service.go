package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	casemodels "landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/requestcontext"
)

// Service exposes registry reads and applies the legal effect of sealed
// cases. It is the only writer of parcels and deeds.
type Service struct {
	parcels ParcelStore
	deeds   DeedStore
	logger  *slog.Logger
}

// NewService constructs the registry service.
func NewService(parcels ParcelStore, deeds DeedStore, logger *slog.Logger) *Service {
	return &Service{parcels: parcels, deeds: deeds, logger: logger}
}

// RecordApproval applies the registry effect of an approved case and issues
// its deed. For new registrations it creates the parcel and links it back
// onto the case (the caller persists the mutated case). For transfers it
// reassigns ownership. Subdivisions issue the deed against the parent
// parcel; splitting into child parcels awaits product clarification.
func (s *Service) RecordApproval(ctx context.Context, c *casemodels.Case) error {
	if c.Status != casemodels.StatusApproved || c.Data.SealedAt == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "registry effects require a sealed case")
	}
	now := requestcontext.Now(ctx)

	var parcelID domain.ParcelID
	switch c.Type {
	case casemodels.TypeNewRegistration:
		parcel := Parcel{
			ID:           domain.NewParcelID(),
			ParcelNumber: c.Data.ParcelNumber,
			Locality:     c.Data.Locality,
			AreaSqMeters: c.Data.AreaSqMeters,
			Owner:        c.Initiator,
			RegisteredAt: now,
		}
		if err := s.parcels.Save(ctx, parcel); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "parcel number %q is already registered", parcel.ParcelNumber)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register parcel")
		}
		parcelID = parcel.ID
		c.RelatedParcel = &parcelID
	case casemodels.TypeTransfer:
		parcel, err := s.parcels.FindByID(ctx, *c.RelatedParcel)
		if err != nil {
			return s.wrapParcelErr(err)
		}
		parcel.Owner = c.Initiator
		if err := s.parcels.Save(ctx, parcel); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer parcel ownership")
		}
		parcelID = parcel.ID
	case casemodels.TypeSubdivision:
		parcel, err := s.parcels.FindByID(ctx, *c.RelatedParcel)
		if err != nil {
			return s.wrapParcelErr(err)
		}
		parcelID = parcel.ID
	}

	deed := Deed{
		ID:         domain.NewDeedID(),
		DeedNumber: c.Data.DeedNumber,
		ParcelID:   parcelID,
		Holder:     c.Initiator,
		CaseID:     c.ID,
		SealHash:   c.Data.SealHash,
		IssuedAt:   now,
	}
	if err := s.deeds.Save(ctx, deed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue deed")
	}

	s.logger.InfoContext(ctx, "deed issued",
		"case_id", c.ID.String(),
		"deed_number", deed.DeedNumber,
		"parcel_id", parcelID.String(),
	)
	return nil
}

// ParcelByID resolves one parcel (cache-backed in production wiring).
func (s *Service) ParcelByID(ctx context.Context, id domain.ParcelID) (Parcel, error) {
	parcel, err := s.parcels.FindByID(ctx, id)
	if err != nil {
		return Parcel{}, s.wrapParcelErr(err)
	}
	return parcel, nil
}

// VerifyParcel confirms a referenced parcel is registered. Intake refuses
// transfer and subdivision requests against unknown parcels.
func (s *Service) VerifyParcel(ctx context.Context, id domain.ParcelID) error {
	if _, err := s.parcels.FindByID(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeBadRequest, "related parcel %s is not registered", id)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify parcel")
	}
	return nil
}

// OwnerProperties lists the parcels held by an owner.
func (s *Service) OwnerProperties(ctx context.Context, owner domain.ActorID) ([]Parcel, error) {
	parcels, err := s.parcels.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list properties")
	}
	return parcels, nil
}

// Search performs the public registry lookup by parcel number or locality.
func (s *Service) Search(ctx context.Context, query string) ([]Parcel, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "search query must be at least 2 characters")
	}
	parcels, err := s.parcels.Search(ctx, query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search parcels")
	}
	return parcels, nil
}

// DeedByID resolves one issued deed for verification.
func (s *Service) DeedByID(ctx context.Context, id domain.DeedID) (Deed, error) {
	deed, err := s.deeds.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Deed{}, dErrors.New(dErrors.CodeNotFound, "deed not found")
		}
		return Deed{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deed")
	}
	return deed, nil
}

// HolderDeeds lists the deeds held by an owner.
func (s *Service) HolderDeeds(ctx context.Context, holder domain.ActorID) ([]Deed, error) {
	deeds, err := s.deeds.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deeds")
	}
	return deeds, nil
}

func (s *Service) wrapParcelErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "parcel not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parcel")
}
