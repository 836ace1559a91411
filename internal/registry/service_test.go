package registry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	casemodels "landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
)

type RegistryServiceSuite struct {
	suite.Suite
	ctx     context.Context
	parcels *InMemoryParcelStore
	deeds   *InMemoryDeedStore
	service *Service
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.parcels = NewInMemoryParcelStore()
	s.deeds = NewInMemoryDeedStore()
	s.service = NewService(s.parcels, s.deeds, slog.New(slog.DiscardHandler))
}

func (s *RegistryServiceSuite) sealedCase(caseType casemodels.CaseType, relatedParcel *domain.ParcelID, parcelNumber string) *casemodels.Case {
	data := casemodels.CaseData{Locality: "Lambanyi", AreaSqMeters: 240}
	if caseType == casemodels.TypeNewRegistration {
		data.ParcelNumber = parcelNumber
	}
	c, err := casemodels.NewCase(domain.NewCaseID(), caseType, domain.NewActorID(), relatedParcel, data, time.Now())
	s.Require().NoError(err)
	c.Status = casemodels.StatusApproved
	now := time.Now()
	c.Data.SealedAt = &now
	c.Data.DeedNumber = "DEED-2025-" + c.ID.String()[:8]
	c.Data.SealHash = "sha256:deadbeef"
	return c
}

func (s *RegistryServiceSuite) savedParcel(owner domain.ActorID, number string) Parcel {
	parcel := Parcel{
		ID:           domain.NewParcelID(),
		ParcelNumber: number,
		Locality:     "Lambanyi",
		AreaSqMeters: 500,
		Owner:        owner,
		RegisteredAt: time.Now(),
	}
	s.Require().NoError(s.parcels.Save(s.ctx, parcel))
	return parcel
}

func (s *RegistryServiceSuite) TestRecordApproval() {
	s.Run("new registration creates the parcel and links it to the case", func() {
		c := s.sealedCase(casemodels.TypeNewRegistration, nil, "LB-3307")
		s.Require().NoError(s.service.RecordApproval(s.ctx, c))

		s.Require().NotNil(c.RelatedParcel)
		parcel, err := s.parcels.FindByID(s.ctx, *c.RelatedParcel)
		s.Require().NoError(err)
		s.Equal("LB-3307", parcel.ParcelNumber)
		s.Equal(c.Initiator, parcel.Owner)

		deeds, err := s.deeds.ListByHolder(s.ctx, c.Initiator)
		s.Require().NoError(err)
		s.Require().Len(deeds, 1)
		s.Equal(c.Data.DeedNumber, deeds[0].DeedNumber)
		s.Equal(c.ID, deeds[0].CaseID)
	})

	s.Run("duplicate parcel number conflicts", func() {
		first := s.sealedCase(casemodels.TypeNewRegistration, nil, "LB-3308")
		s.Require().NoError(s.service.RecordApproval(s.ctx, first))

		second := s.sealedCase(casemodels.TypeNewRegistration, nil, "LB-3308")
		err := s.service.RecordApproval(s.ctx, second)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("transfer reassigns ownership and issues the deed", func() {
		previousOwner := domain.NewActorID()
		parcel := s.savedParcel(previousOwner, "LB-1000")
		c := s.sealedCase(casemodels.TypeTransfer, &parcel.ID, "")
		s.Require().NoError(s.service.RecordApproval(s.ctx, c))

		reassigned, err := s.parcels.FindByID(s.ctx, parcel.ID)
		s.Require().NoError(err)
		s.Equal(c.Initiator, reassigned.Owner)
		s.NotEqual(previousOwner, reassigned.Owner)
	})

	s.Run("subdivision deeds against the parent parcel without splitting", func() {
		owner := domain.NewActorID()
		parcel := s.savedParcel(owner, "LB-2000")
		c := s.sealedCase(casemodels.TypeSubdivision, &parcel.ID, "")
		s.Require().NoError(s.service.RecordApproval(s.ctx, c))

		unchanged, err := s.parcels.FindByID(s.ctx, parcel.ID)
		s.Require().NoError(err)
		s.Equal(owner, unchanged.Owner)

		deeds, err := s.deeds.ListByHolder(s.ctx, c.Initiator)
		s.Require().NoError(err)
		s.Require().Len(deeds, 1)
		s.Equal(parcel.ID, deeds[0].ParcelID)
	})

	s.Run("an unsealed case is refused", func() {
		c := s.sealedCase(casemodels.TypeNewRegistration, nil, "LB-3309")
		c.Data.SealedAt = nil
		err := s.service.RecordApproval(s.ctx, c)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *RegistryServiceSuite) TestVerifyParcel() {
	s.Run("registered parcel passes", func() {
		parcel := s.savedParcel(domain.NewActorID(), "LB-3000")
		s.NoError(s.service.VerifyParcel(s.ctx, parcel.ID))
	})

	s.Run("unknown parcel is a bad request", func() {
		err := s.service.VerifyParcel(s.ctx, domain.NewParcelID())
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *RegistryServiceSuite) TestSearch() {
	s.savedParcel(domain.NewActorID(), "LB-4000")

	s.Run("matches on parcel number fragment", func() {
		parcels, err := s.service.Search(s.ctx, "LB-40")
		s.Require().NoError(err)
		s.Len(parcels, 1)
	})

	s.Run("matches on locality", func() {
		parcels, err := s.service.Search(s.ctx, "lambanyi")
		s.Require().NoError(err)
		s.NotEmpty(parcels)
	})

	s.Run("rejects queries shorter than two characters", func() {
		_, err := s.service.Search(s.ctx, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *RegistryServiceSuite) TestOwnerReads() {
	owner := domain.NewActorID()
	s.savedParcel(owner, "LB-5000")
	s.savedParcel(owner, "LB-5001")
	s.savedParcel(domain.NewActorID(), "LB-5002")

	parcels, err := s.service.OwnerProperties(s.ctx, owner)
	s.Require().NoError(err)
	s.Len(parcels, 2)

	s.Run("missing parcel id is not found", func() {
		_, err := s.service.ParcelByID(s.ctx, domain.NewParcelID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing deed id is not found", func() {
		_, err := s.service.DeedByID(s.ctx, domain.NewDeedID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
