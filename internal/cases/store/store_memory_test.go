package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/cases/models"
	"landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemoryStoreSuite) newCase(initiator domain.ActorID, createdAt time.Time) *models.Case {
	c, err := models.NewCase(domain.NewCaseID(), models.TypeNewRegistration, initiator, nil,
		models.CaseData{ParcelNumber: "NR-7001"}, createdAt)
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) TestCreate() {
	initiator := domain.NewActorID()
	c := s.newCase(initiator, time.Now())

	s.Run("round trips the case", func() {
		s.Require().NoError(s.store.Create(s.ctx, c))
		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, found.ID)
		s.Equal(c.Status, found.Status)
	})

	s.Run("duplicate id conflicts", func() {
		err := s.store.Create(s.ctx, c)
		s.True(errors.Is(err, sentinel.ErrConflict))
	})

	s.Run("missing id is not found", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewCaseID())
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *InMemoryStoreSuite) TestUpdate() {
	c := s.newCase(domain.NewActorID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, c))

	s.Run("matching version persists and increments", func() {
		loaded, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		loaded.Status = models.StatusSubmitted

		updated, err := s.store.Update(s.ctx, loaded)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, updated.Status)
		s.EqualValues(2, updated.Version)
	})

	s.Run("two writers from the same version race to one winner", func() {
		first, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		second := first.Clone()

		_, err = s.store.Update(s.ctx, first)
		s.Require().NoError(err)

		_, err = s.store.Update(s.ctx, second)
		s.True(errors.Is(err, sentinel.ErrStale))
	})

	s.Run("unknown case is not found", func() {
		missing := s.newCase(domain.NewActorID(), time.Now())
		_, err := s.store.Update(s.ctx, missing)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *InMemoryStoreSuite) TestReadsAreIsolated() {
	c := s.newCase(domain.NewActorID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, c))

	loaded, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	loaded.Data.Checklist[models.KeyNoOverlap] = true
	loaded.Status = models.StatusApproved

	reloaded, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.False(reloaded.ChecklistValue(models.KeyNoOverlap))
	s.Equal(models.StatusPendingPayment, reloaded.Status)
}

func (s *InMemoryStoreSuite) TestListByStatuses() {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	older := s.newCase(domain.NewActorID(), base)
	newer := s.newCase(domain.NewActorID(), base.Add(time.Hour))
	newer.Status = models.StatusSubmitted
	rejected := s.newCase(domain.NewActorID(), base.Add(2*time.Hour))
	rejected.Status = models.StatusRejected
	for _, c := range []*models.Case{older, newer, rejected} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	s.Run("filters on the wanted statuses newest first", func() {
		cases, err := s.store.ListByStatuses(s.ctx, []models.CaseStatus{
			models.StatusPendingPayment, models.StatusSubmitted,
		})
		s.Require().NoError(err)
		s.Require().Len(cases, 2)
		s.Equal(newer.ID, cases[0].ID)
		s.Equal(older.ID, cases[1].ID)
	})

	s.Run("no match yields an empty result", func() {
		cases, err := s.store.ListByStatuses(s.ctx, []models.CaseStatus{models.StatusGovernorApproval})
		s.Require().NoError(err)
		s.Empty(cases)
	})
}

func (s *InMemoryStoreSuite) TestListByInitiator() {
	initiator := domain.NewActorID()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mine := s.newCase(initiator, base)
	mineToo := s.newCase(initiator, base.Add(time.Hour))
	other := s.newCase(domain.NewActorID(), base)
	for _, c := range []*models.Case{mine, mineToo, other} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	cases, err := s.store.ListByInitiator(s.ctx, initiator)
	s.Require().NoError(err)
	s.Require().Len(cases, 2)
	s.Equal(mineToo.ID, cases[0].ID)
	s.Equal(mine.ID, cases[1].ID)
}
