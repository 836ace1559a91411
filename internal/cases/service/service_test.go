package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landregistry/internal/cases/models"
	"landregistry/internal/cases/policy"
	"landregistry/internal/cases/store"
	"landregistry/internal/registry"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/requestcontext"
)

type CaseServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	parcels *registry.InMemoryParcelStore
	deeds   *registry.InMemoryDeedStore
	sink    chan audit.Event
	service *Service

	initiator domain.ActorID
	citizen   requestcontext.Actor
	clerk     requestcontext.Actor
	cadastre  requestcontext.Actor
}

func TestCaseServiceSuite(t *testing.T) {
	suite.Run(t, new(CaseServiceSuite))
}

func (s *CaseServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.parcels = registry.NewInMemoryParcelStore()
	s.deeds = registry.NewInMemoryDeedStore()
	s.sink = make(chan audit.Event, 64)

	logger := slog.New(slog.DiscardHandler)
	registryService := registry.NewService(s.parcels, s.deeds, logger)
	s.service = New(s.store, registryService, registryService, logger, WithAuditSink(s.sink))

	s.initiator = domain.NewActorID()
	s.citizen = requestcontext.Actor{ID: s.initiator.String(), Capabilities: policy.RoleCitizen}
	s.clerk = requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: policy.RoleClerk}
	s.cadastre = requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: policy.RoleCadastre}
}

func (s *CaseServiceSuite) submitRegistration() *models.Case {
	c, err := s.service.Submit(s.ctx, s.citizen, SubmitRequest{
		Type: models.TypeNewRegistration,
		Data: models.CaseData{Locality: "Matoto", ParcelNumber: "MT-0099", AreaSqMeters: 450},
	})
	s.Require().NoError(err)
	return c
}

func (s *CaseServiceSuite) registerParcel(owner domain.ActorID) registry.Parcel {
	parcel := registry.Parcel{
		ID:           domain.NewParcelID(),
		ParcelNumber: "MT-0001",
		Locality:     "Matoto",
		AreaSqMeters: 800,
		Owner:        owner,
		RegisteredAt: time.Now().UTC(),
	}
	s.Require().NoError(s.parcels.Save(s.ctx, parcel))
	return parcel
}

func (s *CaseServiceSuite) drainEvents() []audit.Event {
	var events []audit.Event
	for {
		select {
		case event := <-s.sink:
			events = append(events, event)
		default:
			return events
		}
	}
}

func (s *CaseServiceSuite) TestSubmit() {
	s.Run("creates a pending payment case with an empty checklist", func() {
		c := s.submitRegistration()
		s.Equal(models.StatusPendingPayment, c.Status)
		s.Equal(s.initiator, c.Initiator)
		s.Empty(c.Data.Checklist)
		s.EqualValues(1, c.Version)

		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventCaseSubmitted), events[0].Action)
	})

	s.Run("intake never accepts pre-certified checklist entries", func() {
		c, err := s.service.Submit(s.ctx, s.citizen, SubmitRequest{
			Type: models.TypeNewRegistration,
			Data: models.CaseData{
				ParcelNumber: "MT-0100",
				Checklist:    map[models.ChecklistKey]bool{models.KeyIdentityVerified: true},
			},
		})
		s.Require().NoError(err)
		s.False(c.ChecklistValue(models.KeyIdentityVerified))
	})

	s.Run("without the submit capability", func() {
		_, err := s.service.Submit(s.ctx, s.clerk, SubmitRequest{Type: models.TypeNewRegistration})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("transfer against an unknown parcel", func() {
		missing := domain.NewParcelID()
		_, err := s.service.Submit(s.ctx, s.citizen, SubmitRequest{
			Type:          models.TypeTransfer,
			RelatedParcel: &missing,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transfer against a registered parcel", func() {
		parcel := s.registerParcel(domain.NewActorID())
		c, err := s.service.Submit(s.ctx, s.citizen, SubmitRequest{
			Type:          models.TypeTransfer,
			RelatedParcel: &parcel.ID,
		})
		s.Require().NoError(err)
		s.Require().NotNil(c.RelatedParcel)
		s.Equal(parcel.ID, *c.RelatedParcel)
	})
}

func (s *CaseServiceSuite) TestApplyAction() {
	s.Run("accepted transition persists and bumps the version", func() {
		c := s.submitRegistration()
		s.drainEvents()

		next, err := s.service.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, next.Status)
		s.EqualValues(2, next.Version)

		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Equal(audit.CategoryOperations, events[0].Category)
		s.Equal("accepted", events[0].Decision)
		s.Equal(string(models.StatusPendingPayment), events[0].FromStatus)
		s.Equal(string(models.StatusSubmitted), events[0].ToStatus)
	})

	s.Run("refused transition changes nothing and emits nothing", func() {
		c := s.submitRegistration()
		s.drainEvents()

		_, err := s.service.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionApprove, models.ActionPayload{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		stored, findErr := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusPendingPayment, stored.Status)
		s.Empty(s.drainEvents())
	})

	s.Run("unknown case", func() {
		_, err := s.service.ApplyAction(s.ctx, s.clerk, domain.NewCaseID(), models.ActionReject,
			models.ActionPayload{Reason: "noise"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejection emits a compliance event", func() {
		c := s.submitRegistration()
		s.drainEvents()

		_, err := s.service.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionReject,
			models.ActionPayload{Reason: "Boundary conflict"})
		s.Require().NoError(err)

		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Equal(audit.CategoryCompliance, events[0].Category)
		s.Equal(string(audit.EventCaseRejected), events[0].Action)
		s.Equal("Boundary conflict", events[0].Reason)
	})
}

func (s *CaseServiceSuite) TestTransferApprovalReassignsOwnership() {
	previousOwner := domain.NewActorID()
	parcel := s.registerParcel(previousOwner)

	c, err := s.service.Submit(s.ctx, s.citizen, SubmitRequest{
		Type:          models.TypeTransfer,
		RelatedParcel: &parcel.ID,
	})
	s.Require().NoError(err)

	_, err = s.service.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
	s.Require().NoError(err)

	_, err = s.service.SetChecklist(s.ctx, s.clerk, c.ID, map[models.ChecklistKey]bool{
		models.KeyIdentityVerified: true,
		models.KeyTaxCleared:       true,
		models.KeyNotarySeal:       true,
	})
	s.Require().NoError(err)
	_, err = s.service.SetChecklist(s.ctx, s.cadastre, c.ID, map[models.ChecklistKey]bool{
		models.KeyNoOverlap: true,
	})
	s.Require().NoError(err)

	approved, err := s.service.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionApprove, models.ActionPayload{})
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.NotEmpty(approved.Data.DeedNumber)

	reassigned, err := s.parcels.FindByID(s.ctx, parcel.ID)
	s.Require().NoError(err)
	s.Equal(s.initiator, reassigned.Owner)

	deeds, err := s.deeds.ListByHolder(s.ctx, s.initiator)
	s.Require().NoError(err)
	s.Require().Len(deeds, 1)
	s.Equal(approved.Data.DeedNumber, deeds[0].DeedNumber)
	s.Equal(approved.Data.SealHash, deeds[0].SealHash)

	events := s.drainEvents()
	var names []string
	for _, event := range events {
		names = append(names, event.Action)
	}
	s.Contains(names, string(audit.EventCaseSealed))
	s.Contains(names, string(audit.EventDeedIssued))
}

func (s *CaseServiceSuite) TestSetChecklist() {
	s.Run("certification requires an authority role", func() {
		c := s.submitRegistration()

		stranger := requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: policy.RoleCitizen}
		for _, actor := range []requestcontext.Actor{s.citizen, stranger} {
			_, err := s.service.SetChecklist(s.ctx, actor, c.ID, map[models.ChecklistKey]bool{
				models.KeyIdentityVerified: true,
			})
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		}

		stored, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.False(stored.ChecklistValue(models.KeyIdentityVerified))
	})

	s.Run("sod violation leaves the case untouched", func() {
		c := s.submitRegistration()
		_, err := s.service.SetChecklist(s.ctx, s.clerk, c.ID, map[models.ChecklistKey]bool{
			models.KeySurveyValid: true,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeSodViolation))

		stored, findErr := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(findErr)
		s.False(stored.ChecklistValue(models.KeySurveyValid))
	})

	s.Run("terminal cases accept no patches", func() {
		c := s.submitRegistration()
		_, err := s.service.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionReject,
			models.ActionPayload{Reason: "withdrawn"})
		s.Require().NoError(err)

		_, err = s.service.SetChecklist(s.ctx, s.clerk, c.ID, map[models.ChecklistKey]bool{
			models.KeyIdentityVerified: true,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *CaseServiceSuite) TestGet() {
	c := s.submitRegistration()

	s.Run("initiator sees own case with next actions", func() {
		got, actions, err := s.service.Get(s.ctx, s.citizen, c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
		s.ElementsMatch([]models.Action{models.ActionPayFees}, actions)
	})

	s.Run("authorities see any case", func() {
		_, _, err := s.service.Get(s.ctx, s.cadastre, c.ID)
		s.NoError(err)
	})

	s.Run("an unrelated citizen is refused", func() {
		stranger := requestcontext.Actor{ID: domain.NewActorID().String(), Capabilities: policy.RoleCitizen}
		_, _, err := s.service.Get(s.ctx, stranger, c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CaseServiceSuite) TestQueues() {
	c := s.submitRegistration()
	_, err := s.service.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
	s.Require().NoError(err)

	rejected := s.submitRegistration()
	_, err = s.service.ApplyAction(s.ctx, s.clerk, rejected.ID, models.ActionReject,
		models.ActionPayload{Reason: "duplicate filing"})
	s.Require().NoError(err)

	s.Run("clerk queue holds the live case", func() {
		cases, err := s.service.Queue(s.ctx, s.clerk, false)
		s.Require().NoError(err)
		s.Require().Len(cases, 1)
		s.Equal(c.ID, cases[0].ID)
	})

	s.Run("history holds the terminal case", func() {
		cases, err := s.service.Queue(s.ctx, s.clerk, true)
		s.Require().NoError(err)
		s.Require().Len(cases, 1)
		s.Equal(rejected.ID, cases[0].ID)
	})

	s.Run("citizen has no authority queue", func() {
		cases, err := s.service.Queue(s.ctx, s.citizen, false)
		s.Require().NoError(err)
		s.Empty(cases)
	})

	s.Run("citizen has no history view either", func() {
		cases, err := s.service.Queue(s.ctx, s.citizen, true)
		s.Require().NoError(err)
		s.Empty(cases)
	})

	s.Run("own applications list both filings newest first", func() {
		cases, err := s.service.OwnApplications(s.ctx, s.citizen)
		s.Require().NoError(err)
		s.Len(cases, 2)
	})
}

func (s *CaseServiceSuite) TestNotices() {
	s.Run("only opposition period cases are posted", func() {
		c := s.submitRegistration()
		notices, err := s.service.Notices(s.ctx)
		s.Require().NoError(err)
		s.Empty(notices)

		stored, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		stored.Status = models.StatusOppositionPeriod
		_, err = s.store.Update(s.ctx, stored)
		s.Require().NoError(err)

		notices, err = s.service.Notices(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(notices, 1)
		s.Equal(c.ID, notices[0].ID)
	})
}

func (s *CaseServiceSuite) TestConcurrentActionsSerialize() {
	c := s.submitRegistration()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = s.service.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "loser sees the already-advanced case: %v", err)
	}
	s.Equal(1, succeeded, "exactly one payment goes through")

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.Status)
	s.EqualValues(2, stored.Version)
}

func (s *CaseServiceSuite) TestStaleWriteTranslation() {
	c := s.submitRegistration()

	// Simulate a writer that loaded the same version and lost the race.
	stale := c.Clone()
	_, err := s.store.Update(s.ctx, c.Clone())
	s.Require().NoError(err)

	_, err = s.store.Update(s.ctx, stale)
	s.Require().Error(err)

	// The service surfaces the same condition as a coded StaleCase error.
	s.Equal(dErrors.CodeStaleCase, dErrors.CodeOf(wrapStoreErr(err)))
}

// recordingRunner stands in for a real transaction boundary and lets the
// tests observe which collaborators run inside it.
type recordingRunner struct {
	mu     sync.Mutex
	active bool
}

func (r *recordingRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()
	return fn(ctx)
}

func (r *recordingRunner) inTx() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

type registrarSpy struct {
	inner      Registrar
	runner     *recordingRunner
	calledInTx bool
	fail       error
}

func (r *registrarSpy) RecordApproval(ctx context.Context, c *models.Case) error {
	r.calledInTx = r.runner.inTx()
	if r.fail != nil {
		return r.fail
	}
	return r.inner.RecordApproval(ctx, c)
}

type updateSpyStore struct {
	store.Store
	runner     *recordingRunner
	updateInTx bool
}

func (s *updateSpyStore) Update(ctx context.Context, c *models.Case) (*models.Case, error) {
	s.updateInTx = s.runner.inTx()
	return s.Store.Update(ctx, c)
}

func (s *CaseServiceSuite) TestApprovalPersistsInsideOneTransaction() {
	logger := slog.New(slog.DiscardHandler)
	registryService := registry.NewService(s.parcels, s.deeds, logger)
	runner := &recordingRunner{}
	registrar := &registrarSpy{inner: registryService, runner: runner}
	caseStore := &updateSpyStore{Store: s.store, runner: runner}
	svc := New(caseStore, registrar, registryService, logger, WithTransactor(runner))

	parcel := s.registerParcel(domain.NewActorID())
	c, err := svc.Submit(s.ctx, s.citizen, SubmitRequest{
		Type:          models.TypeTransfer,
		RelatedParcel: &parcel.ID,
	})
	s.Require().NoError(err)
	_, err = svc.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
	s.Require().NoError(err)
	_, err = svc.SetChecklist(s.ctx, s.clerk, c.ID, map[models.ChecklistKey]bool{
		models.KeyIdentityVerified: true,
		models.KeyTaxCleared:       true,
		models.KeyNotarySeal:       true,
	})
	s.Require().NoError(err)
	_, err = svc.SetChecklist(s.ctx, s.cadastre, c.ID, map[models.ChecklistKey]bool{
		models.KeyNoOverlap: true,
	})
	s.Require().NoError(err)
	before, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)

	s.Run("a registrar failure aborts the case update", func() {
		registrar.fail = errors.New("deed ledger unavailable")
		_, err := svc.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionApprove, models.ActionPayload{})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		stored, findErr := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(findErr)
		s.Equal(before.Status, stored.Status)
		s.Equal(before.Version, stored.Version)
	})

	s.Run("deed issuance and the case update share the boundary", func() {
		registrar.fail = nil
		approved, err := svc.ApplyAction(s.ctx, s.clerk, c.ID, models.ActionApprove, models.ActionPayload{})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.True(registrar.calledInTx, "deed issuance ran outside the transaction")
		s.True(caseStore.updateInTx, "case update ran outside the transaction")
	})
}

// gatedStore blocks the first persist until the test releases it, so a
// second writer can slip in between load and update.
type gatedStore struct {
	store.Store
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Update(ctx context.Context, c *models.Case) (*models.Case, error) {
	g.once.Do(func() { close(g.loaded) })
	<-g.release
	return g.Store.Update(ctx, c)
}

func (s *CaseServiceSuite) TestLostVersionRaceSurfacesStaleCase() {
	logger := slog.New(slog.DiscardHandler)
	registryService := registry.NewService(s.parcels, s.deeds, logger)

	// Two service instances over one store model two server replicas: the
	// per-case lock serializes within an instance only, so the stored
	// version is what decides the race.
	gate := &gatedStore{Store: s.store, loaded: make(chan struct{}), release: make(chan struct{})}
	fast := New(s.store, registryService, registryService, logger)
	slow := New(gate, registryService, registryService, logger)

	c := s.submitRegistration()

	type outcome struct {
		c   *models.Case
		err error
	}
	slowDone := make(chan outcome, 1)
	go func() {
		updated, err := slow.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
		slowDone <- outcome{updated, err}
	}()

	// The slow replica has loaded version 1 and is about to write.
	<-gate.loaded

	winner, err := fast.ApplyAction(s.ctx, s.citizen, c.ID, models.ActionPayFees, models.ActionPayload{})
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, winner.Status)
	s.EqualValues(2, winner.Version)

	close(gate.release)
	result := <-slowDone
	s.True(dErrors.HasCode(result.err, dErrors.CodeStaleCase), "loser must surface the stale write: %v", result.err)

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, stored.Status)
	s.EqualValues(2, stored.Version)
}
