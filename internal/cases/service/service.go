// Package service orchestrates the case workflow: one transition is one
// atomic load → engine apply → persist round trip, bracketed by the
// per-case lock and the store's optimistic version check.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landregistry/internal/cases/engine"
	casemetrics "landregistry/internal/cases/metrics"
	"landregistry/internal/cases/models"
	"landregistry/internal/cases/policy"
	"landregistry/internal/cases/store"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/audit"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/platform/tx"
	"landregistry/pkg/requestcontext"
)

// Registrar applies the legal effect of a sealed case (parcel creation or
// ownership reassignment plus deed issuance). The case workflow depends on
// it only through this port.
type Registrar interface {
	RecordApproval(ctx context.Context, c *models.Case) error
}

// ParcelVerifier confirms a referenced parcel exists before a transfer or
// subdivision case is accepted.
type ParcelVerifier interface {
	VerifyParcel(ctx context.Context, id domain.ParcelID) error
}

// Service exposes commands and queries over cases.
type Service struct {
	cases     store.Store
	engine    *engine.Engine
	registrar Registrar
	parcels   ParcelVerifier
	locks     *caseLocks
	emitter   *auditEmitter
	tx        tx.Runner
	metrics   *casemetrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *casemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditSink attaches the audit event channel drained by the worker.
func WithAuditSink(sink chan<- audit.Event) Option {
	return func(s *Service) { s.emitter.sink = sink }
}

// WithTransactor sets the transaction boundary for transition persistence.
// SQL-backed deployments pass tx.NewSQLRunner(db) so registry effects and
// the case update commit or roll back together.
func WithTransactor(runner tx.Runner) Option {
	return func(s *Service) { s.tx = runner }
}

// New constructs the case service.
func New(cases store.Store, registrar Registrar, parcels ParcelVerifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cases:     cases,
		engine:    engine.New(),
		registrar: registrar,
		parcels:   parcels,
		locks:     newCaseLocks(),
		tx:        tx.NoopRunner{},
		logger:    logger,
		tracer:    otel.Tracer("landregistry/cases"),
	}
	s.emitter = newAuditEmitter(logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest carries a citizen's intake payload.
type SubmitRequest struct {
	Type          models.CaseType
	RelatedParcel *domain.ParcelID
	Data          models.CaseData
}

// Submit creates a case in its entry state. The checklist always starts
// empty; certification is authority work.
func (s *Service) Submit(ctx context.Context, actor requestcontext.Actor, req SubmitRequest) (*models.Case, error) {
	if !actor.Has(policy.CapabilitySubmit) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not submit cases")
	}
	initiator, err := domain.ParseActorID(actor.ID)
	if err != nil {
		return nil, err
	}
	if req.RelatedParcel != nil && s.parcels != nil {
		if err := s.parcels.VerifyParcel(ctx, *req.RelatedParcel); err != nil {
			return nil, err
		}
	}

	req.Data.Checklist = nil
	c, err := models.NewCase(domain.NewCaseID(), req.Type, initiator, req.RelatedParcel, req.Data, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid case submission")
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}

	if s.metrics != nil {
		s.metrics.CasesSubmitted.Inc()
	}
	s.emitter.emit(ctx, audit.Event{
		Category:  audit.EventCaseSubmitted.Category(),
		Timestamp: c.CreatedAt,
		CaseID:    c.ID.String(),
		ActorID:   actor.ID,
		Action:    string(audit.EventCaseSubmitted),
		Decision:  "accepted",
		ToStatus:  string(c.Status),
	})
	return c, nil
}

// ApplyAction executes one transition as a single atomic unit. A rejected
// action has no effect; an accepted one is final.
func (s *Service) ApplyAction(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID, action models.Action, payload models.ActionPayload) (*models.Case, error) {
	ctx, span := s.tracer.Start(ctx, "cases.ApplyAction",
		trace.WithAttributes(
			attribute.String("case.id", caseID.String()),
			attribute.String("case.action", string(action)),
		))
	defer span.End()

	unlock := s.locks.lock(caseID)
	defer unlock()

	current, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	next, err := s.engine.Apply(current, action, actor, payload, requestcontext.Now(ctx))
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementRejection(string(action), string(dErrors.CodeOf(err)))
		}
		return nil, err
	}

	// Registry effects and the case update share one transaction boundary:
	// a lost version race or any store failure must not leave an orphaned
	// parcel or deed behind an unapproved case. RecordApproval runs first
	// so the approved case is stored with its parcel link in place.
	var persisted *models.Case
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if next.Status == models.StatusApproved && s.registrar != nil {
			if err := s.registrar.RecordApproval(ctx, next); err != nil {
				return err
			}
		}
		updated, err := s.cases.Update(ctx, next)
		if err != nil {
			return wrapStoreErr(err)
		}
		persisted = updated
		return nil
	})
	if err != nil {
		var coded *dErrors.Error
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist transition")
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(action))
		if persisted.Status == models.StatusApproved {
			s.metrics.DeedsIssued.Inc()
		}
	}
	s.emitter.emitTransition(ctx, actor, current.Status, persisted, payload)
	s.logger.InfoContext(ctx, "case transition accepted",
		"case_id", caseID.String(),
		"action", string(action),
		"from", string(current.Status),
		"to", string(persisted.Status),
		"request_id", requestcontext.RequestID(ctx),
	)
	return persisted, nil
}

// SetChecklist applies a checklist patch without advancing status.
// Certification is authority work: initiators and other plain citizens are
// refused before the per-key SOD partition is even consulted.
func (s *Service) SetChecklist(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID, patch map[models.ChecklistKey]bool) (*models.Case, error) {
	if len(patch) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "checklist patch must not be empty")
	}
	if !actor.HasAny(authorityCapabilities...) {
		return nil, dErrors.New(dErrors.CodeForbidden, "checklist certification requires an authority role")
	}
	unlock := s.locks.lock(caseID)
	defer unlock()

	current, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if current.Status.IsTerminal() {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "case is %s and accepts no further mutation", current.Status)
	}

	next := current.Clone()
	if err := policy.ApplyChecklistPatch(next, patch, actor); err != nil {
		return nil, err
	}
	next.UpdatedAt = requestcontext.Now(ctx)

	persisted, err := s.cases.Update(ctx, next)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	s.emitter.emit(ctx, audit.Event{
		Category:   audit.EventChecklistSet.Category(),
		Timestamp:  persisted.UpdatedAt,
		CaseID:     persisted.ID.String(),
		ActorID:    actor.ID,
		Action:     string(audit.EventChecklistSet),
		Decision:   "accepted",
		FromStatus: string(persisted.Status),
		ToStatus:   string(persisted.Status),
	})
	return persisted, nil
}

// Get returns a case with the actions the actor could currently attempt.
// Initiators see their own cases; authorities see everything in their
// jurisdiction.
func (s *Service) Get(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID) (*models.Case, []models.Action, error) {
	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, nil, wrapStoreErr(err)
	}
	if !s.mayView(actor, c) {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "actor may not view this case")
	}
	return c, s.engine.AllowedActions(c, actor), nil
}

// Queue returns the actor's work queue: cases whose current status the
// actor can act on, or the terminal history when includeHistory is set.
func (s *Service) Queue(ctx context.Context, actor requestcontext.Actor, includeHistory bool) ([]*models.Case, error) {
	var statuses []models.CaseStatus
	if includeHistory {
		// History is the authorities' audit view of terminal cases; a
		// citizen's queue stays empty either way (their own cases live
		// under OwnApplications).
		if !actor.HasAny(authorityCapabilities...) {
			return nil, nil
		}
		statuses = models.TerminalStatuses
	} else {
		statuses = s.engine.ActionableStatuses(actor)
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	cases, err := s.cases.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query case queue")
	}
	return cases, nil
}

// OwnApplications lists the initiator's cases, newest first.
func (s *Service) OwnApplications(ctx context.Context, actor requestcontext.Actor) ([]*models.Case, error) {
	initiator, err := domain.ParseActorID(actor.ID)
	if err != nil {
		return nil, err
	}
	cases, err := s.cases.ListByInitiator(ctx, initiator)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return cases, nil
}

// Notices lists cases in their opposition period for the public notice
// board. Downstream rendering is not this core's concern; this is the
// status event feed it consumes.
func (s *Service) Notices(ctx context.Context) ([]*models.Case, error) {
	cases, err := s.cases.ListByStatuses(ctx, []models.CaseStatus{models.StatusOppositionPeriod})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list public notices")
	}
	return cases, nil
}

var authorityCapabilities = []string{
	policy.CapabilitySeal,
	policy.CapabilityValidateTechnical,
	policy.CapabilityUploadReport,
	policy.CapabilityScheduleVisit,
	policy.CapabilityRequestGovernor,
	policy.CapabilityStartNotice,
	policy.CapabilityViewAll,
}

func (s *Service) mayView(actor requestcontext.Actor, c *models.Case) bool {
	if actor.ID == c.Initiator.String() {
		return true
	}
	return actor.HasAny(authorityCapabilities...)
}

func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	case errors.Is(err, sentinel.ErrStale):
		return dErrors.New(dErrors.CodeStaleCase, "case was modified concurrently, reload and retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "case store failure")
	}
}
