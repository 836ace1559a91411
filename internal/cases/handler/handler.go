// Package handler exposes the case workflow over HTTP. It stays thin:
// decode, delegate, translate errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/cases/models"
	"landregistry/internal/cases/service"
	"landregistry/internal/platform/metrics"
	"landregistry/internal/platform/middleware"
	"landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// Service defines the interface for case operations.
type Service interface {
	Submit(ctx context.Context, actor requestcontext.Actor, req service.SubmitRequest) (*models.Case, error)
	ApplyAction(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID, action models.Action, payload models.ActionPayload) (*models.Case, error)
	SetChecklist(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID, patch map[models.ChecklistKey]bool) (*models.Case, error)
	Get(ctx context.Context, actor requestcontext.Actor, caseID domain.CaseID) (*models.Case, []models.Action, error)
	Queue(ctx context.Context, actor requestcontext.Actor, includeHistory bool) ([]*models.Case, error)
	OwnApplications(ctx context.Context, actor requestcontext.Actor) ([]*models.Case, error)
	Notices(ctx context.Context) ([]*models.Case, error)
}

// Handler wires case endpoints to the case service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// New constructs a case handler with its dependencies.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
	}
}

// Register mounts the case routes. The notice board is public; everything
// else requires a bearer token.
func (h *Handler) Register(r chi.Router) {
	casesRouter := chi.NewRouter()
	casesRouter.Use(middleware.Recovery(h.logger))
	casesRouter.Use(middleware.RequestID)
	casesRouter.Use(middleware.Logger(h.logger))
	casesRouter.Use(middleware.Timeout(30 * time.Second))
	casesRouter.Use(middleware.ContentTypeJSON)
	casesRouter.Use(middleware.LatencyMiddleware(h.metrics))

	casesRouter.Get("/notices", h.handleNotices)

	casesRouter.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.validator, h.logger))
		authed.Post("/", h.handleSubmit)
		authed.Get("/queue", h.handleQueue)
		authed.Get("/mine", h.handleOwnApplications)
		authed.Get("/{id}", h.handleGet)
		authed.Post("/{id}/{action}", h.handleAction)
		authed.Put("/{id}/checklist", h.handleSetChecklist)
	})

	// Mounted under its own prefix so other feature routers can share the
	// parent mux.
	r.Mount("/cases", casesRouter)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.ActorFrom(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitCaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	domainReq, err := req.ToDomain()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.Submit(ctx, actor, domainReq)
	if err != nil {
		h.logError(ctx, "case submission failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "case submitted",
		"request_id", requestID,
		"case_id", c.ID.String(),
		"case_type", string(c.Type),
	)
	httputil.WriteJSON(w, http.StatusCreated, CaseResponse{Case: c})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.ActorFrom(ctx)

	caseID, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	action, err := models.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	payload, err := req.ToPayload()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.ApplyAction(ctx, actor, caseID, action, payload)
	if err != nil {
		h.logError(ctx, "case action refused", requestID, err,
			"case_id", caseID.String(),
			"action", string(action),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CaseResponse{Case: c})
}

func (h *Handler) handleSetChecklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.ActorFrom(ctx)

	caseID, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[SetChecklistRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	patch, err := parseChecklistPatch(req.Items)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(patch) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "items must not be empty"))
		return
	}

	c, err := h.service.SetChecklist(ctx, actor, caseID, patch)
	if err != nil {
		h.logError(ctx, "checklist update refused", requestID, err,
			"case_id", caseID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CaseResponse{Case: c})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.ActorFrom(ctx)

	caseID, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, allowed, err := h.service.Get(ctx, actor, caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CaseResponse{Case: c, AllowedActions: allowed})
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.ActorFrom(ctx)

	includeHistory, _ := strconv.ParseBool(r.URL.Query().Get("history"))
	cases, err := h.service.Queue(ctx, actor, includeHistory)
	if err != nil {
		h.logError(ctx, "queue query failed", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CaseListResponse{Cases: emptyIfNil(cases)})
}

func (h *Handler) handleOwnApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.ActorFrom(ctx)

	cases, err := h.service.OwnApplications(ctx, actor)
	if err != nil {
		h.logError(ctx, "application listing failed", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CaseListResponse{Cases: emptyIfNil(cases)})
}

func (h *Handler) handleNotices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cases, err := h.service.Notices(ctx)
	if err != nil {
		h.logError(ctx, "notice listing failed", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NoticeListResponse{Notices: toNotices(cases)})
}

func (h *Handler) logError(ctx context.Context, msg, requestID string, err error, extra ...any) {
	args := append([]any{
		"request_id", requestID,
		"error", err.Error(),
		"code", string(dErrors.CodeOf(err)),
	}, extra...)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}

func emptyIfNil(cases []*models.Case) []*models.Case {
	if cases == nil {
		return []*models.Case{}
	}
	return cases
}
