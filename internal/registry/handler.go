package registry

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/platform/metrics"
	"landregistry/internal/platform/middleware"
	"landregistry/pkg/domain"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// Handler exposes the registry read side. Parcel lookups and search are
// public records; an owner's consolidated property list requires a token.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
}

// NewHandler constructs a registry handler with its dependencies.
func NewHandler(service *Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.TokenValidator) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
	}
}

// Register mounts the registry routes.
func (h *Handler) Register(r chi.Router) {
	registryRouter := chi.NewRouter()
	registryRouter.Use(middleware.Recovery(h.logger))
	registryRouter.Use(middleware.RequestID)
	registryRouter.Use(middleware.Logger(h.logger))
	registryRouter.Use(middleware.Timeout(15 * time.Second))
	registryRouter.Use(middleware.LatencyMiddleware(h.metrics))

	registryRouter.Get("/parcels/{id}", h.handleParcel)
	registryRouter.Get("/search", h.handleSearch)
	registryRouter.Get("/deeds/{id}", h.handleDeed)

	registryRouter.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.validator, h.logger))
		authed.Get("/properties", h.handleProperties)
	})

	r.Mount("/registry", registryRouter)
}

func (h *Handler) handleParcel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseParcelID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcel, err := h.service.ParcelByID(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcel)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parcels, err := h.service.Search(ctx, r.URL.Query().Get("query"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if parcels == nil {
		parcels = []Parcel{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]Parcel{"parcels": parcels})
}

func (h *Handler) handleDeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseDeedID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	deed, err := h.service.DeedByID(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deed)
}

func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.ActorFrom(ctx)

	owner, err := domain.ParseActorID(actor.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcels, err := h.service.OwnerProperties(ctx, owner)
	if err != nil {
		h.logger.ErrorContext(ctx, "property listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	if parcels == nil {
		parcels = []Parcel{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]Parcel{"parcels": parcels})
}
