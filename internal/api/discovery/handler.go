package discovery

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Arnonfr/urbanito/internal/api"
	"github.com/Arnonfr/urbanito/internal/api/auth"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	RecentRoutesHandler(w http.ResponseWriter, r *http.Request)
	RoutesForCityHandler(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	logger  *slog.Logger
	service Service
}

func NewHandler(service Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger:  logger,
		service: service,
	}
}

// RecentRoutesHandler serves GET /discovery/recent?limit=N. Works both
// anonymously (community pool only) and authenticated (plus personal library).
func (h *HandlerImpl) RecentRoutesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("DiscoveryHandler").Start(r.Context(), "RecentRoutes")
	defer span.End()
	l := h.logger.With(slog.String("handler", "RecentRoutesHandler"))

	userID := optionalUser(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	feed, err := h.service.RecentRoutes(ctx, userID, limit)
	if err != nil {
		l.ErrorContext(ctx, "Service failed to load recent feed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Feed load failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load recent routes")
		return
	}

	span.SetAttributes(attribute.Int("results.count", len(feed)))
	span.SetStatus(codes.Ok, "Recent feed served")
	api.WriteJSONResponse(w, r, http.StatusOK, feed)
}

// RoutesForCityHandler serves GET /discovery/city?name=Lisboa&alt=Lisbon.
func (h *HandlerImpl) RoutesForCityHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("DiscoveryHandler").Start(r.Context(), "RoutesForCity")
	defer span.End()
	l := h.logger.With(slog.String("handler", "RoutesForCityHandler"))

	city := r.URL.Query().Get("name")
	if city == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "City name is required")
		return
	}
	altName := r.URL.Query().Get("alt")
	span.SetAttributes(attribute.String("feed.city", city))

	feed, err := h.service.RoutesForCity(ctx, optionalUser(r), city, altName)
	if err != nil {
		l.ErrorContext(ctx, "Service failed to load city feed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Feed load failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load city routes")
		return
	}

	span.SetAttributes(attribute.Int("results.count", len(feed)))
	span.SetStatus(codes.Ok, "City feed served")
	api.WriteJSONResponse(w, r, http.StatusOK, feed)
}

// optionalUser returns the caller's ID when the request carries a valid
// token, nil otherwise. Discovery endpoints never require authentication.
func optionalUser(r *http.Request) *uuid.UUID {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		return nil
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil
	}
	return &userID
}
