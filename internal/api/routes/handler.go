package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Arnonfr/urbanito/app/observability/metrics"
	"github.com/Arnonfr/urbanito/internal/api"
	"github.com/Arnonfr/urbanito/internal/api/auth"
	"github.com/Arnonfr/urbanito/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	SaveRouteHandler(w http.ResponseWriter, r *http.Request)
	GetRouteHandler(w http.ResponseWriter, r *http.Request)
	DeleteRouteHandler(w http.ResponseWriter, r *http.Request)
	ForkRouteHandler(w http.ResponseWriter, r *http.Request)
	SaveToLibraryHandler(w http.ResponseWriter, r *http.Request)
	RemoveFromLibraryHandler(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	logger  *slog.Logger
	service Service
	metrics *metrics.AppMetrics
}

// NewHandler builds the routes handler. appMetrics may be nil in tests.
func NewHandler(service Service, appMetrics *metrics.AppMetrics, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger:  logger,
		service: service,
		metrics: appMetrics,
	}
}

// countMutation records a successful route write, which always busts the
// discovery feed caches.
func (h *HandlerImpl) countMutation(r *http.Request, saved bool) {
	if h.metrics == nil {
		return
	}
	if saved {
		h.metrics.RouteSavesTotal.Add(r.Context(), 1)
	}
	h.metrics.FeedCacheInvalidations.Add(r.Context(), 1)
}

func (h *HandlerImpl) SaveRouteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "SaveRoute")
	defer span.End()
	l := h.logger.With(slog.String("handler", "SaveRouteHandler"))

	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Unauthorized")
		return
	}
	span.SetAttributes(attribute.String("user.id", userID.String()))

	var route types.Route
	if err := api.DecodeJSONBody(w, r, &route); err != nil {
		l.ErrorContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Bad request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if route.Name == "" || len(route.POIs) == 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Route requires a name and at least one stop")
		return
	}

	routeID, err := h.service.SaveRoute(ctx, userID, route, nil)
	if err != nil {
		l.ErrorContext(ctx, "Service failed to save route", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Save failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to save route")
		return
	}

	h.countMutation(r, true)
	span.SetAttributes(attribute.String("route.id", routeID.String()))
	span.SetStatus(codes.Ok, "Route saved")
	api.WriteJSONResponse(w, r, http.StatusCreated, map[string]string{"id": routeID.String()})
}

func (h *HandlerImpl) GetRouteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "GetRoute")
	defer span.End()
	l := h.logger.With(slog.String("handler", "GetRouteHandler"))

	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Invalid route ID")
		return
	}
	span.SetAttributes(attribute.String("route.id", routeID.String()))

	route, err := h.service.LoadRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Route not found")
			return
		}
		l.ErrorContext(ctx, "Service failed to load route", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Load failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load route")
		return
	}

	span.SetStatus(codes.Ok, "Route loaded")
	api.WriteJSONResponse(w, r, http.StatusOK, route)
}

func (h *HandlerImpl) DeleteRouteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "DeleteRoute")
	defer span.End()
	l := h.logger.With(slog.String("handler", "DeleteRouteHandler"))

	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Unauthorized")
		return
	}
	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Invalid route ID")
		return
	}
	span.SetAttributes(attribute.String("route.id", routeID.String()))

	if err := h.service.DeleteRoute(ctx, routeID, userID); err != nil {
		// Non-owner deletes get the same answer as missing routes, so the
		// response never confirms whether the route exists.
		if errors.Is(err, types.ErrForbidden) || errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Route not found")
			return
		}
		l.ErrorContext(ctx, "Service failed to delete route", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to delete route")
		return
	}

	h.countMutation(r, false)
	span.SetStatus(codes.Ok, "Route deleted")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func (h *HandlerImpl) ForkRouteHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "ForkRoute")
	defer span.End()
	l := h.logger.With(slog.String("handler", "ForkRouteHandler"))

	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Unauthorized")
		return
	}
	parentID, ok := h.routeIDParam(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Invalid route ID")
		return
	}
	span.SetAttributes(attribute.String("parent.id", parentID.String()))

	var updates types.UpdateRouteRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSONBody(w, r, &updates); err != nil {
			l.ErrorContext(ctx, "Failed to decode request", slog.Any("error", err))
			span.RecordError(err)
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	forkID, err := h.service.ForkRoute(ctx, userID, parentID, updates)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Route not found")
			return
		}
		l.ErrorContext(ctx, "Service failed to fork route", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Fork failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to fork route")
		return
	}

	h.countMutation(r, true)
	span.SetAttributes(attribute.String("fork.id", forkID.String()))
	span.SetStatus(codes.Ok, "Route forked")
	api.WriteJSONResponse(w, r, http.StatusCreated, map[string]string{"id": forkID.String()})
}

func (h *HandlerImpl) SaveToLibraryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "SaveToLibrary")
	defer span.End()
	l := h.logger.With(slog.String("handler", "SaveToLibraryHandler"))

	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Unauthorized")
		return
	}
	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Invalid route ID")
		return
	}

	if err := h.service.SaveToLibrary(ctx, userID, routeID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Route not found")
			return
		}
		l.ErrorContext(ctx, "Service failed to save route to library", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Library save failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to save route")
		return
	}

	span.SetStatus(codes.Ok, "Route saved to library")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func (h *HandlerImpl) RemoveFromLibraryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RoutesHandler").Start(r.Context(), "RemoveFromLibrary")
	defer span.End()
	l := h.logger.With(slog.String("handler", "RemoveFromLibraryHandler"))

	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Unauthorized")
		return
	}
	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		span.SetStatus(codes.Error, "Invalid route ID")
		return
	}

	if err := h.service.RemoveFromLibrary(ctx, userID, routeID); err != nil {
		l.ErrorContext(ctx, "Service failed to remove route from library", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Library remove failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to remove route")
		return
	}

	span.SetStatus(codes.Ok, "Route removed from library")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func (h *HandlerImpl) authenticatedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userIDStr == "" {
		h.logger.ErrorContext(r.Context(), "User ID not found in context")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Invalid user ID format", slog.String("userID_str", userIDStr), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *HandlerImpl) routeIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	routeIDStr := chi.URLParam(r, "routeID")
	routeID, err := uuid.Parse(routeIDStr)
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid route ID format")
		return uuid.Nil, false
	}
	return routeID, true
}
