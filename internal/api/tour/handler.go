// Package tour is the HTTP surface over open tour sessions: generation,
// tab management and on-demand POI enrichment.
package tour

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Arnonfr/urbanito/app/observability/metrics"
	"github.com/Arnonfr/urbanito/internal/api"
	"github.com/Arnonfr/urbanito/internal/api/auth"
	"github.com/Arnonfr/urbanito/internal/api/enrichment"
	"github.com/Arnonfr/urbanito/internal/api/synthesis"
	"github.com/Arnonfr/urbanito/internal/session"
	"github.com/Arnonfr/urbanito/internal/types"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	GenerateTourHandler(w http.ResponseWriter, r *http.Request)
	ListOpenToursHandler(w http.ResponseWriter, r *http.Request)
	ActiveTourHandler(w http.ResponseWriter, r *http.Request)
	ActivateTourHandler(w http.ResponseWriter, r *http.Request)
	CloseTourHandler(w http.ResponseWriter, r *http.Request)
	FocusPOIHandler(w http.ResponseWriter, r *http.Request)
	EnrichPOIHandler(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	logger     *slog.Logger
	synthesis  synthesis.Service
	enrichment *enrichment.Engine
	session    *session.Manager
	metrics    *metrics.AppMetrics
}

// NewHandler builds the tour handler. appMetrics may be nil in tests.
func NewHandler(synth synthesis.Service, engine *enrichment.Engine, sessionMgr *session.Manager, appMetrics *metrics.AppMetrics, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		logger:     logger,
		synthesis:  synth,
		enrichment: engine,
		session:    sessionMgr,
		metrics:    appMetrics,
	}
}

// focusRequest selects a POI inside an open tour and carries the caller's
// content preferences for the enrichment prompt.
type focusRequest struct {
	Index       int                      `json:"index"`
	Preferences types.ContentPreferences `json:"preferences"`
}

func (h *HandlerImpl) GenerateTourHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "GenerateTour")
	defer span.End()
	l := h.logger.With(slog.String("handler", "GenerateTourHandler"))

	var userID *uuid.UUID
	if userIDStr, ok := auth.GetUserIDFromContext(ctx); ok && userIDStr != "" {
		if parsed, err := uuid.Parse(userIDStr); err == nil {
			userID = &parsed
		}
	}

	var req types.SynthesisRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.ErrorContext(ctx, "Failed to decode request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Bad request")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("tour.kind", string(req.Kind)),
		attribute.String("tour.style", string(req.Style)),
	)

	start := time.Now()
	result, err := h.synthesis.GenerateTour(ctx, userID, req)
	if h.metrics != nil {
		h.metrics.SynthesisRequestsTotal.Add(ctx, 1)
		h.metrics.SynthesisDurationSeconds.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			h.metrics.SynthesisFailuresTotal.Add(ctx, 1)
		}
	}
	if err != nil {
		if errors.Is(err, types.ErrSynthesisFailed) {
			l.WarnContext(ctx, "Tour synthesis failed", slog.Any("error", err))
			span.SetStatus(codes.Error, "Synthesis failed")
			api.ErrorResponse(w, r, http.StatusBadGateway, "Could not generate a tour, please try again")
			return
		}
		l.ErrorContext(ctx, "Invalid synthesis request", slog.Any("error", err))
		span.RecordError(err)
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	span.SetAttributes(attribute.String("route.id", result.Route.ID.String()))
	span.SetStatus(codes.Ok, "Tour generated")
	api.WriteJSONResponse(w, r, http.StatusCreated, result)
}

func (h *HandlerImpl) ListOpenToursHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("TourHandler").Start(r.Context(), "ListOpenTours")
	defer span.End()

	entries := h.session.Entries()
	span.SetAttributes(attribute.Int("tours.open", len(entries)))
	span.SetStatus(codes.Ok, "Open tours listed")
	api.WriteJSONResponse(w, r, http.StatusOK, entries)
}

func (h *HandlerImpl) ActiveTourHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("TourHandler").Start(r.Context(), "ActiveTour")
	defer span.End()

	entry, ok := h.session.Active()
	if !ok {
		api.ErrorResponse(w, r, http.StatusNotFound, "No open tour")
		return
	}
	span.SetStatus(codes.Ok, "Active tour served")
	api.WriteJSONResponse(w, r, http.StatusOK, entry)
}

func (h *HandlerImpl) ActivateTourHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("TourHandler").Start(r.Context(), "ActivateTour")
	defer span.End()

	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		return
	}
	if !h.session.SwitchActive(routeID) {
		api.ErrorResponse(w, r, http.StatusNotFound, "Tour is not open")
		return
	}
	span.SetAttributes(attribute.String("route.id", routeID.String()))
	span.SetStatus(codes.Ok, "Tour activated")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func (h *HandlerImpl) CloseTourHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("TourHandler").Start(r.Context(), "CloseTour")
	defer span.End()

	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		return
	}
	if !h.session.Close(routeID) {
		api.ErrorResponse(w, r, http.StatusNotFound, "Tour is not open")
		return
	}
	span.SetAttributes(attribute.String("route.id", routeID.String()))
	span.SetStatus(codes.Ok, "Tour closed")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// FocusPOIHandler marks a POI as focused: it is enriched immediately and the
// next stops are prefetched in the background.
func (h *HandlerImpl) FocusPOIHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "FocusPOI")
	defer span.End()
	l := h.logger.With(slog.String("handler", "FocusPOIHandler"))

	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		return
	}

	var req focusRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	entry, ok := h.session.Get(routeID)
	if !ok {
		api.ErrorResponse(w, r, http.StatusNotFound, "Tour is not open")
		return
	}
	if req.Index < 0 || req.Index >= len(entry.Route.POIs) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "POI index out of range")
		return
	}
	span.SetAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.Int("poi.index", req.Index),
	)

	if h.metrics != nil {
		h.metrics.EnrichmentRequestsTotal.Add(ctx, 1)
	}
	if err := h.enrichment.Focus(ctx, routeID, req.Index, entry.Route.City, req.Preferences); err != nil {
		// Enrichment failures leave the POI as a retryable stub and are
		// never surfaced as request errors.
		l.WarnContext(ctx, "Focused POI enrichment failed", slog.Any("error", err))
	}

	poi, _ := h.session.POI(routeID, req.Index)
	span.SetStatus(codes.Ok, "POI focused")
	api.WriteJSONResponse(w, r, http.StatusOK, poi)
}

func (h *HandlerImpl) EnrichPOIHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "EnrichPOI")
	defer span.End()
	l := h.logger.With(slog.String("handler", "EnrichPOIHandler"))

	routeID, ok := h.routeIDParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid POI index")
		return
	}

	var prefs types.ContentPreferences
	if r.ContentLength > 0 {
		if err := api.DecodeJSONBody(w, r, &prefs); err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	entry, ok := h.session.Get(routeID)
	if !ok {
		api.ErrorResponse(w, r, http.StatusNotFound, "Tour is not open")
		return
	}
	if index >= len(entry.Route.POIs) {
		api.ErrorResponse(w, r, http.StatusBadRequest, "POI index out of range")
		return
	}
	span.SetAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.Int("poi.index", index),
	)

	if h.metrics != nil {
		h.metrics.EnrichmentRequestsTotal.Add(ctx, 1)
	}
	if err := h.enrichment.Enrich(ctx, routeID, index, entry.Route.City, prefs); err != nil {
		l.WarnContext(ctx, "POI enrichment failed", slog.Any("error", err))
	}

	poi, _ := h.session.POI(routeID, index)
	span.SetStatus(codes.Ok, "POI enrichment attempted")
	api.WriteJSONResponse(w, r, http.StatusOK, poi)
}

func (h *HandlerImpl) routeIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	routeID, err := uuid.Parse(chi.URLParam(r, "routeID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid route ID format")
		return uuid.Nil, false
	}
	return routeID, true
}
