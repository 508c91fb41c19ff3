package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arnonfr/urbanito/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service is the normalized route store: save, load, delete and fork routes
// whose POIs are deduplicated by stable identity and shared across routes.
type Service interface {
	SaveRoute(ctx context.Context, ownerID uuid.UUID, route types.Route, parentID *uuid.UUID) (uuid.UUID, error)
	LoadRoute(ctx context.Context, routeID uuid.UUID) (*types.Route, error)
	DeleteRoute(ctx context.Context, routeID, ownerID uuid.UUID) error
	ForkRoute(ctx context.Context, ownerID, parentID uuid.UUID, updates types.UpdateRouteRequest) (uuid.UUID, error)
	SaveToLibrary(ctx context.Context, userID, routeID uuid.UUID) error
	RemoveFromLibrary(ctx context.Context, userID, routeID uuid.UUID) error
	CacheCommunityRoute(ctx context.Context, route types.Route) error
}

// FeedInvalidator busts discovery read caches after a successful write.
type FeedInvalidator interface {
	InvalidateFeeds()
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	feeds  FeedInvalidator
}

func NewService(repo Repository, feeds FeedInvalidator, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		feeds:  feeds,
	}
}

// SaveRoute persists a route for ownerID: POIs are upserted in order, the
// route row is created, then the ordered junction rows. The route row is
// rolled back if junction linking fails; upserted POIs stay, being immutable
// shared content. The saved route also lands in the owner's personal library.
func (s *ServiceImpl) SaveRoute(ctx context.Context, ownerID uuid.UUID, route types.Route, parentID *uuid.UUID) (uuid.UUID, error) {
	ctx, span := otel.Tracer("RoutesService").Start(ctx, "SaveRoute", trace.WithAttributes(
		attribute.String("route.name", route.Name),
		attribute.Int("route.pois", len(route.POIs)),
	))
	defer span.End()

	route.OwnerID = &ownerID
	route.ParentRouteID = parentID
	if route.Visibility == "" {
		route.Visibility = types.VisibilityPrivate
	}

	routeID, err := s.persistRoute(ctx, route)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Save failed")
		return uuid.Nil, err
	}

	if err := s.repo.SaveRouteForUser(ctx, ownerID, routeID); err != nil {
		// The route itself is saved; the library association is best effort.
		s.logger.WarnContext(ctx, "Failed to add saved route to library", slog.Any("error", err))
	}

	s.invalidateFeeds()
	span.SetStatus(codes.Ok, "Route saved")
	return routeID, nil
}

// CacheCommunityRoute persists a freshly synthesized city route into the
// community pool. No owner library association is created.
func (s *ServiceImpl) CacheCommunityRoute(ctx context.Context, route types.Route) error {
	ctx, span := otel.Tracer("RoutesService").Start(ctx, "CacheCommunityRoute")
	defer span.End()

	route.Visibility = types.VisibilityCommunity
	if _, err := s.persistRoute(ctx, route); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Community caching failed")
		return err
	}
	s.invalidateFeeds()
	span.SetStatus(codes.Ok, "Route cached for community")
	return nil
}

func (s *ServiceImpl) persistRoute(ctx context.Context, route types.Route) (uuid.UUID, error) {
	l := s.logger.With(slog.String("method", "persistRoute"))

	poiIDs := make([]uuid.UUID, 0, len(route.POIs))
	for _, poi := range route.POIs {
		poiID, err := s.repo.UpsertPOI(ctx, poi)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %w", types.ErrSaveFailed, err)
		}
		poiIDs = append(poiIDs, poiID)
	}

	routeID, err := s.repo.InsertRoute(ctx, route)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", types.ErrSaveFailed, err)
	}

	if err := s.repo.InsertJunctions(ctx, routeID, poiIDs, route.POIs); err != nil {
		// Compensate the route row so no empty orphan remains. POIs are
		// immutable shared content and are deliberately left in place.
		if delErr := s.repo.DeleteRouteRecord(ctx, routeID); delErr != nil {
			l.ErrorContext(ctx, "Failed to roll back route after junction failure",
				slog.String("route_id", routeID.String()), slog.Any("error", delErr))
		}
		return uuid.Nil, fmt.Errorf("%w: %w", types.ErrSaveFailed, err)
	}

	l.InfoContext(ctx, "Route persisted",
		slog.String("route_id", routeID.String()),
		slog.String("city", route.City),
		slog.Int("poi_count", len(route.POIs)))
	return routeID, nil
}

// LoadRoute reconstructs a full route from the route record, its ordered
// junction rows and the referenced POI rows.
func (s *ServiceImpl) LoadRoute(ctx context.Context, routeID uuid.UUID) (*types.Route, error) {
	ctx, span := otel.Tracer("RoutesService").Start(ctx, "LoadRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	route, err := s.repo.GetRouteRecord(ctx, routeID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}

	pois, err := s.repo.GetRoutePOIs(ctx, routeID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load route POIs: %w", err)
	}
	route.POIs = pois

	span.SetAttributes(attribute.Int("route.pois", len(pois)))
	span.SetStatus(codes.Ok, "Route loaded")
	return route, nil
}

// DeleteRoute removes a route when ownerID matches its recorded owner. The
// cascade drops only the junction rows; shared POIs always survive. A
// non-owner attempt reports a generic failure.
func (s *ServiceImpl) DeleteRoute(ctx context.Context, routeID, ownerID uuid.UUID) error {
	ctx, span := otel.Tracer("RoutesService").Start(ctx, "DeleteRoute", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	deleted, err := s.repo.DeleteRouteOwned(ctx, routeID, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Delete failed")
		return err
	}
	if !deleted {
		span.SetStatus(codes.Ok, "Delete rejected")
		return types.ErrForbidden
	}

	s.invalidateFeeds()
	s.logger.InfoContext(ctx, "Route deleted", slog.String("route_id", routeID.String()))
	span.SetStatus(codes.Ok, "Route deleted")
	return nil
}

// ForkRoute creates a wholly new route owned by ownerID with lineage recorded
// via parent_route_id. It references the same POI rows as the parent but gets
// independent junction rows, sharing no mutable state with the parent record.
func (s *ServiceImpl) ForkRoute(ctx context.Context, ownerID, parentID uuid.UUID, updates types.UpdateRouteRequest) (uuid.UUID, error) {
	ctx, span := otel.Tracer("RoutesService").Start(ctx, "ForkRoute", trace.WithAttributes(
		attribute.String("parent.id", parentID.String()),
	))
	defer span.End()

	parent, err := s.LoadRoute(ctx, parentID)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, err
	}

	fork := types.Route{
		Name:            parent.Name,
		City:            parent.City,
		Description:     parent.Description,
		POIs:            parent.POIs,
		DurationMinutes: parent.DurationMinutes,
		Visibility:      types.VisibilityPrivate,
	}
	if updates.Name != nil {
		fork.Name = *updates.Name
	}
	if updates.Description != nil {
		fork.Description = *updates.Description
	}

	forkID, err := s.SaveRoute(ctx, ownerID, fork, &parentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Fork failed")
		return uuid.Nil, err
	}

	s.logger.InfoContext(ctx, "Route forked",
		slog.String("parent_id", parentID.String()),
		slog.String("fork_id", forkID.String()))
	span.SetStatus(codes.Ok, "Route forked")
	return forkID, nil
}

func (s *ServiceImpl) SaveToLibrary(ctx context.Context, userID, routeID uuid.UUID) error {
	if _, err := s.repo.GetRouteRecord(ctx, routeID); err != nil {
		return err
	}
	if err := s.repo.SaveRouteForUser(ctx, userID, routeID); err != nil {
		return err
	}
	s.invalidateFeeds()
	return nil
}

func (s *ServiceImpl) RemoveFromLibrary(ctx context.Context, userID, routeID uuid.UUID) error {
	if err := s.repo.RemoveSavedRoute(ctx, userID, routeID); err != nil {
		return err
	}
	s.invalidateFeeds()
	return nil
}

func (s *ServiceImpl) invalidateFeeds() {
	if s.feeds != nil {
		s.feeds.InvalidateFeeds()
	}
}
