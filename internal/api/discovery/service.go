package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arnonfr/urbanito/internal/cache"
	"github.com/Arnonfr/urbanito/internal/types"
)

const (
	feedKeyPrefix = "discovery:"
	defaultLimit  = 20
	maxLimit      = 100
)

var _ Service = (*ServiceImpl)(nil)

// Service merges the community pool and the caller's personal library into a
// single deduplicated discovery feed.
type Service interface {
	RecentRoutes(ctx context.Context, userID *uuid.UUID, limit int) ([]types.RouteSummary, error)
	RoutesForCity(ctx context.Context, userID *uuid.UUID, city, altName string) ([]types.RouteSummary, error)
	InvalidateFeeds()
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	cache  *cache.QueryCache
}

func NewService(repo Repository, qc *cache.QueryCache, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
		cache:  qc,
	}
}

// RecentRoutes returns the freshest routes across both sources. Community
// results take priority when a route appears in both. Results are cached
// briefly per caller and limit.
func (s *ServiceImpl) RecentRoutes(ctx context.Context, userID *uuid.UUID, limit int) ([]types.RouteSummary, error) {
	ctx, span := otel.Tracer("DiscoveryService").Start(ctx, "RecentRoutes")
	defer span.End()

	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	span.SetAttributes(attribute.Int("feed.limit", limit))

	key := fmt.Sprintf("%srecent:%s:%d", feedKeyPrefix, userKey(userID), limit)
	v, err := s.cache.Fetch(ctx, key, cache.RecentFeedTTL, func(ctx context.Context) (any, error) {
		community, personal := s.fetchSources(ctx,
			func(ctx context.Context) ([]types.RouteSummary, error) {
				return s.repo.CommunityRecent(ctx, limit)
			},
			func(ctx context.Context) ([]types.RouteSummary, error) {
				if userID == nil {
					return nil, nil
				}
				return s.repo.PersonalRecent(ctx, *userID, limit)
			},
		)
		merged := mergeFeeds(community, personal)
		if len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	feed := v.([]types.RouteSummary)
	span.SetAttributes(attribute.Int("results.count", len(feed)))
	span.SetStatus(codes.Ok, "Recent feed served")
	return feed, nil
}

// RoutesForCity returns every discoverable route for a city. altName widens
// the match with an alternate spelling of the same city.
func (s *ServiceImpl) RoutesForCity(ctx context.Context, userID *uuid.UUID, city, altName string) ([]types.RouteSummary, error) {
	ctx, span := otel.Tracer("DiscoveryService").Start(ctx, "RoutesForCity", trace.WithAttributes(
		attribute.String("feed.city", city),
	))
	defer span.End()

	if strings.TrimSpace(city) == "" {
		return nil, fmt.Errorf("city must not be empty")
	}
	cities := []string{city}
	cacheCity := normalizeKey(city)
	if altName != "" && normalizeKey(altName) != normalizeKey(city) {
		cities = append(cities, altName)
		// The alternate spelling widens the match, so it is part of the
		// cache identity too.
		cacheCity += "+" + normalizeKey(altName)
	}

	key := fmt.Sprintf("%scity:%s:%s", feedKeyPrefix, userKey(userID), cacheCity)
	v, err := s.cache.Fetch(ctx, key, cache.DefaultTTL, func(ctx context.Context) (any, error) {
		community, personal := s.fetchSources(ctx,
			func(ctx context.Context) ([]types.RouteSummary, error) {
				return s.repo.CommunityByCity(ctx, cities)
			},
			func(ctx context.Context) ([]types.RouteSummary, error) {
				if userID == nil {
					return nil, nil
				}
				return s.repo.PersonalByCity(ctx, *userID, cities)
			},
		)
		return mergeFeeds(community, personal), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	feed := v.([]types.RouteSummary)
	span.SetAttributes(attribute.Int("results.count", len(feed)))
	span.SetStatus(codes.Ok, "City feed served")
	return feed, nil
}

// InvalidateFeeds busts every cached discovery read. Called after any write
// that changes the underlying sources.
func (s *ServiceImpl) InvalidateFeeds() {
	s.cache.InvalidatePrefix(feedKeyPrefix)
}

type sourceFetch func(ctx context.Context) ([]types.RouteSummary, error)

// fetchSources queries both sources concurrently. A failing source degrades
// to an empty result set instead of suppressing the other source.
func (s *ServiceImpl) fetchSources(ctx context.Context, community, personal sourceFetch) ([]types.RouteSummary, []types.RouteSummary) {
	var wg sync.WaitGroup
	var communityRoutes, personalRoutes []types.RouteSummary

	wg.Add(2)
	go func() {
		defer wg.Done()
		routes, err := community(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "Community feed source failed, degrading to empty", slog.Any("error", err))
			return
		}
		communityRoutes = routes
	}()
	go func() {
		defer wg.Done()
		routes, err := personal(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "Personal feed source failed, degrading to empty", slog.Any("error", err))
			return
		}
		personalRoutes = routes
	}()
	wg.Wait()

	return communityRoutes, personalRoutes
}

// mergeFeeds concatenates sources in priority order, drops entries that
// cannot be rendered and deduplicates by normalized name plus city. The first
// occurrence wins.
func mergeFeeds(sources ...[]types.RouteSummary) []types.RouteSummary {
	merged := make([]types.RouteSummary, 0)
	seen := make(map[string]struct{})
	for _, source := range sources {
		for _, route := range source {
			if route.Name == "" || route.POICount == 0 {
				continue
			}
			key := normalizeKey(route.Name) + "|" + normalizeKey(route.City)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, route)
		}
	}
	return merged
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func userKey(userID *uuid.UUID) string {
	if userID == nil {
		return "anon"
	}
	return userID.String()
}
