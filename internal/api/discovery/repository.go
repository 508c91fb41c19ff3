package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arnonfr/urbanito/internal/types"
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository reads the two discovery sources: the community pool and a user's
// personal saved-route library.
type Repository interface {
	CommunityRecent(ctx context.Context, limit int) ([]types.RouteSummary, error)
	PersonalRecent(ctx context.Context, userID uuid.UUID, limit int) ([]types.RouteSummary, error)
	CommunityByCity(ctx context.Context, cities []string) ([]types.RouteSummary, error)
	PersonalByCity(ctx context.Context, userID uuid.UUID, cities []string) ([]types.RouteSummary, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewRepository(pgpool *pgxpool.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

// summarySelect is the shared feed projection: route header fields plus a
// junction count, so feeds never load full POI rows.
func summarySelect() squirrel.SelectBuilder {
	return squirrel.Select(
		"r.id", "r.name", "r.city", "r.description", "r.duration_minutes",
		"r.visibility", "r.created_at", "COUNT(rp.poi_id) AS poi_count",
	).
		From("routes r").
		LeftJoin("route_pois rp ON rp.route_id = r.id").
		GroupBy("r.id").
		PlaceholderFormat(squirrel.Dollar)
}

func (r *RepositoryImpl) CommunityRecent(ctx context.Context, limit int) ([]types.RouteSummary, error) {
	qb := summarySelect().
		Where(squirrel.Eq{"r.visibility": string(types.VisibilityCommunity)}).
		OrderBy("r.created_at DESC").
		Limit(uint64(limit))
	return r.querySummaries(ctx, "CommunityRecent", "community", qb)
}

func (r *RepositoryImpl) PersonalRecent(ctx context.Context, userID uuid.UUID, limit int) ([]types.RouteSummary, error) {
	qb := summarySelect().
		Join("saved_routes sr ON sr.route_id = r.id").
		Where(squirrel.Eq{"sr.user_id": userID}).
		OrderBy("r.created_at DESC").
		Limit(uint64(limit))
	return r.querySummaries(ctx, "PersonalRecent", "personal", qb)
}

// CommunityByCity matches any of the given city spellings, so an alternate
// name variant ("Lisbon" alongside "Lisboa") widens the match.
func (r *RepositoryImpl) CommunityByCity(ctx context.Context, cities []string) ([]types.RouteSummary, error) {
	qb := summarySelect().
		Where(squirrel.Eq{"r.visibility": string(types.VisibilityCommunity)}).
		Where(cityMatch(cities)).
		OrderBy("r.created_at DESC")
	return r.querySummaries(ctx, "CommunityByCity", "community", qb)
}

func (r *RepositoryImpl) PersonalByCity(ctx context.Context, userID uuid.UUID, cities []string) ([]types.RouteSummary, error) {
	qb := summarySelect().
		Join("saved_routes sr ON sr.route_id = r.id").
		Where(squirrel.Eq{"sr.user_id": userID}).
		Where(cityMatch(cities)).
		OrderBy("r.created_at DESC")
	return r.querySummaries(ctx, "PersonalByCity", "personal", qb)
}

func cityMatch(cities []string) squirrel.Sqlizer {
	or := squirrel.Or{}
	for _, city := range cities {
		if city == "" {
			continue
		}
		or = append(or, squirrel.Expr("LOWER(r.city) = LOWER(?)", city))
	}
	return or
}

func (r *RepositoryImpl) querySummaries(ctx context.Context, op, source string, qb squirrel.SelectBuilder) ([]types.RouteSummary, error) {
	ctx, span := otel.Tracer("DiscoveryRepository").Start(ctx, op, trace.WithAttributes(
		attribute.String("feed.source", source),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", op))

	query, args, err := qb.ToSql()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build feed query: %w", err)
	}

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query %s feed: %w", source, err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(ctx, l, rows, source)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("results.count", len(summaries)))
	span.SetStatus(codes.Ok, "Feed loaded")
	return summaries, nil
}

func scanSummaries(ctx context.Context, l *slog.Logger, rows pgx.Rows, source string) ([]types.RouteSummary, error) {
	var summaries []types.RouteSummary
	for rows.Next() {
		var s types.RouteSummary
		var visibility string
		err := rows.Scan(
			&s.ID, &s.Name, &s.City, &s.Description, &s.DurationMinutes,
			&visibility, &s.CreatedAt, &s.POICount,
		)
		if err != nil {
			l.WarnContext(ctx, "Failed to scan feed row, skipping", slog.Any("error", err))
			continue
		}
		s.Visibility = types.RouteVisibility(visibility)
		s.Source = source
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return summaries, nil
}
