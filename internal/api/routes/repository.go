package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arnonfr/urbanito/internal/api/identity"
	"github.com/Arnonfr/urbanito/internal/types"
)

const uniqueViolation = "23505"

var _ Repository = (*RepositoryImpl)(nil)

// PGXPool is the subset of pgxpool.Pool the repository needs.
type PGXPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ PGXPool = (*pgxpool.Pool)(nil)

type Repository interface {
	UpsertPOI(ctx context.Context, poi types.POIDetail) (uuid.UUID, error)
	InsertRoute(ctx context.Context, route types.Route) (uuid.UUID, error)
	InsertJunctions(ctx context.Context, routeID uuid.UUID, poiIDs []uuid.UUID, pois []types.POIDetail) error
	DeleteRouteRecord(ctx context.Context, routeID uuid.UUID) error
	GetRouteRecord(ctx context.Context, routeID uuid.UUID) (*types.Route, error)
	GetRoutePOIs(ctx context.Context, routeID uuid.UUID) ([]types.POIDetail, error)
	DeleteRouteOwned(ctx context.Context, routeID, ownerID uuid.UUID) (bool, error)
	SaveRouteForUser(ctx context.Context, userID, routeID uuid.UUID) error
	RemoveSavedRoute(ctx context.Context, userID, routeID uuid.UUID) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewRepository(pgpool PGXPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

// UpsertPOI stores a POI keyed by its content hash, reusing the existing row
// when the same physical place was stored before. First writer wins: an
// existing row's content fields are never overwritten. The unique constraint
// on content_hash is the authoritative guard against the check-then-insert
// race; a conflicting insert re-selects and reuses the winner's row.
func (r *RepositoryImpl) UpsertPOI(ctx context.Context, poi types.POIDetail) (uuid.UUID, error) {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "UpsertPOI", trace.WithAttributes(
		attribute.String("poi.name", poi.Name),
	))
	defer span.End()

	if poi.Latitude < -90 || poi.Latitude > 90 || poi.Longitude < -180 || poi.Longitude > 180 {
		err := fmt.Errorf("invalid coordinates: lat=%f, lon=%f", poi.Latitude, poi.Longitude)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid coordinates")
		return uuid.Nil, err
	}

	hash := identity.ContentHash(poi.Name, poi.Latitude, poi.Longitude)

	if id, err := r.findPOIByHash(ctx, hash); err != nil {
		span.RecordError(err)
		return uuid.Nil, err
	} else if id != uuid.Nil {
		span.SetStatus(codes.Ok, "POI reused")
		return id, nil
	}

	sections, err := marshalSections(poi.Sections)
	if err != nil {
		return uuid.Nil, err
	}

	query := `
        INSERT INTO pois (
            content_hash, name, latitude, longitude, category, description,
            historical_analysis, architectural_analysis, sections, citations
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	var id uuid.UUID
	err = r.pgpool.QueryRow(ctx, query,
		hash, poi.Name, poi.Latitude, poi.Longitude, string(poi.Category), poi.Description,
		nilIfEmpty(poi.HistoricalAnalysis), nilIfEmpty(poi.ArchitecturalAnalysis),
		sections, poi.Citations,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// A concurrent writer won the insert; reuse its row.
			id, selErr := r.findPOIByHash(ctx, hash)
			if selErr != nil {
				return uuid.Nil, selErr
			}
			span.SetStatus(codes.Ok, "POI reused after conflicting insert")
			return id, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "POI insert failed")
		return uuid.Nil, fmt.Errorf("failed to insert POI: %w", err)
	}

	r.logger.DebugContext(ctx, "POI stored", slog.String("name", poi.Name), slog.String("id", id.String()))
	span.SetStatus(codes.Ok, "POI stored")
	return id, nil
}

func (r *RepositoryImpl) findPOIByHash(ctx context.Context, hash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pgpool.QueryRow(ctx, `SELECT id FROM pois WHERE content_hash = $1`, hash).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("failed to look up POI by hash: %w", err)
	}
	return id, nil
}

func (r *RepositoryImpl) InsertRoute(ctx context.Context, route types.Route) (uuid.UUID, error) {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "InsertRoute", trace.WithAttributes(
		attribute.String("route.name", route.Name),
		attribute.String("route.city", route.City),
	))
	defer span.End()

	query := `
        INSERT INTO routes (owner_id, parent_route_id, name, city, description, duration_minutes, visibility)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	visibility := route.Visibility
	if visibility == "" {
		visibility = types.VisibilityPrivate
	}
	var id uuid.UUID
	err := r.pgpool.QueryRow(ctx, query,
		route.OwnerID, route.ParentRouteID, route.Name, route.City,
		route.Description, route.DurationMinutes, string(visibility),
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Route insert failed")
		return uuid.Nil, fmt.Errorf("failed to insert route: %w", err)
	}
	span.SetStatus(codes.Ok, "Route inserted")
	return id, nil
}

// InsertJunctions writes the ordered route-POI links with their incoming
// walking segments. poiIDs[i] is the stored row for pois[i].
func (r *RepositoryImpl) InsertJunctions(ctx context.Context, routeID uuid.UUID, poiIDs []uuid.UUID, pois []types.POIDetail) error {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "InsertJunctions", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.Int("pois.count", len(poiIDs)),
	))
	defer span.End()

	if len(poiIDs) != len(pois) {
		return fmt.Errorf("poi id/detail count mismatch: %d != %d", len(poiIDs), len(pois))
	}

	batch := &pgx.Batch{}
	query := `
        INSERT INTO route_pois (route_id, poi_id, position, travel_distance_text, travel_duration_text)
        VALUES ($1, $2, $3, $4, $5)
    `
	for i, poiID := range poiIDs {
		var distance, duration *string
		if seg := pois[i].TravelFromPrevious; seg != nil {
			distance, duration = &seg.DistanceText, &seg.DurationText
		}
		batch.Queue(query, routeID, poiID, i, distance, duration)
	}

	br := r.pgpool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(poiIDs); i++ {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Junction insert failed")
			return fmt.Errorf("failed to link POI at position %d: %w", i, err)
		}
	}
	span.SetStatus(codes.Ok, "Junctions inserted")
	return nil
}

// DeleteRouteRecord removes a route row unconditionally. Used to compensate a
// failed junction-linking step so no empty orphan route persists.
func (r *RepositoryImpl) DeleteRouteRecord(ctx context.Context, routeID uuid.UUID) error {
	_, err := r.pgpool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, routeID)
	if err != nil {
		return fmt.Errorf("failed to delete route record: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) GetRouteRecord(ctx context.Context, routeID uuid.UUID) (*types.Route, error) {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "GetRouteRecord", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	query := `
        SELECT id, owner_id, parent_route_id, name, city, description, duration_minutes, visibility, created_at
        FROM routes
        WHERE id = $1
    `
	var route types.Route
	var visibility string
	err := r.pgpool.QueryRow(ctx, query, routeID).Scan(
		&route.ID, &route.OwnerID, &route.ParentRouteID, &route.Name, &route.City,
		&route.Description, &route.DurationMinutes, &visibility, &route.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	route.Visibility = types.RouteVisibility(visibility)
	span.SetStatus(codes.Ok, "Route loaded")
	return &route, nil
}

// GetRoutePOIs reconstructs the ordered POI sequence of a route, merging each
// stored POI with the per-route walking segment from the junction. A junction
// row whose POI is missing drops out of the join; a row that fails to scan is
// skipped rather than failing the whole reconstruction.
func (r *RepositoryImpl) GetRoutePOIs(ctx context.Context, routeID uuid.UUID) ([]types.POIDetail, error) {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "GetRoutePOIs", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "GetRoutePOIs"))

	query := `
        SELECT
            p.id, p.name, p.latitude, p.longitude, p.category, p.description,
            p.historical_analysis, p.architectural_analysis, p.sections, p.citations,
            rp.travel_distance_text, rp.travel_duration_text
        FROM route_pois rp
        JOIN pois p ON p.id = rp.poi_id
        WHERE rp.route_id = $1
        ORDER BY rp.position ASC
    `
	rows, err := r.pgpool.Query(ctx, query, routeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Database query failed")
		return nil, fmt.Errorf("failed to query route POIs: %w", err)
	}
	defer rows.Close()

	var pois []types.POIDetail
	for rows.Next() {
		var poi types.POIDetail
		var category string
		var historical, architectural, distance, duration *string
		var sections []byte

		err := rows.Scan(
			&poi.ID, &poi.Name, &poi.Latitude, &poi.Longitude, &category, &poi.Description,
			&historical, &architectural, &sections, &poi.Citations,
			&distance, &duration,
		)
		if err != nil {
			l.WarnContext(ctx, "Failed to scan route POI row, skipping", slog.Any("error", err))
			continue
		}

		poi.Category = types.POICategory(category)
		if historical != nil {
			poi.HistoricalAnalysis = *historical
		}
		if architectural != nil {
			poi.ArchitecturalAnalysis = *architectural
		}
		if len(sections) > 0 {
			if err := json.Unmarshal(sections, &poi.Sections); err != nil {
				l.WarnContext(ctx, "Failed to decode POI sections", slog.Any("error", err))
			}
		}
		if distance != nil || duration != nil {
			seg := &types.TravelSegment{}
			if distance != nil {
				seg.DistanceText = *distance
			}
			if duration != nil {
				seg.DurationText = *duration
			}
			poi.TravelFromPrevious = seg
		}
		poi.IsFullyLoaded = poi.HistoricalAnalysis != "" || poi.ArchitecturalAnalysis != "" ||
			len(poi.Sections) > 0 || len(poi.Citations) > 0

		pois = append(pois, poi)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating route POI rows: %w", err)
	}

	span.SetAttributes(attribute.Int("results.pois", len(pois)))
	span.SetStatus(codes.Ok, "Route POIs loaded")
	return pois, nil
}

// DeleteRouteOwned removes a route only when ownerID matches the recorded
// owner. The cascade removes junction rows; POI rows are never touched.
func (r *RepositoryImpl) DeleteRouteOwned(ctx context.Context, routeID, ownerID uuid.UUID) (bool, error) {
	ctx, span := otel.Tracer("RoutesRepository").Start(ctx, "DeleteRouteOwned", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`DELETE FROM routes WHERE id = $1 AND owner_id = $2`, routeID, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Route delete failed")
		return false, fmt.Errorf("failed to delete route: %w", err)
	}
	deleted := tag.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("route.deleted", deleted))
	span.SetStatus(codes.Ok, "Delete attempted")
	return deleted, nil
}

func (r *RepositoryImpl) SaveRouteForUser(ctx context.Context, userID, routeID uuid.UUID) error {
	query := `
        INSERT INTO saved_routes (user_id, route_id)
        VALUES ($1, $2)
        ON CONFLICT (user_id, route_id) DO NOTHING
    `
	if _, err := r.pgpool.Exec(ctx, query, userID, routeID); err != nil {
		return fmt.Errorf("failed to save route for user: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) RemoveSavedRoute(ctx context.Context, userID, routeID uuid.UUID) error {
	if _, err := r.pgpool.Exec(ctx,
		`DELETE FROM saved_routes WHERE user_id = $1 AND route_id = $2`, userID, routeID); err != nil {
		return fmt.Errorf("failed to remove saved route: %w", err)
	}
	return nil
}

func marshalSections(sections []types.ContentSection) ([]byte, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("failed to encode POI sections: %w", err)
	}
	return data, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
