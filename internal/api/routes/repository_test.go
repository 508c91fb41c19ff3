package routes

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arnonfr/urbanito/internal/api/identity"
	"github.com/Arnonfr/urbanito/internal/types"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *RepositoryImpl) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return mock, NewRepository(mock, logger)
}

func TestUpsertPOI_ReusesExistingRow(t *testing.T) {
	mock, repo := newMockRepo(t)

	poi := types.POIDetail{Name: "Eiffel Tower", Latitude: 48.8584, Longitude: 2.2945}
	hash := identity.ContentHash(poi.Name, poi.Latitude, poi.Longitude)
	existing := uuid.New()

	mock.ExpectQuery("SELECT id FROM pois").
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	id, err := repo.UpsertPOI(context.Background(), poi)
	require.NoError(t, err)
	assert.Equal(t, existing, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPOI_InsertsNewRow(t *testing.T) {
	mock, repo := newMockRepo(t)

	poi := types.POIDetail{
		Name:      "Torre de Belém",
		Latitude:  38.6916,
		Longitude: -9.2159,
		Category:  types.CategoryHistory,
	}
	hash := identity.ContentHash(poi.Name, poi.Latitude, poi.Longitude)
	newID := uuid.New()

	mock.ExpectQuery("SELECT id FROM pois").
		WithArgs(hash).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO pois").
		WithArgs(hash, poi.Name, poi.Latitude, poi.Longitude, string(poi.Category), poi.Description,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(newID))

	id, err := repo.UpsertPOI(context.Background(), poi)
	require.NoError(t, err)
	assert.Equal(t, newID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPOI_ConflictingInsertReselects(t *testing.T) {
	mock, repo := newMockRepo(t)

	poi := types.POIDetail{Name: "Sé de Lisboa", Latitude: 38.7098, Longitude: -9.1326}
	hash := identity.ContentHash(poi.Name, poi.Latitude, poi.Longitude)
	winner := uuid.New()

	mock.ExpectQuery("SELECT id FROM pois").
		WithArgs(hash).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO pois").
		WithArgs(hash, poi.Name, poi.Latitude, poi.Longitude, string(poi.Category), poi.Description,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery("SELECT id FROM pois").
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(winner))

	id, err := repo.UpsertPOI(context.Background(), poi)
	require.NoError(t, err)
	assert.Equal(t, winner, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPOI_RejectsInvalidCoordinates(t *testing.T) {
	_, repo := newMockRepo(t)

	_, err := repo.UpsertPOI(context.Background(), types.POIDetail{
		Name: "Nowhere", Latitude: 91.0, Longitude: 0,
	})
	assert.Error(t, err)
}

func TestInsertJunctions_PreservesOrderAndSegments(t *testing.T) {
	mock, repo := newMockRepo(t)

	routeID := uuid.New()
	poiIDs := []uuid.UUID{uuid.New(), uuid.New()}
	pois := []types.POIDetail{
		{Name: "First"},
		{Name: "Second", TravelFromPrevious: &types.TravelSegment{DistanceText: "350 m", DurationText: "5 min"}},
	}

	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO route_pois").
		WithArgs(routeID, poiIDs[0], 0, (*string)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	eb.ExpectExec("INSERT INTO route_pois").
		WithArgs(routeID, poiIDs[1], 1, &pois[1].TravelFromPrevious.DistanceText, &pois[1].TravelFromPrevious.DurationText).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertJunctions(context.Background(), routeID, poiIDs, pois)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertJunctions_CountMismatch(t *testing.T) {
	_, repo := newMockRepo(t)

	err := repo.InsertJunctions(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, nil)
	assert.Error(t, err)
}

func TestGetRouteRecord_NotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	routeID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM routes").
		WithArgs(routeID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetRouteRecord(context.Background(), routeID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestGetRoutePOIs_OrderedReconstruction(t *testing.T) {
	mock, repo := newMockRepo(t)

	routeID := uuid.New()
	firstID, secondID := uuid.New(), uuid.New()
	distance, duration := "1.2 km", "15 min"

	rows := pgxmock.NewRows([]string{
		"id", "name", "latitude", "longitude", "category", "description",
		"historical_analysis", "architectural_analysis", "sections", "citations",
		"travel_distance_text", "travel_duration_text",
	}).
		AddRow(firstID, "Praça do Comércio", 38.7077, -9.1365, "history", "Riverside square",
			nil, nil, nil, nil, nil, nil).
		AddRow(secondID, "Arco da Rua Augusta", 38.7086, -9.1367, "architecture", "Triumphal arch",
			&distance, nil, nil, nil, &distance, &duration)

	mock.ExpectQuery("FROM route_pois").
		WithArgs(routeID).
		WillReturnRows(rows)

	pois, err := repo.GetRoutePOIs(context.Background(), routeID)
	require.NoError(t, err)
	require.Len(t, pois, 2)

	assert.Equal(t, "Praça do Comércio", pois[0].Name)
	assert.Nil(t, pois[0].TravelFromPrevious)
	assert.False(t, pois[0].IsFullyLoaded)

	assert.Equal(t, "Arco da Rua Augusta", pois[1].Name)
	require.NotNil(t, pois[1].TravelFromPrevious)
	assert.Equal(t, "1.2 km", pois[1].TravelFromPrevious.DistanceText)
	assert.Equal(t, "15 min", pois[1].TravelFromPrevious.DurationText)
	assert.True(t, pois[1].IsFullyLoaded)
}

func TestDeleteRouteOwned(t *testing.T) {
	t.Run("owner delete succeeds", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		routeID, ownerID := uuid.New(), uuid.New()

		mock.ExpectExec("DELETE FROM routes").
			WithArgs(routeID, ownerID).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		deleted, err := repo.DeleteRouteOwned(context.Background(), routeID, ownerID)
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("non-owner delete touches nothing", func(t *testing.T) {
		mock, repo := newMockRepo(t)
		routeID, strangerID := uuid.New(), uuid.New()

		mock.ExpectExec("DELETE FROM routes").
			WithArgs(routeID, strangerID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		deleted, err := repo.DeleteRouteOwned(context.Background(), routeID, strangerID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}
