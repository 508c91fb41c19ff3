package routes

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Arnonfr/urbanito/internal/types"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertPOI(ctx context.Context, poi types.POIDetail) (uuid.UUID, error) {
	args := m.Called(ctx, poi)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockRepository) InsertRoute(ctx context.Context, route types.Route) (uuid.UUID, error) {
	args := m.Called(ctx, route)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockRepository) InsertJunctions(ctx context.Context, routeID uuid.UUID, poiIDs []uuid.UUID, pois []types.POIDetail) error {
	args := m.Called(ctx, routeID, poiIDs, pois)
	return args.Error(0)
}

func (m *MockRepository) DeleteRouteRecord(ctx context.Context, routeID uuid.UUID) error {
	args := m.Called(ctx, routeID)
	return args.Error(0)
}

func (m *MockRepository) GetRouteRecord(ctx context.Context, routeID uuid.UUID) (*types.Route, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Route), args.Error(1)
}

func (m *MockRepository) GetRoutePOIs(ctx context.Context, routeID uuid.UUID) ([]types.POIDetail, error) {
	args := m.Called(ctx, routeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.POIDetail), args.Error(1)
}

func (m *MockRepository) DeleteRouteOwned(ctx context.Context, routeID, ownerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, routeID, ownerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SaveRouteForUser(ctx context.Context, userID, routeID uuid.UUID) error {
	args := m.Called(ctx, userID, routeID)
	return args.Error(0)
}

func (m *MockRepository) RemoveSavedRoute(ctx context.Context, userID, routeID uuid.UUID) error {
	args := m.Called(ctx, userID, routeID)
	return args.Error(0)
}

type MockFeedInvalidator struct {
	mock.Mock
}

func (m *MockFeedInvalidator) InvalidateFeeds() {
	m.Called()
}

func newTestService(repo Repository, feeds FeedInvalidator) *ServiceImpl {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewService(repo, feeds, logger)
}

func testRoute() types.Route {
	return types.Route{
		Name: "Alfama Wander",
		City: "Lisboa",
		POIs: []types.POIDetail{
			{Name: "Sé de Lisboa", Latitude: 38.7098, Longitude: -9.1326},
			{Name: "Castelo de São Jorge", Latitude: 38.7139, Longitude: -9.1335,
				TravelFromPrevious: &types.TravelSegment{DistanceText: "700 m", DurationText: "12 min"}},
		},
		DurationMinutes: 90,
	}
}

func TestSaveRoute_PersistsInOrder(t *testing.T) {
	repo := new(MockRepository)
	feeds := new(MockFeedInvalidator)
	svc := newTestService(repo, feeds)

	ownerID := uuid.New()
	routeID := uuid.New()
	route := testRoute()
	poiIDs := []uuid.UUID{uuid.New(), uuid.New()}

	repo.On("UpsertPOI", mock.Anything, route.POIs[0]).Return(poiIDs[0], nil).Once()
	repo.On("UpsertPOI", mock.Anything, route.POIs[1]).Return(poiIDs[1], nil).Once()
	repo.On("InsertRoute", mock.Anything, mock.MatchedBy(func(r types.Route) bool {
		return r.OwnerID != nil && *r.OwnerID == ownerID && r.Visibility == types.VisibilityPrivate
	})).Return(routeID, nil).Once()
	repo.On("InsertJunctions", mock.Anything, routeID, poiIDs, route.POIs).Return(nil).Once()
	repo.On("SaveRouteForUser", mock.Anything, ownerID, routeID).Return(nil).Once()
	feeds.On("InvalidateFeeds").Return().Once()

	got, err := svc.SaveRoute(context.Background(), ownerID, route, nil)
	require.NoError(t, err)
	assert.Equal(t, routeID, got)
	repo.AssertExpectations(t)
	feeds.AssertExpectations(t)
}

func TestSaveRoute_JunctionFailureRollsBackRoute(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	ownerID := uuid.New()
	routeID := uuid.New()
	route := testRoute()
	poiIDs := []uuid.UUID{uuid.New(), uuid.New()}

	repo.On("UpsertPOI", mock.Anything, mock.Anything).Return(poiIDs[0], nil).Once()
	repo.On("UpsertPOI", mock.Anything, mock.Anything).Return(poiIDs[1], nil).Once()
	repo.On("InsertRoute", mock.Anything, mock.Anything).Return(routeID, nil).Once()
	repo.On("InsertJunctions", mock.Anything, routeID, poiIDs, route.POIs).
		Return(errors.New("connection reset")).Once()
	repo.On("DeleteRouteRecord", mock.Anything, routeID).Return(nil).Once()

	_, err := svc.SaveRoute(context.Background(), ownerID, route, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSaveFailed))

	// The route row is compensated; the upserted POIs stay and the library
	// association never happens.
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "SaveRouteForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveRoute_POIUpsertFailureStopsEarly(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	repo.On("UpsertPOI", mock.Anything, mock.Anything).
		Return(uuid.Nil, errors.New("bad row")).Once()

	_, err := svc.SaveRoute(context.Background(), uuid.New(), testRoute(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSaveFailed))
	repo.AssertNotCalled(t, "InsertRoute", mock.Anything, mock.Anything)
}

func TestCacheCommunityRoute_NoLibraryAssociation(t *testing.T) {
	repo := new(MockRepository)
	feeds := new(MockFeedInvalidator)
	svc := newTestService(repo, feeds)

	route := testRoute()
	poiIDs := []uuid.UUID{uuid.New(), uuid.New()}

	repo.On("UpsertPOI", mock.Anything, mock.Anything).Return(poiIDs[0], nil).Once()
	repo.On("UpsertPOI", mock.Anything, mock.Anything).Return(poiIDs[1], nil).Once()
	repo.On("InsertRoute", mock.Anything, mock.MatchedBy(func(r types.Route) bool {
		return r.Visibility == types.VisibilityCommunity
	})).Return(uuid.New(), nil).Once()
	repo.On("InsertJunctions", mock.Anything, mock.Anything, poiIDs, route.POIs).Return(nil).Once()
	feeds.On("InvalidateFeeds").Return().Once()

	err := svc.CacheCommunityRoute(context.Background(), route)
	require.NoError(t, err)
	repo.AssertNotCalled(t, "SaveRouteForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadRoute_AssemblesRecordAndPOIs(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	routeID := uuid.New()
	record := &types.Route{ID: routeID, Name: "Alfama Wander", City: "Lisboa"}
	pois := testRoute().POIs

	repo.On("GetRouteRecord", mock.Anything, routeID).Return(record, nil).Once()
	repo.On("GetRoutePOIs", mock.Anything, routeID).Return(pois, nil).Once()

	route, err := svc.LoadRoute(context.Background(), routeID)
	require.NoError(t, err)
	assert.Equal(t, "Alfama Wander", route.Name)
	require.Len(t, route.POIs, 2)
	assert.Equal(t, "Sé de Lisboa", route.POIs[0].Name)
	assert.Nil(t, route.POIs[0].TravelFromPrevious)
	assert.NotNil(t, route.POIs[1].TravelFromPrevious)
}

func TestLoadRoute_NotFound(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	routeID := uuid.New()
	repo.On("GetRouteRecord", mock.Anything, routeID).Return(nil, types.ErrNotFound).Once()

	_, err := svc.LoadRoute(context.Background(), routeID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestDeleteRoute_NonOwnerForbidden(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	routeID, strangerID := uuid.New(), uuid.New()
	repo.On("DeleteRouteOwned", mock.Anything, routeID, strangerID).Return(false, nil).Once()

	err := svc.DeleteRoute(context.Background(), routeID, strangerID)
	assert.True(t, errors.Is(err, types.ErrForbidden))
}

func TestDeleteRoute_OwnerSucceeds(t *testing.T) {
	repo := new(MockRepository)
	feeds := new(MockFeedInvalidator)
	svc := newTestService(repo, feeds)

	routeID, ownerID := uuid.New(), uuid.New()
	repo.On("DeleteRouteOwned", mock.Anything, routeID, ownerID).Return(true, nil).Once()
	feeds.On("InvalidateFeeds").Return().Once()

	err := svc.DeleteRoute(context.Background(), routeID, ownerID)
	require.NoError(t, err)
	feeds.AssertExpectations(t)
}

func TestForkRoute_RecordsLineageAndUpdates(t *testing.T) {
	repo := new(MockRepository)
	feeds := new(MockFeedInvalidator)
	svc := newTestService(repo, feeds)

	ownerID := uuid.New()
	parentID := uuid.New()
	forkID := uuid.New()
	parent := testRoute()
	parentOwner := uuid.New()
	record := &types.Route{ID: parentID, Name: parent.Name, City: parent.City, OwnerID: &parentOwner}
	newName := "My Alfama Remix"

	repo.On("GetRouteRecord", mock.Anything, parentID).Return(record, nil).Once()
	repo.On("GetRoutePOIs", mock.Anything, parentID).Return(parent.POIs, nil).Once()
	repo.On("UpsertPOI", mock.Anything, mock.Anything).Return(uuid.New(), nil).Twice()
	repo.On("InsertRoute", mock.Anything, mock.MatchedBy(func(r types.Route) bool {
		return r.Name == newName &&
			r.ParentRouteID != nil && *r.ParentRouteID == parentID &&
			r.OwnerID != nil && *r.OwnerID == ownerID &&
			r.Visibility == types.VisibilityPrivate
	})).Return(forkID, nil).Once()
	repo.On("InsertJunctions", mock.Anything, forkID, mock.Anything, parent.POIs).Return(nil).Once()
	repo.On("SaveRouteForUser", mock.Anything, ownerID, forkID).Return(nil).Once()
	feeds.On("InvalidateFeeds").Return().Once()

	got, err := svc.ForkRoute(context.Background(), ownerID, parentID, types.UpdateRouteRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, forkID, got)
	repo.AssertExpectations(t)
}

func TestSaveToLibrary_MissingRoute(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, nil)

	routeID, userID := uuid.New(), uuid.New()
	repo.On("GetRouteRecord", mock.Anything, routeID).Return(nil, types.ErrNotFound).Once()

	err := svc.SaveToLibrary(context.Background(), userID, routeID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	repo.AssertNotCalled(t, "SaveRouteForUser", mock.Anything, mock.Anything, mock.Anything)
}
