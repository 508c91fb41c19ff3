package session

import (
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arnonfr/urbanito/internal/types"
)

func newTestManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func makeRoute(name string) types.Route {
	return types.Route{
		ID:   uuid.New(),
		Name: name,
		City: "Lisboa",
		POIs: []types.POIDetail{
			{ID: uuid.New(), Name: "Castelo de São Jorge", Latitude: 38.7139, Longitude: -9.1335},
			{ID: uuid.New(), Name: "Sé de Lisboa", Latitude: 38.7098, Longitude: -9.1326},
		},
	}
}

func TestOpenCloseSwitch(t *testing.T) {
	m := newTestManager()
	r1 := makeRoute("alfama")
	r2 := makeRoute("belém")

	m.Open(r1, false)
	m.Open(r2, true)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, r2.ID, active.Route.ID)
	assert.True(t, active.Generating)

	require.True(t, m.SwitchActive(r1.ID))
	active, _ = m.Active()
	assert.Equal(t, r1.ID, active.Route.ID)

	require.True(t, m.Close(r1.ID))
	active, ok = m.Active()
	require.True(t, ok)
	assert.Equal(t, r2.ID, active.Route.ID)

	assert.False(t, m.Close(r1.ID), "closing twice is a no-op")

	require.True(t, m.Close(r2.ID))
	_, ok = m.Active()
	assert.False(t, ok)
}

func TestClose_ActiveTabSurvivesEarlierClose(t *testing.T) {
	m := newTestManager()
	r1 := makeRoute("alfama")
	r2 := makeRoute("belém")
	r3 := makeRoute("baixa")

	m.Open(r1, false)
	m.Open(r2, false)
	m.Open(r3, false)
	require.True(t, m.SwitchActive(r2.ID))

	// Closing a tab before the active one must not move the active pointer
	// onto a different route.
	require.True(t, m.Close(r1.ID))
	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, r2.ID, active.Route.ID)

	// Closing the active tab activates the next one.
	require.True(t, m.Close(r2.ID))
	active, ok = m.Active()
	require.True(t, ok)
	assert.Equal(t, r3.ID, active.Route.ID)
}

func TestGeneratingFlags(t *testing.T) {
	m := newTestManager()
	r := makeRoute("alfama")
	m.Open(r, true)

	e, _ := m.Get(r.ID)
	assert.True(t, e.Generating)

	require.True(t, m.ClearGenerating(r.ID))
	e, _ = m.Get(r.ID)
	assert.False(t, e.Generating)

	assert.False(t, m.MarkGenerating(uuid.New()))
}

func TestReplace_DropsResultForClosedTab(t *testing.T) {
	m := newTestManager()
	skeleton := makeRoute("pending")
	m.Open(skeleton, true)

	final := makeRoute("final")
	require.True(t, m.Replace(skeleton.ID, final))
	e, ok := m.Get(final.ID)
	require.True(t, ok)
	assert.False(t, e.Generating)

	// User closed the tab before the second generation finished.
	require.True(t, m.Close(final.ID))
	assert.False(t, m.Replace(final.ID, makeRoute("late")))
	assert.Empty(t, m.Entries())
}

func TestUpdatePOI_SyncsFocusedReference(t *testing.T) {
	m := newTestManager()
	r := makeRoute("alfama")
	m.Open(r, false)

	m.SetFocused(r.POIs[0])

	ok := m.UpdatePOI(r.ID, 0, func(p *types.POIDetail) {
		p.IsFullyLoaded = true
		p.HistoricalAnalysis = "Moorish citadel rebuilt after 1147."
	})
	require.True(t, ok)

	got, ok := m.POI(r.ID, 0)
	require.True(t, ok)
	assert.True(t, got.IsFullyLoaded)

	focused, ok := m.Focused()
	require.True(t, ok)
	assert.True(t, focused.IsFullyLoaded, "focused reference must observe the same update")
	assert.Equal(t, got.HistoricalAnalysis, focused.HistoricalAnalysis)
}

func TestUpdatePOI_OutOfRange(t *testing.T) {
	m := newTestManager()
	r := makeRoute("alfama")
	m.Open(r, false)

	assert.False(t, m.UpdatePOI(r.ID, 99, func(p *types.POIDetail) {}))
	assert.False(t, m.UpdatePOI(uuid.New(), 0, func(p *types.POIDetail) {}))
}
