// Package session holds the client-local open-routes state: the ordered set of
// route tabs, the active tab index, and per-route generation flags. Nothing
// here is persisted.
package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Arnonfr/urbanito/internal/api/identity"
	"github.com/Arnonfr/urbanito/internal/types"
)

// Entry is one open route tab.
type Entry struct {
	Route      types.Route `json:"route"`
	Generating bool        `json:"generating"`
}

// Manager is an explicit, owned state container for the open-routes session.
// Transitions are named operations so overlapping async completions (a
// generation finishing after its tab was closed) stay testable and safe.
type Manager struct {
	mu      sync.Mutex
	open    []*Entry
	active  int
	focused *types.POIDetail
	logger  *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{active: -1, logger: logger}
}

// Open appends a route as a new tab and makes it active.
func (m *Manager) Open(route types.Route, generating bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = append(m.open, &Entry{Route: route, Generating: generating})
	m.active = len(m.open) - 1
}

// Close removes the tab holding routeID. Returns false when no such tab is
// open. The active tab stays active when another tab is closed; closing the
// active tab itself activates the next one, or the previous when it was last.
func (m *Manager) Close(routeID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.open {
		if e.Route.ID == routeID {
			m.open = append(m.open[:i], m.open[i+1:]...)
			if i < m.active {
				m.active--
			} else if m.active >= len(m.open) {
				m.active = len(m.open) - 1
			}
			return true
		}
	}
	return false
}

// SwitchActive makes the tab holding routeID active.
func (m *Manager) SwitchActive(routeID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.open {
		if e.Route.ID == routeID {
			m.active = i
			return true
		}
	}
	return false
}

// Active returns a copy of the active tab, if any.
func (m *Manager) Active() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active < 0 || m.active >= len(m.open) {
		return Entry{}, false
	}
	return *m.open[m.active], true
}

// Get returns a copy of the tab holding routeID.
func (m *Manager) Get(routeID uuid.UUID) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(routeID); e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Entries returns copies of all open tabs in order.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.open))
	for i, e := range m.open {
		out[i] = *e
	}
	return out
}

// MarkGenerating flags a tab as awaiting synthesis.
func (m *Manager) MarkGenerating(routeID uuid.UUID) bool {
	return m.setGenerating(routeID, true)
}

// ClearGenerating removes the in-flight flag.
func (m *Manager) ClearGenerating(routeID uuid.UUID) bool {
	return m.setGenerating(routeID, false)
}

func (m *Manager) setGenerating(routeID uuid.UUID, v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(routeID); e != nil {
		e.Generating = v
		return true
	}
	return false
}

// Replace swaps the route held by the tab currently keyed by oldID, clearing
// the generating flag. A completion whose tab was closed in the meantime is
// dropped and reported as false.
func (m *Manager) Replace(oldID uuid.UUID, route types.Route) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(oldID); e != nil {
		e.Route = route
		e.Generating = false
		return true
	}
	m.logger.Debug("dropping generation result for closed tab", slog.String("route_id", oldID.String()))
	return false
}

// UpdatePOI applies mutate to the POI at index within routeID's tab, then
// mirrors the update into the focused-POI reference when both carry the same
// stable identity, so observers of either see consistent data.
func (m *Manager) UpdatePOI(routeID uuid.UUID, index int, mutate func(*types.POIDetail)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(routeID)
	if e == nil || index < 0 || index >= len(e.Route.POIs) {
		return false
	}
	p := &e.Route.POIs[index]
	mutate(p)
	if m.focused != nil && sameIdentity(m.focused, p) {
		clone := *p
		m.focused = &clone
	}
	return true
}

// POI returns a copy of the POI at index within routeID's tab.
func (m *Manager) POI(routeID uuid.UUID, index int) (types.POIDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(routeID)
	if e == nil || index < 0 || index >= len(e.Route.POIs) {
		return types.POIDetail{}, false
	}
	return e.Route.POIs[index], true
}

// SetFocused records the POI the user is currently looking at.
func (m *Manager) SetFocused(p types.POIDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := p
	m.focused = &clone
}

// Focused returns a copy of the currently focused POI.
func (m *Manager) Focused() (types.POIDetail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.focused == nil {
		return types.POIDetail{}, false
	}
	return *m.focused, true
}

func (m *Manager) find(routeID uuid.UUID) *Entry {
	for _, e := range m.open {
		if e.Route.ID == routeID {
			return e
		}
	}
	return nil
}

func sameIdentity(a, b *types.POIDetail) bool {
	return identity.StableID(a.Name, a.Latitude, a.Longitude) ==
		identity.StableID(b.Name, b.Latitude, b.Longitude)
}
