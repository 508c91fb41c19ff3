// Package enrichment lazily fetches extended narrative content for the POIs
// of an open route. Each POI moves Stub -> Loading -> Loaded, and a failed
// fetch reverts it to a retryable stub.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/Arnonfr/urbanito/internal/api/identity"
	"github.com/Arnonfr/urbanito/internal/session"
	"github.com/Arnonfr/urbanito/internal/types"
)

const (
	defaultTemperature = 0.3
	// lookAhead is how many upcoming stops are prefetched when a POI gains
	// focus, so advancing through a route rarely hits a cold fetch.
	lookAhead = 2
)

// ContentGenerator is the opaque content enrichment backend.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// Engine drives per-POI enrichment against the open-routes session.
type Engine struct {
	logger  *slog.Logger
	ai      ContentGenerator
	session *session.Manager

	mu       sync.Mutex
	inflight map[string]struct{} // claimed stable ids
}

func NewEngine(ai ContentGenerator, sessionMgr *session.Manager, logger *slog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		ai:       ai,
		session:  sessionMgr,
		inflight: make(map[string]struct{}),
	}
}

// Focus enriches the POI the user selected and eagerly starts enrichment for
// the next stops in route order. Look-ahead fetches run in the background and
// respect the same idempotence guard as direct calls.
func (e *Engine) Focus(ctx context.Context, routeID uuid.UUID, index int, city string, prefs types.ContentPreferences) error {
	if poi, ok := e.session.POI(routeID, index); ok {
		e.session.SetFocused(poi)
	}

	for offset := 1; offset <= lookAhead; offset++ {
		go func(i int) {
			// Detached from the caller's request lifetime.
			if err := e.Enrich(context.WithoutCancel(ctx), routeID, i, city, prefs); err != nil {
				e.logger.Debug("look-ahead enrichment skipped", slog.Int("index", i), slog.Any("error", err))
			}
		}(index + offset)
	}

	return e.Enrich(ctx, routeID, index, city, prefs)
}

// Enrich fetches extended content for one POI and merges it in place. It is a
// no-op when the POI is already loading or loaded, and on failure or an empty
// result the POI reverts to a retryable stub. Enrichment is progressive
// enhancement: no error reaches the user beyond the loading-state reset.
func (e *Engine) Enrich(ctx context.Context, routeID uuid.UUID, index int, city string, prefs types.ContentPreferences) error {
	ctx, span := otel.Tracer("EnrichmentEngine").Start(ctx, "Enrich", trace.WithAttributes(
		attribute.String("route.id", routeID.String()),
		attribute.Int("poi.index", index),
	))
	defer span.End()

	l := e.logger.With(slog.String("method", "Enrich"))

	poi, ok := e.session.POI(routeID, index)
	if !ok {
		span.SetStatus(codes.Ok, "No such POI")
		return nil
	}
	if poi.IsLoading || poi.IsFullyLoaded {
		span.SetStatus(codes.Ok, "Already loading or loaded")
		return nil
	}

	stableID := identity.StableID(poi.Name, poi.Latitude, poi.Longitude)
	if !e.claim(stableID) {
		span.SetStatus(codes.Ok, "Claimed by a concurrent fetch")
		return nil
	}
	defer e.release(stableID)

	e.session.UpdatePOI(routeID, index, func(p *types.POIDetail) {
		p.IsLoading = true
	})

	content, err := e.fetchContent(ctx, poi.Name, city, prefs)
	if err != nil || content.empty() {
		// Revert to a retryable stub; a later Enrich call is accepted again.
		e.session.UpdatePOI(routeID, index, func(p *types.POIDetail) {
			p.IsLoading = false
		})
		if err != nil {
			l.WarnContext(ctx, "Enrichment failed, POI reverted to stub",
				slog.String("poi", poi.Name), slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Enrichment failed")
			return fmt.Errorf("%w: %w", types.ErrEnrichmentFailed, err)
		}
		l.InfoContext(ctx, "Enrichment returned no content", slog.String("poi", poi.Name))
		span.SetStatus(codes.Ok, "Empty enrichment result")
		return nil
	}

	e.session.UpdatePOI(routeID, index, func(p *types.POIDetail) {
		content.mergeInto(p)
		p.IsLoading = false
		p.IsFullyLoaded = true
	})

	l.InfoContext(ctx, "POI enriched", slog.String("poi", poi.Name), slog.String("city", city))
	span.SetStatus(codes.Ok, "POI enriched")
	return nil
}

func (e *Engine) claim(stableID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, taken := e.inflight[stableID]; taken {
		return false
	}
	e.inflight[stableID] = struct{}{}
	return true
}

func (e *Engine) release(stableID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, stableID)
}

// enrichedContent is the validated gateway shape. Empty or partial output is
// a legal non-error response.
type enrichedContent struct {
	HistoricalAnalysis    string                 `json:"historical_analysis"`
	ArchitecturalAnalysis string                 `json:"architectural_analysis"`
	Sections              []types.ContentSection `json:"sections"`
	Citations             []string               `json:"citations"`
}

func (c *enrichedContent) empty() bool {
	return c.HistoricalAnalysis == "" && c.ArchitecturalAnalysis == "" &&
		len(c.Sections) == 0 && len(c.Citations) == 0
}

func (c *enrichedContent) mergeInto(p *types.POIDetail) {
	if c.HistoricalAnalysis != "" {
		p.HistoricalAnalysis = c.HistoricalAnalysis
	}
	if c.ArchitecturalAnalysis != "" {
		p.ArchitecturalAnalysis = c.ArchitecturalAnalysis
	}
	if len(c.Sections) > 0 {
		p.Sections = c.Sections
	}
	if len(c.Citations) > 0 {
		p.Citations = c.Citations
	}
}

func (e *Engine) fetchContent(ctx context.Context, poiName, city string, prefs types.ContentPreferences) (*enrichedContent, error) {
	prompt := getEnrichmentPrompt(poiName, city, prefs)
	raw, err := e.ai.GenerateContent(ctx, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](defaultTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment gateway call: %w", err)
	}

	var content enrichedContent
	if err := json.Unmarshal([]byte(cleanJSONResponse(raw)), &content); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment JSON: %w", err)
	}
	return &content, nil
}
