package synthesis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/Arnonfr/urbanito/internal/session"
	"github.com/Arnonfr/urbanito/internal/types"
)

const defaultTemperature = 0.5

var _ Service = (*ServiceImpl)(nil)

// Service is the route synthesis gateway: it turns a location plus
// constraints into a skeleton route held in the open-routes session.
type Service interface {
	GenerateTour(ctx context.Context, userID *uuid.UUID, req types.SynthesisRequest) (*types.SynthesisResult, error)
}

// ContentGenerator is the opaque generation backend.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

// CommunityCacher lets a successfully synthesized city route be offered to
// the community pool after the fact.
type CommunityCacher interface {
	CacheCommunityRoute(ctx context.Context, route types.Route) error
}

// Geocoder resolves bare coordinates to a city context so coordinate-based
// tours still carry a usable city for prompts and enrichment.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*types.CityContext, error)
}

type ServiceImpl struct {
	logger    *slog.Logger
	ai        ContentGenerator
	session   *session.Manager
	community CommunityCacher
	geocoder  Geocoder
	validate  *validator.Validate
}

func NewService(ai ContentGenerator, sessionMgr *session.Manager, community CommunityCacher, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:    logger,
		ai:        ai,
		session:   sessionMgr,
		community: community,
		validate:  validator.New(),
	}
}

// WithGeocoder enables coordinate-to-city resolution. Without it, coordinate
// tours run with a generic "nearby" context.
func (s *ServiceImpl) WithGeocoder(g Geocoder) *ServiceImpl {
	s.geocoder = g
	return s
}

// GenerateTour opens a generating tab, calls the generation backend, and
// replaces the tab with the parsed skeleton. Any failure (gateway error,
// empty or unparsable output) closes the tab so no broken route lingers, and
// collapses into ErrSynthesisFailed.
func (s *ServiceImpl) GenerateTour(ctx context.Context, userID *uuid.UUID, req types.SynthesisRequest) (*types.SynthesisResult, error) {
	ctx, span := otel.Tracer("SynthesisService").Start(ctx, "GenerateTour", trace.WithAttributes(
		attribute.String("location.kind", string(req.Kind)),
		attribute.String("style", string(req.Style)),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "GenerateTour"))

	if err := s.validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid synthesis request")
		return nil, fmt.Errorf("%w: %w", types.ErrSynthesisFailed, err)
	}

	// Bare coordinates get a city context from the geocoding gateway when
	// available. Failure falls back to a generic context; it never blocks
	// generation.
	if req.Kind == types.LocationCoordinates && req.City == "" && s.geocoder != nil {
		if city, gerr := s.geocoder.ReverseGeocode(ctx, *req.Latitude, *req.Longitude); gerr != nil {
			l.WarnContext(ctx, "Reverse geocoding failed, continuing without city context", slog.Any("error", gerr))
		} else {
			req.City = city.Name
			if req.Street == "" {
				req.Street = city.Street
			}
		}
	}

	// The tab exists for the whole flight so the UI can render a spinner;
	// it is removed again on any failure.
	tabID := uuid.New()
	skeleton := types.Route{ID: tabID, Name: pendingName(req), City: req.City}
	s.session.Open(skeleton, true)

	prompt := getTourPrompt(req)
	raw, err := s.ai.GenerateContent(ctx, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](defaultTemperature),
	})
	if err != nil {
		s.session.Close(tabID)
		l.ErrorContext(ctx, "Synthesis gateway call failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Gateway call failed")
		return nil, fmt.Errorf("%w: %w", types.ErrSynthesisFailed, err)
	}

	payload, err := parseSkeleton(s.validate, raw)
	if err != nil {
		s.session.Close(tabID)
		l.ErrorContext(ctx, "Synthesis response rejected", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unparsable synthesis output")
		return nil, fmt.Errorf("%w: %w", types.ErrSynthesisFailed, err)
	}

	route := buildRoute(tabID, s.resolveCity(req), payload)
	route.OwnerID = userID
	if !s.session.Replace(tabID, route) {
		// User closed the tab mid-flight; the result is discarded.
		l.InfoContext(ctx, "Generation finished for a closed tab", slog.String("route_id", tabID.String()))
		span.SetStatus(codes.Ok, "Result dropped, tab closed")
		return nil, fmt.Errorf("%w: tab closed during generation", types.ErrSynthesisFailed)
	}

	result := &types.SynthesisResult{
		Route: route,
		// Only routes anchored on a named city are offered for community
		// caching; bare coordinates are a private, personalized context.
		ShareToCommunity: req.Kind == types.LocationCity,
	}

	if result.ShareToCommunity && s.community != nil {
		if err := s.community.CacheCommunityRoute(ctx, route); err != nil {
			// Best effort only; the user's route is unaffected.
			l.WarnContext(ctx, "Community caching of generated route failed", slog.Any("error", err))
		}
	}

	l.InfoContext(ctx, "Route synthesized",
		slog.String("route_id", route.ID.String()),
		slog.String("city", route.City),
		slog.Int("poi_count", len(route.POIs)))
	span.SetAttributes(attribute.Int("route.pois", len(route.POIs)))
	span.SetStatus(codes.Ok, "Route synthesized")
	return result, nil
}

func (s *ServiceImpl) validateRequest(req types.SynthesisRequest) error {
	if err := s.validate.Struct(&req); err != nil {
		return err
	}
	switch req.Kind {
	case types.LocationCity:
		if req.City == "" {
			return fmt.Errorf("city is required for kind %q", req.Kind)
		}
	case types.LocationStreet:
		if req.Street == "" || req.City == "" {
			return fmt.Errorf("street and city are required for kind %q", req.Kind)
		}
	case types.LocationCoordinates:
		if req.Latitude == nil || req.Longitude == nil {
			return fmt.Errorf("latitude and longitude are required for kind %q", req.Kind)
		}
	}
	if req.Style == types.StyleThemed && req.Theme == "" {
		return fmt.Errorf("theme is required for style %q", req.Style)
	}
	return nil
}

func (s *ServiceImpl) resolveCity(req types.SynthesisRequest) string {
	if req.City != "" {
		return req.City
	}
	return "nearby"
}

func pendingName(req types.SynthesisRequest) string {
	if req.City != "" {
		return "Generating tour of " + req.City
	}
	return "Generating nearby tour"
}
