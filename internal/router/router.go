package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/Arnonfr/urbanito/internal/api/discovery"
	"github.com/Arnonfr/urbanito/internal/api/routes"
	"github.com/Arnonfr/urbanito/internal/api/tour"
)

// Config carries the handlers and middleware the router wires together.
type Config struct {
	TourHandler            tour.Handler
	RoutesHandler          routes.Handler
	DiscoveryHandler       discovery.Handler
	AuthenticateMiddleware func(http.Handler) http.Handler
	OptionalAuthMiddleware func(http.Handler) http.Handler
}

// SetupRouter configures the API router. Server-wide middleware (requestID,
// logging, recoverer) are applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// Discovery and route reads serve anonymous callers too; identity is
		// picked up when a valid token is present.
		r.Group(func(r chi.Router) {
			r.Use(cfg.OptionalAuthMiddleware)

			r.Get("/discovery/recent", cfg.DiscoveryHandler.RecentRoutesHandler)
			r.Get("/discovery/city", cfg.DiscoveryHandler.RoutesForCityHandler)
			r.Get("/routes/{routeID}", cfg.RoutesHandler.GetRouteHandler)
		})

		// Everything that mutates state or touches the open session requires
		// an authenticated caller.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/tours", cfg.TourHandler.GenerateTourHandler)
			r.Get("/tours", cfg.TourHandler.ListOpenToursHandler)
			r.Get("/tours/active", cfg.TourHandler.ActiveTourHandler)
			r.Post("/tours/{routeID}/activate", cfg.TourHandler.ActivateTourHandler)
			r.Delete("/tours/{routeID}", cfg.TourHandler.CloseTourHandler)
			r.Post("/tours/{routeID}/focus", cfg.TourHandler.FocusPOIHandler)
			r.Post("/tours/{routeID}/pois/{index}/enrich", cfg.TourHandler.EnrichPOIHandler)

			r.Post("/routes", cfg.RoutesHandler.SaveRouteHandler)
			r.Delete("/routes/{routeID}", cfg.RoutesHandler.DeleteRouteHandler)
			r.Post("/routes/{routeID}/fork", cfg.RoutesHandler.ForkRouteHandler)
			r.Post("/routes/{routeID}/library", cfg.RoutesHandler.SaveToLibraryHandler)
			r.Delete("/routes/{routeID}/library", cfg.RoutesHandler.RemoveFromLibraryHandler)
		})
	})

	return r
}
