package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.StripSlashes)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.hostValidationMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health and metrics (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		if s.multiple {
			r.Get("/", s.handleListThings)
			r.Route("/{thingIndex}", func(r chi.Router) {
				r.Use(s.thingByIndex)
				s.mountThingRoutes(r)
			})
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(s.withThing(s.things[0]))
			s.mountThingRoutes(r)
		})
	})

	return r
}

// mountThingRoutes registers the per-Thing resource tree on r.
func (s *Server) mountThingRoutes(r chi.Router) {
	r.Get("/", s.handleThing)

	r.Route("/properties", func(r chi.Router) {
		r.Get("/", s.handleGetProperties)
		r.Get("/{propertyName}", s.handleGetProperty)
		r.Put("/{propertyName}", s.handleSetProperty)
	})

	r.Route("/actions", func(r chi.Router) {
		r.Get("/", s.handleListActions)
		r.Post("/", s.handleRequestAction)
		r.Get("/{actionName}", s.handleListActions)
		r.Post("/{actionName}", s.handleRequestAction)
		r.Get("/{actionName}/{actionID}", s.handleGetAction)
		r.Delete("/{actionName}/{actionID}", s.handleCancelAction)
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Get("/{eventName}", s.handleListEvents)
	})
}

// withThing pins every request to one Thing (single mode).
func (s *Server) withThing(t *thing.Thing) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ctxKeyThing, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// thingByIndex resolves /{thingIndex} (multiple mode); unknown indexes are 404.
func (s *Server) thingByIndex(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(chi.URLParam(r, "thingIndex"))
		if err != nil || idx < 0 || idx >= len(s.things) {
			writeNotFound(w, "thing not found")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyThing, s.things[idx])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// thingFrom returns the Thing resolved by withThing or thingByIndex.
func thingFrom(ctx context.Context) *thing.Thing {
	t, _ := ctx.Value(ctxKeyThing).(*thing.Thing) //nolint:errcheck // always set by routing middleware
	return t
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"things":  len(s.things),
	})
}
