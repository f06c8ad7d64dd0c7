// Package router exposes the provider over HTTP using chi. Collections are
// addressed as /{collection} and items as /{collection}/{key}; each request is
// turned into an identifier under the configured authority and dispatched.
package router

import (
	"net/http"

	"github.com/conduit-lang/taskprovider/internal/web/response"
	"github.com/go-chi/chi/v5"
)

// Router wraps a chi mux and records what was registered
type Router struct {
	mux    chi.Router
	routes []RouteInfo
}

// RouteInfo describes a registered route
type RouteInfo struct {
	Method  string
	Pattern string
	Name    string
}

// NewRouter creates a router with JSON 404 and 405 handlers
func NewRouter() *Router {
	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	return &Router{mux: mux}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handle registers handler for method and pattern under name
func (r *Router) Handle(method, pattern, name string, handler http.Handler) {
	r.mux.Method(method, pattern, handler)
	r.routes = append(r.routes, RouteInfo{Method: method, Pattern: pattern, Name: name})
}

// Routes returns the registered routes in registration order
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(r.routes))
	copy(out, r.routes)
	return out
}
