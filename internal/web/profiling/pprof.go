// Package profiling mounts the runtime pprof endpoints. They expose stacks and
// memory contents, so the serve command only mounts them when server.pprof is
// set, behind the same middleware as every other route.
package profiling

import (
	"net/http"
	"net/http/pprof"

	"github.com/conduit-lang/taskprovider/internal/web/router"
)

// Path is the prefix every endpoint is mounted under
const Path = "/debug/pprof"

// Register mounts the pprof endpoints on r
func Register(r *router.Router) {
	get := func(pattern string, h http.Handler) {
		r.Handle(http.MethodGet, Path+pattern, "pprof", h)
	}

	get("/", http.HandlerFunc(pprof.Index))
	get("/cmdline", http.HandlerFunc(pprof.Cmdline))
	get("/profile", http.HandlerFunc(pprof.Profile))
	get("/symbol", http.HandlerFunc(pprof.Symbol))
	r.Handle(http.MethodPost, Path+"/symbol", "pprof", http.HandlerFunc(pprof.Symbol))
	get("/trace", http.HandlerFunc(pprof.Trace))

	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		get("/"+name, pprof.Handler(name))
	}
}
