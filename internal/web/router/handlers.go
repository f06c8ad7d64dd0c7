package router

import (
	"context"
	"net/http"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/conduit-lang/taskprovider/internal/web/response"
)

// Dispatcher is the provider surface the HTTP handlers need
type Dispatcher interface {
	Authority() string
	Insert(ctx context.Context, id uri.Identifier, values contract.Values) (uri.Identifier, error)
	BulkInsert(ctx context.Context, id uri.Identifier, rows []contract.Values) (int, error)
	Query(ctx context.Context, id uri.Identifier, sel contract.Selection) ([]contract.Row, error)
	Update(ctx context.Context, id uri.Identifier, values contract.Values, sel contract.Selection) (int64, error)
	Delete(ctx context.Context, id uri.Identifier, sel contract.Selection) (int64, error)
	GetType(id uri.Identifier) (string, error)
	Ping(ctx context.Context) error
}

// Handlers serves dispatcher operations over HTTP
type Handlers struct {
	dispatcher Dispatcher
}

// NewHandlers creates handlers for d
func NewHandlers(d Dispatcher) *Handlers {
	return &Handlers{dispatcher: d}
}

// Register mounts every route on r. changes serves the websocket change
// stream and may be nil.
func (h *Handlers) Register(r *Router, changes http.Handler) {
	r.Handle(http.MethodGet, "/healthz", "health", http.HandlerFunc(h.Health))
	if changes != nil {
		r.Handle(http.MethodGet, "/changes", "changes", changes)
	}

	r.Handle(http.MethodGet, "/_type/{collection}", "type", http.HandlerFunc(h.Type))
	r.Handle(http.MethodGet, "/_type/{collection}/{key}", "type", http.HandlerFunc(h.Type))

	for _, pattern := range []string{"/{collection}", "/{collection}/{key}"} {
		r.Handle(http.MethodPost, pattern, "insert", http.HandlerFunc(h.Create))
		r.Handle(http.MethodGet, pattern, "query", http.HandlerFunc(h.Read))
		r.Handle(http.MethodPut, pattern, "update", http.HandlerFunc(h.Update))
		r.Handle(http.MethodPatch, pattern, "update", http.HandlerFunc(h.Update))
		r.Handle(http.MethodDelete, pattern, "delete", http.HandlerFunc(h.Delete))
	}
}

// identifier builds the identifier addressed by the request path
func (h *Handlers) identifier(r *http.Request) uri.Identifier {
	params := NewParamExtractor(r)
	segments := []string{params.PathParam("collection")}
	if key := params.PathParam("key"); key != "" {
		segments = append(segments, key)
	}
	return uri.New(h.dispatcher.Authority(), segments...)
}

// Create inserts one row from a JSON object or many from a JSON array
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	id := h.identifier(r)

	values, rows, err := decodeBody(r)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	if rows != nil {
		n, err := h.dispatcher.BulkInsert(r.Context(), id, rows)
		if err != nil {
			response.RenderDispatchError(w, err)
			return
		}
		response.JSON(w, http.StatusCreated, map[string]int{"inserted": n})
		return
	}

	created, err := h.dispatcher.Insert(r.Context(), id, values)
	if err != nil {
		response.RenderDispatchError(w, err)
		return
	}

	key, _ := created.Key()
	w.Header().Set("Location", "/"+created.Path())
	response.JSON(w, http.StatusCreated, map[string]interface{}{
		"uri": created.String(),
		"id":  key,
	})
}

// Read returns the addressed rows. An item that does not exist is a 404.
func (h *Handlers) Read(w http.ResponseWriter, r *http.Request) {
	id := h.identifier(r)

	sel, err := NewParamExtractor(r).Selection()
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	rows, err := h.dispatcher.Query(r.Context(), id, sel)
	if err != nil {
		response.RenderDispatchError(w, err)
		return
	}

	if _, isItem := id.Key(); isItem && len(id.Segments) == 2 && len(rows) == 0 {
		response.RenderNotFound(w, "no row at "+id.String())
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

// Update applies a JSON object to the addressed rows
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	id := h.identifier(r)

	sel, err := NewParamExtractor(r).Selection()
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	values, rows, err := decodeBody(r)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}
	if rows != nil {
		response.RenderBadRequest(w, "update expects a JSON object")
		return
	}

	n, err := h.dispatcher.Update(r.Context(), id, values, sel)
	if err != nil {
		response.RenderDispatchError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete removes the addressed rows
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := h.identifier(r)

	sel, err := NewParamExtractor(r).Selection()
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	n, err := h.dispatcher.Delete(r.Context(), id, sel)
	if err != nil {
		response.RenderDispatchError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Type returns the content type of the addressed resource
func (h *Handlers) Type(w http.ResponseWriter, r *http.Request) {
	t, err := h.dispatcher.GetType(h.identifier(r))
	if err != nil {
		response.RenderDispatchError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"type": t})
}

// Health reports 200 when the store answers and 503 otherwise
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Ping(r.Context()); err != nil {
		response.RenderServiceUnavailable(w, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
