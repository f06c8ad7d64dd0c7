package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*Router, *provider.Provider) {
	t.Helper()

	p, err := provider.New(provider.Options{
		Authority: contract.Authority,
		Opener: func(ctx context.Context) (provider.Store, error) {
			return store.Open(ctx, store.Config{Driver: store.DriverSQLite, URL: ":memory:"})
		},
	})
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { p.Close() })

	r := NewRouter()
	NewHandlers(p).Register(r, nil)
	return r, p
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestCreate(t *testing.T) {
	r, _ := setupRouter(t)

	rec, body := do(t, r, http.MethodPost, "/tasks", `{"description":"buy milk","priority":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/tasks/1", rec.Header().Get("Location"))
	assert.Equal(t, contract.Authority+"/tasks/1", body["uri"])
	assert.Equal(t, float64(1), body["id"])
}

func TestCreateErrors(t *testing.T) {
	r, _ := setupRouter(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"item identifier", "/tasks/3", `{"description":"x","priority":1}`, http.StatusNotFound, "unrecognized_identifier"},
		{"unknown collection", "/unknown", `{"description":"x","priority":1}`, http.StatusNotFound, "unrecognized_identifier"},
		{"empty body", "/tasks", ``, http.StatusBadRequest, "bad_request"},
		{"malformed body", "/tasks", `{"description":`, http.StatusBadRequest, "bad_request"},
		{"nested value", "/tasks", `{"description":{"a":1}}`, http.StatusBadRequest, "bad_request"},
		{"missing column", "/tasks", `{"description":"no priority"}`, http.StatusConflict, "constraint_violation"},
		{"unknown column", "/tasks", `{"title":"x"}`, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, r, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestBulkCreate(t *testing.T) {
	r, _ := setupRouter(t)

	rec, body := do(t, r, http.MethodPost, "/tasks", `[{"description":"a","priority":1},{"description":"b","priority":2}]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), body["inserted"])

	rec, _ = do(t, r, http.MethodPost, "/tasks", `[{"description":"c","priority":1},{"description":"d"}]`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, body = do(t, r, http.MethodGet, "/tasks", "")
	assert.Len(t, body["data"], 2)
}

func TestRead(t *testing.T) {
	r, _ := setupRouter(t)
	do(t, r, http.MethodPost, "/tasks", `[{"description":"a","priority":2},{"description":"b","priority":1},{"description":"c","priority":1}]`)

	rec, body := do(t, r, http.MethodGet, "/tasks?sort=description&order=desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 3)
	assert.Equal(t, "c", data[0].(map[string]interface{})["description"])

	_, body = do(t, r, http.MethodGet, "/tasks?priority=1&projection=description&limit=1", "")
	data = body["data"].([]interface{})
	require.Len(t, data, 1)
	row := data[0].(map[string]interface{})
	assert.Len(t, row, 1)
	assert.Contains(t, []interface{}{"b", "c"}, row["description"])

	rec, body = do(t, r, http.MethodGet, "/tasks/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", body["data"].([]interface{})[0].(map[string]interface{})["description"])

	rec, _ = do(t, r, http.MethodGet, "/tasks/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/tasks?order=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/tasks?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, http.MethodGet, "/tasks?sort=title", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["code"])

	rec, _ = do(t, r, http.MethodGet, "/tasks/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdate(t *testing.T) {
	r, _ := setupRouter(t)
	do(t, r, http.MethodPost, "/tasks", `[{"description":"a","priority":1},{"description":"b","priority":1}]`)

	rec, body := do(t, r, http.MethodPut, "/tasks/1", `{"priority":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), body["updated"])

	rec, body = do(t, r, http.MethodPatch, "/tasks?priority=1", `{"description":"z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["updated"])

	rec, _ = do(t, r, http.MethodPut, "/tasks", `[{"priority":1}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, r, http.MethodPut, "/tasks/1", `{"_id":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["code"])
}

func TestDelete(t *testing.T) {
	r, _ := setupRouter(t)
	do(t, r, http.MethodPost, "/tasks", `[{"description":"a","priority":1},{"description":"b","priority":2}]`)

	rec, body := do(t, r, http.MethodDelete, "/tasks/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["deleted"])

	_, body = do(t, r, http.MethodDelete, "/tasks/2", "")
	assert.Equal(t, float64(0), body["deleted"])

	_, body = do(t, r, http.MethodDelete, "/tasks", "")
	assert.Equal(t, float64(1), body["deleted"])
}

func TestType(t *testing.T) {
	r, _ := setupRouter(t)

	_, body := do(t, r, http.MethodGet, "/_type/tasks", "")
	assert.Equal(t, "vnd."+contract.Authority+".dir/tasks", body["type"])

	_, body = do(t, r, http.MethodGet, "/_type/tasks/4", "")
	assert.Equal(t, "vnd."+contract.Authority+".item/tasks", body["type"])

	rec, _ := do(t, r, http.MethodGet, "/_type/notes", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	r, p := setupRouter(t)

	rec, body := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, p.Close())

	rec, _ = do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body = do(t, r, http.MethodPost, "/tasks", `{"description":"x","priority":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_initialized", body["code"])
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	rec, body := do(t, r, http.MethodOptions, "/tasks", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", body["code"])

	rec, _ = do(t, r, http.MethodGet, "/tasks/1/extra", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes(t *testing.T) {
	r, _ := setupRouter(t)

	var found bool
	for _, route := range r.Routes() {
		if route.Method == http.MethodPost && route.Pattern == "/{collection}" {
			found = true
			assert.Equal(t, "insert", route.Name)
		}
	}
	assert.True(t, found)
}
