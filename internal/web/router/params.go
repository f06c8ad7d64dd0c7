package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/go-chi/chi/v5"
)

// Query parameters with a fixed meaning. Every other parameter is an
// equality filter on the column of the same name.
const (
	paramProjection = "projection"
	paramSort       = "sort"
	paramOrder      = "order"
	paramLimit      = "limit"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errEmptyBody        = errors.New("request body is empty")
)

// ParamExtractor reads path and query parameters from a request
type ParamExtractor struct {
	req *http.Request
}

// NewParamExtractor creates an extractor for req
func NewParamExtractor(req *http.Request) *ParamExtractor {
	return &ParamExtractor{req: req}
}

// PathParam returns a chi path parameter
func (p *ParamExtractor) PathParam(name string) string {
	return chi.URLParam(p.req, name)
}

// Selection builds a selection from the query string:
// ?projection=a,b&sort=col&order=desc&limit=n&col=value
func (p *ParamExtractor) Selection() (contract.Selection, error) {
	var sel contract.Selection
	query := p.req.URL.Query()

	if raw := query.Get(paramProjection); raw != "" {
		for _, col := range strings.Split(raw, ",") {
			if col = strings.TrimSpace(col); col != "" {
				sel.Columns = append(sel.Columns, col)
			}
		}
	}

	sel.OrderBy = query.Get(paramSort)
	switch order := strings.ToLower(query.Get(paramOrder)); order {
	case "", "asc":
	case "desc":
		sel.Descending = true
	default:
		return contract.Selection{}, fmt.Errorf("invalid order %q: want asc or desc", order)
	}

	if raw := query.Get(paramLimit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return contract.Selection{}, fmt.Errorf("invalid limit %q", raw)
		}
		sel.Limit = limit
	}

	for _, col := range sortedKeys(query) {
		switch col {
		case paramProjection, paramSort, paramOrder, paramLimit:
			continue
		}
		sel = sel.WithCondition(col, scalar(query.Get(col)))
	}

	return sel, nil
}

func sortedKeys(values map[string][]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalar turns an integer-looking filter into an int64 so it compares
// against integer columns on every dialect
func scalar(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

// decodeBody reads a JSON object or array of objects. Exactly one of the
// returned values is set.
func decodeBody(r *http.Request) (contract.Values, []contract.Values, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, errEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var raw []map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		rows := make([]contract.Values, len(raw))
		for i, obj := range raw {
			values, err := toValues(obj)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i, err)
			}
			rows[i] = values
		}
		return nil, rows, nil
	}

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	values, err := toValues(obj)
	if err != nil {
		return nil, nil, err
	}
	return values, nil, nil
}

// toValues converts decoded JSON into scalar column values
func toValues(obj map[string]interface{}) (contract.Values, error) {
	values := make(contract.Values, len(obj))
	for col, v := range obj {
		switch val := v.(type) {
		case json.Number:
			if n, err := val.Int64(); err == nil {
				values[col] = n
			} else if f, err := val.Float64(); err == nil {
				values[col] = f
			} else {
				return nil, fmt.Errorf("column %q: invalid number %s", col, val)
			}
		case string, bool, nil:
			values[col] = val
		default:
			return nil, fmt.Errorf("column %q: nested values are not supported", col)
		}
	}
	return values, nil
}
