package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// CollectionPrefix is the key prefix shared by every cached read of a
// collection
func CollectionPrefix(collection string) string {
	return "reads:" + collection + ":"
}

// RequestKey returns the cache key of a read. Query parameters are sorted so
// equivalent requests share an entry.
func RequestKey(collection string, r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.URL.Path)

	query := r.URL.Query()
	if len(query) > 0 {
		names := make([]string, 0, len(query))
		for name := range query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), query[name]...)
			sort.Strings(values)
			for _, v := range values {
				b.WriteString("&")
				b.WriteString(url.QueryEscape(name))
				b.WriteString("=")
				b.WriteString(url.QueryEscape(v))
			}
		}
	}

	hash := sha256.Sum256([]byte(b.String()))
	return CollectionPrefix(collection) + hex.EncodeToString(hash[:16])
}

// collectionOf returns the first path segment, or "" for paths the read cache
// does not serve
func collectionOf(path string) string {
	path = strings.TrimPrefix(path, "/")
	collection, _, _ := strings.Cut(path, "/")
	if collection == "" || strings.HasPrefix(collection, "_") {
		return ""
	}
	return collection
}
