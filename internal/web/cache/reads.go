package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/taskprovider/internal/uri"
)

// CacheHeader reports HIT or MISS on cacheable reads
const CacheHeader = "X-Cache"

// entry is a stored read response
type entry struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	ETag        string `json:"etag"`
}

// ReadCache serves repeated collection reads from a Cache. Writes through the
// wrapped handler and change notifications drop the affected collection.
type ReadCache struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewReadCache creates a read cache storing entries for ttl
func NewReadCache(c Cache, ttl time.Duration, logger *zap.Logger) *ReadCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadCache{
		cache:       c,
		ttl:         ttl,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

func (rc *ReadCache) generation(collection string) uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.generations[collection]
}

// Invalidate drops every cached read of collection. Reads in flight when it
// runs are not stored.
func (rc *ReadCache) Invalidate(ctx context.Context, collection string) error {
	rc.mu.Lock()
	rc.generations[collection]++
	rc.mu.Unlock()

	return rc.cache.DeletePrefix(ctx, CollectionPrefix(collection))
}

// OnChange drops the reads of the changed collection. It makes the cache a
// change observer.
func (rc *ReadCache) OnChange(ctx context.Context, id uri.Identifier) error {
	collection := id.Collection()
	if collection == "" {
		return nil
	}
	return rc.Invalidate(ctx, collection)
}

// Middleware caches successful GET responses under /{collection} and
// invalidates the collection after successful writes. Paths whose first
// segment starts with "_", websocket upgrades and anything under skipPaths
// pass through.
func (rc *ReadCache) Middleware(skipPaths ...string) func(http.Handler) http.Handler {
	skip := func(path string) bool {
		for _, p := range skipPaths {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			collection := collectionOf(r.URL.Path)
			if collection == "" || skip(r.URL.Path) || r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			switch r.Method {
			case http.MethodGet:
				rc.serveRead(w, r, next, collection)
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				rec := &recorder{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(rec, r)
				if rec.status >= 200 && rec.status < 300 {
					if err := rc.Invalidate(r.Context(), collection); err != nil {
						rc.logger.Warn("cache invalidation failed", zap.String("collection", collection), zap.Error(err))
					}
				}
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (rc *ReadCache) serveRead(w http.ResponseWriter, r *http.Request, next http.Handler, collection string) {
	ctx := r.Context()
	key := RequestKey(collection, r)

	data, err := rc.cache.Get(ctx, key)
	if err == nil {
		var e entry
		if err := json.Unmarshal(data, &e); err == nil {
			w.Header().Set(CacheHeader, "HIT")
			if notModified(w, r, e.ETag) {
				return
			}
			w.Header().Set("Content-Type", e.ContentType)
			w.Header().Set("ETag", e.ETag)
			w.WriteHeader(http.StatusOK)
			w.Write(e.Body)
			return
		}
	} else if !IsMiss(err) {
		rc.logger.Warn("cache read failed", zap.Error(err))
	}

	gen := rc.generation(collection)

	rec := &recorder{ResponseWriter: w, status: http.StatusOK, capture: true}
	w.Header().Set(CacheHeader, "MISS")
	next.ServeHTTP(rec, r)

	if rec.status != http.StatusOK || rc.generation(collection) != gen {
		return
	}

	e := entry{
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		ETag:        ETag(rec.body.Bytes()),
	}
	encoded, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := rc.cache.Set(ctx, key, encoded, rc.ttl); err != nil {
		rc.logger.Warn("cache write failed", zap.Error(err))
		return
	}

	// An invalidation that ran while Set was in flight found nothing to drop
	if rc.generation(collection) != gen {
		if err := rc.cache.Delete(ctx, key); err != nil {
			rc.logger.Warn("cache delete failed", zap.String("collection", collection), zap.Error(err))
		}
	}
}

// recorder captures the status and, when capture is set, the body of a
// response while passing both through
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	capture     bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.capture {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}
