package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/taskprovider/internal/notify"
	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/conduit-lang/taskprovider/internal/web/response"
)

// Registrar attaches observers to changes under an identifier
type Registrar interface {
	RegisterObserver(id uri.Identifier, o notify.Observer) func()
}

// Change is the data of a "change" event
type Change struct {
	URI    string `json:"uri"`
	Origin string `json:"origin,omitempty"`
}

// Config holds feed settings
type Config struct {
	// Root is watched when the request names no uri
	Root uri.Identifier

	// Heartbeat is the interval between keep-alive comments
	Heartbeat time.Duration

	// Buffer is the number of undelivered changes kept per client.
	// Changes beyond it are dropped.
	Buffer int

	// Retry is the reconnect delay suggested to clients, in milliseconds
	Retry int
}

// DefaultConfig returns feed settings watching root
func DefaultConfig(root uri.Identifier) Config {
	return Config{
		Root:      root,
		Heartbeat: 15 * time.Second,
		Buffer:    64,
		Retry:     3000,
	}
}

// Feed streams changes to HTTP clients. Each uri query parameter adds a
// subscription covering that identifier and its descendants. Overlapping
// subscriptions still yield one event per change.
type Feed struct {
	config    Config
	registrar Registrar
	logger    *zap.Logger
}

// NewFeed creates a feed observing changes through registrar
func NewFeed(config Config, registrar Registrar, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Buffer <= 0 {
		config.Buffer = 1
	}
	return &Feed{config: config, registrar: registrar, logger: logger}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	watch, err := f.watch(r)
	if err != nil {
		response.RenderBadRequest(w, err.Error())
		return
	}

	s, err := NewSSE(w)
	if err != nil {
		response.RenderInternalError(w, err)
		return
	}
	// The server write timeout would otherwise end the stream
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		f.logger.Debug("failed to clear write deadline", zap.Error(err))
	}

	changes := make(chan Change, f.config.Buffer)
	observer := notify.ObserverFunc(func(ctx context.Context, id uri.Identifier) error {
		select {
		case changes <- Change{URI: id.String(), Origin: notify.OriginFrom(ctx)}:
		default:
			f.logger.Warn("dropping change for slow event stream", zap.String("uri", id.String()))
		}
		return nil
	})
	for _, id := range watch {
		unregister := f.registrar.RegisterObserver(id, observer)
		defer unregister()
	}

	w.WriteHeader(http.StatusOK)
	if err := s.WriteEvent(Event{Name: "ready", Data: "{}", Retry: f.config.Retry}); err != nil {
		return
	}

	var heartbeat <-chan time.Time
	if f.config.Heartbeat > 0 {
		ticker := time.NewTicker(f.config.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat:
			if err := s.Comment("ping"); err != nil {
				return
			}
		case c := <-changes:
			data, err := json.Marshal(c)
			if err != nil {
				f.logger.Error("failed to encode change", zap.Error(err))
				continue
			}
			seq++
			if err := s.WriteEvent(Event{ID: strconv.FormatUint(seq, 10), Name: "change", Data: string(data)}); err != nil {
				f.logger.Debug("event stream closed", zap.Error(err))
				return
			}
		}
	}
}

func (f *Feed) watch(r *http.Request) ([]uri.Identifier, error) {
	var watch []uri.Identifier
	for _, raw := range r.URL.Query()["uri"] {
		id, err := uri.Parse(raw)
		if err != nil {
			return nil, err
		}
		watch = append(watch, id)
	}
	if len(watch) == 0 && !f.config.Root.IsZero() {
		watch = append(watch, f.config.Root)
	}
	return outermost(watch), nil
}

// outermost drops identifiers covered by another one in ids, so overlapping
// subscriptions deliver each change once
func outermost(ids []uri.Identifier) []uri.Identifier {
	var kept []uri.Identifier
	for _, id := range ids {
		covered := false
		for _, k := range kept {
			if k.Covers(id) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		next := kept[:0]
		for _, k := range kept {
			if !id.Covers(k) {
				next = append(next, k)
			}
		}
		kept = append(next, id)
	}
	return kept
}
