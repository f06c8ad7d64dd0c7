// Package notify delivers change notifications to observers registered on
// resource identifiers. Delivery is asynchronous: NotifyChange returns as soon
// as the work is queued and never waits for observers.
package notify

import (
	"context"
	"sort"
	"sync"

	"github.com/conduit-lang/taskprovider/internal/uri"
	"go.uber.org/zap"
)

// Observer is informed when a resource at or beneath its registration changes
type Observer interface {
	OnChange(ctx context.Context, id uri.Identifier) error
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, id uri.Identifier) error

// OnChange calls f
func (f ObserverFunc) OnChange(ctx context.Context, id uri.Identifier) error {
	return f(ctx, id)
}

// Notifier is the capability the dispatcher needs
type Notifier interface {
	NotifyChange(id uri.Identifier)
}

// Options configures a Resolver
type Options struct {
	// Workers is the delivery pool size
	Workers int
	// Buffer is the number of deliveries queued before overflow goroutines are used
	Buffer int
	// Logger records observer failures
	Logger *zap.Logger
}

// DefaultOptions returns the default resolver options
func DefaultOptions() Options {
	return Options{
		Workers: 4,
		Buffer:  100,
		Logger:  zap.NewNop(),
	}
}

type registration struct {
	seq      uint64
	id       uri.Identifier
	observer Observer
}

// Resolver keeps the observer registry and fans out change notifications
type Resolver struct {
	mu        sync.RWMutex
	observers map[uint64]*registration
	nextSeq   uint64

	queue  *queue
	logger *zap.Logger
}

// NewResolver creates a resolver and starts its delivery pool
func NewResolver(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	q := newQueue(opts.Workers, opts.Buffer, opts.Logger)
	q.start()

	return &Resolver{
		observers: make(map[uint64]*registration),
		queue:     q,
		logger:    opts.Logger,
	}
}

// RegisterObserver registers o for changes to id and anything beneath it.
// The returned function unregisters it.
func (r *Resolver) RegisterObserver(id uri.Identifier, o Observer) func() {
	r.mu.Lock()
	r.nextSeq++
	seq := r.nextSeq
	r.observers[seq] = &registration{seq: seq, id: id, observer: o}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, seq)
			r.mu.Unlock()
		})
	}
}

// ObserverCount returns the number of registered observers
func (r *Resolver) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// NotifyChange informs every observer registered on id or one of its ancestors
func (r *Resolver) NotifyChange(id uri.Identifier) {
	r.dispatch(id, "")
}

// NotifyRelayed is NotifyChange for a change that happened in another process.
// Observers can read origin with OriginFrom.
func (r *Resolver) NotifyRelayed(id uri.Identifier, origin string) {
	r.dispatch(id, origin)
}

func (r *Resolver) dispatch(id uri.Identifier, origin string) {
	targets := r.matching(id)

	for _, reg := range targets {
		observer := reg.observer
		changed := id
		accepted := r.queue.enqueue(task{
			name: reg.id.String(),
			fn: func(ctx context.Context) error {
				if origin != "" {
					ctx = WithOrigin(ctx, origin)
				}
				return observer.OnChange(ctx, changed)
			},
		})
		if !accepted {
			r.logger.Debug("notification dropped after shutdown", zap.String("uri", id.String()))
			return
		}
	}
}

// matching snapshots the observers covering id. The lock is released before
// any delivery is scheduled.
func (r *Resolver) matching(id uri.Identifier) []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*registration
	for _, reg := range r.observers {
		if reg.id.Covers(id) {
			out = append(out, reg)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Shutdown stops accepting notifications and waits for queued deliveries
func (r *Resolver) Shutdown() {
	r.queue.stopAccepting()
}

// Stop abandons queued deliveries
func (r *Resolver) Stop() {
	r.queue.stop()
}

type originKey struct{}

// WithOrigin tags ctx with the process a relayed change came from
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin of a relayed change, or "" for local changes
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
