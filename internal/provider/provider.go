// Package provider routes resource identifiers to backing store operations and
// announces successful mutations to a change notifier.
//
// A Provider is built once with New, which fixes its routing table, and becomes
// usable after Initialize acquires the store. Every dispatch classifies the
// identifier first, so an identifier the table does not accept is rejected
// before the store is touched.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/notify"
	"github.com/conduit-lang/taskprovider/internal/uri"
)

// Store is the backing store capability every provider needs
type Store interface {
	Insert(ctx context.Context, table string, values contract.Values) (int64, error)
	Close() error
}

// Querier is implemented by stores that can serve reads
type Querier interface {
	Query(ctx context.Context, table string, sel contract.Selection) ([]contract.Row, error)
}

// Updater is implemented by stores that can serve updates
type Updater interface {
	Update(ctx context.Context, table string, values contract.Values, sel contract.Selection) (int64, error)
}

// Deleter is implemented by stores that can serve deletes
type Deleter interface {
	Delete(ctx context.Context, table string, sel contract.Selection) (int64, error)
}

// BulkInserter is implemented by stores that insert many rows atomically
type BulkInserter interface {
	BulkInsert(ctx context.Context, table string, rows []contract.Values) (int, error)
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreOpener acquires the backing store handle
type StoreOpener func(ctx context.Context) (Store, error)

// Collection binds a collection path segment to a store table
type Collection struct {
	Path  string
	Table string
}

// Options configures a Provider
type Options struct {
	// Authority namespaces every identifier the provider accepts
	Authority string
	// Collections in routing order. Defaults to the task collection.
	Collections []Collection
	// Opener acquires the store during Initialize
	Opener StoreOpener
	// Notifier receives changes. Nil discards them.
	Notifier notify.Notifier
}

// MatchKind is the shape of a classified identifier
type MatchKind int

const (
	// KindNone means the identifier matched no route
	KindNone MatchKind = iota
	// KindCollection addresses a whole collection
	KindCollection
	// KindItem addresses a single row by key
	KindItem
)

func (k MatchKind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindItem:
		return "item"
	default:
		return "none"
	}
}

type route struct {
	kind       MatchKind
	collection Collection
}

type handle struct {
	store Store
}

// Provider dispatches identifier-addressed operations to a store
type Provider struct {
	authority   string
	collections []Collection
	matcher     *uri.Matcher
	routes      map[int]route
	opener      StoreOpener
	notifier    notify.Notifier

	mu      sync.Mutex
	current atomic.Pointer[handle]
}

type discard struct{}

func (discard) NotifyChange(uri.Identifier) {}

// DefaultCollections returns the task collection
func DefaultCollections() []Collection {
	return []Collection{{Path: contract.PathTasks, Table: contract.TaskEntry.TableName}}
}

// New builds a provider and its routing table. Collection i is routed with
// code 100*(i+1) and its items with the next integer.
func New(opts Options) (*Provider, error) {
	if opts.Authority == "" {
		return nil, fmt.Errorf("provider requires an authority")
	}
	if opts.Opener == nil {
		return nil, fmt.Errorf("provider requires a store opener")
	}
	if len(opts.Collections) == 0 {
		opts.Collections = DefaultCollections()
	}
	if opts.Notifier == nil {
		opts.Notifier = discard{}
	}

	p := &Provider{
		authority: opts.Authority,
		routes:    make(map[int]route),
		opener:    opts.Opener,
		notifier:  opts.Notifier,
	}

	var entries []uri.Entry
	for i, c := range opts.Collections {
		if err := validateCollection(c); err != nil {
			return nil, err
		}
		if c.Table == "" {
			c.Table = c.Path
		}

		code := 100 * (i + 1)
		entries = append(entries,
			uri.Entry{Authority: opts.Authority, Path: c.Path, Code: code},
			uri.Entry{Authority: opts.Authority, Path: c.Path + "/" + uri.NumberWildcard, Code: code + 1},
		)
		p.routes[code] = route{kind: KindCollection, collection: c}
		p.routes[code+1] = route{kind: KindItem, collection: c}
		p.collections = append(p.collections, c)
	}

	matcher, err := uri.NewMatcher(entries...)
	if err != nil {
		return nil, fmt.Errorf("failed to build routing table: %w", err)
	}
	p.matcher = matcher

	return p, nil
}

func validateCollection(c Collection) error {
	switch {
	case c.Path == "":
		return fmt.Errorf("collection path is empty")
	case strings.Contains(c.Path, "/"):
		return fmt.Errorf("collection path %q must be a single segment", c.Path)
	case c.Path == uri.NumberWildcard || c.Path == uri.TextWildcard:
		return fmt.Errorf("collection path %q is a wildcard", c.Path)
	}
	return nil
}

// Authority returns the namespace the provider serves
func (p *Provider) Authority() string {
	return p.authority
}

// Collections returns the routed collections in routing order
func (p *Provider) Collections() []Collection {
	out := make([]Collection, len(p.collections))
	copy(out, p.collections)
	return out
}

// CollectionURI returns the canonical identifier of a collection
func (p *Provider) CollectionURI(path string) uri.Identifier {
	return uri.New(p.authority, path)
}

// Classify returns the shape of id and its match code
func (p *Provider) Classify(id uri.Identifier) (MatchKind, int) {
	code := p.matcher.Match(id)
	r, ok := p.routes[code]
	if !ok {
		return KindNone, uri.NoMatch
	}
	return r.kind, code
}

// Initialize acquires the backing store. It is a no-op once the provider is
// ready. A failed attempt leaves the provider uninitialized and may be retried.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Load() != nil {
		return nil
	}

	s, err := p.opener(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}
	if s == nil {
		return fmt.Errorf("failed to initialize provider: opener returned no store")
	}

	p.current.Store(&handle{store: s})
	return nil
}

// Ready reports whether Initialize has succeeded and Close has not been called
func (p *Provider) Ready() bool {
	return p.current.Load() != nil
}

// Ping checks the store when it supports health checks
func (p *Provider) Ping(ctx context.Context) error {
	h := p.current.Load()
	if h == nil {
		return ErrNotInitialized
	}
	if pinger, ok := h.store.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close releases the store. Dispatch afterwards fails with ErrNotInitialized.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.current.Swap(nil)
	if h == nil {
		return nil
	}
	return h.store.Close()
}

// storeFor returns the active store or ErrNotInitialized
func (p *Provider) storeFor(op string) (Store, error) {
	h := p.current.Load()
	if h == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}
	return h.store, nil
}
