package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"product-catalog/internal/catalog"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultPageSize = 12

	defaultPriceMin = 0
	defaultPriceMax = 100000

	flushTimeout    = 5 * time.Second
	flushRetryDelay = time.Second
)

type Store interface {
	Load(ctx context.Context) (catalog.StateSnapshot, error)
	Save(ctx context.Context, snap catalog.StateSnapshot) error
}

type Publisher interface {
	Publish(ctx context.Context, event catalog.ProductEvent) error
}

// Metrics groups the counters the engine increments. All fields must be set;
// use prometheus.NewCounter in tests.
type Metrics struct {
	Created       prometheus.Counter
	Updated       prometheus.Counter
	Deleted       prometheus.Counter
	FlushFailures prometheus.Counter
}

type viewState struct {
	search        string
	category      string
	priceMin      float64
	priceMax      float64
	favoritesOnly bool
	page          int
	pageSize      int
}

type flushWaiter struct {
	seq uint64
	ch  chan error
}

// Engine owns the in-memory product collection and is the single writer of
// the durable state blob. Mutators apply synchronously under the lock and
// only mark the state dirty; a background writer flushes the latest complete
// snapshot, so overlapping mutations can never checkpoint a stale blob.
type Engine struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   Metrics

	mu               sync.RWMutex
	products         []catalog.Product
	favorites        map[int64]struct{}
	hasLoadedFromAPI bool
	view             viewState

	seq        uint64
	flushedSeq uint64
	waiters    []flushWaiter

	dirty     chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(st Store, pub Publisher, logger *slog.Logger, metrics Metrics, pageSize int) *Engine {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	e := &Engine{
		store:     st,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
		favorites: make(map[int64]struct{}),
		view: viewState{
			priceMin: defaultPriceMin,
			priceMax: defaultPriceMax,
			page:     1,
			pageSize: pageSize,
		},
		dirty:  make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go e.run()
	return e
}

// Hydrate loads the persisted snapshot into memory. It runs once at startup,
// before any mutator; an absent or unreadable blob leaves the engine empty.
func (e *Engine) Hydrate(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrNoState) {
			return nil
		}
		if errors.Is(err, catalog.ErrCorruptState) {
			e.logger.Warn("persisted state unreadable, starting empty", "error", err)
			return nil
		}
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.products = append([]catalog.Product(nil), snap.Products...)
	e.favorites = make(map[int64]struct{}, len(snap.Favorites))
	for _, id := range snap.Favorites {
		e.favorites[id] = struct{}{}
	}
	e.hasLoadedFromAPI = snap.HasLoadedFromAPI
	e.flushedSeq = e.seq

	return nil
}

// IngestRemote merges a freshly fetched remote product list into the
// collection. Existing entries win: a remote product whose ID is already
// present is ignored, so local creations and edits survive any re-fetch.
// An empty collection adopts the remote list verbatim. Returns the number
// of products added.
func (e *Engine) IngestRemote(remote []catalog.Product) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	if len(e.products) > 0 {
		existing := make(map[int64]struct{}, len(e.products))
		for _, p := range e.products {
			existing[p.ID] = struct{}{}
		}
		for _, p := range remote {
			if _, ok := existing[p.ID]; ok {
				continue
			}
			e.products = append(e.products, p)
			existing[p.ID] = struct{}{}
			added++
		}
	} else if len(remote) > 0 {
		e.products = append([]catalog.Product(nil), remote...)
		added = len(remote)
	}

	e.hasLoadedFromAPI = true
	e.markDirtyLocked()

	return added
}

// NeedsRemoteSync reports whether the initial remote reconciliation is still
// pending: nothing resident and no previous session has loaded the remote
// catalog.
func (e *Engine) NeedsRemoteSync() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.products) == 0 && !e.hasLoadedFromAPI
}

// Create inserts a new product at the front of the collection with a fresh
// local ID and a zero rating, and resets the view filters so the product is
// visible on the first page.
func (e *Engine) Create(ctx context.Context, fields catalog.ProductFields) catalog.Product {
	e.mu.Lock()

	wasEmpty := len(e.products) == 0
	p := catalog.Product{
		ID:          e.nextIDLocked(),
		Title:       fields.Title,
		Price:       fields.Price,
		Description: fields.Description,
		Category:    fields.Category,
		Image:       fields.Image,
		Rating:      catalog.Rating{},
	}
	e.products = append([]catalog.Product{p}, e.products...)

	e.view.page = 1
	e.view.search = ""
	e.view.category = ""
	e.view.favoritesOnly = false
	if fields.Price < e.view.priceMin {
		e.view.priceMin = fields.Price
	}
	if fields.Price > e.view.priceMax {
		e.view.priceMax = fields.Price
	}

	// A product created into an empty collection must not suppress the
	// initial remote load of the next session.
	if wasEmpty {
		e.hasLoadedFromAPI = false
	}

	e.markDirtyLocked()
	e.mu.Unlock()

	e.metrics.Created.Inc()
	e.publish(ctx, catalog.ProductEvent{
		EventType: catalog.EventCreated,
		ProductID: p.ID,
		Title:     p.Title,
		Timestamp: time.Now().UTC(),
	})

	return p
}

// Update overwrites the supplied fields of the product with the given ID.
// ID and rating are immutable. Returns false when the ID is absent.
func (e *Engine) Update(ctx context.Context, id int64, patch catalog.ProductPatch) bool {
	e.mu.Lock()

	idx := -1
	for i := range e.products {
		if e.products[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false
	}

	p := &e.products[idx]
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	title := p.Title

	e.markDirtyLocked()
	e.mu.Unlock()

	e.metrics.Updated.Inc()
	e.publish(ctx, catalog.ProductEvent{
		EventType: catalog.EventUpdated,
		ProductID: id,
		Title:     title,
		Timestamp: time.Now().UTC(),
	})

	return true
}

// Delete removes the product and prunes it from the favorites set.
// Returns false when the ID is absent.
func (e *Engine) Delete(ctx context.Context, id int64) bool {
	e.mu.Lock()

	idx := -1
	for i := range e.products {
		if e.products[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false
	}

	e.products = append(e.products[:idx], e.products[idx+1:]...)
	delete(e.favorites, id)

	e.markDirtyLocked()
	e.mu.Unlock()

	e.metrics.Deleted.Inc()
	e.publish(ctx, catalog.ProductEvent{
		EventType: catalog.EventDeleted,
		ProductID: id,
		Timestamp: time.Now().UTC(),
	})

	return true
}

// ToggleFavorite flips membership of the ID in the favorites set and reports
// the new membership. The ID is not checked against the collection: a
// favorite may reference a not-yet-loaded product.
func (e *Engine) ToggleFavorite(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.favorites[id]; ok {
		delete(e.favorites, id)
		e.markDirtyLocked()
		return false
	}
	e.favorites[id] = struct{}{}
	e.markDirtyLocked()
	return true
}

// Get returns the product with the given ID from the in-memory collection.
func (e *Engine) Get(id int64) (catalog.Product, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range e.products {
		if p.ID == id {
			return p, true
		}
	}
	return catalog.Product{}, false
}

// Products returns a copy of the full ordered collection.
func (e *Engine) Products() []catalog.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]catalog.Product(nil), e.products...)
}

// Favorites returns the favorite IDs in ascending order.
func (e *Engine) Favorites() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.favoriteIDsLocked()
}

func (e *Engine) HasLoadedFromAPI() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasLoadedFromAPI
}

// nextIDLocked allocates the next local product ID: one past the current
// maximum, but never below the local band even when every resident ID is
// remote-origin.
func (e *Engine) nextIDLocked() int64 {
	if len(e.products) == 0 {
		return catalog.LocalIDFloor
	}
	maxID := catalog.LocalIDFloor - 1
	for _, p := range e.products {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	return maxID + 1
}

func (e *Engine) publish(ctx context.Context, event catalog.ProductEvent) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("publish catalog event failed",
			"event_type", event.EventType,
			"product_id", event.ProductID,
			"error", err,
		)
	}
}

func (e *Engine) favoriteIDsLocked() []int64 {
	ids := make([]int64, 0, len(e.favorites))
	for id := range e.favorites {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *Engine) snapshotLocked() (catalog.StateSnapshot, uint64) {
	return catalog.StateSnapshot{
		Products:         append([]catalog.Product(nil), e.products...),
		Favorites:        e.favoriteIDsLocked(),
		HasLoadedFromAPI: e.hasLoadedFromAPI,
	}, e.seq
}

func (e *Engine) markDirtyLocked() {
	e.seq++
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// Sync blocks until every mutation sequenced before the call has been
// written to the durable store, or the context expires. A write failure is
// returned as a soft error; the in-memory state is never rolled back.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.seq == e.flushedSeq {
		e.mu.Unlock()
		return nil
	}
	w := flushWaiter{seq: e.seq, ch: make(chan error, 1)}
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close performs a final flush and stops the background writer.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() { close(e.stopCh) })
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case <-e.stopCh:
			e.flush()
			return
		case <-e.dirty:
			if err := e.flush(); err != nil {
				// Retry later so every mutation is eventually flushed.
				select {
				case <-e.stopCh:
					e.flush()
					return
				case <-time.After(flushRetryDelay):
					e.markDirty()
				}
			}
		}
	}
}

func (e *Engine) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

func (e *Engine) flush() error {
	e.mu.RLock()
	snap, seq := e.snapshotLocked()
	flushed := e.flushedSeq
	e.mu.RUnlock()

	if seq == flushed {
		e.notifyWaiters(seq, nil)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	err := e.store.Save(ctx, snap)
	cancel()

	if err != nil {
		e.metrics.FlushFailures.Inc()
		e.logger.Error("flush state failed", "error", err)
	}

	e.mu.Lock()
	if err == nil && seq > e.flushedSeq {
		e.flushedSeq = seq
	}
	e.mu.Unlock()

	e.notifyWaiters(seq, err)
	return err
}

func (e *Engine) notifyWaiters(upTo uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.waiters[:0]
	for _, w := range e.waiters {
		if w.seq <= upTo {
			w.ch <- err
			continue
		}
		remaining = append(remaining, w)
	}
	e.waiters = remaining
}
