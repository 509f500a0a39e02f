// Package cartsync mirrors local cart transitions onto the remote Cart
// service. Changes are queued without blocking the caller and applied one at
// a time, in transition order, by a single worker.
package cartsync

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/storefront-client/internal/apierr"
	"github.com/fairyhunter13/storefront-client/internal/model"
	"github.com/fairyhunter13/storefront-client/internal/obs"
	"github.com/go-faster/errors"
)

// RemoteCart is the slice of the Cart facade the syncer drives;
// *api.Cart implements it.
type RemoteCart interface {
	GetCart(ctx context.Context) (model.RemoteCart, error)
	AddItem(ctx context.Context, productID string, quantity int) (model.RemoteCartItem, error)
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) (model.RemoteCartItem, error)
	RemoveItem(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) error
}

// Options configures a Syncer.
type Options struct {
	Buffer        int
	HighWatermark int
	Metrics       *obs.ClientMetrics
	// OnApplied, when set, is called after each change with the outcome.
	OnApplied func(model.CartChange, error)
}

// Syncer owns the queue and the worker that applies changes remotely.
type Syncer struct {
	opts   Options
	q      *Queue
	remote RemoteCart
	seq    Sequencer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	items map[string]string // product id -> remote item id
}

func New(remote RemoteCart, opts Options) *Syncer {
	return &Syncer{
		opts:   opts,
		q:      NewQueue(opts.Buffer),
		remote: remote,
		items:  map[string]string{},
	}
}

// Seed learns the remote item ids of the current server-side cart so later
// updates and removals address existing lines.
func (s *Syncer) Seed(ctx context.Context) error {
	cart, err := s.remote.GetCart(ctx)
	if err != nil {
		return errors.Wrap(err, "seed remote cart")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range cart.Items {
		if it.ID != "" && it.ProductID != "" {
			s.items[string(it.ProductID)] = string(it.ID)
		}
	}
	obs.Logger.Debug("cart_sync_seeded", "lines", len(cart.Items))
	return nil
}

// Start launches the broker and the worker.
func (s *Syncer) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.done = make(chan struct{})
	s.q.Start(s.ctx, s.opts.HighWatermark)
	go s.worker()
}

// Stop cancels the worker and waits for it to exit. Changes still queued are
// dropped; call DrainUntil first to flush them.
func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Enqueue numbers ch and queues it. It returns false after CloseIntake.
func (s *Syncer) Enqueue(ch model.CartChange) bool {
	ch.Seq = s.seq.Next()
	ok := s.q.Enqueue(ch)
	if !ok {
		obs.Logger.Warn("cart_sync_rejected", "seq", ch.Seq, "op", string(ch.Op))
	}
	return ok
}

// Handle is Enqueue with the signature of a state container listener.
func (s *Syncer) Handle(ch model.CartChange) { s.Enqueue(ch) }

func (s *Syncer) CloseIntake() { s.q.CloseIntake() }

func (s *Syncer) Stats() Stats { return s.q.Stats() }

// ItemID returns the remote line id known for productID.
func (s *Syncer) ItemID(productID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.items[productID]
	return id, ok
}

// DrainUntil blocks until every queued change has been applied or ctx is done.
func (s *Syncer) DrainUntil(ctx context.Context) bool {
	for {
		if s.q.Stats().Drained() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (s *Syncer) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.q.Out():
			err := s.apply(s.ctx, ch)
			s.opts.Metrics.ObserveCartSync(err)
			if err != nil {
				obs.Logger.Warn("cart_sync_failed", "seq", ch.Seq, "op", string(ch.Op),
					"product_id", ch.ProductID, "kind", apierr.KindOf(err).String(), "error", err)
			} else {
				obs.Logger.Debug("cart_sync_applied", "seq", ch.Seq, "op", string(ch.Op), "product_id", ch.ProductID)
			}
			if s.opts.OnApplied != nil {
				s.opts.OnApplied(ch, err)
			}
			s.q.MarkProcessed()
		}
	}
}

// apply makes the remote line for ch.ProductID hold ch.Quantity units.
func (s *Syncer) apply(ctx context.Context, ch model.CartChange) error {
	switch ch.Op {
	case model.CartAdd, model.CartUpdate:
		if id, ok := s.ItemID(ch.ProductID); ok {
			_, err := s.remote.UpdateItemQuantity(ctx, id, ch.Quantity)
			if apierr.StatusOf(err) != 404 {
				return err
			}
			// Line vanished remotely; recreate it.
			s.forget(ch.ProductID)
		}
		return s.create(ctx, ch)
	case model.CartRemove:
		id, ok := s.ItemID(ch.ProductID)
		if !ok {
			return nil
		}
		s.forget(ch.ProductID)
		err := s.remote.RemoveItem(ctx, id)
		if apierr.StatusOf(err) == 404 {
			return nil
		}
		return err
	case model.CartClear:
		s.mu.Lock()
		s.items = map[string]string{}
		s.mu.Unlock()
		return s.remote.ClearCart(ctx)
	default:
		return errors.Errorf("unknown cart op %q", ch.Op)
	}
}

func (s *Syncer) create(ctx context.Context, ch model.CartChange) error {
	it, err := s.remote.AddItem(ctx, ch.ProductID, ch.Quantity)
	if err != nil {
		return err
	}
	if it.ID == "" {
		return nil
	}
	s.mu.Lock()
	s.items[ch.ProductID] = string(it.ID)
	s.mu.Unlock()
	// The server may have merged into a line it already had.
	if it.Quantity != 0 && it.Quantity != ch.Quantity {
		_, err = s.remote.UpdateItemQuantity(ctx, string(it.ID), ch.Quantity)
	}
	return err
}

func (s *Syncer) forget(productID string) {
	s.mu.Lock()
	delete(s.items, productID)
	s.mu.Unlock()
}
