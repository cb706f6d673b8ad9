// Package events carries build progress inside the process. The broker is
// intentionally not durable; the eventstore owns the persistent lifecycle
// log, this bus only fans progress out to live listeners.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/forgeworks/appforge/internal/models"
)

// Broker fans ProgressEvents out to subscribers. Subscriptions are either
// scoped to one job or global. Delivery order per job matches publish order:
// Publish blocks until every subscriber has accepted the event or the context
// is canceled.
type Broker struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscription
	nextID    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

type subscription struct {
	jobID string // empty matches everything
	ch    chan models.ProgressEvent
	done  chan struct{}
	mu    sync.RWMutex // held shared across sends, exclusive to close ch
	dead  bool
	once  sync.Once
}

// deliver sends ev unless the subscription is closed first. The read lock is
// held across the send so closeChan cannot close ch under a blocked sender;
// done unblocks those senders before the close takes the write lock.
func (s *subscription) deliver(ctx context.Context, ev models.ProgressEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dead {
		return nil
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscription) closeChan() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.dead = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a listener for one job's progress. An empty jobID
// subscribes to all jobs. The returned cancel func is idempotent and closes
// the channel.
func (b *Broker) Subscribe(jobID string, buffer int) (<-chan models.ProgressEvent, func()) {
	sub := &subscription{
		jobID: jobID,
		ch:    make(chan models.ProgressEvent, buffer),
		done:  make(chan struct{}),
	}
	if b.closed.Load() {
		sub.closeChan()
		return sub.ch, func() {}
	}

	id := b.nextID.Add(1)
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		sub.closeChan()
		return sub.ch, func() {}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	var unsubOnce sync.Once
	cancel := func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.closeChan()
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every matching subscriber, blocking per subscriber
// until accepted or ctx is done.
func (b *Broker) Publish(ctx context.Context, ev models.ProgressEvent) error {
	if b.closed.Load() {
		return fmt.Errorf("progress broker is closed")
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.jobID == "" || s.jobID == ev.JobID {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// SubscriberCount reports active subscriptions, for tests and diagnostics.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the broker and every subscription channel.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		toClose := make([]*subscription, 0, len(b.subs))
		for _, s := range b.subs {
			toClose = append(toClose, s)
		}
		b.subs = make(map[uint64]*subscription)
		b.mu.Unlock()
		for _, s := range toClose {
			s.closeChan()
		}
	})
}
