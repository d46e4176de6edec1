package events

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var deliveryTimeout = 5 * time.Second

// Dispatcher hands events to a Publisher from a background worker. Emit
// never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	log     *zap.Logger
	pub     Publisher
	queue   chan Event
	dropped atomic.Uint64
}

type dispatcherOption func(*Dispatcher)

func DispatcherLogger(log *zap.Logger) dispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

func NewDispatcher(pub Publisher, buffer int, options ...dispatcherOption) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		log:   zap.NewNop(),
		pub:   pub,
		queue: make(chan Event, buffer),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Emit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.log.Warn("event queue full, dropping event",
			zap.String("kind", string(e.Kind)),
			zap.String("accountID", e.AccountID),
		)
	}
}

// Dropped reports how many events were lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return nil
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

// Serve runs fn with ctx while delivering events, and keeps delivering until
// fn has returned. Events emitted by fn after ctx is done, such as those from
// requests still draining on shutdown, are delivered by the final flush.
func (d *Dispatcher) Serve(ctx context.Context, fn func(ctx context.Context) error) error {
	dispatchCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	g := errgroup.Group{}
	g.Go(func() error {
		defer stop()
		return fn(ctx)
	})
	g.Go(func() error {
		return d.Run(dispatchCtx)
	})
	return g.Wait()
}

func (d *Dispatcher) flush() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	pctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()
	if err := d.pub.Publish(pctx, e); err != nil {
		d.log.Warn("failed publish event",
			zap.String("kind", string(e.Kind)),
			zap.String("accountID", e.AccountID),
			zap.Error(err),
		)
	}
}
