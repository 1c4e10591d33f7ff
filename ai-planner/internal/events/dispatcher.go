package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type DispatcherConfig struct {
	// QueueSize bounds buffered events; Publish drops when full. Defaults to 256.
	QueueSize int
	// Workers defaults to 4.
	Workers int
	// EventTimeout bounds produce+archive for one event. Defaults to 30s.
	EventTimeout time.Duration
}

// Stats counts dispatcher outcomes since start.
type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Dispatcher fans committed plan events out to a producer and an archiver on
// background workers. Either sink may be nil. Delivery failures are logged and
// counted, never returned to the planner.
type Dispatcher struct {
	producer Producer
	archiver Archiver
	cfg      DispatcherConfig
	queue    chan Event
	log      logrus.FieldLogger

	// mu guards closed; Publish holds it shared so no send races the final drain.
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg sync.WaitGroup
}

func NewDispatcher(producer Producer, archiver Archiver, cfg DispatcherConfig, log logrus.FieldLogger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
		queue:    make(chan Event, cfg.QueueSize),
		log:      log,
	}
}

// Publish enqueues ev and reports whether it was accepted. It never blocks.
// Once Run has returned nothing is accepted.
func (d *Dispatcher) Publish(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{"event": ev.ID, "key": ev.Key.String()}).
			Warn("[events.dispatcher] stopped, dropping event")
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{"event": ev.ID, "key": ev.Key.String()}).
			Warn("[events.dispatcher] queue full, dropping event")
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled, then drains what is
// already queued and closes the producer.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.WithFields(logrus.Fields{"workers": d.cfg.Workers, "queue": d.cfg.QueueSize}).
		Info("[events.dispatcher] starting")
	defer d.log.Info("[events.dispatcher] stopped")

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	d.drain()
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.log.WithError(err).Warn("[events.dispatcher] close producer")
		}
	}
	return ctx.Err()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.handle(context.Background(), ev)
		}
	}
}

// drain delivers whatever is still buffered after shutdown was requested.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.handle(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(parent context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.EventTimeout)
	defer cancel()
	entry := d.log.WithFields(logrus.Fields{"event": ev.ID, "type": ev.Type, "key": ev.Key.String()})
	if err := d.deliver(ctx, ev); err != nil {
		d.failed.Add(1)
		entry.WithError(err).Error("[events.dispatcher] deliver event")
		return
	}
	d.delivered.Add(1)
	entry.Debug("[events.dispatcher] delivered")
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) error {
	body, err := ev.Envelope()
	if err != nil {
		return fmt.Errorf("canonicalize envelope: %w", err)
	}
	if d.producer != nil {
		if _, err := d.producer.Produce(ctx, []byte(ev.Key.String()), body); err != nil {
			return fmt.Errorf("kafka produce: %w", err)
		}
	}
	if d.archiver != nil {
		if _, err := d.archiver.Archive(ctx, ev, body); err != nil {
			return fmt.Errorf("s3 archive: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
