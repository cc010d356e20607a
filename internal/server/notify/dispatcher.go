package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/observability"
)

type job struct {
	template string
	msg      Message
}

// Dispatcher hands messages to a fixed pool of workers through a bounded
// queue. Dispatch never blocks: when the queue is full the message is
// dropped and reported. Delivery errors are logged and reported, never
// returned to the request that produced the message.
type Dispatcher struct {
	notifier    Notifier
	logger      logging.Logger
	reporter    observability.Reporter
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(n Notifier, l logging.Logger, r observability.Reporter, workers, queueSize int, sendTimeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if r == nil {
		r = observability.NopReporter{}
	}
	d := &Dispatcher{
		notifier:    n,
		logger:      l.With("module", "mail_dispatcher"),
		reporter:    r,
		sendTimeout: sendTimeout,
		queue:       make(chan job, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch enqueues msg. It reports whether the message was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, template string, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.fail(ctx, template, "dispatcher closed", nil)
		return false
	}

	select {
	case d.queue <- job{template: template, msg: msg}:
		return true
	default:
		d.fail(ctx, template, "mail queue full, message dropped", nil)
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx := context.Background()
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	if err := d.notifier.Send(ctx, j.msg); err != nil {
		d.fail(ctx, j.template, "email delivery failed", err)
		return
	}
	d.logger.Debug(ctx, "email delivered", "template", j.template)
}

func (d *Dispatcher) fail(ctx context.Context, template, msg string, cause error) {
	args := []any{"template", template}
	if cause != nil {
		args = append(args, "error", cause.Error())
	}
	d.logger.Error(ctx, msg, args...)
	d.reporter.Report(ctx, common.Wrap(common.ErrDeliveryFailed, cause), map[string]string{"template": template})
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
