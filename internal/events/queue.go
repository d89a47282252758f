package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

type (
	// Queue hands execution events to a Handler from a single goroutine,
	// grouping whatever is already waiting into batches of at most
	// batchSize events
	Queue struct {
		in        topic.Producer[*api.ExecutionEvent]
		out       topic.Consumer[*api.ExecutionEvent]
		handler   Handler
		batchSize int
		stopping  chan struct{}
		worker    sync.WaitGroup
		started   sync.Once
		stopped   sync.Once
		drained   sync.Once
	}

	// Handler processes a batch of execution events
	Handler func([]*api.ExecutionEvent) error
)

const (
	handlerAttempts = 3
	handlerBackoff  = 50 * time.Millisecond
)

var ErrHandlerPanicked = errors.New("event handler panicked")

// NewQueue creates a queue that delivers to handler. Call Start before
// enqueueing events
func NewQueue(handler Handler, batchSize int) *Queue {
	t := caravan.NewTopic[*api.ExecutionEvent]()
	return &Queue{
		in:        t.NewProducer(),
		out:       t.NewConsumer(),
		handler:   handler,
		batchSize: max(1, batchSize),
		stopping:  make(chan struct{}),
	}
}

func (q *Queue) Start() {
	q.started.Do(func() {
		q.worker.Go(q.run)
	})
}

func (q *Queue) Enqueue(ev *api.ExecutionEvent) {
	q.in.Send() <- ev
}

// Flush stops the worker and delivers anything still queued from the
// calling goroutine. The queue cannot be reused afterward
func (q *Queue) Flush() {
	q.stopped.Do(func() { close(q.stopping) })
	q.worker.Wait()
	q.drained.Do(func() {
		for q.next(false) {
		}
		q.in.Close()
		q.out.Close()
	})
}

func (q *Queue) run() {
	for q.next(true) {
	}
}

// next delivers one batch and reports whether the caller should continue.
// When wait is false it returns false as soon as nothing is pending
func (q *Queue) next(wait bool) bool {
	var first *api.ExecutionEvent
	var ok bool
	if wait {
		select {
		case <-q.stopping:
			return false
		case first, ok = <-q.out.Receive():
		}
	} else {
		select {
		case first, ok = <-q.out.Receive():
		default:
		}
	}
	if !ok {
		return false
	}

	batch := append(make([]*api.ExecutionEvent, 0, q.batchSize), first)
	for len(batch) < q.batchSize {
		select {
		case ev, ok := <-q.out.Receive():
			if !ok {
				q.deliver(batch)
				return false
			}
			batch = append(batch, ev)
			continue
		default:
		}
		break
	}
	q.deliver(batch)
	return true
}

func (q *Queue) deliver(batch []*api.ExecutionEvent) {
	delay := handlerBackoff
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		err := q.call(batch)
		if err == nil {
			return
		}
		slog.Error("Event handler failed",
			slog.Int("events", len(batch)),
			slog.Int("attempt", attempt),
			log.Error(err))
		if attempt < handlerAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	slog.Error("Discarding event batch",
		slog.Int("events", len(batch)))
}

func (q *Queue) call(batch []*api.ExecutionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return q.handler(batch)
}
