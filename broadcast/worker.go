package broadcast

import (
	"context"
	"sync"

	"github.com/highfives-app/highfives"
	"github.com/rs/zerolog"
)

type Publisher interface {
	Broadcast(ctx context.Context, ack highfives.Acknowledgment) (string, error)
}

// Worker broadcasts acknowledgments in the background, one at a time.
//
// Failures are only visible in logs and metrics: whoever enqueued an
// acknowledgment never learns what happened to it, except through OnPublished.
type Worker struct {
	Publisher Publisher

	// OnPublished is called after a successful broadcast, from the worker goroutine.
	OnPublished func(ack highfives.Acknowledgment, eventID string)

	Metrics *Metrics
	Logger  *zerolog.Logger

	queue chan highfives.Acknowledgment

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewWorker(publisher Publisher, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Worker{
		Publisher: publisher,
		Logger:    &nopLogger,
		queue:     make(chan highfives.Acknowledgment, queueSize),
		done:      make(chan struct{}),
	}
}

// Enqueue hands ack to the worker. It never blocks: when the queue is full the
// acknowledgment is dropped and false is returned.
func (w *Worker) Enqueue(ack highfives.Acknowledgment) bool {
	select {
	case w.queue <- ack:
		return true
	default:
		w.Metrics.drop()
		w.logger().Warn().Str("ack", ack.ID).Msg("broadcast queue full, dropping")
		return false
	}
}

// Pending is the number of acknowledgments waiting in the queue.
func (w *Worker) Pending() int { return len(w.queue) }

// Run processes the queue until ctx is canceled. Whatever is still queued at
// that point is not broadcast.
func (w *Worker) Run(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			if n := len(w.queue); n > 0 {
				w.logger().Info().Int("pending", n).Msg("broadcast worker stopped with pending acknowledgments")
			}
			return
		case ack := <-w.queue:
			w.process(ctx, ack)
		}
	}
}

// Done is closed once Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) process(ctx context.Context, ack highfives.Acknowledgment) {
	defer func() {
		if r := recover(); r != nil {
			w.logger().Error().Interface("panic", r).Str("ack", ack.ID).Msg("broadcast panicked")
		}
	}()

	eventID, err := w.Publisher.Broadcast(ctx, ack)
	if err != nil {
		w.logger().Warn().Err(err).Str("ack", ack.ID).Msg("broadcast failed")
		return
	}

	w.logger().Info().Str("ack", ack.ID).Str("event", eventID).Msg("broadcast")
	if w.OnPublished != nil {
		w.OnPublished(ack, eventID)
	}
}

func (w *Worker) logger() *zerolog.Logger {
	if w.Logger == nil {
		return &nopLogger
	}
	return w.Logger
}
