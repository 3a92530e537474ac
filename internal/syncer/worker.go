package syncer

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// task is one unit of background work with an id for log correlation.
type task struct {
	id   uuid.UUID
	name string
	run  func(context.Context) error
}

// Worker runs fire-and-forget tasks decoupled from the request/response
// lifecycle. Errors land in the log, never in an HTTP response that has
// already been sent.
type Worker struct {
	tasks   chan task
	timeout time.Duration
}

// NewWorker starts the background loop. buffer bounds how many tasks can
// be queued; submissions beyond that are dropped with a log line rather
// than blocking a request.
func NewWorker(buffer int) *Worker {
	if buffer <= 0 {
		buffer = 16
	}
	w := &Worker{
		tasks:   make(chan task, buffer),
		timeout: 5 * time.Minute,
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for t := range w.tasks {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := t.run(ctx)
		cancel()
		if err != nil {
			log.Printf("background task %s (%s) failed after %s: %v", t.name, t.id, time.Since(start).Round(time.Millisecond), err)
			continue
		}
		log.Printf("background task %s (%s) finished in %s", t.name, t.id, time.Since(start).Round(time.Millisecond))
	}
}

// Submit queues fn for execution. Never blocks.
func (w *Worker) Submit(name string, fn func(context.Context) error) {
	t := task{id: uuid.New(), name: name, run: fn}
	select {
	case w.tasks <- t:
	default:
		log.Printf("background queue full, dropping task %s (%s)", name, t.id)
	}
}

// Close stops the worker once queued tasks drain.
func (w *Worker) Close() {
	close(w.tasks)
}
