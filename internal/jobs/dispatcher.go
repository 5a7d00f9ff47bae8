// Package jobs runs conversation turns in the background so webhook
// deliveries can be acknowledged immediately.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// TurnJob identifies one inbound message to process.
type TurnJob struct {
	ClientID       string
	AccountID      int
	ConversationID int
}

func (j TurnJob) key() string {
	return fmt.Sprintf("%d/%d", j.AccountID, j.ConversationID)
}

// TurnRunner executes a single turn end to end, including delivery of the
// reply. Errors are handled inside the runner; the dispatcher only schedules.
type TurnRunner interface {
	RunTurn(ctx context.Context, job TurnJob)
}

// Dispatcher schedules turns with a global concurrency bound while keeping
// turns for the same conversation strictly ordered.
type Dispatcher struct {
	runner TurnRunner
	sem    chan struct{}

	mu     sync.Mutex
	queues map[string][]TurnJob
	closed bool

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher allowing at most maxConcurrent turns in
// flight across all conversations.
func NewDispatcher(runner TurnRunner, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		runner: runner,
		sem:    make(chan struct{}, maxConcurrent),
		queues: make(map[string][]TurnJob),
	}
}

// Dispatch enqueues a turn and returns immediately. Turns for the same
// conversation run one at a time in arrival order; turns for different
// conversations run concurrently up to the global bound.
func (d *Dispatcher) Dispatch(ctx context.Context, job TurnJob) {
	key := job.key()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Printf("dispatcher stopped, dropping turn conversation=%s", key)
		return
	}
	queue, active := d.queues[key]
	d.queues[key] = append(queue, job)
	if active {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(ctx, key)
}

// drain runs queued turns for one conversation until its queue empties.
func (d *Dispatcher) drain(ctx context.Context, key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			log.Printf("dispatcher context cancelled, dropping turn conversation=%s", key)
			continue
		}
		d.runTurn(ctx, job)
		<-d.sem
	}
}

func (d *Dispatcher) runTurn(ctx context.Context, job TurnJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in turn conversation=%s: %v", job.key(), r)
		}
	}()
	d.runner.RunTurn(ctx, job)
}

// Stop refuses new work and waits for in-flight and queued turns to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	log.Println("Dispatcher shutdown complete")
}
