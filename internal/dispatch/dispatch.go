// Package dispatch fans a batch of provider calls out across a bounded worker
// pool and collects the results in input order. A single slow or failing
// backend never blocks the others; each task carries its own deadline.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parley-ai/parley/internal/provider"
)

const (
	// DefaultWorkers caps concurrent provider calls. Most batches name three
	// to five models, so this rarely queues.
	DefaultWorkers = 5

	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 60 * time.Second
)

// Task is one unit of work: a fully built request plus the handle that
// serves it.
type Task struct {
	Request *provider.Request
	Handle  provider.Handle
}

// Failure describes why a task produced no answer.
type Failure struct {
	Kind    provider.ErrorKind
	Message string
}

// Result pairs a task's model with either its response or its failure.
// Exactly one of Response and Failure is set.
type Result struct {
	Model    string
	Response *provider.Response
	Failure  *Failure
	Elapsed  time.Duration
}

// OK reports whether the task produced an answer.
func (r Result) OK() bool { return r.Failure == nil }

// Engine runs batches of provider calls with bounded concurrency.
type Engine struct {
	workers int
	timeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers overrides the concurrency cap. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithTimeout overrides the per-task deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{workers: DefaultWorkers, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parallel executes all tasks and returns results positionally aligned with
// the input. Individual failures are recorded per result, never returned as
// the batch error; the only batch-level error is an empty task list. All
// workers are joined before Parallel returns.
func (e *Engine) Parallel(ctx context.Context, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, errors.New("dispatch: no tasks")
	}

	results := make([]Result, len(tasks))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = failed(task, ctx.Err(), 0)
				return
			}

			results[i] = e.run(ctx, task)
		}(i, task)
	}
	wg.Wait()

	return results, nil
}

func (e *Engine) run(ctx context.Context, task Task) Result {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := task.Handle.Provider.Invoke(callCtx, task.Request)
	elapsed := time.Since(start)
	if err != nil {
		return failed(task, err, elapsed)
	}
	return Result{Model: task.Request.Model, Response: resp, Elapsed: elapsed}
}

func failed(task Task, err error, elapsed time.Duration) Result {
	return Result{
		Model:   task.Request.Model,
		Elapsed: elapsed,
		Failure: &Failure{
			Kind:    provider.Classify(err),
			Message: err.Error(),
		},
	}
}
