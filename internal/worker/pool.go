package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// sequenced carries the submission index of a job through the pool
type sequenced struct {
	seq int
	job Job
}

type sequencedResult struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of workers. Results are drained as they
// arrive, so any number of jobs may be submitted before Wait, and Wait
// returns them in submission order.
type Pool struct {
	workers    int
	jobQueue   chan sequenced
	results    chan sequencedResult
	submitted  int
	collected  map[int]Result
	collectorC chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	observer   func(done int, r Result)
}

// NewPool creates a pool bound to ctx. Cancelling ctx stops the workers.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan sequenced, workers*2),
		results:    make(chan sequencedResult, workers*2),
		collected:  make(map[int]Result),
		collectorC: make(chan struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.workers
}

// Observe registers a callback invoked for each result as it arrives, from a
// single goroutine. Must be called before Start.
func (p *Pool) Observe(fn func(done int, r Result)) {
	p.observer = fn
}

// Start starts the worker goroutines and the result collector
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	go p.collect()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := item.job.Execute(p.ctx)
			select {
			case p.results <- sequencedResult{seq: item.seq, result: result}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) collect() {
	defer close(p.collectorC)
	for r := range p.results {
		p.collected[r.seq] = r.result
		if p.observer != nil {
			p.observer(len(p.collected), r.result)
		}
	}
}

// Submit queues a job. It returns false if the pool was shut down first.
// Submit must not be called concurrently with Wait.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	item := sequenced{seq: p.submitted, job: job}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- item:
		p.submitted++
		return true
	}
}

// Wait waits for all submitted jobs and returns their results in submission
// order. Jobs dropped by a shutdown or cancellation leave nil entries.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	<-p.collectorC
	p.cancelFunc()

	results := make([]Result, p.submitted)
	for seq, r := range p.collected {
		results[seq] = r
	}
	return results
}

// Shutdown stops the workers immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
