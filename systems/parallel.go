package systems

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/snow/linalg"
)

// parallelThreshold is the minimum item count to use the worker pool.
// Below this, running inline is faster due to goroutine overhead.
const parallelThreshold = 64

// workChunk is a contiguous range of items for one worker.
type workChunk struct {
	start, end int
	fn         func(start, end, worker int)
}

// Pool runs data-parallel loops over particles on persistent workers.
// Every worker owns a Decomposer so SVD workspace is never shared.
//
// A nil *Pool is valid and runs everything on the calling goroutine.
type Pool struct {
	numWorkers int
	decs       []*linalg.Decomposer

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewPool creates a pool with the given number of workers. workers <= 0
// uses GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	decs := make([]*linalg.Decomposer, workers)
	for i := range decs {
		decs[i] = linalg.NewDecomposer()
	}
	return &Pool{numWorkers: workers, decs: decs}
}

// Workers returns the number of workers, 1 for a nil pool.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.numWorkers
}

// Decomposer returns the SVD workspace owned by worker.
func (p *Pool) Decomposer(worker int) *linalg.Decomposer {
	if p == nil {
		return linalg.NewDecomposer()
	}
	return p.decs[worker]
}

// Run calls fn over disjoint ranges covering [0, n) and waits for all of
// them. fn must only write to state owned by its range or its worker.
func (p *Pool) Run(n int, fn func(start, end, worker int)) {
	if n <= 0 {
		return
	}
	if p == nil || p.numWorkers == 1 || n < parallelThreshold {
		fn(0, n, 0)
		return
	}

	if !p.running {
		p.startWorkers()
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end, id)
			p.doneChan <- struct{}{}
		}
	}
}

// Close stops the workers. The pool may be reused afterwards; workers are
// restarted on the next parallel Run.
func (p *Pool) Close() {
	if p == nil || !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}
