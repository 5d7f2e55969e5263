package queue

import (
	"errors"
	"sync"

	"notification-sync-service/pkg/logging"
)

// ErrPoolStopped se devuelve al enviar trabajo a un pool detenido
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool ejecuta trabajos sobre un número fijo de goroutines compartidas
type WorkerPool struct {
	jobs    chan func()
	workers int
	logger  *logging.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	started bool
	mu      sync.Mutex
}

// NewWorkerPool crea un pool con el número de workers y el tamaño de cola indicados
func NewWorkerPool(workers, queueSize int, logger *logging.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	return &WorkerPool{
		jobs:    make(chan func(), queueSize),
		workers: workers,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start lanza los workers; llamadas repetidas no tienen efecto
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("Worker pool started with %d workers", p.workers)
}

// Stop detiene los workers y espera a que terminen el trabajo en curso
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

// Submit encola un trabajo; bloquea si la cola está llena
func (p *WorkerPool) Submit(job func()) error {
	select {
	case <-p.stopCh:
		return ErrPoolStopped
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.stopCh:
		return ErrPoolStopped
	}
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case job := <-p.jobs:
			p.run(id, job)
		}
	}
}

func (p *WorkerPool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker %d recovered from panic: %v", id, r)
		}
	}()
	job()
}
