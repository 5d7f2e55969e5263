package queue

import (
	"sync"

	"notification-sync-service/pkg/logging"
	"notification-sync-service/pkg/metrics"
)

// mailbox guarda las tareas pendientes de una clave
type mailbox struct {
	tasks   []func()
	running bool
}

// SerialExecutor ejecuta las tareas de una misma clave en orden FIFO y de una en una,
// repartiendo claves distintas sobre un WorkerPool compartido
type SerialExecutor struct {
	pool      *WorkerPool
	logger    *logging.Logger
	mailboxes map[string]*mailbox
	pending   int
	mu        sync.Mutex
}

// NewSerialExecutor crea un ejecutor serial sobre el pool indicado
func NewSerialExecutor(pool *WorkerPool, logger *logging.Logger) *SerialExecutor {
	return &SerialExecutor{
		pool:      pool,
		logger:    logger,
		mailboxes: make(map[string]*mailbox),
	}
}

// Execute encola la tarea detrás de las anteriores de la misma clave
func (e *SerialExecutor) Execute(key string, task func()) error {
	e.mu.Lock()
	mb, ok := e.mailboxes[key]
	if !ok {
		mb = &mailbox{}
		e.mailboxes[key] = mb
	}
	mb.tasks = append(mb.tasks, task)
	e.pending++
	metrics.SetExecutorQueueDepth(e.pending)

	if mb.running {
		e.mu.Unlock()
		return nil
	}
	mb.running = true
	e.mu.Unlock()

	if err := e.pool.Submit(func() { e.drain(key, mb) }); err != nil {
		e.reject(key, mb)
		return err
	}
	return nil
}

// reject retira la tarea del llamante tras un Submit fallido. Las tareas que otros
// encolaron mientras tanto ya fueron aceptadas, así que se ejecutan aquí mismo.
func (e *SerialExecutor) reject(key string, mb *mailbox) {
	e.mu.Lock()
	mb.tasks[0] = nil
	mb.tasks = mb.tasks[1:]
	e.pending--
	metrics.SetExecutorQueueDepth(e.pending)

	leftover := len(mb.tasks)
	if leftover == 0 {
		mb.running = false
		if e.mailboxes[key] == mb {
			delete(e.mailboxes, key)
		}
	}
	e.mu.Unlock()

	if leftover > 0 {
		e.logger.Warn("Pool rejected %s, running %d accepted tasks inline", key, leftover)
		e.drain(key, mb)
	}
}

// Pending devuelve el número de tareas aún no ejecutadas
func (e *SerialExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// drain ejecuta las tareas del buzón hasta vaciarlo
func (e *SerialExecutor) drain(key string, mb *mailbox) {
	for {
		e.mu.Lock()
		if len(mb.tasks) == 0 {
			mb.running = false
			if e.mailboxes[key] == mb {
				delete(e.mailboxes, key)
			}
			e.mu.Unlock()
			return
		}
		task := mb.tasks[0]
		mb.tasks[0] = nil
		mb.tasks = mb.tasks[1:]
		e.pending--
		metrics.SetExecutorQueueDepth(e.pending)
		e.mu.Unlock()

		e.run(key, task)
	}
}

func (e *SerialExecutor) run(key string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Task for %s panicked: %v", key, r)
		}
	}()
	task()
}
