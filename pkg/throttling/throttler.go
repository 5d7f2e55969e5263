package throttling

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry guarda el limitador de una clave y su último uso
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// KeyedThrottler limita la tasa de comandos por clave (una sesión del canal push).
// Las solicitudes que exceden el límite se rechazan, nunca se retrasan.
type KeyedThrottler struct {
	entries     map[string]*limiterEntry
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	expiry      time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewKeyedThrottler crea un limitador con rps comandos por segundo y ráfagas de burst.
// Un rps no positivo desactiva la limitación.
func NewKeyedThrottler(rps float64, burst int, expiry time.Duration) *KeyedThrottler {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}

	t := &KeyedThrottler{
		entries:     make(map[string]*limiterEntry),
		limit:       limit,
		burst:       burst,
		expiry:      expiry,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	// Iniciar rutina de limpieza
	t.wg.Add(1)
	go t.cleanup()

	return t
}

// Allow consume un token de la clave; devuelve false si no quedan
func (t *KeyedThrottler) Allow(key string) bool {
	t.mu.Lock()
	now := t.now()
	entry, exists := t.entries[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = entry
	}
	entry.lastUsed = now
	t.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Forget elimina el limitador de una clave
func (t *KeyedThrottler) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Len devuelve el número de claves con limitador
func (t *KeyedThrottler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// cleanup elimina limitadores no utilizados
func (t *KeyedThrottler) cleanup() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.expiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.removeExpired()
		case <-t.stopCleanup:
			return
		}
	}
}

// removeExpired elimina los limitadores sin uso durante más de expiry
func (t *KeyedThrottler) removeExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, entry := range t.entries {
		if now.Sub(entry.lastUsed) > t.expiry {
			delete(t.entries, key)
		}
	}
}

// Stop detiene la rutina de limpieza
func (t *KeyedThrottler) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCleanup)
	})
	t.wg.Wait()
}
