package queue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-sync-service/pkg/logging"
)

func newTestExecutor(t *testing.T, workers int) (*SerialExecutor, *WorkerPool) {
	t.Helper()

	pool := NewWorkerPool(workers, 64, logging.Nop())
	pool.Start()
	t.Cleanup(pool.Stop)

	return NewSerialExecutor(pool, logging.Nop()), pool
}

func TestSerialExecutor_PreservesOrderPerKey(t *testing.T) {
	executor, _ := newTestExecutor(t, 4)

	const keys, perKey = 5, 200
	var mu sync.Mutex
	seen := make(map[string][]int)
	var wg sync.WaitGroup
	wg.Add(keys * perKey)

	for i := 0; i < perKey; i++ {
		for k := 0; k < keys; k++ {
			key := fmt.Sprintf("session-%d", k)
			value := i
			require.NoError(t, executor.Execute(key, func() {
				defer wg.Done()
				mu.Lock()
				seen[key] = append(seen[key], value)
				mu.Unlock()
			}))
		}
	}

	waitOrFail(t, &wg)

	for k := 0; k < keys; k++ {
		values := seen[fmt.Sprintf("session-%d", k)]
		require.Len(t, values, perKey)
		for i, v := range values {
			assert.Equal(t, i, v)
		}
	}
	assert.Equal(t, 0, executor.Pending())
}

func TestSerialExecutor_NeverRunsSameKeyConcurrently(t *testing.T) {
	executor, _ := newTestExecutor(t, 8)

	var running, overlaps int32
	var wg sync.WaitGroup
	wg.Add(100)

	for i := 0; i < 100; i++ {
		require.NoError(t, executor.Execute("same", func() {
			defer wg.Done()
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&running, -1)
		}))
	}

	waitOrFail(t, &wg)
	assert.Zero(t, atomic.LoadInt32(&overlaps))
}

func TestSerialExecutor_DistinctKeysRunInParallel(t *testing.T) {
	executor, _ := newTestExecutor(t, 2)

	release := make(chan struct{})
	started := make(chan string, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	for _, key := range []string{"a", "b"} {
		key := key
		require.NoError(t, executor.Execute(key, func() {
			defer wg.Done()
			started <- key
			<-release
		}))
	}

	// Ambas claves deben arrancar antes de liberar ninguna
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("keys did not run in parallel")
		}
	}
	close(release)
	waitOrFail(t, &wg)
}

func TestSerialExecutor_SurvivesPanics(t *testing.T) {
	executor, _ := newTestExecutor(t, 1)

	done := make(chan struct{})
	require.NoError(t, executor.Execute("k", func() { panic("boom") }))
	require.NoError(t, executor.Execute("k", func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task after panic was not executed")
	}
}

func TestSerialExecutor_RejectsAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 1, logging.Nop())
	pool.Start()
	executor := NewSerialExecutor(pool, logging.Nop())
	pool.Stop()

	err := executor.Execute("k", func() {})
	assert.ErrorIs(t, err, ErrPoolStopped)
	assert.Equal(t, 0, executor.Pending())
}

func TestSerialExecutor_RunsAcceptedTasksWhenSubmitFails(t *testing.T) {
	// Sin workers y con cola de uno: el segundo Submit se queda bloqueado
	pool := NewWorkerPool(1, 1, logging.Nop())
	executor := NewSerialExecutor(pool, logging.Nop())

	require.NoError(t, executor.Execute("a", func() {}))

	var rejectedRan, acceptedRan atomic.Bool
	result := make(chan error, 1)
	go func() {
		result <- executor.Execute("b", func() { rejectedRan.Store(true) })
	}()

	require.Eventually(t, func() bool { return executor.Pending() == 2 }, 2*time.Second, time.Millisecond)

	// La clave b ya está en marcha, así que esta tarea se acepta
	require.NoError(t, executor.Execute("b", func() { acceptedRan.Store(true) }))

	pool.Stop()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submit did not return")
	}
	assert.False(t, rejectedRan.Load())
	assert.True(t, acceptedRan.Load())
	assert.Equal(t, 1, executor.Pending())

	// La clave queda libre para nuevos intentos
	assert.ErrorIs(t, executor.Execute("b", func() {}), ErrPoolStopped)
	assert.Equal(t, 1, executor.Pending())
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
}
