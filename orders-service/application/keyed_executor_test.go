package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedExecutor_SerializesPerKey(t *testing.T) {
	executor := NewKeyedExecutor()

	var running, maxRunning int32
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := executor.Do(context.Background(), "order-1", func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)
				for {
					current := atomic.LoadInt32(&maxRunning)
					if n <= current || atomic.CompareAndSwapInt32(&maxRunning, current, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)

				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	assert.Len(t, order, 20)
	assert.Eventually(t, func() bool { return executor.Active() == 0 }, time.Second, time.Millisecond)
}

func TestKeyedExecutor_KeysRunConcurrently(t *testing.T) {
	executor := NewKeyedExecutor()
	release := make(chan struct{})
	started := make(chan string, 2)

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_ = executor.Do(context.Background(), key, func(ctx context.Context) error {
				started <- key
				<-release
				return nil
			})
		}(key)
	}

	// both tasks start while neither has finished
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("tasks on different keys did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestKeyedExecutor_ReturnsTaskError(t *testing.T) {
	executor := NewKeyedExecutor()
	boom := assert.AnError

	err := executor.Do(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestKeyedExecutor_CancelledWhileQueued(t *testing.T) {
	executor := NewKeyedExecutor()
	release := make(chan struct{})
	running := make(chan struct{})

	go func() {
		_ = executor.Do(context.Background(), "k", func(ctx context.Context) error {
			close(running)
			<-release
			return nil
		})
	}()
	<-running

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	err := executor.Do(ctx, "k", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool { return executor.Active() == 0 }, time.Second, time.Millisecond)
	assert.False(t, ran.Load())
}
