package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueTryDequeue(t *testing.T) {
	q := New[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok)

	q.Enqueue(1)
	q.Enqueue(2)

	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestWaitDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[string]()

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	var ok bool
	go func() {
		defer wg.Done()
		got, ok = q.WaitDequeue(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue("hello")
	wg.Wait()

	assert.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestBreakAllWaitersIsSticky(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = q.WaitDequeue(context.Background())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	q.BreakAllWaiters()
	wg.Wait()

	for _, ok := range results {
		assert.False(t, ok)
	}

	// Sticky: a fresh waiter also returns immediately.
	_, ok := q.WaitDequeue(context.Background())
	assert.False(t, ok)

	// Reset re-arms it.
	q.Reset()
	q.Enqueue(7)
	v, ok := q.WaitDequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestWaitDequeueContextCancellationIsNotSticky(t *testing.T) {
	q := New[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.WaitDequeue(ctx)
	assert.False(t, ok)

	q.Enqueue(42)
	v, ok := q.WaitDequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestEveryEnqueueDequeuedExactlyOnceUnderContention(t *testing.T) {
	q := New[int]()
	const n = 200

	var wg sync.WaitGroup
	seen := make([]int32, n)
	var mu sync.Mutex
	count := 0

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.WaitDequeue(context.Background())
				if !ok {
					return
				}
				mu.Lock()
				seen[v]++
				count++
				done := count == n
				mu.Unlock()
				if done {
					q.BreakAllWaiters()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Enqueue(i)
	}

	wg.Wait()

	for i, c := range seen {
		assert.Equal(t, int32(1), c, "item %d dequeued %d times", i, c)
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
