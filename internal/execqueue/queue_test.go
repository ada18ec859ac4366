package execqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSerialOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, 8)

	var mu sync.Mutex
	var order []int

	for i := 1; i <= 3; i++ {
		i := i
		q.Enqueue(ctx, func(ctx context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
	}

	require.NoError(t, q.WaitForIdle(context.Background()))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestCancelPendingJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(ctx, 8)

	var mu sync.Mutex
	var order []int

	started := make(chan struct{})
	block := make(chan struct{})

	j1 := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		close(started)
		<-block
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		return nil, nil
	})
	_ = j1

	j2 := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		return nil, nil
	})
	j3 := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		mu.Lock()
		order = append(order, 3)
		mu.Unlock()
		return nil, nil
	})

	<-started
	j2.Cancel()
	close(block)

	require.NoError(t, q.WaitForIdle(context.Background()))
	_, err := j2.Await(context.Background())
	require.ErrorIs(t, err, ErrCancelled)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 3}, order)
	require.Equal(t, StatusCompleted, j3.Status())
}
