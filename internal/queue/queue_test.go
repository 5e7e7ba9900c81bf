package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{name: "zero", capacity: 0},
		{name: "negative", capacity: -1},
		{name: "too large", capacity: MaxCapacity + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New[int](tt.capacity)
			assert.Error(t, err)
			assert.Nil(t, q)
		})
	}
}

func TestQueue_FIFO(t *testing.T) {
	q, err := New[int](8)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Offer(i), "Offer MUST succeed below capacity")
	}
	assert.Equal(t, 8, q.Len())

	for i := 0; i < 8; i++ {
		v, err := q.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v, "items MUST come out in offer order")
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RejectsWhenFull(t *testing.T) {
	q, err := New[string](2)
	require.NoError(t, err)

	require.NoError(t, q.Offer("a"))
	require.NoError(t, q.Offer("b"))
	assert.ErrorIs(t, q.Offer("c"), ErrFull)

	// accepted items are never overwritten
	v, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	require.NoError(t, q.Offer("c"), "Offer MUST succeed once space is freed")

	v, _ = q.TryReceive()
	assert.Equal(t, "b", v)
	v, _ = q.TryReceive()
	assert.Equal(t, "c", v)

	m := q.GetMetrics()
	assert.EqualValues(t, 3, m.Accepted)
	assert.EqualValues(t, 1, m.Rejected)
	assert.EqualValues(t, 3, m.Delivered)
}

func TestQueue_DrainsAfterClose(t *testing.T) {
	q, err := New[int](4)
	require.NoError(t, err)

	require.NoError(t, q.Offer(1))
	require.NoError(t, q.Offer(2))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Offer(3), ErrClosed, "Offer MUST fail after Close")

	ctx := context.Background()
	v, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-q.Done():
	default:
		t.Fatal("Done MUST be closed after Close")
	}
}

func TestQueue_ReceiveHonoursContext(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ReceiveWakesOnOffer(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	got := make(chan int, 1)
	go func() {
		v, err := q.Receive(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Offer(42))

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Receive MUST wake up on Offer")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const producers, perProducer = 4, 50

	q, err := New[int](producers * perProducer)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Offer(base+i))
			}
		}(p * perProducer)
	}
	wg.Wait()
	q.Close()

	seen := make(map[int]bool)
	for {
		v, err := q.Receive(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)
			break
		}
		seen[v] = true
	}
	assert.Len(t, seen, producers*perProducer, "no accepted item MUST be lost")
}
