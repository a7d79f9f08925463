package subtask_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

func TestQueueDequeuesHighestPriorityFirst(t *testing.T) {
	q := subtask.NewQueue(nil)

	low := &subtask.Subtask{ID: "low", Priority: subtask.Priority{Depth: 0, OpPriority: 0}}
	high := &subtask.Subtask{ID: "high", Priority: subtask.Priority{Depth: 2, OpPriority: 0}}
	mid := &subtask.Subtask{ID: "mid", Priority: subtask.Priority{Depth: 1, OpPriority: 5}}

	require.NoError(t, q.Enqueue(low))
	require.NoError(t, q.Enqueue(high))
	require.NoError(t, q.Enqueue(mid))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "high", first.ID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "mid", second.ID)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "low", third.ID)

	require.True(t, q.IsEmpty())
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := subtask.NewQueue(nil)
	q.Start()
	defer q.Stop()

	result := make(chan *subtask.Subtask, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s, err := q.Dequeue(ctx)
		if err == nil {
			result <- s
		} else {
			result <- nil
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue(&subtask.Subtask{ID: "s1"}))

	select {
	case s := <-result:
		require.NotNil(t, s)
		require.Equal(t, "s1", s.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dequeue")
	}
}

func TestQueueEnqueueRejectsWhenFull(t *testing.T) {
	q := subtask.NewQueue(&subtask.QueueConfig{MaxSize: 1, Timeout: time.Second})
	require.NoError(t, q.Enqueue(&subtask.Subtask{ID: "a"}))
	require.Error(t, q.Enqueue(&subtask.Subtask{ID: "b"}))
}
