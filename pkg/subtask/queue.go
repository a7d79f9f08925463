package subtask

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// QueueConfig tunes the dispatch Queue.
type QueueConfig struct {
	MaxSize int
	Timeout time.Duration
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{MaxSize: 10000, Timeout: 30 * time.Second}
}

// QueueMetrics tracks queue performance.
type QueueMetrics struct {
	TotalEnqueued   int64
	TotalDequeued   int64
	CurrentSize     int64
	AverageWaitTime time.Duration
	MaxWaitTime     time.Duration
	LastUpdated     time.Time
}

type queueItem struct {
	subtask   *Subtask
	enqueued  time.Time
	heapIndex int
}

// subtaskHeap is a max-heap ordered by Subtask.Priority (highest dispatched
// first), the continuous (depth, op-priority) tuple §4.1/§8 invariant 2
// requires — unlike the teacher's fixed high/normal/low buckets, a subtask's
// priority is a two-field tuple that needs exact ordering, not bucketing.
type subtaskHeap []*queueItem

func (h subtaskHeap) Len() int { return len(h) }
func (h subtaskHeap) Less(i, j int) bool {
	return h[i].subtask.Priority.Less(h[j].subtask.Priority)
}
func (h subtaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *subtaskHeap) Push(x any) {
	item := x.(*queueItem)
	item.heapIndex = len(*h)
	*h = append(*h, item)
}
func (h *subtaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the subtask dispatch priority queue the Actor Pool's task
// manager dequeues from, ordered by Subtask.Priority and grounded on the
// teacher's TaskQueue lifecycle conventions (config, metrics, ctx+cancel
// shutdown), adapted from a 3-bucket channel design to a heap so that the
// (depth, op_priority) tuple orders exactly rather than by coarse bucket.
type Queue struct {
	config *QueueConfig

	mu      sync.Mutex
	cond    *sync.Cond
	items   subtaskHeap
	metrics QueueMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a dispatch queue; a nil config uses DefaultQueueConfig.
func NewQueue(config *QueueConfig) *Queue {
	if config == nil {
		config = DefaultQueueConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config:  config,
		metrics: QueueMetrics{LastUpdated: time.Now()},
		ctx:     ctx,
		cancel:  cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the queue's background metrics bookkeeping.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.metricsLoop()
}

// Stop shuts the queue down and wakes any blocked Dequeue callers.
func (q *Queue) Stop() {
	q.cancel()
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a subtask to the queue, returning an error if the queue is
// full.
func (q *Queue) Enqueue(s *Subtask) error {
	if s == nil {
		return fmt.Errorf("subtask: cannot enqueue nil subtask")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.config.MaxSize {
		return fmt.Errorf("subtask: queue full (max %d)", q.config.MaxSize)
	}
	heap.Push(&q.items, &queueItem{subtask: s, enqueued: time.Now()})
	q.metrics.TotalEnqueued++
	q.metrics.CurrentSize = int64(len(q.items))
	q.metrics.LastUpdated = time.Now()
	q.cond.Signal()
	return nil
}

// Dequeue removes and returns the highest-priority subtask, blocking until
// one is available, the context is done, or the queue is stopped.
func (q *Queue) Dequeue(ctx context.Context) (*Subtask, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.ctx.Err() != nil {
			return nil, fmt.Errorf("subtask: queue stopped")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.cond.Wait()
	}
	item := heap.Pop(&q.items).(*queueItem)
	waitTime := time.Since(item.enqueued)
	q.metrics.TotalDequeued++
	q.metrics.CurrentSize = int64(len(q.items))
	if waitTime > q.metrics.MaxWaitTime {
		q.metrics.MaxWaitTime = waitTime
	}
	if q.metrics.TotalDequeued == 1 {
		q.metrics.AverageWaitTime = waitTime
	} else {
		q.metrics.AverageWaitTime = (q.metrics.AverageWaitTime + waitTime) / 2
	}
	q.metrics.LastUpdated = time.Now()
	return item.subtask, nil
}

// TryDequeue is a non-blocking Dequeue: returns (nil, false) if empty.
func (q *Queue) TryDequeue() (*Subtask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	q.metrics.TotalDequeued++
	q.metrics.CurrentSize = int64(len(q.items))
	q.metrics.LastUpdated = time.Now()
	return item.subtask, true
}

// Metrics returns a snapshot of the queue's metrics.
func (q *Queue) Metrics() QueueMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics
}

// Size returns the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether the queue currently holds no subtasks.
func (q *Queue) IsEmpty() bool { return q.Size() == 0 }

func (q *Queue) metricsLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.mu.Lock()
			q.metrics.LastUpdated = time.Now()
			q.mu.Unlock()
		}
	}
}
