package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BatchLoader collects Load calls issued within a short window and resolves
// them with one fetch. Keys are deduplicated per batch; nothing is cached
// across batches.
type BatchLoader[K comparable, V any] struct {
	fetch    func(context.Context, []K) ([]V, []error)
	wait     time.Duration
	maxBatch int

	mu    sync.Mutex
	batch []batchRequest[K, V]
	timer *time.Timer
}

type batchRequest[K comparable, V any] struct {
	key    K
	result chan result[V]
}

type result[V any] struct {
	value V
	err   error
}

// NewBatchLoader creates a batch loader; fetch must return values aligned
// with the keys it receives
func NewBatchLoader[K comparable, V any](
	fetch func(context.Context, []K) ([]V, []error),
	wait time.Duration,
	maxBatch int,
) *BatchLoader[K, V] {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if wait <= 0 {
		wait = 2 * time.Millisecond
	}

	return &BatchLoader[K, V]{
		fetch:    fetch,
		wait:     wait,
		maxBatch: maxBatch,
	}
}

// Load loads a single value
func (l *BatchLoader[K, V]) Load(ctx context.Context, key K) (V, error) {
	ch := make(chan result[V], 1)

	l.mu.Lock()
	l.batch = append(l.batch, batchRequest[K, V]{key: key, result: ch})

	if len(l.batch) >= l.maxBatch {
		batch := l.takeBatchLocked()
		l.mu.Unlock()
		go l.executeBatch(ctx, batch)
	} else {
		if l.timer == nil {
			l.timer = time.AfterFunc(l.wait, func() {
				l.mu.Lock()
				batch := l.takeBatchLocked()
				l.mu.Unlock()
				l.executeBatch(ctx, batch)
			})
		}
		l.mu.Unlock()
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// LoadAll loads multiple values; the first error wins
func (l *BatchLoader[K, V]) LoadAll(ctx context.Context, keys []K) ([]V, error) {
	results := make([]V, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, key := range keys {
		go func(idx int, k K) {
			defer wg.Done()
			results[idx], errs[idx] = l.Load(ctx, k)
		}(i, key)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (l *BatchLoader[K, V]) takeBatchLocked() []batchRequest[K, V] {
	batch := l.batch
	l.batch = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	return batch
}

func (l *BatchLoader[K, V]) executeBatch(ctx context.Context, batch []batchRequest[K, V]) {
	if len(batch) == 0 {
		return
	}

	// Уникальные ключи в порядке первого появления
	position := make(map[K]int, len(batch))
	keys := make([]K, 0, len(batch))
	for _, req := range batch {
		if _, seen := position[req.key]; !seen {
			position[req.key] = len(keys)
			keys = append(keys, req.key)
		}
	}

	values, errs := l.fetch(ctx, keys)

	for _, req := range batch {
		i := position[req.key]
		r := result[V]{}
		switch {
		case i < len(errs) && errs[i] != nil:
			r.err = errs[i]
		case i < len(values):
			r.value = values[i]
		default:
			r.err = fmt.Errorf("batch fetch returned %d values for %d keys", len(values), len(keys))
		}
		// buffered, the waiter may already be gone
		req.result <- r
	}
}
