package embed

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// PointCandidate is a single embedded chunk ready for the point mapper:
// its point id, vector, and payload fields (spec §4.2's
// "embed_chunks(list) -> list of (point_id, vector, payload)" contract).
// The mapper that fills in PointID/Payload lives in internal/pointid and
// internal/syncengine; Pool only owns the encode_batch half.
type PointCandidate struct {
	Text   string
	Vector []float32
}

// Pool bounds a stateless Embedder behind a maximum batch size B and a
// maximum concurrent encode count N, following the donor's
// MinBatchSize/MaxBatchSize/DefaultBatchSize constants. encode_batch
// preserves input order and always returns exactly len(texts) vectors; on
// any sub-batch failure the whole call fails (spec §4.2).
type Pool struct {
	inner          Embedder
	maxBatchSize   int
	maxConcurrency int
	sem            *semaphore.Weighted
}

// NewPool wraps inner with batch-size bound B and concurrency bound N.
// B is clamped to [MinBatchSize, MaxBatchSize]; N defaults to 1 if <= 0.
func NewPool(inner Embedder, maxBatchSize, maxConcurrency int) *Pool {
	if maxBatchSize < MinBatchSize {
		maxBatchSize = MinBatchSize
	}
	if maxBatchSize > MaxBatchSize {
		maxBatchSize = MaxBatchSize
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Pool{
		inner:          inner,
		maxBatchSize:   maxBatchSize,
		maxConcurrency: maxConcurrency,
		sem:            semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// EncodeBatch embeds every text in texts, preserving order. It splits
// texts into sub-batches of at most the pool's max batch size and runs up
// to maxConcurrency of them at once. If any sub-batch fails the whole call
// fails; no partial results are returned.
func (p *Pool) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type subBatch struct {
		start int
		texts []string
	}
	var batches []subBatch
	for start := 0; start < len(texts); start += p.maxBatchSize {
		end := start + p.maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, subBatch{start: start, texts: texts[start:end]})
	}

	results := make([][]float32, len(texts))
	errCh := make(chan error, len(batches))

	for _, b := range batches {
		b := b
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire embed slot: %w", err)
		}
		go func() {
			defer p.sem.Release(1)
			vecs, err := p.inner.EmbedBatch(ctx, b.texts)
			if err != nil {
				errCh <- fmt.Errorf("embed sub-batch at offset %d: %w", b.start, err)
				return
			}
			if len(vecs) != len(b.texts) {
				errCh <- fmt.Errorf("embed sub-batch at offset %d: expected %d vectors, got %d", b.start, len(b.texts), len(vecs))
				return
			}
			for i, v := range vecs {
				results[b.start+i] = v
			}
			errCh <- nil
		}()
	}

	// Drain in sequence: once every goroutine has reported, the semaphore
	// guarantees no more than maxConcurrency were ever in flight.
	for range batches {
		if err := <-errCh; err != nil {
			return nil, err
		}
	}

	return results, nil
}

// Dimensions delegates to the wrapped embedder.
func (p *Pool) Dimensions() int { return p.inner.Dimensions() }

// Close releases the wrapped embedder's resources.
func (p *Pool) Close() error { return p.inner.Close() }
