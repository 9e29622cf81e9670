package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-match/internal/normalize"
)

// Aggregator buffers entity operations for one dataset and writes them
// to a generation in bounded batches.
//
// In merge mode (full loads) entities sharing an ID are merged in the
// buffer and written as merge operations, so fragments spread over
// several batches are merged by the backend too. Otherwise (deltas) the
// latest operation per ID wins and is written as a replace or delete.
type Aggregator struct {
	backend   driven.IndexBackend
	model     *domain.Model
	index     string
	dataset   string
	batchSize int
	merge     bool

	ops     []domain.IndexOp
	pending map[string]int
	written int
}

// NewAggregator creates an aggregator writing into index.
func NewAggregator(
	backend driven.IndexBackend,
	model *domain.Model,
	index, dataset string,
	batchSize int,
	merge bool,
) *Aggregator {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Aggregator{
		backend:   backend,
		model:     model,
		index:     index,
		dataset:   dataset,
		batchSize: batchSize,
		merge:     merge,
		pending:   make(map[string]int),
	}
}

// Add buffers one operation and flushes when the batch is full.
func (a *Aggregator) Add(ctx context.Context, op domain.EntityOp) error {
	e := op.Entity
	if e.ID == "" {
		return fmt.Errorf("%w: entity without id in %s", domain.ErrInvalidInput, a.dataset)
	}
	if op.Op != domain.OpDelete {
		if a.model.Get(e.Schema) == nil {
			return fmt.Errorf("%w: entity %s has unknown schema %q", domain.ErrInvalidInput, e.ID, e.Schema)
		}
		if !slices.Contains(e.Datasets, a.dataset) {
			e.Datasets = append(slices.Clone(e.Datasets), a.dataset)
		}
	}

	if i, ok := a.pending[e.ID]; ok {
		if a.merge && op.Op != domain.OpDelete {
			prev := a.ops[i].Document.Entity
			prev.Merge(a.model, &e)
			a.ops[i] = a.indexOp(domain.IndexMerge, &prev)
			return nil
		}
		a.ops[i] = a.indexOp(a.opType(op.Op), &e)
		return nil
	}

	a.pending[e.ID] = len(a.ops)
	a.ops = append(a.ops, a.indexOp(a.opType(op.Op), &e))
	if len(a.ops) >= a.batchSize {
		return a.Flush(ctx)
	}
	return nil
}

// Flush writes buffered operations.
func (a *Aggregator) Flush(ctx context.Context) error {
	if len(a.ops) == 0 {
		return nil
	}
	if err := a.backend.BulkWrite(ctx, a.index, a.ops); err != nil {
		return domain.BuildErrorf("write %s: %v", a.dataset, err)
	}
	a.written += len(a.ops)
	a.ops = a.ops[:0]
	clear(a.pending)
	return nil
}

// Written returns the number of operations written so far.
func (a *Aggregator) Written() int {
	return a.written
}

func (a *Aggregator) opType(op domain.EntityOpType) domain.IndexOpType {
	switch {
	case op == domain.OpDelete:
		return domain.IndexDelete
	case a.merge:
		return domain.IndexMerge
	default:
		return domain.IndexReplace
	}
}

func (a *Aggregator) indexOp(t domain.IndexOpType, e *domain.Entity) domain.IndexOp {
	if t == domain.IndexDelete {
		return domain.IndexOp{
			Type:     t,
			Document: domain.IndexDocument{Dataset: a.dataset, Entity: domain.Entity{ID: e.ID}},
		}
	}
	return domain.IndexOp{Type: t, Document: normalize.Document(a.model, a.dataset, e)}
}
