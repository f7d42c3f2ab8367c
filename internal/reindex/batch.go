package reindex

import (
	"context"

	"github.com/jackzampolin/mdindex/internal/store"
)

// PendingBatch buffers AUs for the pending queue and writes them in groups
// of at most size rows.
type PendingBatch struct {
	st    store.Store
	size  int
	full  bool
	buf   []store.AuRef
	added int
}

// NewPendingBatch creates a batch. fullReindex flags every AU it adds.
func NewPendingBatch(st store.Store, size int, fullReindex bool) *PendingBatch {
	if size <= 0 {
		size = 1000
	}
	return &PendingBatch{st: st, size: size, full: fullReindex}
}

// Add buffers an AU, flushing when the batch is full.
func (b *PendingBatch) Add(ctx context.Context, au store.AuRef) error {
	b.buf = append(b.buf, au)
	if len(b.buf) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered AUs.
func (b *PendingBatch) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	var n int
	err := b.st.WithTx(ctx, func(tx store.Store) error {
		var err error
		n, err = tx.AddPendingAus(ctx, b.buf, b.full)
		return err
	})
	if err != nil {
		return err
	}
	b.added += n
	b.buf = b.buf[:0]
	return nil
}

// Added returns the number of rows inserted so far.
func (b *PendingBatch) Added() int {
	return b.added
}
