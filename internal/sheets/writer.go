// Package sheets writes tabular run results to a spreadsheet.
package sheets

import (
	"context"
	"slices"
	"sync"
)

// Batch is every row a run writes to one sheet. It is written as a single
// logical operation; rows of different runs never interleave.
type Batch struct {
	Sheet  string
	Header []string
	Rows   [][]string
	// Clear replaces the sheet content instead of appending to it.
	Clear bool
}

// Writer writes a batch to a spreadsheet.
type Writer interface {
	WriteBatch(ctx context.Context, batch Batch) error
}

// MemoryWriter is an in-memory Writer with the same semantics as the Google
// implementation.
type MemoryWriter struct {
	mu      sync.Mutex
	sheets  map[string][][]string
	batches int
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{sheets: make(map[string][][]string)}
}

func (w *MemoryWriter) WriteBatch(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.batches++
	existing := w.sheets[batch.Sheet]
	if batch.Clear || len(existing) == 0 || !slices.Equal(existing[0], batch.Header) {
		existing = [][]string{slices.Clone(batch.Header)}
	}
	for _, row := range batch.Rows {
		existing = append(existing, slices.Clone(row))
	}
	w.sheets[batch.Sheet] = existing
	return nil
}

// Sheet returns a copy of the content of sheet, header first.
func (w *MemoryWriter) Sheet(sheet string) [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := make([][]string, 0, len(w.sheets[sheet]))
	for _, row := range w.sheets[sheet] {
		rows = append(rows, slices.Clone(row))
	}
	return rows
}

// Batches is the number of WriteBatch calls received.
func (w *MemoryWriter) Batches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}
