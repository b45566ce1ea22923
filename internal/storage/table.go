package storage

import (
	"github.com/italolelis/enadl/internal/transfer"
)

// Table is an ordered set of rows keyed by local path. Replacing a row keeps its position,
// so the order is stable for a given batch order. A Table is not safe for concurrent use.
type Table struct {
	rows  []Row
	index map[string]int
}

// NewTable builds a table from rows. Later rows replace earlier rows with the same path.
func NewTable(rows ...Row) *Table {
	t := &Table{index: make(map[string]int, len(rows))}
	for _, r := range rows {
		t.Upsert(r)
	}

	return t
}

// Upsert replaces the row with the same LocalPath in place, or appends it.
func (t *Table) Upsert(r Row) {
	if t.index == nil {
		t.index = make(map[string]int)
	}

	if i, ok := t.index[r.LocalPath]; ok {
		t.rows[i] = r

		return
	}

	t.index[r.LocalPath] = len(t.rows)
	t.rows = append(t.rows, r)
}

// Get returns the row stored for localPath.
func (t *Table) Get(localPath string) (Row, bool) {
	if t == nil {
		return Row{}, false
	}

	i, ok := t.index[localPath]
	if !ok {
		return Row{}, false
	}

	return t.rows[i], true
}

// Rows returns a copy of the rows in table order.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}

	out := make([]Row, len(t.rows))
	copy(out, t.rows)

	return out
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return len(t.rows)
}

// WithStatus returns the rows whose status is s, in table order.
func (t *Table) WithStatus(s transfer.Status) []Row {
	var out []Row

	for _, r := range t.Rows() {
		if r.Status == s {
			out = append(out, r)
		}
	}

	return out
}

// Merge returns a new table holding t's rows with every row of other applied on top.
// Rows of t that other does not mention are kept unchanged.
func (t *Table) Merge(other *Table) *Table {
	merged := NewTable(t.Rows()...)
	for _, r := range other.Rows() {
		merged.Upsert(r)
	}

	return merged
}

// Counts returns the number of rows per status.
func (t *Table) Counts() map[transfer.Status]int {
	counts := map[transfer.Status]int{
		transfer.StatusOK:     0,
		transfer.StatusExists: 0,
		transfer.StatusError:  0,
	}

	for _, r := range t.Rows() {
		counts[r.Status]++
	}

	return counts
}
