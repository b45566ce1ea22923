package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and by callers that do not persist.
type Memory struct {
	mu      sync.Mutex
	table   *Table
	records int
}

func NewMemory(rows ...Row) *Memory {
	return &Memory{table: NewTable(rows...)}
}

func (m *Memory) Load(context.Context) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return NewTable(m.table.Rows()...), nil
}

func (m *Memory) Get(_ context.Context, localPath string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.table.Get(localPath)
	if !ok {
		return Row{}, ErrNotFound
	}

	return r, nil
}

func (m *Memory) Record(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table.Upsert(row)
	m.records++

	return nil
}

// Records returns how many times Record was called.
func (m *Memory) Records() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.records
}

func (m *Memory) Close() error {
	return nil
}
