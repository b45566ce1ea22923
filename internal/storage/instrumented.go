package storage

import (
	"context"

	"github.com/italolelis/enadl/internal/telemetry"
)

// InstrumentedStore wraps a Store with telemetry.
type InstrumentedStore struct {
	store     Store
	backend   string
	telemetry *telemetry.Telemetry
}

// NewInstrumentedStore creates a new instrumented store. backend labels the metrics ("tsv", "sqlite").
func NewInstrumentedStore(store Store, backend string, tel *telemetry.Telemetry) *InstrumentedStore {
	return &InstrumentedStore{store: store, backend: backend, telemetry: tel}
}

func (s *InstrumentedStore) Load(ctx context.Context) (*Table, error) {
	var result *Table

	err := s.telemetry.InstrumentStoreOperation(ctx, s.backend, "load", func(ctx context.Context) error {
		var err error

		result, err = s.store.Load(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *InstrumentedStore) Get(ctx context.Context, localPath string) (Row, error) {
	var result Row

	err := s.telemetry.InstrumentStoreOperation(ctx, s.backend, "get", func(ctx context.Context) error {
		var err error

		result, err = s.store.Get(ctx, localPath)

		return err
	})

	return result, err
}

func (s *InstrumentedStore) Record(ctx context.Context, row Row) error {
	return s.telemetry.InstrumentStoreOperation(ctx, s.backend, "record", func(ctx context.Context) error {
		return s.store.Record(ctx, row)
	})
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
