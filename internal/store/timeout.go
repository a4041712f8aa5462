package store

import (
	"context"
	"encoding/json"
	"time"
)

// WithTimeout bounds every call on c by d. Callers that already carry a shorter
// deadline keep it. A non-positive d returns c unchanged.
func WithTimeout(c Collection, d time.Duration) Collection {
	if d <= 0 {
		return c
	}
	return bounded{next: c, timeout: d}
}

type bounded struct {
	next    Collection
	timeout time.Duration
}

func (b bounded) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Get(ctx, collection, id)
}

func (b bounded) Put(ctx context.Context, collection, id string, record any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Put(ctx, collection, id, record)
}

func (b bounded) QueryByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.QueryByField(ctx, collection, field, value)
}

func (b bounded) ListAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.ListAll(ctx, collection)
}

func (b bounded) Update(ctx context.Context, collection, id string, fn func(current json.RawMessage) (json.RawMessage, error)) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Update(ctx, collection, id, fn)
}
