package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetAs loads one document and decodes it into T.
func GetAs[T any](ctx context.Context, c Collection, collection, id string) (T, error) {
	var out T
	raw, err := c.Get(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return out, nil
}

// DecodeAll decodes raw documents into a slice of T.
func DecodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// UpdateAs is Update with decode/encode of T around fn. It returns the value that was stored.
func UpdateAs[T any](ctx context.Context, c Collection, collection, id string, fn func(*T) error) (T, error) {
	var stored T
	err := c.Update(ctx, collection, id, func(current json.RawMessage) (json.RawMessage, error) {
		var v T
		if err := json.Unmarshal(current, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		next, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		stored = v
		return next, nil
	})
	return stored, err
}
