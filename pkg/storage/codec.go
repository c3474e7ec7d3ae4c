package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed indicates a stored value could not be decoded.
var ErrMalformed = errors.New("malformed stored value")

// Encode serializes v as JSON and wraps it in standard base64.
// This is obfuscation only: anyone with access to the store can decode it.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode into v.
func Decode(s string, v any) error {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// SetItem encodes v and stores it under key.
func SetItem(ctx context.Context, kv KV, key string, v any) error {
	encoded, err := Encode(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, encoded)
}

// GetItem loads and decodes the value stored under key into v.
// It returns ErrNotFound for absent keys and ErrMalformed for undecodable ones.
func GetItem(ctx context.Context, kv KV, key string, v any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw == "" {
		return ErrNotFound
	}
	return Decode(raw, v)
}

// RemoveItem deletes key.
func RemoveItem(ctx context.Context, kv KV, key string) error {
	return kv.Remove(ctx, key)
}
