package kv

import (
	"context"
	"errors"
)

// Store is a synchronous key to string store.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")
