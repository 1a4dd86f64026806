package upstream

import (
	"context"
	"errors"
)

// ErrUninitialized is returned by every operation on Uninitialized.
var ErrUninitialized = errors.New("upstream is not initialized; enter record or playback mode first")

// Uninitialized occupies the upstream slot while no session is active.
type Uninitialized struct{}

func (Uninitialized) Connect(context.Context) error { return ErrUninitialized }

func (Uninitialized) Send([]byte) error { return ErrUninitialized }

func (Uninitialized) Close() error { return ErrUninitialized }
