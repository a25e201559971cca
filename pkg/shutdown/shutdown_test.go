package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_RunsCleanupsInReverseOrder(t *testing.T) {
	h := New(nil, time.Second)

	var order []string
	h.Register(func(ctx context.Context) error { order = append(order, "redis"); return nil })
	h.Register(func(ctx context.Context) error { order = append(order, "nats"); return nil })
	h.RegisterNamed("qdrant", func(ctx context.Context) error { order = append(order, "qdrant"); return nil })

	require.NoError(t, h.Shutdown())
	assert.Equal(t, []string{"qdrant", "nats", "redis"}, order)
}

func TestShutdown_RunsOnceAndJoinsErrors(t *testing.T) {
	h := New(nil, time.Second)
	errA := errors.New("a failed")
	calls := 0
	h.Register(func(ctx context.Context) error { calls++; return errA })
	h.RegisterNamed("b", func(ctx context.Context) error { calls++; return nil })

	err := h.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)

	assert.Equal(t, err, h.Shutdown())
	assert.Equal(t, 2, calls)
}

func TestNotifyContext_StopCancels(t *testing.T) {
	h := New(nil, time.Second)
	ctx, stop := h.NotifyContext(context.Background())
	require.NoError(t, ctx.Err())

	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
