package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGracefulShutdown_ReverseOrder(t *testing.T) {
	g := NewGracefulShutdown(time.Second, NopLogger())

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"storage", "boundary", "bridge"} {
		name := name
		g.Register(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, g.Shutdown(context.Background()))
	assert.Equal(t, []string{"bridge", "boundary", "storage"}, order)

	// second call runs nothing
	require.NoError(t, g.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestGracefulShutdown_FirstErrorWins(t *testing.T) {
	g := NewGracefulShutdown(time.Second, NopLogger())
	errFirst := errors.New("first")

	ran := 0
	g.Register("late", func(context.Context) error { ran++; return errors.New("second") })
	g.Register("early", func(context.Context) error { ran++; return errFirst })

	err := g.Shutdown(context.Background())
	assert.ErrorIs(t, err, errFirst)
	assert.Contains(t, err.Error(), "early")
	assert.Equal(t, 2, ran, "a failing hook does not stop the rest")
}

func TestGracefulShutdown_Timeout(t *testing.T) {
	g := NewGracefulShutdown(20*time.Millisecond, NopLogger())
	g.Register("stuck", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	err := g.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
