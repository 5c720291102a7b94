package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

type quietBoundary struct{}

func (quietBoundary) Available() bool                              { return true }
func (quietBoundary) Invoke(context.Context, Request) error        { return nil }
func (quietBoundary) Cancel(context.Context, string, string) error { return nil }

// A resolve that picked up the stream entry just before Stop must not
// reach the handler once Stop has returned.
func TestSubscribe_NoEventAfterStopReturns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeReal
	cfg.RateLimit.Enabled = false
	cfg.Breaker.Enabled = false
	br, err := New(cfg, quietBoundary{}, nil, utils.NopLogger())
	require.NoError(t, err)
	defer br.Close()

	var got []string
	sub, err := Subscribe(context.Background(), br.Dispatcher(), "onVisibilityChanged", TagString, nil,
		func(v string) { got = append(got, v) })
	require.NoError(t, err)

	br.table.mu.Lock()
	held := br.table.entries[sub.ID()]
	br.table.mu.Unlock()
	require.NotNil(t, held)

	held.fn("before")
	sub.Stop()
	held.fn("after")

	assert.Equal(t, []string{"before"}, got)
	assert.Zero(t, br.Table().Len())
}
