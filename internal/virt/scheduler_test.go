package virt

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerCoalesce(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	runs := 0
	assert.True(t, s.Coalesce("render", func() { runs++ }))
	assert.False(t, s.Coalesce("render", func() { runs++ }))
	assert.True(t, s.Pending("render"))

	assert.Equal(t, 1, s.Tick())
	assert.Equal(t, 1, runs)
	assert.False(t, s.Pending("render"))
	assert.True(t, s.Coalesce("render", func() { runs++ }))
}

func TestSchedulerTickDefersNewWork(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	var order []string
	s.Post(func() {
		order = append(order, "first")
		s.Post(func() { order = append(order, "second") })
	})

	assert.Equal(t, 1, s.Tick())
	assert.Equal(t, []string{"first"}, order)
	assert.Equal(t, 1, s.Flush())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSchedulerFlushIsBounded(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	var again func()
	again = func() { s.Post(again) }
	s.Post(again)

	assert.Equal(t, maxFlushTicks, s.Flush())
	assert.Equal(t, 1, s.Len())
}

func TestSchedulerRun(t *testing.T) {
	t.Parallel()
	s := NewScheduler()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var ran atomic.Int32
	for range 5 {
		s.Post(func() { ran.Add(1) })
	}
	require.Eventually(t, func() bool { return ran.Load() == 5 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
