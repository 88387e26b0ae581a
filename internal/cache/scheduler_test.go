package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTasks(t *testing.T) {
	s := NewScheduler(3, 10)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Submit(func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	s.Close()
	require.Equal(t, int32(10), n.Load())
}

func TestSchedulerRejectsWhenQueueFull(t *testing.T) {
	s := NewScheduler(1, 1)
	started := make(chan struct{})
	block := make(chan struct{})

	require.NoError(t, s.Submit(func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	require.NoError(t, s.Submit(func(context.Context) error { return nil }))
	require.ErrorIs(t, s.Submit(func(context.Context) error { return nil }), ErrQueueFull)

	close(block)
	s.Close()
}

func TestSchedulerRejectsAfterClose(t *testing.T) {
	s := NewScheduler(1, 1)
	s.Close()
	s.Close()

	require.ErrorIs(t, s.Submit(func(context.Context) error { return nil }), ErrSchedulerClosed)
}

func TestSchedulerSurvivesPanicsAndErrors(t *testing.T) {
	s := NewScheduler(1, 4)

	var ran atomic.Bool
	require.NoError(t, s.Submit(func(context.Context) error { panic("boom") }))
	require.NoError(t, s.Submit(func(context.Context) error { return errors.New("failed") }))
	require.NoError(t, s.Submit(func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	s.Close()

	require.True(t, ran.Load())
}
