package worker

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(3)
	var sum atomic.Int64
	done := make(chan struct{}, 10)

	pool.Setup(&tb, func(t *tomb.Tomb, task any) error {
		sum.Add(int64(task.(int)))
		done <- struct{}{}
		return nil
	})
	for i := 1; i <= 10; i++ {
		require.NoError(t, pool.AddTask(&tb, i))
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("task not run")
		}
	}

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
	assert.Equal(t, int64(55), sum.Load())
	assert.ErrorIs(t, pool.AddTask(&tb, 11), ErrPoolStopped)
}

func TestWorkerPool_ErrorKillsTomb(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(2)
	boom := errors.New("boom")

	pool.Setup(&tb, func(t *tomb.Tomb, task any) error {
		return boom
	})
	require.NoError(t, pool.AddTask(&tb, struct{}{}))

	assert.ErrorIs(t, tb.Wait(), boom)
}
