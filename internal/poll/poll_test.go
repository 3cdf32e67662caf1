package poll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoller_DoublesUpToMax(t *testing.T) {
	p := New(time.Millisecond, 5*time.Millisecond)

	assert.Equal(t, time.Millisecond, p.Next())
	assert.Equal(t, 2*time.Millisecond, p.Next())
	assert.Equal(t, 4*time.Millisecond, p.Next())
	assert.Equal(t, 5*time.Millisecond, p.Next())
	assert.Equal(t, 5*time.Millisecond, p.Next())

	p.Reset()
	assert.Equal(t, time.Millisecond, p.Next())
}

func TestPoller_Defaults(t *testing.T) {
	p := New(0, 0)

	assert.Equal(t, DefaultMinWait, p.Next())
	assert.Equal(t, DefaultMinWait, p.Next(), "max is raised to the min")
}

func TestPoller_WaitHonoursContext(t *testing.T) {
	p := New(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
