package net

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"gleipnir/internal/common"
	"gleipnir/internal/intake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrame(t *testing.T) {
	b := common.NewBuilder(1)
	order := b.GTC(10, -100)
	buy, sell := b.OCO(5, -90, 110, common.KindGTC)
	var stream bytes.Buffer
	require.NoError(t, WriteRecords(&stream, order, buy, sell))
	buf := make([]byte, FrameSize)

	first, peer, err := ReadFrame(&stream, buf)
	require.NoError(t, err)
	assert.Equal(t, order.Bytes(), first)
	assert.Nil(t, peer)

	first, peer, err = ReadFrame(&stream, buf)
	require.NoError(t, err)
	assert.Equal(t, buy.Bytes(), first)
	assert.Equal(t, sell.Bytes(), peer)

	_, _, err = ReadFrame(&stream, buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Truncated(t *testing.T) {
	buy, _ := common.NewBuilder(1).OCO(5, -90, 110, common.KindGTC)
	buf := make([]byte, FrameSize)

	_, _, err := ReadFrame(bytes.NewReader(buy.Bytes()), buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadFrame(bytes.NewReader(buy.Bytes()[:12]), buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadFrame(bytes.NewReader(nil), buf[:10])
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

type collectingSubmitter struct {
	mu      sync.Mutex
	records [][]byte
	err     error
}

func (c *collectingSubmitter) Submit(order, peer []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, append([]byte(nil), order...))
	if peer != nil {
		c.records = append(c.records, append([]byte(nil), peer...))
	}
	return nil
}

func (c *collectingSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func startServer(t *testing.T, submitter Submitter) (*Server, context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := New("127.0.0.1", 0, 2, submitter)
	require.NoError(t, srv.Listen(ctx))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	return srv, cancel, done
}

func TestServer_SubmitsFrames(t *testing.T) {
	submitter := &collectingSubmitter{}
	srv, cancel, done := startServer(t, submitter)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	b := common.NewBuilder(1)
	order := b.GTC(10, -100)
	buy, sell := b.OCO(5, -90, 110, common.KindGTC)
	require.NoError(t, WriteRecords(conn, order, buy, sell))

	assert.Eventually(t, func() bool { return submitter.count() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, sell.Bytes(), submitter.records[2])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, 0, srv.Sessions())
}

func TestServer_DropsClientWhenIntakeFull(t *testing.T) {
	submitter := &collectingSubmitter{err: intake.ErrIntakeFull}
	srv, cancel, done := startServer(t, submitter)
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteRecords(conn, common.NewBuilder(1).GTC(10, -100)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF, "the server hangs up")
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := New("127.0.0.1", 0, 1, &collectingSubmitter{})
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrNotListening)
}
