package transporttest

import (
	"context"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSocket_DropPolicy(t *testing.T) {
	s := NewSimulatedSocket(Config{Drop: DropSeq(1)})

	assert.True(t, s.Deliver([]byte{0}))
	assert.False(t, s.Deliver([]byte{1}))
	assert.True(t, s.Deliver([]byte{2}))

	first, err := s.ReadMessage()
	require.NoError(t, err)
	second, err := s.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, first)
	assert.Equal(t, []byte{2}, second)

	assert.Equal(t, 1, s.Dropped())
	log := s.Log()
	require.Len(t, log, 3)
	assert.True(t, log[1].Dropped)
	assert.Equal(t, Inbound, log[1].Direction)
}

func TestSimulatedSocket_EchoAndSent(t *testing.T) {
	s := NewSimulatedSocket(Config{Echo: true})
	require.NoError(t, s.WriteMessage([]byte{7, 8}))

	got, err := s.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, got)
	assert.Equal(t, [][]byte{{7, 8}}, s.Sent())
}

func TestSimulatedSocket_PeerClose(t *testing.T) {
	s := NewSimulatedSocket(Config{})
	s.CloseFromPeer(4002, "ended")

	_, err := s.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4002, ce.Code)
	assert.Equal(t, "ended", ce.Text)
	assert.ErrorIs(t, s.WriteMessage([]byte{1}), ErrSocketClosed)

	_, ok := s.ClientClose()
	assert.False(t, ok)
}

func TestSimulatedSocket_ClientClose(t *testing.T) {
	s := NewSimulatedSocket(Config{})
	require.NoError(t, s.Close(websocket.CloseNormalClosure, "bye"))
	require.NoError(t, s.Close(websocket.CloseGoingAway, ""))

	info, ok := s.ClientClose()
	require.True(t, ok)
	assert.Equal(t, websocket.CloseNormalClosure, info.Code)
	assert.True(t, s.Closed())

	_, err := s.ReadMessage()
	assert.ErrorIs(t, err, ErrSocketClosed)
}

func TestDialer(t *testing.T) {
	s := NewSimulatedSocket(Config{})
	d := &Dialer{Socket: s}

	got, err := d.Dial(context.Background(), "sim://stream")
	require.NoError(t, err)
	assert.Same(t, s, got)

	d.Err = errors.New("refused")
	_, err = d.Dial(context.Background(), "sim://stream")
	assert.Error(t, err)
	assert.Equal(t, 2, d.Dials())
}
