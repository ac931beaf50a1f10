package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPoll(t *testing.T) {
	c := NewChannel(4, 0)

	var got [][]byte
	handle := func(frame []byte) { got = append(got, append([]byte(nil), frame...)) }

	require.NoError(t, c.Poll(handle))
	assert.Empty(t, got)

	frame := []byte{1, 2, 3}
	c.Inject(frame)
	frame[0] = 9
	require.NoError(t, c.Poll(handle))
	require.Len(t, got, 1)
	assert.Equal(t, []byte{1, 2, 3}, got[0])
}

func TestChannelPollWaits(t *testing.T) {
	c := NewChannel(1, time.Second)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Inject([]byte{7})
	}()

	var got []byte
	require.NoError(t, c.Poll(func(frame []byte) { got = frame }))
	assert.Equal(t, []byte{7}, got)
}

func TestChannelTransmit(t *testing.T) {
	c := NewChannel(1, 0)
	c.Transmit([]byte{1})
	c.Transmit([]byte{2})

	assert.Equal(t, []byte{1}, <-c.Sent())
	assert.Equal(t, int64(1), c.Dropped())
}

func TestChannelReset(t *testing.T) {
	c := NewChannel(2, 0)
	c.Inject([]byte{1})
	require.NoError(t, c.Reset())
	require.NoError(t, c.SetPromiscuous(true))

	polled := false
	require.NoError(t, c.Poll(func([]byte) { polled = true }))
	assert.False(t, polled, "reset discards pending frames")
	assert.Equal(t, 1, c.Resets())
	assert.True(t, c.Promiscuous())
}

func TestLinkState(t *testing.T) {
	c := NewChannel(1, 0)
	assert.True(t, LinkState(c))
	c.SetLink(false)
	assert.False(t, LinkState(c))
}
