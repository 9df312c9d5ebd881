package protocol

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderWriterRoundTrip(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()
	defer host.Close()

	writer := NewWriter(host)
	reader := NewReader(client)

	done := make(chan error, 1)
	go func() {
		done <- writer.WriteHostMessage(HostMessage{Type: TypeOutput, Payload: []byte("hello")})
	}()

	typ, payload, err := reader.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, byte(TypeOutput), typ)
	assert.Equal(t, []byte("hello"), payload)
}

func TestReaderWriterRoundTripClientMessage(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()
	defer host.Close()

	writer := NewWriter(client)
	reader := NewReader(host)

	done := make(chan error, 1)
	go func() {
		done <- writer.WriteClientMessage(ClientMessage{Type: TypeResize, Cols: 100, Rows: 30})
	}()

	typ, payload, err := reader.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)

	decoded, err := DecodeClientMessage(typ, payload)
	require.NoError(t, err)
	assert.Equal(t, TypeResize, decoded.Type)
	assert.Equal(t, uint16(100), decoded.Cols)
	assert.Equal(t, uint16(30), decoded.Rows)
}

func TestReaderTryReadFrameWouldBlock(t *testing.T) {
	client, host := net.Pipe()
	defer client.Close()
	defer host.Close()

	reader := NewReader(client)
	_, _, err := reader.TryReadFrame()
	assert.ErrorIs(t, err, ErrWouldBlock)
}
