package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostMessageRoundTrip(t *testing.T) {
	cases := []HostMessage{
		{Type: TypeSnapshot, Payload: []byte("\x1b[2Jhello")},
		{Type: TypeOutput, Payload: []byte("some output")},
		{Type: TypeOutput, Payload: []byte{}},
		{Type: TypeExited, ExitCode: 0},
		{Type: TypeExited, ExitCode: -1},
		{Type: TypeExited, ExitCode: 137},
	}

	for _, m := range cases {
		frame := EncodeHostMessage(m)
		typ, payload, err := splitFrame(t, frame)
		require.NoError(t, err)

		decoded, err := DecodeHostMessage(typ, payload)
		require.NoError(t, err)
		assert.Equal(t, m.Type, decoded.Type)
		if m.Type == TypeExited {
			assert.Equal(t, m.ExitCode, decoded.ExitCode)
		} else {
			assert.Equal(t, m.Payload, decoded.Payload)
		}
	}
}

func TestClientMessageRoundTrip(t *testing.T) {
	cases := []ClientMessage{
		{Type: TypeInput, Payload: []byte("ls -la\n")},
		{Type: TypeResize, Cols: 120, Rows: 40},
		{Type: TypeShutdown},
	}

	for _, m := range cases {
		frame := EncodeClientMessage(m)
		typ, payload, err := splitFrame(t, frame)
		require.NoError(t, err)

		decoded, err := DecodeClientMessage(typ, payload)
		require.NoError(t, err)
		assert.Equal(t, m.Type, decoded.Type)
		switch m.Type {
		case TypeResize:
			assert.Equal(t, m.Cols, decoded.Cols)
			assert.Equal(t, m.Rows, decoded.Rows)
		case TypeInput:
			assert.Equal(t, m.Payload, decoded.Payload)
		}
	}
}

func TestDecodeHostMessageUnknownType(t *testing.T) {
	_, err := DecodeHostMessage(0x7f, nil)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeClientMessageUnknownType(t *testing.T) {
	_, err := DecodeClientMessage(0x7f, nil)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeExitedRejectsWrongPayloadLength(t *testing.T) {
	_, err := DecodeHostMessage(byte(TypeExited), []byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeResizeRejectsWrongPayloadLength(t *testing.T) {
	_, err := DecodeClientMessage(byte(TypeResize), []byte{1, 2, 3})
	require.Error(t, err)
}

// splitFrame re-parses an encoded frame's header without going through a
// net.Conn, to test Encode/Decode independently of Reader/Writer.
func splitFrame(t *testing.T, frame []byte) (byte, []byte, error) {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), headerLen)
	typ := frame[0]
	length := uint32(frame[1]) | uint32(frame[2])<<8 | uint32(frame[3])<<16 | uint32(frame[4])<<24
	payload := frame[headerLen:]
	require.Equal(t, int(length), len(payload))
	return typ, payload, nil
}
