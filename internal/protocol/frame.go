// Package protocol implements the length-prefixed framed message protocol
// spoken between the dashboard and a session-host over a Unix socket
// (spec §4.2): [type:1][payload_len:u32 LE][payload:N].
package protocol

import (
	"encoding/binary"
	"fmt"
)

// HostMessageType enumerates the frame types a session-host sends.
type HostMessageType byte

const (
	TypeSnapshot HostMessageType = 0x01
	TypeOutput   HostMessageType = 0x02
	TypeExited   HostMessageType = 0x03
)

// ClientMessageType enumerates the frame types a client (dashboard) sends.
type ClientMessageType byte

const (
	TypeInput    ClientMessageType = 0x10
	TypeResize   ClientMessageType = 0x11
	TypeShutdown ClientMessageType = 0x12
)

// maxPayloadLen guards against a corrupt or hostile length prefix forcing an
// unbounded allocation; no frame in this protocol legitimately needs more.
const maxPayloadLen = 64 << 20 // 64MiB

// DecodeError reports a malformed frame: unknown type byte, short read, or an
// oversized length prefix (spec §7 Protocol kind).
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("protocol: %s", e.Reason) }

// HostMessage is one frame sent from a session-host to its connected client.
type HostMessage struct {
	Type     HostMessageType
	Payload  []byte // Snapshot/Output: raw bytes. Exited: unused, see ExitCode.
	ExitCode int32  // valid only when Type == TypeExited
}

// EncodeHostMessage serializes a HostMessage into a complete frame.
func EncodeHostMessage(m HostMessage) []byte {
	var payload []byte
	switch m.Type {
	case TypeExited:
		payload = make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, uint32(m.ExitCode))
	default:
		payload = m.Payload
	}
	return encodeFrame(byte(m.Type), payload)
}

// ClientMessage is one frame sent from a client to a session-host.
type ClientMessage struct {
	Type    ClientMessageType
	Payload []byte // Input: raw bytes to write to the PTY.
	Cols    uint16 // valid only when Type == TypeResize
	Rows    uint16
}

// EncodeClientMessage serializes a ClientMessage into a complete frame.
func EncodeClientMessage(m ClientMessage) []byte {
	var payload []byte
	switch m.Type {
	case TypeResize:
		payload = make([]byte, 4)
		binary.LittleEndian.PutUint16(payload[0:2], m.Cols)
		binary.LittleEndian.PutUint16(payload[2:4], m.Rows)
	case TypeShutdown:
		payload = nil
	default:
		payload = m.Payload
	}
	return encodeFrame(byte(m.Type), payload)
}

func encodeFrame(typ byte, payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload))
	buf[0] = typ
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// DecodeHostMessage parses a complete frame's type byte and payload (as
// already read by a Reader) into a HostMessage.
func DecodeHostMessage(typ byte, payload []byte) (HostMessage, error) {
	switch HostMessageType(typ) {
	case TypeSnapshot, TypeOutput:
		return HostMessage{Type: HostMessageType(typ), Payload: payload}, nil
	case TypeExited:
		if len(payload) != 4 {
			return HostMessage{}, &DecodeError{Reason: fmt.Sprintf("exited payload must be 4 bytes, got %d", len(payload))}
		}
		return HostMessage{Type: TypeExited, ExitCode: int32(binary.LittleEndian.Uint32(payload))}, nil
	default:
		return HostMessage{}, &DecodeError{Reason: fmt.Sprintf("unknown host message type 0x%02x", typ)}
	}
}

// DecodeClientMessage parses a complete frame's type byte and payload into a
// ClientMessage.
func DecodeClientMessage(typ byte, payload []byte) (ClientMessage, error) {
	switch ClientMessageType(typ) {
	case TypeInput:
		return ClientMessage{Type: TypeInput, Payload: payload}, nil
	case TypeResize:
		if len(payload) != 4 {
			return ClientMessage{}, &DecodeError{Reason: fmt.Sprintf("resize payload must be 4 bytes, got %d", len(payload))}
		}
		return ClientMessage{
			Type: TypeResize,
			Cols: binary.LittleEndian.Uint16(payload[0:2]),
			Rows: binary.LittleEndian.Uint16(payload[2:4]),
		}, nil
	case TypeShutdown:
		return ClientMessage{Type: TypeShutdown}, nil
	default:
		return ClientMessage{}, &DecodeError{Reason: fmt.Sprintf("unknown client message type 0x%02x", typ)}
	}
}
