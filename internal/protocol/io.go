package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

const headerLen = 5 // 1 type byte + 4 length bytes

// Writer writes complete frames to a connection and flushes (a raw net.Conn
// write is unbuffered, so "flush" is simply the Write call itself).
type Writer struct {
	conn net.Conn
}

func NewWriter(conn net.Conn) *Writer { return &Writer{conn: conn} }

func (w *Writer) WriteHostMessage(m HostMessage) error {
	_, err := w.conn.Write(EncodeHostMessage(m))
	return err
}

func (w *Writer) WriteClientMessage(m ClientMessage) error {
	_, err := w.conn.Write(EncodeClientMessage(m))
	return err
}

// Reader reads complete frames from a connection. It reads the header fully,
// then the payload fully; a short read anywhere is an error (spec §4.2).
type Reader struct {
	conn net.Conn
}

func NewReader(conn net.Conn) *Reader { return &Reader{conn: conn} }

// ErrWouldBlock is returned by TryReadFrame when no complete frame is
// available without blocking.
var ErrWouldBlock = errors.New("protocol: would block")

// TryReadFrame attempts a non-blocking read of one frame: it sets a read
// deadline of "now" so the first byte read fails immediately if nothing is
// pending. Once the first byte has arrived, the remainder of the frame is
// read with blocking semantics (deadline cleared) since the peer is known to
// be mid-frame (spec §4.2: "switches to blocking for the remainder of the
// frame, then restores non-blocking mode").
func (r *Reader) TryReadFrame() (typ byte, payload []byte, err error) {
	if err := r.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, err
	}

	var typBuf [1]byte
	if _, err := io.ReadFull(r.conn, typBuf[:]); err != nil {
		if isTimeout(err) {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, err
	}

	// A byte arrived: the rest of the frame follows imminently. Clear the
	// deadline so short reads here are never mistaken for WouldBlock.
	if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, nil, err
	}
	defer func() { _ = r.conn.SetReadDeadline(time.Now()) }()

	return r.readRest(typBuf[0])
}

// ReadFrame reads one frame with fully blocking semantics.
func (r *Reader) ReadFrame() (typ byte, payload []byte, err error) {
	if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, nil, err
	}
	var typBuf [1]byte
	if _, err := io.ReadFull(r.conn, typBuf[:]); err != nil {
		return 0, nil, err
	}
	return r.readRest(typBuf[0])
}

func (r *Reader) readRest(typ byte) (byte, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.conn, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > maxPayloadLen {
		return 0, nil, &DecodeError{Reason: "payload length exceeds maximum"}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.conn, payload); err != nil {
			return 0, nil, err
		}
	}
	return typ, payload, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
