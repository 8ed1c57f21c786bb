package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// HeaderSize is the little-endian length prefix in front of every frame.
	HeaderSize = 4
	// DefaultMaxFrameSize bounds the length field (id + payload).
	DefaultMaxFrameSize = 16 << 20 // 16MB
)

// Frame is one length-prefixed message: [length u32 LE][id u8][payload].
// length counts the id byte and the payload, never the prefix itself.
type Frame struct {
	ID      uint8
	Payload []byte
}

// Length returns the value carried in the wire length field.
func (f *Frame) Length() uint32 {
	return uint32(1 + len(f.Payload))
}

// Size returns the number of bytes Encode produces.
func (f *Frame) Size() int {
	return HeaderSize + 1 + len(f.Payload)
}

// Encode renders the frame exactly as it travels on the wire.
func (f *Frame) Encode() []byte {
	buf := make([]byte, f.Size())
	binary.LittleEndian.PutUint32(buf[:HeaderSize], f.Length())
	buf[HeaderSize] = f.ID
	copy(buf[HeaderSize+1:], f.Payload)
	return buf
}

// ReadFrame decodes one frame from r. maxSize caps the length field;
// values <= 0 select DefaultMaxFrameSize.
func ReadFrame(r io.Reader, maxSize int) (*Frame, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	// 1. Length prefix
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, classifyReadError(err)
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrMalformedFrame
	}
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: length %d, limit %d", ErrFrameTooLarge, length, maxSize)
	}

	// 2. ID + payload in one read
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, classifyReadError(err)
	}
	return &Frame{
		ID:      body[0],
		Payload: body[1:],
	}, nil
}

// WriteFrame writes the encoded frame to w in a single call.
func WriteFrame(w io.Writer, f *Frame) error {
	if _, err := w.Write(f.Encode()); err != nil {
		return ClassifyWriteError(err)
	}
	return nil
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return errors.Join(ErrConnectionClosed, err)
	}
	return errors.Join(ErrIO, err)
}

// ClassifyWriteError maps a write on a connection that is already closed
// to ErrConnectionClosed and anything else to ErrIO.
func ClassifyWriteError(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return errors.Join(ErrConnectionClosed, err)
	}
	return errors.Join(ErrIO, err)
}
