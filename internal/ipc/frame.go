package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// frameHeaderSize is the 4-byte big-endian payload length.
	frameHeaderSize = 4

	// MaxFrameSize bounds a single message. A sub-chunk is at most
	// bufferSize/2 records, so this is generous.
	MaxFrameSize = 1 << 30
)

// Framing errors.
var (
	// ErrNoMessage means the peer closed the pipe without writing anything.
	ErrNoMessage = errors.New("peer closed channel without sending a message")
	// ErrTruncated means the peer closed the pipe part-way through a frame.
	ErrTruncated = errors.New("message truncated")
	// ErrFrameTooLarge means the length prefix exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("message exceeds maximum frame size")
	// ErrTrailingData means bytes followed the single frame.
	ErrTrailingData = errors.New("unexpected data after message")
	// ErrDecode means the payload is not a valid message.
	ErrDecode = errors.New("cannot decode message")
)

// WriteFrame encodes v with msgpack and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:frameHeaderSize], uint32(len(payload))) //nolint:gosec // bounded by MaxFrameSize
	copy(buf[frameHeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, frameHeaderSize)
	n, err := io.ReadFull(r, header)
	switch {
	case errors.Is(err, io.EOF) && n == 0:
		return ErrNoMessage
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: got %d of %d header bytes", ErrTruncated, n, frameHeaderSize)
	case err != nil:
		return fmt.Errorf("reading message header: %w", err)
	}

	size := binary.BigEndian.Uint32(header)
	if size > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if n, err = io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: got %d of %d payload bytes", ErrTruncated, n, size)
		}
		return fmt.Errorf("reading message payload: %w", err)
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// ReadOnlyFrame reads exactly one frame and then requires the peer to close
// the stream. It is the receiving side of a one-message channel.
func ReadOnlyFrame(r io.Reader, v any) error {
	if err := ReadFrame(r, v); err != nil {
		return err
	}
	var extra [1]byte
	n, err := r.Read(extra[:])
	for n == 0 && err == nil {
		n, err = r.Read(extra[:])
	}
	if n > 0 {
		return ErrTrailingData
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("waiting for channel close: %w", err)
}
