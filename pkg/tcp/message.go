package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire format: [messageId: u32][dataSize: u32][payload: dataSize bytes].
// Both header fields are little-endian on the wire regardless of host order.
const FrameHeaderSize = 8

// DefaultMaxFrameSize bounds the payload a decoder will accept; a declared
// size above it is treated as a corrupt stream.
const DefaultMaxFrameSize = 16 * 1024 * 1024

var (
	// ErrFrameTooShort is returned when a buffer cannot hold a frame header.
	ErrFrameTooShort = errors.New("tcp: buffer shorter than frame header")

	// ErrFrameTruncated is returned when the declared payload size overruns
	// the buffer.
	ErrFrameTruncated = errors.New("tcp: frame payload truncated")
)

// Message is one framed record.
type Message struct {
	ID   uint32
	Data []byte
}

// NewMessage builds a message over a copy of data.
func NewMessage(id uint32, data []byte) Message {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Message{ID: id, Data: buf}
}

// NewTextMessage builds a message carrying a string payload.
func NewTextMessage(id uint32, text string) Message {
	return Message{ID: id, Data: []byte(text)}
}

// Text returns the payload interpreted as a string.
func (m Message) Text() string { return string(m.Data) }

// Marshal serializes the message as header + payload.
func (m Message) Marshal() []byte {
	buf := make([]byte, FrameHeaderSize+len(m.Data))
	binary.LittleEndian.PutUint32(buf[0:4], m.ID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(m.Data)))
	copy(buf[FrameHeaderSize:], m.Data)
	return buf
}

// UnmarshalMessage decodes one message from the start of buf. The payload is
// copied, so buf may be reused by the caller.
func UnmarshalMessage(buf []byte) (Message, error) {
	if len(buf) < FrameHeaderSize {
		return Message{}, ErrFrameTooShort
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	size := binary.LittleEndian.Uint32(buf[4:8])
	if uint64(len(buf)) < FrameHeaderSize+uint64(size) {
		return Message{}, ErrFrameTruncated
	}
	data := make([]byte, size)
	copy(data, buf[FrameHeaderSize:FrameHeaderSize+int(size)])
	return Message{ID: id, Data: data}, nil
}

// FrameDecoder reassembles framed messages from a TCP byte stream. recv
// boundaries carry no meaning on a stream, so arriving chunks are buffered
// until a complete header+payload is available.
//
// The decoder is not safe for concurrent use; feed it from one goroutine
// (the host tick drains connection queues from a single goroutine).
type FrameDecoder struct {
	buf      []byte
	maxFrame uint32
}

// NewFrameDecoder returns a decoder with maxFrame bounding accepted payload
// sizes; maxFrame <= 0 selects DefaultMaxFrameSize.
func NewFrameDecoder(maxFrame int) *FrameDecoder {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	return &FrameDecoder{maxFrame: uint32(maxFrame)}
}

// Feed appends a received chunk to the reassembly buffer.
func (d *FrameDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next extracts the next complete message, if any. It returns an error only
// when the stream is unrecoverable (declared size above the bound); the
// caller should drop the connection in that case.
func (d *FrameDecoder) Next() (Message, bool, error) {
	if len(d.buf) < FrameHeaderSize {
		return Message{}, false, nil
	}
	size := binary.LittleEndian.Uint32(d.buf[4:8])
	if size > d.maxFrame {
		return Message{}, false, fmt.Errorf("tcp: declared frame size %d exceeds limit %d", size, d.maxFrame)
	}
	total := FrameHeaderSize + int(size)
	if len(d.buf) < total {
		return Message{}, false, nil
	}
	msg, err := UnmarshalMessage(d.buf[:total])
	if err != nil {
		return Message{}, false, err
	}
	// Shift the remainder down instead of re-slicing so the buffer does not
	// pin every chunk ever received.
	n := copy(d.buf, d.buf[total:])
	d.buf = d.buf[:n]
	return msg, true, nil
}

// Pending returns the number of buffered bytes awaiting a complete frame.
func (d *FrameDecoder) Pending() int { return len(d.buf) }

// Reset discards any partially buffered frame.
func (d *FrameDecoder) Reset() { d.buf = d.buf[:0] }
