package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLen is the size of a data frame header: one size byte and one tag byte.
	HeaderLen = 2
	// MaxPayload is the largest payload a single data frame can carry.
	MaxPayload = 255
)

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrTruncated       = errors.New("frame: truncated frame")
)

// Tag identifies the logical stream a frame belongs to.
type Tag uint8

const (
	TagInput      Tag = 0
	TagOutput     Tag = 1
	TagDiagnostic Tag = 2
)

// Known reports whether t is one of the three predefined streams.
func (t Tag) Known() bool {
	return t <= TagDiagnostic
}

func (t Tag) String() string {
	switch t {
	case TagInput:
		return "input"
	case TagOutput:
		return "output"
	case TagDiagnostic:
		return "diagnostic"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Frame is one decoded data frame.
// A frame with an empty payload is the EOF sentinel for its tag and never carries data.
type Frame struct {
	Tag     Tag
	Payload []byte
}

func (f Frame) IsEOF() bool {
	return len(f.Payload) == 0
}

// Encode returns the wire form of a frame: [size][tag][payload].
func Encode(tag Tag, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	b := make([]byte, HeaderLen+len(payload))
	b[0] = byte(len(payload))
	b[1] = byte(tag)
	copy(b[HeaderLen:], payload)
	return b, nil
}

// Decode reads exactly one frame from r.
// It returns io.EOF only when r ends before the first header byte; a stream that ends
// anywhere inside a frame yields ErrTruncated.
func Decode(r io.Reader) (Frame, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: short header", ErrTruncated)
		}
		return Frame{}, err
	}

	f := Frame{Tag: Tag(hdr[1])}
	size := int(hdr[0])
	if size == 0 {
		return f, nil
	}

	f.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: want %d payload bytes", ErrTruncated, size)
		}
		return Frame{}, err
	}
	return f, nil
}

// Write encodes a frame and writes it with a single Write call.
func Write(w io.Writer, tag Tag, payload []byte) error {
	b, err := Encode(tag, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
