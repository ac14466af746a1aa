package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// HandshakeHeaderLen is the size of the handshake length prefix.
const HandshakeHeaderLen = 2

var ErrHandshakeTooLarge = errors.New("frame: handshake too large")

// Handshake is the first and only message the initiator sends before data frames.
// The field names match what existing browser-side clients already emit.
type Handshake struct {
	Target string   `json:"host_extension_name"`
	Args   []string `json:"args"`
}

// WriteHandshake writes [length: 2 bytes native order][JSON payload].
func WriteHandshake(w io.Writer, h Handshake) error {
	if h.Args == nil {
		h.Args = []string{}
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	if len(payload) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrHandshakeTooLarge, len(payload))
	}

	b := make([]byte, HandshakeHeaderLen+len(payload))
	binary.NativeEndian.PutUint16(b, uint16(len(payload)))
	copy(b[HandshakeHeaderLen:], payload)
	_, err = w.Write(b)
	return err
}

// ReadHandshake reads one handshake written by WriteHandshake.
func ReadHandshake(r io.Reader) (Handshake, error) {
	var hdr [HandshakeHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Handshake{}, fmt.Errorf("%w: short handshake header", ErrTruncated)
		}
		return Handshake{}, err
	}

	payload := make([]byte, binary.NativeEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Handshake{}, fmt.Errorf("%w: want %d handshake bytes", ErrTruncated, len(payload))
		}
		return Handshake{}, err
	}

	var h Handshake
	if err := json.Unmarshal(payload, &h); err != nil {
		return Handshake{}, fmt.Errorf("decoding handshake: %w", err)
	}
	return h, nil
}
