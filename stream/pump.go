package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/guseggert/nmproxy/frame"
	"go.uber.org/zap"
)

// ChunkSize is the largest read a Pump issues, so every message fits in one frame.
const ChunkSize = frame.MaxPayload

// Pump reads src until EOF or a read error, sending each non-empty read as a message
// tagged tag. It then sends one EOF sentinel and releases s.
// The returned error is the read error that ended the pump, or nil on orderly EOF.
// A rejected send means the session is shutting down and also ends the pump.
func Pump(log *zap.SugaredLogger, tag frame.Tag, src io.Reader, s *Sender) error {
	defer s.Close()

	buf := make([]byte, ChunkSize)
	var readErr error
	for {
		n, err := src.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			log.Debugf("read %d bytes from %s", n, tag)
			if sendErr := s.Send(Message{Tag: tag, Data: data}); sendErr != nil {
				log.Debugw("router closed, stopping pump", "Tag", tag)
				return nil
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = fmt.Errorf("reading %s: %w", tag, err)
				log.Debugw("pump read error, treating as EOF", "Tag", tag, "Error", err)
			} else {
				log.Debugw("pump reached EOF", "Tag", tag)
			}
			break
		}
	}

	if err := s.Send(Message{Tag: tag}); err != nil {
		log.Debugw("router closed before EOF sentinel", "Tag", tag)
	}
	return readErr
}

// PumpFrames decodes frames from a transport read half and routes them to s until the
// transport ends. EOF sentinels are forwarded like data; frames with unknown tags are
// dropped. Orderly transport EOF returns nil.
func PumpFrames(log *zap.SugaredLogger, src io.Reader, s *Sender) error {
	defer s.Close()

	for {
		f, err := frame.Decode(src)
		if errors.Is(err, io.EOF) {
			log.Debug("transport reached EOF")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if !f.Tag.Known() {
			log.Warnw("dropping frame with unknown tag", "Tag", f.Tag, "Size", len(f.Payload))
			continue
		}
		log.Debugf("received %d byte frame for %s", len(f.Payload), f.Tag)
		if err := s.Send(Message{Tag: f.Tag, Data: f.Payload}); err != nil {
			log.Debug("router closed, stopping frame pump")
			return nil
		}
	}
}
