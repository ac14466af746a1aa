package stream

import (
	"fmt"
	"io"
	"sync"

	"github.com/guseggert/nmproxy/frame"
	"go.uber.org/zap"
)

// Sinks maps tags to the local writers that receive their payloads.
type Sinks map[frame.Tag]io.Writer

type flusher interface {
	Flush() error
}

// Drain writes routed messages to the sink registered for their tag, flushing after
// every write. Messages for tags without a sink are dropped.
//
// The first EOF sentinel for a registered tag ends the drain: r is closed and Drain
// returns, leaving anything still queued undelivered. It also returns when r is closed
// and empty. Sinks are never closed here; their lifetime belongs to the caller.
func Drain(log *zap.SugaredLogger, r *Router, sinks Sinks) error {
	for {
		m, ok := r.Recv()
		if !ok {
			log.Debug("router closed, writer done")
			return nil
		}
		w, registered := sinks[m.Tag]
		if !registered {
			log.Warnw("no sink for message, dropping", "Tag", m.Tag, "Size", len(m.Data))
			continue
		}
		if m.EOF() {
			log.Debugw("received EOF, closing router", "Tag", m.Tag, "Dropped", r.Len())
			r.Close()
			return nil
		}
		if err := writeFlush(w, m.Data); err != nil {
			r.Close()
			return fmt.Errorf("writing %s: %w", m.Tag, err)
		}
	}
}

func writeFlush(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// FrameWriter is the shared write half of a transport. The lock is held for exactly one
// frame so concurrent producers never interleave frame bytes.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (fw *FrameWriter) WriteFrame(tag frame.Tag, payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := frame.Write(fw.w, tag, payload); err != nil {
		return err
	}
	if f, ok := fw.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// DrainFrames encodes every routed message, sentinels included, onto the transport until
// r is closed and empty. A write error closes r and is returned.
func DrainFrames(log *zap.SugaredLogger, r *Router, fw *FrameWriter) error {
	for {
		m, ok := r.Recv()
		if !ok {
			log.Debug("router closed, frame writer done")
			return nil
		}
		log.Debugf("sending %d byte frame for %s", len(m.Data), m.Tag)
		if err := fw.WriteFrame(m.Tag, m.Data); err != nil {
			r.Close()
			return fmt.Errorf("writing frame: %w", err)
		}
	}
}
