package session

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/nmproxy/frame"
	inet "github.com/guseggert/nmproxy/internal/net"
	"github.com/guseggert/nmproxy/stream"
	"go.uber.org/zap"
)

// Conn is the duplex transport a session runs over. Connections that also implement
// CloseRead and CloseWrite get both directions shut down at session end.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateStreaming
	StateHalfClosed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateHalfClosed:
		return "half-closed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type pumpFunc func(*stream.Sender) error

type drainFunc func(*stream.Router) error

// pipeline is one direction of a session: some pumps feeding one router, and one
// writer draining it. The pipeline is done when its writer returns.
type pipeline struct {
	name   string
	router *stream.Router
	pumps  []pumpFunc
	drain  drainFunc

	// closesOther is set when finishing first should close the other pipeline's router.
	// When unset, the other pipeline runs until its own sources end.
	closesOther bool
}

func newPipeline(name string, drain drainFunc, pumps ...pumpFunc) *pipeline {
	return &pipeline{
		name:        name,
		router:      stream.NewRouter(),
		pumps:       pumps,
		drain:       drain,
		closesOther: true,
	}
}

// Session is one proxied connection from handshake to full close.
type Session struct {
	ID string

	log    *zap.SugaredLogger
	conn   Conn
	frames *stream.FrameWriter

	mu            sync.Mutex
	state         State
	firstFinished string

	// closers are the local stream handles released when the session closes.
	closers []io.Closer
	// onClose runs after the handles are released, e.g. to kill the target.
	onClose   []func()
	closeOnce sync.Once
}

func newSession(log *zap.SugaredLogger, conn Conn) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		log:    log.Named("session").With("Session", id),
		conn:   conn,
		frames: stream.NewFrameWriter(conn),
		state:  StateConnecting,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FirstFinished names the pipeline that finished first, once the session has streamed.
func (s *Session) FirstFinished() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstFinished
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Debugf("state %s -> %s", s.state, st)
	s.state = st
}

func (s *Session) localPump(tag frame.Tag, src io.Reader) pumpFunc {
	log := s.log.Named("pump")
	return func(snd *stream.Sender) error {
		return stream.Pump(log, tag, src, snd)
	}
}

func (s *Session) transportPump() pumpFunc {
	log := s.log.Named("transport_pump")
	return func(snd *stream.Sender) error {
		return stream.PumpFrames(log, s.conn, snd)
	}
}

func (s *Session) localWriter(sinks stream.Sinks) drainFunc {
	log := s.log.Named("writer")
	return func(r *stream.Router) error {
		return stream.Drain(log, r, sinks)
	}
}

func (s *Session) transportWriter() drainFunc {
	log := s.log.Named("transport_writer")
	return func(r *stream.Router) error {
		return stream.DrainFrames(log, r, s.frames)
	}
}

// run runs both pipelines. When one finishes, the other's router is closed so its
// writer can finish too, unless the finished pipeline leaves the other open. Then the
// session closes and waits for every pump to return.
func (s *Session) run(inbound, outbound *pipeline) {
	s.setState(StateStreaming)

	var pumps sync.WaitGroup
	inDone := s.start(inbound, &pumps)
	outDone := s.start(outbound, &pumps)

	select {
	case <-inDone:
		s.halfClose(inbound, outbound)
		<-outDone
	case <-outDone:
		s.halfClose(outbound, inbound)
		<-inDone
	}

	s.close()
	pumps.Wait()
	s.log.Debug("all pumps returned")
}

func (s *Session) start(p *pipeline, pumps *sync.WaitGroup) <-chan struct{} {
	log := s.log.With("Pipeline", p.name)

	// take every producer handle before any pump runs, so a fast pump cannot close
	// the router while its siblings are still starting
	senders := make([]*stream.Sender, len(p.pumps))
	for i := range p.pumps {
		senders[i] = p.router.Sender()
	}
	for i, pump := range p.pumps {
		pumps.Add(1)
		go func(pump pumpFunc, snd *stream.Sender) {
			defer pumps.Done()
			if err := pump(snd); err != nil {
				logIOError(log, "pump stopped", err)
			}
		}(pump, senders[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.drain(p.router); err != nil {
			logIOError(log, "writer stopped", err)
		}
		log.Debug("pipeline finished")
	}()
	return done
}

func (s *Session) halfClose(finished, other *pipeline) {
	s.mu.Lock()
	s.firstFinished = finished.name
	s.mu.Unlock()
	s.setState(StateHalfClosed)
	if !finished.closesOther {
		s.log.Debugw("pipeline finished first, waiting for the other", "Finished", finished.name, "Waiting", other.name)
		return
	}
	s.log.Debugw("pipeline finished first, closing the other", "Finished", finished.name, "Closing", other.name)
	other.router.Close()
}

// close releases local handles, runs close hooks and shuts down the transport.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		for _, c := range s.closers {
			if err := c.Close(); err != nil && !inet.IsClosed(err) {
				s.log.Debugw("error closing local stream", "Error", err)
			}
		}
		for _, f := range s.onClose {
			f()
		}
		if err := inet.Shutdown(s.conn); err != nil {
			s.log.Debugw("error shutting down transport", "Error", err)
		}
		s.setState(StateClosed)
	})
}

// fail reports msg to the peer as one diagnostic message and closes the session.
func (s *Session) fail(msg string) {
	b := []byte(msg)
	if len(b) > frame.MaxPayload {
		s.log.Debugw("truncating diagnostic message", "Size", len(b))
		b = b[:frame.MaxPayload]
	}
	if err := s.frames.WriteFrame(frame.TagDiagnostic, b); err != nil {
		logIOError(s.log, "sending diagnostic message", err)
	}
	s.close()
}

// logIOError logs errors that end a pipeline. Errors caused by the session's own
// teardown are expected and only logged at debug.
func logIOError(log *zap.SugaredLogger, msg string, err error) {
	if inet.IsClosed(err) {
		log.Debugw(msg, "Error", err)
		return
	}
	log.Warnw(msg, "Error", err)
}
