package session

import (
	"errors"
	"fmt"

	"github.com/guseggert/nmproxy/frame"
	"github.com/guseggert/nmproxy/registry"
	"github.com/guseggert/nmproxy/stream"
	"go.uber.org/zap"
)

const (
	MsgTargetNotFound  = "No such extension on the host"
	MsgUnsupportedKind = "Only `stdio` extensions are supported"
)

// Resolver looks up targets by name. *registry.Registry implements it.
type Resolver interface {
	Resolve(name string) (registry.Descriptor, error)
}

// Server is the accepting side: it reads the handshake, starts the requested target
// and proxies its standard streams until the session closes.
type Server struct {
	Log      *zap.SugaredLogger
	Registry Resolver
}

// ServeConn runs one session on conn and closes conn before returning.
// The returned error describes why the session failed to start; it is nil for a
// session that streamed, however it ended.
func (srv *Server) ServeConn(conn Conn) error {
	return srv.serve(newSession(srv.Log, conn))
}

func (srv *Server) serve(s *Session) error {
	s.setState(StateHandshaking)
	hs, err := frame.ReadHandshake(s.conn)
	if err != nil {
		s.log.Debugw("error reading handshake", "Error", err)
		s.close()
		return fmt.Errorf("reading handshake: %w", err)
	}
	s.log.Infow("got handshake", "Target", hs.Target, "Args", hs.Args)

	desc, err := srv.Registry.Resolve(hs.Target)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		s.log.Infow("unknown target", "Target", hs.Target)
		s.fail(MsgTargetNotFound)
		return err
	case errors.Is(err, registry.ErrUnsupportedKind):
		s.log.Infow("unsupported target kind", "Target", hs.Target, "Type", desc.Type)
		s.fail(MsgUnsupportedKind)
		return err
	case err != nil:
		s.fail(err.Error())
		return err
	}

	proc, err := startProcess(desc.Path, hs.Args)
	if err != nil {
		s.log.Infow("error starting target", "Path", desc.Path, "Error", err)
		s.fail(err.Error())
		return fmt.Errorf("%w %q: %w", ErrSpawn, desc.Path, err)
	}
	s.log.Infow("started target", "Path", desc.Path, "PID", proc.pid())

	s.closers = append(s.closers, proc.stdin, proc.stdout, proc.stderr)
	s.onClose = append(s.onClose, proc.kill)

	inbound := newPipeline("inbound",
		s.localWriter(stream.Sinks{frame.TagInput: proc.stdin}),
		s.transportPump(),
	)
	outbound := newPipeline("outbound",
		s.transportWriter(),
		s.localPump(frame.TagOutput, proc.stdout),
		s.localPump(frame.TagDiagnostic, proc.stderr),
	)
	s.run(inbound, outbound)

	code, err := proc.wait()
	if err != nil {
		s.log.Debugw("error waiting for target", "Error", err)
	}
	s.log.Infow("session closed", "FirstFinished", s.FirstFinished(), "ExitCode", code)
	return nil
}
