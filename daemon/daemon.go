package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/guseggert/nmproxy/registry"
	"github.com/guseggert/nmproxy/session"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

// Daemon is the accepting side. It serves proxy sessions on a unix socket listener,
// and optionally over WebSocket on an HTTP address. Every accepted connection runs as
// its own session.
type Daemon struct {
	logger   *zap.SugaredLogger
	registry *registry.Registry
	server   *session.Server

	listener   net.Listener
	httpAddr   string
	httpServer *http.Server

	mut      sync.Mutex
	stopped  bool
	sessions sync.WaitGroup
}

type Option func(d *Daemon)

// WithListener serves sessions on l, e.g. a socket-activated unix listener.
func WithListener(l net.Listener) Option {
	return func(d *Daemon) {
		d.listener = l
	}
}

// WithHTTPAddr serves sessions over WebSocket at GET /session on addr.
func WithHTTPAddr(addr string) Option {
	return func(d *Daemon) {
		d.httpAddr = addr
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Daemon) {
		d.logger = l
	}
}

// New constructs a daemon serving targets from reg. The registry is shared read-only by
// every session.
func New(reg *registry.Registry, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		logger:   zap.NewNop().Sugar(),
		registry: reg,
	}
	for _, o := range opts {
		o(d)
	}
	if d.listener == nil && d.httpAddr == "" {
		return nil, errors.New("daemon: no listener or HTTP address configured")
	}
	d.logger = d.logger.Named("nmproxyd")
	d.server = &session.Server{Log: d.logger, Registry: reg}
	return d, nil
}

// Run serves until Stop is called or a listener fails, then waits for in-flight
// sessions to finish.
func (d *Daemon) Run() error {
	var group errgroup.Group
	if d.listener != nil {
		group.Go(d.acceptLoop)
	}
	if d.httpAddr != "" {
		group.Go(d.runHTTPServer)
	}
	err := group.Wait()
	d.mut.Lock()
	d.stopped = true
	d.mut.Unlock()
	d.sessions.Wait()
	return err
}

func (d *Daemon) acceptLoop() error {
	d.logger.Infow("accepting sessions", "Addr", d.listener.Addr().String(), "Targets", d.registry.Len())
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if d.isStopped() {
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}
		d.logger.Debugw("accepted connection", "Remote", conn.RemoteAddr().String())
		d.serve(conn)
	}
}

func (d *Daemon) serve(conn session.Conn) {
	if !d.track() {
		conn.Close()
		return
	}
	go func() {
		defer d.sessions.Done()
		if err := d.server.ServeConn(conn); err != nil {
			d.logger.Infow("session failed", "Error", err)
		}
	}()
}

func (d *Daemon) runHTTPServer() error {
	tcpListener, err := net.Listen("tcp", d.httpAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}

	d.mut.Lock()
	if d.stopped {
		d.mut.Unlock()
		tcpListener.Close()
		return nil
	}
	d.httpServer = &http.Server{Handler: d.Handler()}
	server := d.httpServer
	d.mut.Unlock()

	d.logger.Infow("serving WebSocket sessions", "Addr", tcpListener.Addr().String())
	err = server.Serve(tcpListener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the HTTP routes: GET /session upgrades to a WebSocket session and
// GET /targets lists the registry.
func (d *Daemon) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/session", d.sessionWS)
	router.GET("/targets", d.targets)
	return router
}

func (d *Daemon) sessionWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if !d.track() {
		http.Error(w, "daemon is stopping", http.StatusServiceUnavailable)
		return
	}
	defer d.sessions.Done()

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		d.logger.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	wsConn.SetReadLimit(session.WebSocketReadLimit)
	d.logger.Debugw("accepted WebSocket conn", "Remote", r.RemoteAddr)

	// the session runs inside the handler; the hijacked connection ends with it
	conn := websocket.NetConn(r.Context(), wsConn, websocket.MessageBinary)
	if err := d.server.ServeConn(conn); err != nil {
		d.logger.Infow("session failed", "Error", err)
	}
}

func (d *Daemon) targets(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	b, err := json.Marshal(d.registry.Descriptors())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

// track registers a session unless the daemon is stopping. Run marks the daemon stopped
// before waiting on sessions, so no session is added once that wait starts.
func (d *Daemon) track() bool {
	d.mut.Lock()
	defer d.mut.Unlock()
	if d.stopped {
		return false
	}
	d.sessions.Add(1)
	return true
}

func (d *Daemon) isStopped() bool {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.stopped
}

// Stop closes the listeners. Sessions already running finish on their own.
func (d *Daemon) Stop() error {
	d.mut.Lock()
	d.stopped = true
	httpServer := d.httpServer
	d.mut.Unlock()

	var errs []error
	if d.listener != nil {
		errs = append(errs, d.listener.Close())
	}
	if httpServer != nil {
		errs = append(errs, httpServer.Close())
	}
	return errors.Join(errs...)
}
