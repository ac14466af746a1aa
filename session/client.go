package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/guseggert/nmproxy/frame"
	"github.com/guseggert/nmproxy/stream"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// WebSocketReadLimit fits the largest handshake message.
const WebSocketReadLimit = 1 << 17

// DialRetries bounds how often a WebSocket dial is retried while the daemon is unreachable.
const DialRetries = 3

// Client is the initiating side: it sends the handshake and proxies its own standard
// streams. Streams that implement io.Closer are closed when the session ends.
// The session ends when the accepting side's output ends or the connection closes;
// the end of Stdin alone does not end it. A nil Stdin sends no input.
type Client struct {
	Log *zap.SugaredLogger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run runs one session on conn and closes conn before returning.
func (c *Client) Run(conn Conn, hs frame.Handshake) error {
	return c.run(newSession(c.Log, conn), hs)
}

func (c *Client) run(s *Session, hs frame.Handshake) error {
	s.setState(StateHandshaking)
	if err := frame.WriteHandshake(s.conn, hs); err != nil {
		s.close()
		return fmt.Errorf("sending handshake: %w", err)
	}
	s.log.Debugw("sent handshake", "Target", hs.Target, "Args", hs.Args)

	for _, stdio := range []any{c.Stdin, c.Stdout, c.Stderr} {
		if closer, ok := stdio.(io.Closer); ok {
			s.closers = append(s.closers, closer)
		}
	}

	var inputPumps []pumpFunc
	if c.Stdin != nil {
		inputPumps = append(inputPumps, s.localPump(frame.TagInput, c.Stdin))
	}
	sinks := stream.Sinks{}
	if c.Stdout != nil {
		sinks[frame.TagOutput] = c.Stdout
	}
	if c.Stderr != nil {
		sinks[frame.TagDiagnostic] = c.Stderr
	}

	outbound := newPipeline("outbound", s.transportWriter(), inputPumps...)
	// replies to input already sent keep arriving after local input ends
	outbound.closesOther = false
	inbound := newPipeline("inbound", s.localWriter(sinks), s.transportPump())
	s.run(inbound, outbound)

	s.log.Debugw("session closed", "FirstFinished", s.FirstFinished())
	return nil
}

// Dial opens a transport to the accepting side. addr is either a unix socket path or
// a ws:// or wss:// URL.
func Dial(ctx context.Context, addr string) (Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		wsConn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{HTTPClient: retryingHTTPClient()})
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrConnect, addr, err)
		}
		wsConn.SetReadLimit(WebSocketReadLimit)
		// the session outlives ctx, which only bounds the dial
		return websocket.NetConn(context.Background(), wsConn, websocket.MessageBinary), nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConnect, addr, err)
	}
	return conn, nil
}

// retryingHTTPClient retries the upgrade request on connection errors and 5xx responses.
// It never logs: the client's stderr belongs to the proxied program.
func retryingHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = DialRetries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	return retryClient.StandardClient()
}
