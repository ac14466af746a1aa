package stream

import (
	"errors"
	"sync"

	"github.com/guseggert/nmproxy/frame"
)

var ErrClosed = errors.New("stream: router closed")

// Message is the unit moved between pumps and writers.
// An empty Data is the EOF sentinel for Tag.
type Message struct {
	Tag  frame.Tag
	Data []byte
}

func (m Message) EOF() bool {
	return len(m.Data) == 0
}

// Router is an unbounded multi-producer, multi-consumer queue of messages.
//
// Producers hold Sender handles; the router closes itself when the last handle is
// released, or earlier when Close is called. After close, sends fail with ErrClosed and
// Recv keeps returning queued messages until the queue is empty.
type Router struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Message
	closed  bool
	senders int
}

func NewRouter() *Router {
	r := &Router{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Sender returns a new producer handle.
func (r *Router) Sender() *Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders++
	return &Sender{r: r}
}

// Recv blocks until a message is available or the router is closed and drained.
func (r *Router) Recv() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.queue) == 0 {
		return Message{}, false
	}
	m := r.queue[0]
	r.queue[0] = Message{}
	r.queue = r.queue[1:]
	return m, true
}

// Close rejects further sends and wakes all receivers. It is idempotent.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of queued messages.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Router) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.cond.Broadcast()
}

func (r *Router) send(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.queue = append(r.queue, m)
	r.cond.Signal()
	return nil
}

func (r *Router) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders--
	if r.senders == 0 {
		r.closeLocked()
	}
}

// Sender is a producer handle onto a Router. Each handle must be closed exactly once;
// extra Close calls are ignored.
type Sender struct {
	r    *Router
	once sync.Once
}

func (s *Sender) Send(m Message) error {
	return s.r.send(m)
}

// Clone returns another handle onto the same router.
func (s *Sender) Clone() *Sender {
	return s.r.Sender()
}

func (s *Sender) Close() {
	s.once.Do(s.r.release)
}
