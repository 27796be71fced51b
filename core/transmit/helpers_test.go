package transmit_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/transmit/core/transmit"
)

var errWriteFailed = errors.New("write failed")

// fakeStream records written messages in memory.
type fakeStream struct {
	uid       string
	failWrite bool

	mu      sync.Mutex
	msgs    []transmit.Message
	onClose []func()

	done   chan struct{}
	closed atomic.Bool
}

func newFakeStream(uid string) *fakeStream {
	return &fakeStream{uid: uid, done: make(chan struct{})}
}

func (s *fakeStream) UID() string { return s.uid }

func (s *fakeStream) Write(msg transmit.Message) error {
	if s.closed.Load() {
		return errors.New("stream closed")
	}
	if s.failWrite {
		return errWriteFailed
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) OnClose(fn func()) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Closed() bool { return s.closed.Load() }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	callbacks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (s *fakeStream) messages() []transmit.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transmit.Message(nil), s.msgs...)
}

// fakeTransport captures the inbound handler and counts sends without
// delivering anything back.
type fakeTransport struct {
	mu       sync.Mutex
	handlers []func([]byte)
	sent     []transmit.Message
	sendErr  error
	subErr   error
	closed   bool
}

func (t *fakeTransport) Subscribe(_ context.Context, _ string, handler func(raw []byte)) error {
	if t.subErr != nil {
		return t.subErr
	}
	t.mu.Lock()
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Send(_ context.Context, _ string, msg transmit.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) sendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// deliver feeds raw into every captured inbound handler.
func (t *fakeTransport) deliver(raw []byte) {
	t.mu.Lock()
	handlers := slices.Clone(t.handlers)
	t.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

// recorder collects lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []transmit.Event
}

func (r *recorder) listen(ev transmit.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []transmit.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transmit.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(kind transmit.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func recordAll(t *transmit.Transmit) *recorder {
	rec := &recorder{}
	for _, kind := range []transmit.EventKind{
		transmit.EventConnect,
		transmit.EventDisconnect,
		transmit.EventSubscribe,
		transmit.EventUnsubscribe,
		transmit.EventBroadcast,
	} {
		t.On(kind, rec.listen)
	}
	return rec
}
