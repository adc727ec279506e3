package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/memohai/shopchat/internal/message"
)

var errSocketClosed = errors.New("socket closed")

type fakeSocket struct {
	incoming chan Event
	closed   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	writes []Event
	writeF func(ev Event) error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{incoming: make(chan Event, 16), closed: make(chan struct{})}
}

func (s *fakeSocket) ReadEvent() (Event, error) {
	select {
	case ev := <-s.incoming:
		return ev, nil
	case <-s.closed:
		return Event{}, errSocketClosed
	}
}

func (s *fakeSocket) WriteEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeF != nil {
		if err := s.writeF(ev); err != nil {
			return err
		}
	}
	s.writes = append(s.writes, ev)
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) written() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *fakeSocket) push(t *testing.T, name string, payload any) {
	t.Helper()
	ev, err := NewEvent(name, payload)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	s.incoming <- ev
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	tokens  []string
	dialErr error
	prepare func(s *fakeSocket)
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := newFakeSocket()
	if d.prepare != nil {
		d.prepare(s)
	} else {
		ev, _ := NewEvent(EventConnected, nil)
		s.incoming <- ev
	}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestConnectJoinsConversation(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	var transitions []State
	var tmu sync.Mutex
	c := NewController(nil, dialer)
	c.OnStateChange(func(from, to State) {
		tmu.Lock()
		transitions = append(transitions, to)
		tmu.Unlock()
	})

	if err := c.Connect(context.Background(), "tok", "conv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != StateJoined {
		t.Fatalf("expected joined, got %s", c.State())
	}
	if dialer.tokens[0] != "tok" {
		t.Fatalf("unexpected token: %q", dialer.tokens[0])
	}
	writes := dialer.socket(0).written()
	if len(writes) != 1 || writes[0].Event != EventJoinConversation {
		t.Fatalf("expected one join event, got %+v", writes)
	}
	var join JoinPayload
	if err := writes[0].Decode(&join); err != nil || join.ConversationID != "conv-1" {
		t.Fatalf("unexpected join payload %+v (%v)", join, err)
	}
	tmu.Lock()
	defer tmu.Unlock()
	if len(transitions) != 2 || transitions[0] != StateConnecting || transitions[1] != StateJoined {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestConnectUnauthorized(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{prepare: func(s *fakeSocket) {
		ev, _ := NewEvent(EventUnauthorized, ErrorPayload{Message: "token expired"})
		s.incoming <- ev
	}}
	c := NewController(nil, dialer)
	err := c.Connect(context.Background(), "bad", "conv-1")
	if !errors.Is(err, ErrChannelUnavailable) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized channel error, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
	if !dialer.socket(0).isClosed() {
		t.Fatalf("expected rejected socket to be closed")
	}
}

func TestConnectDialFailure(t *testing.T) {
	t.Parallel()

	c := NewController(nil, &fakeDialer{dialErr: errors.New("refused")})
	err := c.Connect(context.Background(), "tok", "conv-1")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected channel unavailable, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
}

func TestConnectTimesOutWaitingForConnected(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{prepare: func(s *fakeSocket) {}}
	c := NewController(nil, dialer, WithConnectTimeout(50*time.Millisecond))
	err := c.Connect(context.Background(), "tok", "conv-1")
	if !errors.Is(err, ErrChannelUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestReceiveDispatchesToSingleHandler(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	c := NewController(nil, dialer)
	var first, second atomic.Int32
	c.OnMessage(func(msg message.Message) { first.Add(1) })
	c.OnMessage(func(msg message.Message) { second.Add(1) })
	if err := c.Connect(context.Background(), "tok", "conv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.socket(0).push(t, EventReceiveMessage, message.Message{ID: "m1", ConversationID: "conv-1", Content: "hi"})
	waitFor(t, func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Fatalf("replaced handler must not be invoked")
	}
}

func TestReconnectDoesNotDuplicateDelivery(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	c := NewController(nil, dialer)
	var mu sync.Mutex
	var got []string
	c.OnMessage(func(msg message.Message) {
		mu.Lock()
		got = append(got, msg.ID)
		mu.Unlock()
	})

	ctx := context.Background()
	if err := c.Connect(ctx, "tok", "conv-1"); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	old := dialer.socket(0)
	if err := c.Connect(ctx, "tok", "conv-1"); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if !old.isClosed() {
		t.Fatalf("expected superseded socket to be closed")
	}

	// A frame still buffered on the superseded socket must never be dispatched.
	old.push(t, EventReceiveMessage, message.Message{ID: "stale", ConversationID: "conv-1"})
	dialer.socket(1).push(t, EventReceiveMessage, message.Message{ID: "m1", ConversationID: "conv-1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "m1" {
		t.Fatalf("expected exactly one delivery of m1, got %v", got)
	}
}

func TestTeardownStopsDispatch(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	c := NewController(nil, dialer)
	var calls atomic.Int32
	c.OnMessage(func(msg message.Message) { calls.Add(1) })
	if err := c.Connect(context.Background(), "tok", "conv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Teardown(context.Background()); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
	if !dialer.socket(0).isClosed() {
		t.Fatalf("expected socket closed")
	}
	if err := c.Send(context.Background(), OutgoingMessage{Content: "hi"}); !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected channel unavailable after teardown, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("unexpected dispatch")
	}
}

func TestSendValidatesAndFillsConversation(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	c := NewController(nil, dialer)
	ctx := context.Background()
	if err := c.Connect(ctx, "tok", "conv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Send(ctx, OutgoingMessage{Content: "   "}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message, got %v", err)
	}
	if err := c.Send(ctx, OutgoingMessage{OrderID: "A1"}); err != nil {
		t.Fatalf("send order: %v", err)
	}
	if err := c.Send(ctx, OutgoingMessage{Content: "hi", Images: []string{"http://x/a.png"}}); err != nil {
		t.Fatalf("send content: %v", err)
	}

	writes := dialer.socket(0).written()
	if len(writes) != 3 {
		t.Fatalf("expected join + 2 sends, got %d", len(writes))
	}
	var out OutgoingMessage
	if err := writes[2].Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ConversationID != "conv-1" || out.Content != "hi" || len(out.Images) != 1 {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestSocketLossDisconnects(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	c := NewController(nil, dialer)
	if err := c.Connect(context.Background(), "tok", "conv-1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = dialer.socket(0).Close()
	waitFor(t, func() bool { return c.State() == StateDisconnected })
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	if len(dialer.sockets) != 1 {
		t.Fatalf("expected no automatic reconnect")
	}
}

func TestValidateOutgoing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		out     OutgoingMessage
		wantErr bool
	}{
		{name: "content", out: OutgoingMessage{ConversationID: "c", Content: "x"}},
		{name: "images", out: OutgoingMessage{ConversationID: "c", Images: []string{"u"}}},
		{name: "order", out: OutgoingMessage{ConversationID: "c", OrderID: "o"}},
		{name: "empty", out: OutgoingMessage{ConversationID: "c"}, wantErr: true},
		{name: "no conversation", out: OutgoingMessage{Content: "x"}, wantErr: true},
		{name: "too many images", out: OutgoingMessage{ConversationID: "c", Images: []string{"a", "b", "c", "d"}}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOutgoing(tc.out)
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}
