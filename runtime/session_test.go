package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeConn is an in-memory contract.Conn. Close unblocks pending reads.
type fakeConn struct {
	addr      string
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	written   []string
	writes    chan string
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:    addr,
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
		writes:  make(chan string, 64),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case frame, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

func (c *fakeConn) Write(_ context.Context, frame []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, string(frame))
	c.mu.Unlock()
	c.writes <- string(frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) send(frame string) { c.inbound <- []byte(frame) }

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) expect(t *testing.T, frame string) {
	t.Helper()
	select {
	case got := <-c.writes:
		require.Equal(t, frame, got)
	case <-time.After(time.Second):
		require.Failf(t, "no frame delivered", "expected %q on %s", frame, c.addr)
	}
}

var _ contract.Conn = (*fakeConn)(nil)

// gatedConn holds every write until gate is closed. entered fires when a
// write starts waiting.
type gatedConn struct {
	*fakeConn
	gate    chan struct{}
	entered chan struct{}
}

func newGatedConn(addr string) *gatedConn {
	return &gatedConn{
		fakeConn: newFakeConn(addr),
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
}

func (c *gatedConn) Write(ctx context.Context, frame []byte) error {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	select {
	case <-c.gate:
	case <-c.done:
		return io.ErrClosedPipe
	}
	return c.fakeConn.Write(ctx, frame)
}

type sessionHarness struct {
	log       *slog.Logger
	registry  *Registry
	persister *Persister
}

func newHarness(gateway contract.Gateway, capacity int) sessionHarness {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return sessionHarness{
		log:       log,
		registry:  NewRegistry(log, gateway, capacity),
		persister: NewPersister(log, gateway, nil, time.Second),
	}
}

func (h sessionHarness) start(conn contract.Conn) (*Session, <-chan error) {
	session := NewSession(h.log, conn, h.registry, h.persister, nil)
	result := make(chan error, 1)
	go func() { result <- session.Run(context.Background()) }()
	return session, result
}

func awaitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(time.Second):
		require.FailNow(t, "session did not terminate")
		return nil
	}
}

func awaitActive(t *testing.T, sessions ...*Session) {
	t.Helper()
	for _, s := range sessions {
		require.Eventually(t, func() bool { return s.State() == StateActive }, time.Second, 5*time.Millisecond)
	}
}

func TestSession_MalformedRoomIDClosesSilently(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	h := newHarness(gateway, DefaultFanoutCapacity)

	// Given a client whose first frame is not a room id
	conn := newFakeConn("127.0.0.1:50000")
	conn.send("not_a_number")

	// When the session runs
	session, result := h.start(conn)
	err := awaitResult(t, result)

	// Then it is closed without a single byte written back
	req.ErrorIs(err, errors.ErrHandshake)
	req.ErrorIs(err, errors.ErrMalformedRoomID)
	req.Empty(conn.Written())
	req.True(conn.closed())
	req.Equal(StateClosed, session.State())
	req.Nil(session.Room())
}

func TestSession_UnknownRoomClosesSilently(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(404)).Return(chat.RoomMetadata{}, errors.ErrRoomNotFound)
	h := newHarness(gateway, DefaultFanoutCapacity)

	conn := newFakeConn("127.0.0.1:50000")
	conn.send("404")
	_, result := h.start(conn)
	err := awaitResult(t, result)

	req.ErrorIs(err, errors.ErrHandshake)
	req.ErrorIs(err, errors.ErrRoomNotFound)
	req.Empty(conn.Written())
	req.True(conn.closed())
}

func TestSession_TransportClosedBeforeHandshake(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	h := newHarness(mocks.NewMockGateway(ctrl), DefaultFanoutCapacity)

	conn := newFakeConn("127.0.0.1:50000")
	close(conn.inbound)
	session, result := h.start(conn)
	err := awaitResult(t, result)

	req.ErrorIs(err, errors.ErrHandshake)
	req.ErrorIs(err, io.EOF)
	req.Equal(StateClosed, session.State())
}

func TestSession_RelaysToOthersWithoutEcho(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil).Times(1)
	gateway.EXPECT().AppendMessage(gomock.Any(), chat.RoomID(7), "alice: hi").Return(nil)
	gateway.EXPECT().AppendMessage(gomock.Any(), chat.RoomID(7), "bob: hey alice").Return(nil)
	h := newHarness(gateway, DefaultFanoutCapacity)

	// Given alice and bob joined to room 7
	alice, bob := newFakeConn("127.0.0.1:50001"), newFakeConn("127.0.0.1:50002")
	alice.send("7")
	bob.send("7")
	aliceSession, aliceResult := h.start(alice)
	bobSession, bobResult := h.start(bob)
	awaitActive(t, aliceSession, bobSession)
	req.Same(aliceSession.Room(), bobSession.Room())

	// When alice talks then bob answers
	alice.send("alice: hi")
	bob.expect(t, "alice: hi")
	bob.send("bob: hey alice")
	alice.expect(t, "bob: hey alice")

	// Then nobody got their own message back
	req.Equal([]string{"bob: hey alice"}, alice.Written())
	req.Equal([]string{"alice: hi"}, bob.Written())

	// And closing the transports ends both sessions
	req.NoError(alice.Close())
	req.NoError(bob.Close())
	req.ErrorIs(awaitResult(t, aliceResult), io.EOF)
	req.ErrorIs(awaitResult(t, bobResult), io.EOF)
	h.persister.Close()
	req.Zero(aliceSession.Room().Stats().Subscribers)
}

func TestSession_LonelyPublishIsNotDelivered(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil)
	gateway.EXPECT().AppendMessage(gomock.Any(), chat.RoomID(7), "alice: anyone?").Return(nil)
	h := newHarness(gateway, DefaultFanoutCapacity)

	alice := newFakeConn("127.0.0.1:50001")
	alice.send("7")
	session, result := h.start(alice)
	awaitActive(t, session)

	alice.send("alice: anyone?")
	req.Eventually(func() bool { return session.Room().Stats().Published == 1 }, time.Second, 5*time.Millisecond)

	req.NoError(alice.Close())
	req.ErrorIs(awaitResult(t, result), io.EOF)
	h.persister.Close()
	req.Empty(alice.Written())
}

func TestSession_PersistenceFailureDoesNotBlockDelivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil)

	// Given a storage refusing every append
	gateway.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stderrors.New("disk full")).
		Times(2)
	h := newHarness(gateway, DefaultFanoutCapacity)

	alice, bob := newFakeConn("127.0.0.1:50001"), newFakeConn("127.0.0.1:50002")
	alice.send("7")
	bob.send("7")
	aliceSession, _ := h.start(alice)
	bobSession, bobResult := h.start(bob)
	awaitActive(t, aliceSession, bobSession)

	// When alice keeps talking
	alice.send("alice: one")
	alice.send("alice: two")

	// Then bob still receives everything and his session stays up
	bob.expect(t, "alice: one")
	bob.expect(t, "alice: two")
	req.Equal(StateActive, bobSession.State())

	req.NoError(alice.Close())
	req.NoError(bob.Close())
	awaitResult(t, bobResult)
	h.persister.Close()
}

func TestSession_MalformedFrameIsStillRelayed(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil)
	gateway.EXPECT().AppendMessage(gomock.Any(), chat.RoomID(7), "no delimiter").Return(nil)
	h := newHarness(gateway, DefaultFanoutCapacity)

	alice, bob := newFakeConn("127.0.0.1:50001"), newFakeConn("127.0.0.1:50002")
	alice.send("7")
	bob.send("7")
	aliceSession, _ := h.start(alice)
	bobSession, _ := h.start(bob)
	awaitActive(t, aliceSession, bobSession)

	alice.send("no delimiter")
	bob.expect(t, "no delimiter")

	_ = alice.Close()
	_ = bob.Close()
	h.persister.Close()
}

func TestSession_RoomClosedEndsSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil)
	h := newHarness(gateway, DefaultFanoutCapacity)

	conn := newFakeConn("127.0.0.1:50001")
	conn.send("7")
	session, result := h.start(conn)
	awaitActive(t, session)

	h.registry.Close()

	req.ErrorIs(awaitResult(t, result), errors.ErrSubscriptionClosed)
	req.True(conn.closed())
}

func TestSession_LaggingSubscriberResumes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().LoadRoom(gomock.Any(), chat.RoomID(7)).Return(general(), nil).Times(1)
	gateway.EXPECT().AppendMessage(gomock.Any(), chat.RoomID(7), gomock.Any()).Return(nil).AnyTimes()
	h := newHarness(gateway, DefaultFanoutCapacity)
	metrics := observability.NewMetrics()

	// Given bob stuck writing the first message alice sent
	alice, bob := newFakeConn("127.0.0.1:50001"), newGatedConn("127.0.0.1:50002")
	alice.send("7")
	bob.send("7")
	aliceSession, aliceResult := h.start(alice)
	bobSession := NewSession(h.log, bob, h.registry, h.persister, metrics)
	bobResult := make(chan error, 1)
	go func() { bobResult <- bobSession.Run(context.Background()) }()
	awaitActive(t, aliceSession, bobSession)

	alice.send("alice: 0")
	select {
	case <-bob.entered:
	case <-time.After(time.Second):
		req.FailNow("bob never started writing")
	}

	// When alice overruns the fanout while bob is stuck
	const total = 40
	for i := 1; i < total; i++ {
		alice.send(fmt.Sprintf("alice: %d", i))
	}
	req.Eventually(func() bool { return aliceSession.Room().Stats().Published == total }, time.Second, 5*time.Millisecond)
	close(bob.gate)

	// Then bob skips the overwritten messages and keeps relaying
	expected := []string{"alice: 0"}
	for i := total - DefaultFanoutCapacity; i < total; i++ {
		expected = append(expected, fmt.Sprintf("alice: %d", i))
	}
	for _, frame := range expected {
		bob.expect(t, frame)
	}
	alice.send("alice: after")
	bob.expect(t, "alice: after")
	expected = append(expected, "alice: after")
	req.Equal(expected, bob.Written())
	req.Equal(StateActive, bobSession.State())
	req.Empty(bobResult)
	skipped := total - DefaultFanoutCapacity - 1
	req.Contains(scrape(metrics), fmt.Sprintf("chat_relay_messages_lag_skipped_total %d", skipped))

	req.NoError(alice.Close())
	req.NoError(bob.Close())
	req.ErrorIs(awaitResult(t, aliceResult), io.EOF)
	awaitResult(t, bobResult)
	h.persister.Close()
}
