package e2e

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/ws"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// relay is an in-process relay bound to a random local port.
type relay struct {
	url          string
	orchestrator *runtime.Orchestrator
	metrics      *observability.Metrics
}

// StartRelay wires a full relay in front of gateway and stops it with the test.
func (s *BaseRelaySuite) StartRelay(t *testing.T, gateway contract.Gateway) *relay {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry(log, gateway, s.Config.FanoutCapacity)
	persister := runtime.NewPersister(log, gateway, metrics, time.Second)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 50*time.Millisecond),
		registry, persister, metrics, time.Minute, 2)

	server := ws.NewServer(log, "127.0.0.1:0", orchestrator, time.Second, 64*1024)
	s.Require().NoError(server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go orchestrator.Start(ctx)
	go func() { done <- server.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		s.Require().NoError(server.Shutdown(shutdownCtx))
		s.Require().NoError(<-done)
		orchestrator.Stop()
	})

	return &relay{
		url:          "ws://" + server.Addr().String(),
		orchestrator: orchestrator,
		metrics:      metrics,
	}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// peer is a raw websocket client speaking the relay protocol.
type peer struct {
	suite *BaseRelaySuite
	name  string
	conn  *websocket.Conn
}

func (s *BaseRelaySuite) Dial(r *relay, name string) *peer {
	conn, resp, err := websocket.DefaultDialer.Dial(r.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	s.Require().NoError(err, "Failed to connect to relay at "+r.url)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &peer{suite: s, name: name, conn: conn}
}

func (p *peer) Send(text string) {
	if p.suite.Config.DebugFrames {
		p.suite.T().Logf("%s >> %q", p.name, text)
	}
	p.suite.Require().NoError(p.conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

// Expect reads the next frame and requires it to be exactly text.
func (p *peer) Expect(text string) {
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, frame, err := p.conn.ReadMessage()
	p.suite.Require().NoError(err, p.name+" did not receive "+text)
	if p.suite.Config.DebugFrames {
		p.suite.T().Logf("%s << %q", p.name, frame)
	}
	p.suite.Require().Equal(websocket.TextMessage, kind)
	p.suite.Require().Equal(text, string(frame))
}

// ExpectSilence requires no frame to arrive within the configured silence.
func (p *peer) ExpectSilence() {
	_ = p.conn.SetReadDeadline(time.Now().Add(p.suite.Config.Silence))
	_, frame, err := p.conn.ReadMessage()
	p.suite.Require().Error(err, fmt.Sprintf("%s unexpectedly received %q", p.name, frame))
	var netErr net.Error
	p.suite.Require().ErrorAs(err, &netErr)
	p.suite.Require().True(netErr.Timeout())
}

// ExpectDropped requires the relay to drop the connection without a close frame.
func (p *peer) ExpectDropped() {
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := p.conn.ReadMessage()
	p.suite.Require().Error(err, fmt.Sprintf("%s received %q", p.name, frame))
	p.suite.Require().True(websocket.IsCloseError(err, websocket.CloseAbnormalClosure), "unexpected error %v", err)
}

// Scrape returns the prometheus exposition of the relay metrics.
func (s *BaseRelaySuite) Scrape(r *relay) string {
	w := httptest.NewRecorder()
	r.metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

// ScrapeEventually waits for line to show up in the exposition.
func (s *BaseRelaySuite) ScrapeEventually(r *relay, line string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(s.Scrape(r), line)
	}, 2*time.Second, 10*time.Millisecond, line)
}

// AwaitSubscribers blocks until the room has n live subscriptions.
func (s *BaseRelaySuite) AwaitSubscribers(r *relay, n int) {
	s.Require().Eventually(func() bool {
		total := 0
		for _, room := range r.orchestrator.Stats().Rooms {
			total += room.Subscribers
		}
		return total == n
	}, 2*time.Second, 10*time.Millisecond)
}
