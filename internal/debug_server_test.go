package internal

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func get(t *testing.T, handler http.Handler, target string, headers map[string]string) *http.Response {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w.Result()
}

func TestDebugServer_InspectListsPrefixedKeys(t *testing.T) {
	req := require.New(t)

	// Given a store with a room and a message
	db := openInMemory(t)
	req.NoError(db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("room:0000000007"), []byte("general")); err != nil {
			return err
		}
		return txn.Set([]byte("msg:7:0000000000000000001:abcdef0123"), []byte("hi"))
	}))
	server := NewDebugServer(discardLogger(), "127.0.0.1:0", DebugOptions{
		DB:    db,
		Stats: func() map[string]any { return map[string]any{"rooms": 1} },
	})

	// When inspecting messages
	resp := get(t, server.Handler(), "/inspect?prefix=msg:", nil)
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	// Then only the message is listed, mapped by the default mapper
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Contains(string(body), "msg:7:0000000000000000001:abcdef0123")
	req.Contains(string(body), "abcdef01")
	req.NotContains(string(body), "room:0000000007")
	req.Contains(string(body), "rooms: 1")
}

func TestDebugServer_StatsAndMetrics(t *testing.T) {
	req := require.New(t)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "chat_relay_active_sessions 2\n")
	})
	server := NewDebugServer(discardLogger(), "127.0.0.1:0", DebugOptions{
		Metrics: metrics,
		Stats:   func() map[string]any { return map[string]any{"sessions": 2} },
	})

	resp := get(t, server.Handler(), "/stats", nil)
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.JSONEq(`{"sessions":2}`, string(body))

	resp = get(t, server.Handler(), "/metrics", nil)
	body, err = io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(body), "chat_relay_active_sessions 2")

	// No store, no inspect page
	resp = get(t, server.Handler(), "/inspect", nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestDebugServer_CorsAllowsConfiguredOrigin(t *testing.T) {
	req := require.New(t)

	server := NewDebugServer(discardLogger(), "127.0.0.1:0", DebugOptions{
		CorsOrigins: []string{"http://dashboard.local"},
	})

	resp := get(t, server.Handler(), "/stats", map[string]string{"Origin": "http://dashboard.local"})
	req.Equal("http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = get(t, server.Handler(), "/stats", map[string]string{"Origin": "http://elsewhere.local"})
	req.Empty(resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("msg:7:0000000000000000001:abcdef0123", []byte("hi"))
	req.Equal("7", row.Namespace)
	req.Equal("abcdef01", row.EntityID)
	req.Equal("Size: 2 bytes", row.Detail)

	row = DefaultMapper("seq:room", nil)
	req.Equal("default", row.Namespace)
	req.Equal("RAW", row.Type)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
