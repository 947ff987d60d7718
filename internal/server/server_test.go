package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webtap/internal/store"
	"webtap/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.New(store.Config{
		Paths: []string{filepath.Join(t.TempDir(), "debug-events.json")},
	})
	return New(st, nil), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]json.RawMessage{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestDataRoute(t *testing.T) {
	srv, st := newTestServer(t)
	st.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "boom", Timestamp: 1})

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var errs []model.DebugEvent
	require.NoError(t, json.Unmarshal(body["errors"], &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].RawMessage)
	assert.Contains(t, body, "network")
	assert.Contains(t, body, "lastUpdate")
}

func TestErrorsAndNetworkRoutes(t *testing.T) {
	srv, st := newTestServer(t)
	st.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "e1", Timestamp: 1})
	st.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, URL: "https://api/x", Timestamp: 2})

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var errs []model.DebugEvent
	require.NoError(t, json.Unmarshal(body["errors"], &errs))
	assert.Len(t, errs, 1)

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/network", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var network []model.DebugEvent
	require.NoError(t, json.Unmarshal(body["network"], &network))
	assert.Len(t, network, 1)
}

func TestSummaryRouteIsPlainText(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "webtap debug summary")
}

func TestClearRoute(t *testing.T) {
	srv, st := newTestServer(t)
	st.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "x", Timestamp: 1})

	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.Errors())
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/data", "/errors", "/network", "/summary", "/clear"} {
		rec, _ := doJSON(t, srv.Handler(), http.MethodPost, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "path: %s", path)
	}
	rec, _ := doJSON(t, srv.Handler(), http.MethodGet, "/ingest", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestAcceptsErrorEvent(t *testing.T) {
	srv, st := newTestServer(t)
	body := `{"kind":"console-error","rawMessage":"Uncaught boom at bundle.3f9ab21c.js:1"}`
	rec, out := doJSON(t, srv.Handler(), http.MethodPost, "/ingest", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, json.RawMessage(`"ok"`), out["status"])

	errs := st.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "Uncaught boom at bundle.js:1", errs[0].CleanedMessage)
	assert.NotZero(t, errs[0].Timestamp)
}

func TestIngestDefaultsKind(t *testing.T) {
	srv, st := newTestServer(t)
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/ingest", `{"rawMessage":"plain"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, st.Errors(), 1)
	assert.Equal(t, model.KindConsoleError, st.Errors()[0].Kind)
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	srv, st := newTestServer(t)
	cases := []string{
		`not json`,
		`{"kind":"console-error"}`,
		`{"kind":"network-request","rawMessage":"x"}`,
		`{"kind":"no-such-kind","rawMessage":"x"}`,
	}
	for _, body := range cases {
		rec, out := doJSON(t, srv.Handler(), http.MethodPost, "/ingest", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		assert.Contains(t, out, "error", "body: %s", body)
	}
	assert.Empty(t, st.Errors())
}

func TestBridgeIngestsProducerEvents(t *testing.T) {
	srv, st := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(envType string, ev model.DebugEvent) {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(model.Envelope{Type: envType, Data: raw, TabID: "tab-1"}))
	}
	send(model.TypeConsoleError, model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "from producer", Timestamp: 1000})
	send(model.TypeNetworkRequest, model.DebugEvent{Kind: model.KindNetworkRequest, URL: "https://api/x", CorrelationID: "1", Timestamp: 2000})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))

	waitStore(t, func() bool { return len(st.Errors()) == 1 && len(st.Network()) == 1 })
	assert.Equal(t, "from producer", st.Errors()[0].RawMessage)
	assert.Equal(t, "https://api/x", st.Network()[0].URL)
}

func TestClearBroadcastsToProducers(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the producer.
	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get(ts.URL + "/clear")
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, model.TypeClear, env.Type)
}

func waitStore(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
