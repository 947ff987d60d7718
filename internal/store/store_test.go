package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"webtap/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		filepath.Join(dir, "primary", "debug-events.json"),
		filepath.Join(dir, "secondary", "debug-events.json"),
	}
}

func TestAddErrorPersistsToAllPaths(t *testing.T) {
	paths := testPaths(t)
	s := New(Config{Paths: paths})

	require.True(t, s.AddError(model.DebugEvent{
		Kind:       model.KindConsoleError,
		RawMessage: "boom",
		Timestamp:  1000,
	}))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var state State
		require.NoError(t, json.Unmarshal(data, &state))
		require.Len(t, state.Errors, 1)
		assert.Equal(t, "boom", state.Errors[0].RawMessage)
		assert.Empty(t, state.Network)
		assert.NotEmpty(t, state.LastUpdate)
	}
}

func TestRestoreFromPersistedState(t *testing.T) {
	paths := testPaths(t)
	first := New(Config{Paths: paths})
	first.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "persisted", Timestamp: 1})
	first.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, URL: "https://api/x", CorrelationID: "1", Timestamp: 2})

	second := New(Config{Paths: paths})
	require.Len(t, second.Errors(), 1)
	assert.Equal(t, "persisted", second.Errors()[0].RawMessage)
	require.Len(t, second.Network(), 1)
	assert.Equal(t, "https://api/x", second.Network()[0].URL)
}

func TestRestoreFallsBackToSecondPath(t *testing.T) {
	paths := testPaths(t)
	state := State{
		Errors:     []model.DebugEvent{{Kind: model.KindConsoleError, RawMessage: "from-secondary"}},
		Network:    []model.DebugEvent{},
		LastUpdate: "2026-08-25T10:00:00Z",
	}
	data, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths[1]), 0o755))
	require.NoError(t, os.WriteFile(paths[1], data, 0o644))

	s := New(Config{Paths: paths})
	require.Len(t, s.Errors(), 1)
	assert.Equal(t, "from-secondary", s.Errors()[0].RawMessage)
}

func TestCorruptStateFileIgnored(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(paths[0]), 0o755))
	require.NoError(t, os.WriteFile(paths[0], []byte("{not json"), 0o644))

	s := New(Config{Paths: paths})
	assert.Empty(t, s.Errors())
	assert.Empty(t, s.Network())
}

func TestClearPersistsEmptyState(t *testing.T) {
	paths := testPaths(t)
	s := New(Config{Paths: paths})
	s.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "x", Timestamp: 1})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, URL: "y", Timestamp: 2})

	s.Clear()
	assert.Empty(t, s.Errors())
	assert.Empty(t, s.Network())

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Empty(t, state.Errors)
	assert.Empty(t, state.Network)
}

func TestAddErrorDedups(t *testing.T) {
	s := New(Config{Paths: testPaths(t)})
	require.True(t, s.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "same", Timestamp: 1000}))
	assert.False(t, s.AddError(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "same", Timestamp: 1400}))
	assert.Len(t, s.Errors(), 1)
}

func TestDataNeverReturnsNilSlices(t *testing.T) {
	s := New(Config{Paths: testPaths(t)})
	state := s.Data()
	assert.NotNil(t, state.Errors)
	assert.NotNil(t, state.Network)
}

func TestSummaryRendersBoundedSections(t *testing.T) {
	s := New(Config{Paths: testPaths(t), SummaryLimit: 3})
	for i := 0; i < 5; i++ {
		s.AddError(model.DebugEvent{
			Kind:       model.KindConsoleError,
			RawMessage: fmt.Sprintf("error number %d", i),
			Timestamp:  int64(i * 10_000),
			OriginURL:  "https://app.example",
		})
	}
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, CorrelationID: "1", URL: "https://api/ok", Method: "GET", Timestamp: 1})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkResponse, CorrelationID: "1", URL: "https://api/ok", Status: 200, Timestamp: 2})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, CorrelationID: "2", URL: "https://api/bad", Method: "POST", Timestamp: 3})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkResponse, CorrelationID: "2", URL: "https://api/bad", Status: 500, Timestamp: 4})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkRequest, CorrelationID: "3", URL: "https://api/dead", Timestamp: 5})
	s.AddNetwork(model.DebugEvent{Kind: model.KindNetworkFailure, CorrelationID: "3", URL: "https://api/dead", ErrorText: "net::ERR_CONNECTION_REFUSED", Timestamp: 6})

	out := s.Summary()
	assert.Contains(t, out, "Errors (3 shown, 5 buffered):")
	assert.Contains(t, out, "error number 4")
	assert.NotContains(t, out, "error number 1")
	assert.Contains(t, out, "Network errors (2 shown, 2 total):")
	assert.Contains(t, out, "500 POST https://api/bad")
	assert.Contains(t, out, "FAILED https://api/dead (net::ERR_CONNECTION_REFUSED)")
	assert.Contains(t, out, "GET https://api/ok -> 200")
	assert.Contains(t, out, "https://api/dead -> failed")
}

func TestSummaryEmptyState(t *testing.T) {
	s := New(Config{Paths: testPaths(t)})
	out := s.Summary()
	assert.Contains(t, out, "Errors (0 shown, 0 buffered):")
	assert.Contains(t, out, "none")
}
