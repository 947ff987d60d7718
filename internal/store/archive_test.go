package store

import (
	"path/filepath"
	"testing"

	"webtap/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveAppendAndCount(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.sqlite3")
	a, err := NewArchive(dsn, "webtap_", nil)
	require.NoError(t, err)

	a.Append(model.DebugEvent{
		Kind:           model.KindConsoleError,
		RawMessage:     "boom",
		CleanedMessage: "boom",
		Timestamp:      1000,
	})
	a.Append(model.DebugEvent{
		Kind:          model.KindNetworkResponse,
		CorrelationID: "1",
		URL:           "https://api/x",
		Status:        500,
		Timestamp:     2000,
	})

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestArchiveSurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "events.sqlite3")
	a, err := NewArchive(dsn, "webtap_", nil)
	require.NoError(t, err)
	a.Append(model.DebugEvent{Kind: model.KindConsoleError, RawMessage: "kept", Timestamp: 1})

	b, err := NewArchive(dsn, "webtap_", nil)
	require.NoError(t, err)
	n, err := b.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
