package cdp

import (
	"encoding/json"
	"testing"

	"webtap/pkg/model"

	cdplog "github.com/mafredri/cdp/protocol/log"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestFromConsoleAPI(t *testing.T) {
	ev := &runtime.ConsoleAPICalledReply{
		Type: "error",
		Args: []runtime.RemoteObject{
			{Type: "string", Value: json.RawMessage(`"request failed:"`)},
			{Type: "number", Value: json.RawMessage(`500`)},
		},
		StackTrace: &runtime.StackTrace{
			CallFrames: []runtime.CallFrame{
				{FunctionName: "loadUser", URL: "https://app/src/api.js", LineNumber: 10, ColumnNumber: 4},
			},
		},
	}
	out, ok := FromConsoleAPI(ev, "https://app")
	require.True(t, ok)
	assert.Equal(t, model.KindConsoleError, out.Kind)
	assert.Equal(t, "request failed: 500", out.RawMessage)
	assert.Equal(t, "https://app", out.OriginURL)
	require.Len(t, out.Stack, 1)
	assert.Equal(t, "loadUser", out.Stack[0].Function)
	assert.NotZero(t, out.Timestamp)
}

func TestFromConsoleAPIWarning(t *testing.T) {
	ev := &runtime.ConsoleAPICalledReply{
		Type: "warning",
		Args: []runtime.RemoteObject{{Type: "string", Value: json.RawMessage(`"deprecated"`)}},
	}
	out, ok := FromConsoleAPI(ev, "")
	require.True(t, ok)
	assert.Equal(t, model.KindConsoleWarn, out.Kind)
}

func TestFromConsoleAPISkipsPlainLogs(t *testing.T) {
	for _, typ := range []string{"log", "info", "debug", "table"} {
		ev := &runtime.ConsoleAPICalledReply{Type: typ}
		_, ok := FromConsoleAPI(ev, "")
		assert.False(t, ok, "type: %s", typ)
	}
}

func TestFromException(t *testing.T) {
	desc := "TypeError: x is undefined\n    at boot (https://app/main.js:3:1)"
	ev := &runtime.ExceptionThrownReply{
		ExceptionDetails: runtime.ExceptionDetails{
			Text:       "Uncaught",
			Exception:  &runtime.RemoteObject{Type: "object", Description: &desc},
			URL:        str("https://app/main.js"),
			LineNumber: 3,
		},
	}
	out := FromException(ev, "https://app")
	assert.Equal(t, model.KindUncaughtException, out.Kind)
	assert.Contains(t, out.RawMessage, "TypeError: x is undefined")
	require.Len(t, out.Stack, 1)
	assert.Equal(t, "https://app/main.js", out.Stack[0].File)
}

func TestFromExceptionPromiseRejection(t *testing.T) {
	ev := &runtime.ExceptionThrownReply{
		ExceptionDetails: runtime.ExceptionDetails{
			Text: "Uncaught (in promise)",
		},
	}
	out := FromException(ev, "")
	assert.Equal(t, model.KindUnhandledRejection, out.Kind)
}

func TestFromLogEntry(t *testing.T) {
	line := 0
	ev := &cdplog.EntryAddedReply{
		Entry: cdplog.Entry{
			Source:     "network",
			Level:      "error",
			Text:       "Failed to load resource: the server responded with a status of 404",
			URL:        str("https://app/missing.js"),
			LineNumber: &line,
		},
	}
	out, ok := FromLogEntry(ev, "https://app")
	require.True(t, ok)
	assert.Equal(t, model.KindConsoleError, out.Kind)
	require.Len(t, out.Stack, 1)
	assert.Equal(t, "https://app/missing.js", out.Stack[0].File)
}

func TestFromLogEntrySkipsConsoleAndVerbose(t *testing.T) {
	_, ok := FromLogEntry(&cdplog.EntryAddedReply{Entry: cdplog.Entry{Source: "console", Level: "error"}}, "")
	assert.False(t, ok)
	_, ok = FromLogEntry(&cdplog.EntryAddedReply{Entry: cdplog.Entry{Source: "network", Level: "info"}}, "")
	assert.False(t, ok)
}

func TestFromRequest(t *testing.T) {
	ev := &network.RequestWillBeSentReply{
		RequestID: network.RequestID("req-1"),
		Request: network.Request{
			URL:     "https://api/users",
			Method:  "POST",
			Headers: network.Headers(`{"Content-Type":"application/json"}`),
		},
		Type: network.ResourceType("XHR"),
	}
	out := FromRequest(ev, "https://app")
	assert.Equal(t, model.KindNetworkRequest, out.Kind)
	assert.Equal(t, "req-1", out.CorrelationID)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, "XHR", out.ResourceType)
	assert.Equal(t, "application/json", out.Headers.Get("content-type"))
	assert.Equal(t, "POST https://api/users", out.RawMessage)
}

func TestFromResponse(t *testing.T) {
	ev := &network.ResponseReceivedReply{
		RequestID: network.RequestID("req-1"),
		Response: network.Response{
			URL:        "https://api/users",
			Status:     503,
			StatusText: "Service Unavailable",
		},
	}
	out := FromResponse(ev, "")
	assert.Equal(t, model.KindNetworkResponse, out.Kind)
	assert.Equal(t, "req-1", out.CorrelationID)
	assert.Equal(t, 503, out.Status)
}

func TestFromLoadingFailed(t *testing.T) {
	ev := &network.LoadingFailedReply{
		RequestID: network.RequestID("req-2"),
		ErrorText: "net::ERR_CONNECTION_REFUSED",
	}
	out := FromLoadingFailed(ev, "https://api/down", "")
	assert.Equal(t, model.KindNetworkFailure, out.Kind)
	assert.Equal(t, "req-2", out.CorrelationID)
	assert.Equal(t, "https://api/down", out.URL)
	assert.Equal(t, "net::ERR_CONNECTION_REFUSED", out.ErrorText)
}
