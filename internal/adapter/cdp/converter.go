// Package cdp converts DevTools protocol payloads into the neutral event
// model. Nothing outside this package touches protocol reply types.
package cdp

import (
	"encoding/json"
	"strings"
	"time"

	"webtap/pkg/model"

	cdplog "github.com/mafredri/cdp/protocol/log"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
)

// FromConsoleAPI converts a consoleAPICalled notification. Only error and
// warning calls produce an event; anything else returns false.
func FromConsoleAPI(ev *runtime.ConsoleAPICalledReply, origin string) (model.DebugEvent, bool) {
	var kind model.EventKind
	switch ev.Type {
	case "error", "assert":
		kind = model.KindConsoleError
	case "warning":
		kind = model.KindConsoleWarn
	default:
		return model.DebugEvent{}, false
	}
	return model.DebugEvent{
		Kind:       kind,
		RawMessage: formatArgs(ev.Args),
		Stack:      fromStackTrace(ev.StackTrace),
		Timestamp:  time.Now().UnixMilli(),
		OriginURL:  origin,
	}, true
}

// FromException converts an exceptionThrown notification. Promise rejections
// arrive through the same surface, prefixed by the protocol.
func FromException(ev *runtime.ExceptionThrownReply, origin string) model.DebugEvent {
	d := ev.ExceptionDetails
	msg := d.Text
	if d.Exception != nil {
		if desc := remoteObjectText(*d.Exception); desc != "" {
			if msg != "" && !strings.Contains(desc, msg) {
				msg = msg + " " + desc
			} else {
				msg = desc
			}
		}
	}
	kind := model.KindUncaughtException
	if strings.Contains(d.Text, "in promise") {
		kind = model.KindUnhandledRejection
	}
	out := model.DebugEvent{
		Kind:       kind,
		RawMessage: msg,
		Stack:      fromStackTrace(d.StackTrace),
		Timestamp:  time.Now().UnixMilli(),
		OriginURL:  origin,
	}
	if len(out.Stack) == 0 && d.URL != nil {
		out.Stack = []model.StackFrame{{File: *d.URL, Line: d.LineNumber, Column: d.ColumnNumber}}
	}
	return out
}

// FromLogEntry converts a browser-level log entry (network, security,
// rendering). Console-sourced entries are skipped; those already arrive via
// consoleAPICalled.
func FromLogEntry(ev *cdplog.EntryAddedReply, origin string) (model.DebugEvent, bool) {
	e := ev.Entry
	if string(e.Source) == "console" {
		return model.DebugEvent{}, false
	}
	var kind model.EventKind
	switch string(e.Level) {
	case "error":
		kind = model.KindConsoleError
	case "warning":
		kind = model.KindConsoleWarn
	default:
		return model.DebugEvent{}, false
	}
	out := model.DebugEvent{
		Kind:       kind,
		RawMessage: e.Text,
		Stack:      fromStackTrace(e.StackTrace),
		Timestamp:  time.Now().UnixMilli(),
		OriginURL:  origin,
	}
	if len(out.Stack) == 0 && e.URL != nil {
		frame := model.StackFrame{File: *e.URL}
		if e.LineNumber != nil {
			frame.Line = *e.LineNumber
		}
		out.Stack = []model.StackFrame{frame}
	}
	return out, true
}

// FromRequest converts a requestWillBeSent notification. The protocol request
// id becomes the correlation id shared by the response or failure.
func FromRequest(ev *network.RequestWillBeSentReply, origin string) model.DebugEvent {
	return model.DebugEvent{
		Kind:          model.KindNetworkRequest,
		RawMessage:    ev.Request.Method + " " + ev.Request.URL,
		CorrelationID: string(ev.RequestID),
		Timestamp:     time.Now().UnixMilli(),
		OriginURL:     origin,
		URL:           ev.Request.URL,
		Method:        ev.Request.Method,
		ResourceType:  string(ev.Type),
		Headers:       parseHeaders(ev.Request.Headers),
	}
}

// FromResponse converts a responseReceived notification. The body is fetched
// separately, after this event.
func FromResponse(ev *network.ResponseReceivedReply, origin string) model.DebugEvent {
	return model.DebugEvent{
		Kind:          model.KindNetworkResponse,
		RawMessage:    ev.Response.URL + " " + ev.Response.StatusText,
		CorrelationID: string(ev.RequestID),
		Timestamp:     time.Now().UnixMilli(),
		OriginURL:     origin,
		URL:           ev.Response.URL,
		Status:        ev.Response.Status,
		ResourceType:  string(ev.Type),
		Headers:       parseHeaders(ev.Response.Headers),
	}
}

// FromLoadingFailed converts a loadingFailed notification.
func FromLoadingFailed(ev *network.LoadingFailedReply, url, origin string) model.DebugEvent {
	return model.DebugEvent{
		Kind:          model.KindNetworkFailure,
		RawMessage:    ev.ErrorText + " " + url,
		CorrelationID: string(ev.RequestID),
		Timestamp:     time.Now().UnixMilli(),
		OriginURL:     origin,
		URL:           url,
		ResourceType:  string(ev.Type),
		ErrorText:     ev.ErrorText,
	}
}

// formatArgs renders console call arguments the way the browser console
// would, separated by spaces.
func formatArgs(args []runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for i := range args {
		if s := remoteObjectText(args[i]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// remoteObjectText reduces a RemoteObject to display text: primitive values
// by their JSON form, everything else by description.
func remoteObjectText(obj runtime.RemoteObject) string {
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	if obj.Description != nil {
		return *obj.Description
	}
	return obj.Type
}

func fromStackTrace(st *runtime.StackTrace) []model.StackFrame {
	if st == nil {
		return nil
	}
	out := make([]model.StackFrame, 0, len(st.CallFrames))
	for _, f := range st.CallFrames {
		out = append(out, model.StackFrame{
			Function: f.FunctionName,
			File:     f.URL,
			Line:     f.LineNumber,
			Column:   f.ColumnNumber,
		})
	}
	return out
}

func parseHeaders(raw network.Headers) model.Header {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	h := make(model.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
