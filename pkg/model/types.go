package model

import "encoding/json"

type SessionID string
type TargetID string

// EventKind discriminates every DebugEvent flowing through the pipeline.
type EventKind string

const (
	KindConsoleError       EventKind = "console-error"
	KindConsoleWarn        EventKind = "console-warn"
	KindUncaughtException  EventKind = "uncaught-exception"
	KindUnhandledRejection EventKind = "unhandled-rejection"
	KindRenderError        EventKind = "framework-render-error"
	KindHydrationWarning   EventKind = "framework-hydration-warning"
	KindNetworkRequest     EventKind = "network-request"
	KindNetworkResponse    EventKind = "network-response"
	KindNetworkFailure     EventKind = "network-failure"
)

// IsNetwork reports whether the kind belongs to the network event class.
// Buffer caps and eviction are tracked per class.
func (k EventKind) IsNetwork() bool {
	switch k {
	case KindNetworkRequest, KindNetworkResponse, KindNetworkFailure:
		return true
	}
	return false
}

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindConsoleError, KindConsoleWarn, KindUncaughtException,
		KindUnhandledRejection, KindRenderError, KindHydrationWarning,
		KindNetworkRequest, KindNetworkResponse, KindNetworkFailure:
		return true
	}
	return false
}

// StackFrame is one reduced frame of a captured stack trace.
type StackFrame struct {
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// DebugEvent is the atomic unit flowing through the pipeline. Once appended
// to a store it is immutable; corrections are new events.
type DebugEvent struct {
	Kind           EventKind    `json:"kind"`
	RawMessage     string       `json:"rawMessage,omitempty"`
	CleanedMessage string       `json:"cleanedMessage,omitempty"`
	Topic          string       `json:"topic,omitempty"`
	Stack          []StackFrame `json:"stack,omitempty"`
	CorrelationID  string       `json:"correlationId,omitempty"`
	Timestamp      int64        `json:"timestamp"` // unix millis at capture
	OriginURL      string       `json:"originUrl,omitempty"`

	// Network kinds only.
	URL           string `json:"url,omitempty"`
	Method        string `json:"method,omitempty"`
	Status        int    `json:"status,omitempty"`
	ResourceType  string `json:"resourceType,omitempty"`
	Headers       Header `json:"headers,omitempty"`
	Body          string `json:"body,omitempty"`
	BodyTruncated bool   `json:"bodyTruncated,omitempty"`
	ErrorText     string `json:"errorText,omitempty"`
}

// Envelope is the wire frame carried over the bridge in both directions.
// Unknown Type values must be ignored by every receiver.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	TabID     string          `json:"tabId,omitempty"`
}

// Producer -> aggregator envelope types.
const (
	TypeConsoleError    = "console_error"
	TypeNetworkRequest  = "network_request"
	TypeNetworkResponse = "network_response"
	TypeNetworkFailure  = "network_failure"
)

// Consumer -> producer command types.
const (
	TypeGetErrors    = "get_errors"
	TypeGetNetwork   = "get_network"
	TypeGetAll       = "get_all"
	TypeClear        = "clear"
	TypeStartCapture = "start_capture"
)

// EnvelopeTypeFor maps an event kind to its wire type.
func EnvelopeTypeFor(k EventKind) string {
	switch k {
	case KindNetworkRequest:
		return TypeNetworkRequest
	case KindNetworkResponse:
		return TypeNetworkResponse
	case KindNetworkFailure:
		return TypeNetworkFailure
	default:
		return TypeConsoleError
	}
}
