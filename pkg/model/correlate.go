package model

// NetworkRequestRecord groups the request, response and failure events that
// share one correlation id. Events stay independent in storage; records are
// assembled at query/format time. Any of the three slots may be nil: a
// response or failure whose request was filtered upstream is still a usable
// record.
type NetworkRequestRecord struct {
	CorrelationID string      `json:"correlationId"`
	Request       *DebugEvent `json:"request,omitempty"`
	Response      *DebugEvent `json:"response,omitempty"`
	Failure       *DebugEvent `json:"failure,omitempty"`
}

// URL returns the best-known URL for the record.
func (r *NetworkRequestRecord) URL() string {
	switch {
	case r.Request != nil:
		return r.Request.URL
	case r.Response != nil:
		return r.Response.URL
	case r.Failure != nil:
		return r.Failure.URL
	}
	return ""
}

// Status returns the resolved response status, or 0 when unresolved.
func (r *NetworkRequestRecord) Status() int {
	if r.Response != nil {
		return r.Response.Status
	}
	return 0
}

// Failed reports whether the record ended in an error response or a
// connection-level failure.
func (r *NetworkRequestRecord) Failed() bool {
	if r.Failure != nil {
		return true
	}
	return r.Response != nil && r.Response.Status >= 400
}

// Correlate assembles records from an insertion-ordered event slice. Records
// appear in first-occurrence order. Events without a correlation id each get
// their own record. At most one request and one of response/failure are kept
// per id; later arrivals for an occupied slot start a fresh record so nothing
// is silently dropped.
func Correlate(events []DebugEvent) []NetworkRequestRecord {
	var out []NetworkRequestRecord
	index := make(map[string]int)

	place := func(rec *NetworkRequestRecord, ev *DebugEvent) bool {
		switch ev.Kind {
		case KindNetworkRequest:
			if rec.Request != nil {
				return false
			}
			rec.Request = ev
		case KindNetworkResponse:
			if rec.Response != nil || rec.Failure != nil {
				return false
			}
			rec.Response = ev
		case KindNetworkFailure:
			if rec.Response != nil || rec.Failure != nil {
				return false
			}
			rec.Failure = ev
		default:
			return false
		}
		return true
	}

	for i := range events {
		ev := &events[i]
		if !ev.Kind.IsNetwork() {
			continue
		}
		if ev.CorrelationID == "" {
			rec := NetworkRequestRecord{}
			place(&rec, ev)
			out = append(out, rec)
			continue
		}
		if at, ok := index[ev.CorrelationID]; ok && place(&out[at], ev) {
			continue
		}
		rec := NetworkRequestRecord{CorrelationID: ev.CorrelationID}
		place(&rec, ev)
		out = append(out, rec)
		index[ev.CorrelationID] = len(out) - 1
	}
	return out
}
