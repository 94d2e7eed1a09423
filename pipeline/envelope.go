package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrNoBody is returned by [Result.Decode] when the response had no body.
var ErrNoBody = errors.New("response has no body")

// envelope is the optional {success, message, data} wrapper the API uses.
type envelope struct {
	success    *bool
	message    string
	data       json.RawMessage
	hasMessage bool
}

// parseEnvelope reads the envelope fields from a JSON object body. Bodies that
// are not JSON objects, or fields with unexpected types, are ignored field by
// field so one odd field never hides the others.
func parseEnvelope(body []byte) envelope {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return env
	}
	if raw, ok := fields["success"]; ok {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			env.success = &b
		}
	}
	if raw, ok := fields["message"]; ok {
		var m string
		if json.Unmarshal(raw, &m) == nil && m != "" {
			env.message, env.hasMessage = m, true
		}
	}
	if raw, ok := fields["data"]; ok {
		env.data = raw
	}
	return env
}

// logicalFailure reports an explicit "success": false.
func (e envelope) logicalFailure() bool {
	return e.success != nil && !*e.success
}

// Result is a received response. It is returned for every call that got a
// response, including rejected ones.
type Result struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string

	// Message is the envelope "message" field, if any.
	Message string
	// Data is the raw envelope "data" field, if any.
	Data json.RawMessage
}

// Decode unmarshals the whole body into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return ErrNoBody
	}
	return json.Unmarshal(r.Body, v)
}

// DecodeData unmarshals the envelope "data" field into v, falling back to the
// whole body when the response was not wrapped.
func (r *Result) DecodeData(v any) error {
	if r != nil && len(r.Data) > 0 {
		return json.Unmarshal(r.Data, v)
	}
	return r.Decode(v)
}
