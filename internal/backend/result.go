package backend

import "encoding/json"

// Result is the tagged outcome of one ticket API call: Success carries the
// parsed response body, Failure carries a human-readable error. Either way
// the result is serialized into the tool-role message so the model, not the
// orchestrator, decides how to present it to the user.
type Result struct {
	Ok         bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Success wraps a parsed response payload.
func Success(data any) Result {
	return Result{Ok: true, Data: data}
}

// Failure wraps a backend-reported or locally detected error. status is 0
// when no HTTP response was involved (local argument validation).
func Failure(status int, msg string) Result {
	return Result{Ok: false, StatusCode: status, Error: msg}
}

// Encode serializes the result for a tool-role message.
func (r Result) Encode() string {
	out, err := json.Marshal(r)
	if err != nil {
		// Data came from json.Unmarshal or plain strings, so this is
		// effectively unreachable; keep the tool protocol alive anyway.
		return `{"success":false,"error":"failed to encode tool result"}`
	}
	return string(out)
}
