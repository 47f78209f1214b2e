package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Command is a single request sent by a client.
type Command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// InvalidCommandError reports a complete JSON value that is not a command.
type InvalidCommandError struct {
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return "Invalid command: " + e.Reason
}

// ParseCommand converts a raw JSON value into a Command. The value must be an
// object with a string "type"; "params" is optional and must be an object
// when present.
func ParseCommand(raw json.RawMessage) (*Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &InvalidCommandError{Reason: "expected a JSON object"}
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return nil, &InvalidCommandError{Reason: "missing 'type' field"}
	}
	var cmdType string
	if err := json.Unmarshal(typeRaw, &cmdType); err != nil {
		return nil, &InvalidCommandError{Reason: "'type' must be a string"}
	}

	cmd := &Command{Type: cmdType, Params: map[string]any{}}
	if paramsRaw, ok := fields["params"]; ok && string(paramsRaw) != "null" {
		if err := json.Unmarshal(paramsRaw, &cmd.Params); err != nil || cmd.Params == nil {
			return nil, &InvalidCommandError{Reason: "'params' must be an object"}
		}
	}

	return cmd, nil
}

// Response is the reply to exactly one Command.
//
// On the wire a success carries only "status" and "result"; an error carries
// only "status" and "message".
type Response struct {
	Status  string
	Result  any
	Message string
}

// Success builds a successful Response.
func Success(result any) Response {
	return Response{Status: StatusSuccess, Result: result}
}

// Failure builds an error Response.
func Failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// Failuref builds an error Response from a format string.
func Failuref(format string, args ...any) Response {
	return Failure(fmt.Sprintf(format, args...))
}

// FromError builds an error Response carrying err's message.
func FromError(err error) Response {
	return Failure(err.Error())
}

// Encode marshals r. A result that cannot be encoded is replaced by an
// error Response, which is returned alongside its encoding so callers can
// record the status the client actually receives.
func Encode(r Response) ([]byte, Response) {
	data, err := json.Marshal(r)
	if err == nil {
		return data, r
	}
	r = Failuref("failed to encode result: %v", err)
	data, _ = json.Marshal(r)
	return data, r
}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Err returns the response message as an error, or nil for a success.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return errors.New(r.Message)
}

type successWire struct {
	Status string `json:"status"`
	Result any    `json:"result"`
}

type errorWire struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(errorWire{Status: StatusError, Message: r.Message})
	}
	return json.Marshal(successWire{Status: StatusSuccess, Result: r.Result})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status  string `json:"status"`
		Result  any    `json:"result"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Status {
	case StatusSuccess, StatusError:
	default:
		return fmt.Errorf("unknown response status %q", wire.Status)
	}
	*r = Response{Status: wire.Status, Result: wire.Result, Message: wire.Message}
	return nil
}
