// Package dispatch resolves invocation requests against the registry,
// validates and coerces their arguments, runs the tool and packages the
// outcome as an InvocationResult. Per-request failures never escape as Go
// errors or panics.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InvocationRequest names a tool and carries its arguments.
type InvocationRequest struct {
	Tool      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FailureKind tags a failed invocation.
type FailureKind string

const (
	// UnknownTool: no tool is registered under the requested name.
	UnknownTool FailureKind = "UnknownTool"
	// InvalidArguments: missing, unexpected or non-coercible arguments.
	InvalidArguments FailureKind = "InvalidArguments"
	// ExecutionError: the tool failed, panicked, timed out or broke its return contract.
	ExecutionError FailureKind = "ExecutionError"
	// ServerNotRunning: the server is not in the listening state.
	ServerNotRunning FailureKind = "ServerNotRunning"
)

// Failure describes why an invocation did not succeed.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	Message    string      `json:"message"`
	Parameters []string    `json:"parameters,omitempty"`
}

func (f *Failure) Error() string {
	if len(f.Parameters) > 0 {
		return fmt.Sprintf("%s: %s [%s]", f.Kind, f.Message, strings.Join(f.Parameters, ", "))
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// InvocationResult is either a JSON value or a Failure.
type InvocationResult struct {
	ID      string          `json:"id"`
	Tool    string          `json:"tool"`
	Value   json.RawMessage `json:"value,omitempty"`
	Failure *Failure        `json:"error,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r InvocationResult) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil on success.
func (r InvocationResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Kind returns the failure kind, or "" on success.
func (r InvocationResult) Kind() FailureKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}

// Text renders the value for text-only transports: JSON strings are
// unquoted, anything else is returned as raw JSON.
func (r InvocationResult) Text() string {
	if r.Failure != nil {
		return r.Failure.Error()
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return string(r.Value)
}

// Failed builds a failure result.
func Failed(id, tool string, kind FailureKind, message string, params ...string) InvocationResult {
	return InvocationResult{
		ID:      id,
		Tool:    tool,
		Failure: &Failure{Kind: kind, Message: message, Parameters: params},
	}
}
