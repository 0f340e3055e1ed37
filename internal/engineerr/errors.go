// Package engineerr defines the Turn Engine's error taxonomy as sentinel
// errors and small wrapped-error types, in the teacher's style
// (errors.New sentinels plus %w-wrapping helpers) rather than a generic
// error-code framework.
package engineerr

import (
	"errors"
	"fmt"
)

// Sentinels identifying the abstract error kinds named in SPEC_FULL.md §7.
var (
	ErrTransport         = errors.New("engine: transport error")
	ErrToolParse         = errors.New("engine: tool argument parse error")
	ErrToolExecution     = errors.New("engine: tool execution error")
	ErrPermissionDenied  = errors.New("engine: permission denied")
	ErrHookBlocking      = errors.New("engine: hook blocked")
	ErrHookWarning       = errors.New("engine: hook warning")
	ErrAborted           = errors.New("engine: turn aborted")
	ErrConfig            = errors.New("engine: configuration error")
	ErrFatalInvariant    = errors.New("engine: invariant violated")
	ErrNotReentrant      = errors.New("engine: turn already in progress")
	ErrMaxStopRestarts   = errors.New("engine: stop-hook recursion guard exceeded")
)

// TransportError wraps an LLM stream/HTTP failure.
type TransportError struct {
	Model string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (model=%s): %v", e.Model, e.Cause)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// ToolParseError wraps a malformed tool-call-argument JSON failure.
type ToolParseError struct {
	ToolName string
	CallID   string
	Cause    error
}

func (e *ToolParseError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s (call %s): %v", e.ToolName, e.CallID, e.Cause)
}

func (e *ToolParseError) Unwrap() error { return ErrToolParse }

// ToolExecutionError wraps a tool's Execute failure (not a validation
// failure — those are reported in-band as a failed ToolResult).
type ToolExecutionError struct {
	ToolName string
	CallID   string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.ToolName, e.CallID, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return ErrToolExecution }

// PermissionDenied carries the gate's deny reason.
type PermissionDenied struct {
	ToolName string
	Reason   string
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied for tool %s: %s", e.ToolName, e.Reason)
}

func (e *PermissionDenied) Unwrap() error { return ErrPermissionDenied }

// HookBlockingError carries a blocking hook's stderr/stopReason.
type HookBlockingError struct {
	Event   string
	Message string
}

func (e *HookBlockingError) Error() string {
	return fmt.Sprintf("hook %s blocked: %s", e.Event, e.Message)
}

func (e *HookBlockingError) Unwrap() error { return ErrHookBlocking }

// HookWarning carries a non-blocking hook's stderr/timeout message.
type HookWarning struct {
	Event   string
	Message string
}

func (e *HookWarning) Error() string {
	return fmt.Sprintf("hook %s warning: %s", e.Event, e.Message)
}

func (e *HookWarning) Unwrap() error { return ErrHookWarning }

// AbortError marks a turn resolved by host-initiated cancellation.
type AbortError struct {
	Phase string
}

func (e *AbortError) Error() string { return fmt.Sprintf("aborted during %s", e.Phase) }

func (e *AbortError) Unwrap() error { return ErrAborted }

// ConfigError names both the config key and env var a missing setting
// could have come from, per SPEC_FULL.md §6's requirement.
type ConfigError struct {
	Key    string
	EnvVar string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.EnvVar != "" {
		return fmt.Sprintf("config %q (or env %s): %s", e.Key, e.EnvVar, e.Reason)
	}
	return fmt.Sprintf("config %q: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// FatalInvariantError marks a programmer-error state-machine violation
// the engine cannot recover from (e.g. transcript.ErrInvalidBlockState).
type FatalInvariantError struct {
	Component string
	Detail    string
}

func (e *FatalInvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Component, e.Detail)
}

func (e *FatalInvariantError) Unwrap() error { return ErrFatalInvariant }
