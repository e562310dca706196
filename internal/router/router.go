// Package router decides whether a model continuation is a tool call or a
// plain reply, and turns either into the single string shown to the user.
//
// Route is total: every input string produces an output string. Text that
// does not parse as a tool call is returned as prose, an unknown tool name
// becomes an error message, and a failing or panicking tool becomes an
// error message too.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voxagent/internal/tool"
)

// Lookuper resolves tool names. *tool.Registry satisfies it.
type Lookuper interface {
	Lookup(name string) (tool.Tool, bool)
}

// State is the point the router reached for one continuation.
type State int

const (
	StatePlainText State = iota
	StateDispatched
	StateUnknownTool
	StateToolFailed
)

func (s State) String() string {
	switch s {
	case StatePlainText:
		return "plain_text"
	case StateDispatched:
		return "dispatched"
	case StateUnknownTool:
		return "unknown_tool"
	case StateToolFailed:
		return "tool_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolCall is a parsed request to run a registered tool.
type ToolCall struct {
	Name      string
	Arguments map[string]any

	argsErr error // arguments present but not an object
}

// Decision records where a continuation ended up.
type Decision struct {
	State  State
	Call   *ToolCall // nil for plain text
	Result string
	Err    error // UnknownToolError or ToolExecutionError
}

// UnknownToolError names a function the registry does not hold. Name is
// the JSON text of the "function" value when it is not a string.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Error: Unknown function '%s'", e.Name)
}

// ToolExecutionError wraps a tool's failure, including a recovered panic.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("Error: Function '%s' failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

var errArgsNotObject = errors.New("arguments must be a JSON object")

// Router turns model continuations into user-facing strings. It keeps no
// state between calls.
type Router struct {
	tools  Lookuper
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New returns a Router dispatching to tools.
func New(tools Lookuper, opts ...Option) *Router {
	r := &Router{
		tools:  tools,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route returns the reply for raw: a tool result, an error message, or
// the trimmed text itself. It never fails.
func (r *Router) Route(ctx context.Context, raw string) string {
	return r.Decide(ctx, raw).Result
}

// Decide is Route with the state reached and the parsed call attached.
func (r *Router) Decide(ctx context.Context, raw string) Decision {
	text := strings.TrimSpace(raw)

	call, ok := ParseToolCall(text)
	if !ok {
		return Decision{State: StatePlainText, Result: text}
	}

	t, found := r.tools.Lookup(call.Name)
	if !found {
		err := &UnknownToolError{Name: call.Name}
		r.logger.Warn("model requested unknown tool", "tool", call.Name)
		return Decision{State: StateUnknownTool, Call: call, Result: err.Error(), Err: err}
	}

	r.logger.Debug("dispatching tool", "tool", call.Name, "args", call.Arguments)
	var out string
	err := call.argsErr
	if err == nil {
		out, err = invoke(ctx, t, call.Arguments)
	}
	if err != nil {
		terr := &ToolExecutionError{Name: call.Name, Err: err}
		r.logger.Error("tool failed", "tool", call.Name, "err", err)
		return Decision{State: StateToolFailed, Call: call, Result: terr.Error(), Err: terr}
	}
	return Decision{State: StateDispatched, Call: call, Result: out}
}

func invoke(ctx context.Context, t tool.Tool, args map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Invoke(ctx, args)
}

// decodeArguments treats a missing or null value as no arguments.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return args, nil
	}
	if raw[0] != '{' {
		return nil, errArgsNotObject
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// ParseToolCall reads text as exactly one JSON object. Any object is a
// call: its "function" key (matched case-sensitively) names the tool.
// A non-string value is named by its JSON text, and a missing one as
// "null". Anything that is not a single JSON object is not a call.
func ParseToolCall(text string) (*ToolCall, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}

	var obj map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	// Trailing data after the object is not a tool call.
	if strings.TrimSpace(text[dec.InputOffset():]) != "" {
		return nil, false
	}

	call := &ToolCall{Name: functionName(obj["function"])}
	call.Arguments, call.argsErr = decodeArguments(obj["arguments"])
	return call, true
}

func functionName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
