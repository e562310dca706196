package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
)

// Tool is a capability the model can call by name.
type Tool interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Func adapts a plain function to Tool.
type Func func(ctx context.Context, args map[string]any) (string, error)

func (f Func) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// Registry maps tool names to tools. It is filled once at startup and
// only read afterwards, so turns may share it.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register binds name to t. A second registration under the same name
// replaces the first; replaced reports whether that happened.
func (r *Registry) Register(name string, t Tool) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.tools[name]
	r.tools[name] = t
	if replaced {
		r.logger.Warn("tool registration replaced existing binding", "tool", name)
	} else {
		r.logger.Debug("registered tool", "tool", name)
	}
	return replaced
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ArgString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgInt reads an integer argument. JSON numbers arrive as float64 and
// small models sometimes quote them, so both are accepted.
func ArgInt(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("argument %q: unexpected type %T", key, v)
	}
}
