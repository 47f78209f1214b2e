// Package router maps command types to handlers.
//
// Routes are registered once at startup. Routes belonging to an optional
// feature are checked against a FeatureSource on every lookup, so toggling a
// feature takes effect for the next command without re-registering anything.
// A disabled route is indistinguishable from an unknown one.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/executor"
	"github.com/muurk/scenebridge/internal/logging"
	"github.com/muurk/scenebridge/internal/protocol"
)

// Optional features that gate groups of commands.
const (
	FeatureAssetLibrary     = "asset_library"
	FeatureGeneratedContent = "generated_content"
)

// ErrDuplicateRoute is returned when a command type is registered twice.
var ErrDuplicateRoute = errors.New("command type already registered")

// UnknownCommandError is returned for a type with no enabled route.
type UnknownCommandError struct {
	Type string
}

func (e *UnknownCommandError) Error() string {
	return "Unknown command type: " + e.Type
}

// Handler executes a command on the owner context.
type Handler func(p Params) (any, error)

// Apply is the owner-context half of a prepared command.
type Apply func() (any, error)

// Preparer does the slow part of a command (network I/O, file downloads) on
// the caller's goroutine and returns the step that touches host state.
type Preparer func(ctx context.Context, p Params) (Apply, error)

// FeatureSource reports whether an optional feature is currently on.
type FeatureSource interface {
	FeatureEnabled(name string) bool
}

type route struct {
	feature string
	handler Handler
	prepare Preparer
}

// Router resolves commands to executor tasks.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]route
	features FeatureSource
}

// New creates an empty Router. A nil features source leaves every gated
// route disabled.
func New(features FeatureSource) *Router {
	return &Router{
		routes:   make(map[string]route),
		features: features,
	}
}

// Register adds a command that is always available.
func (r *Router) Register(cmdType string, h Handler) error {
	return r.add(cmdType, route{handler: h})
}

// RegisterGated adds a command that is available only while feature is on.
func (r *Router) RegisterGated(feature, cmdType string, h Handler) error {
	return r.add(cmdType, route{feature: feature, handler: h})
}

// RegisterPrepared adds a gated command with an off-owner prepare stage.
// An empty feature makes it always available.
func (r *Router) RegisterPrepared(feature, cmdType string, p Preparer) error {
	return r.add(cmdType, route{feature: feature, prepare: p})
}

func (r *Router) add(cmdType string, rt route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[cmdType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, cmdType)
	}
	r.routes[cmdType] = rt
	return nil
}

func (r *Router) enabled(rt route) bool {
	if rt.feature == "" {
		return true
	}
	return r.features != nil && r.features.FeatureEnabled(rt.feature)
}

func (r *Router) lookup(cmdType string) (route, bool) {
	r.mu.RLock()
	rt, ok := r.routes[cmdType]
	r.mu.RUnlock()

	if !ok || !r.enabled(rt) {
		return route{}, false
	}
	return rt, true
}

// Resolve turns cmd into a task for the owner context.
//
// Unknown and disabled types return an *UnknownCommandError. For prepared
// routes the prepare stage runs here, on the caller's goroutine, and its
// error is returned directly.
func (r *Router) Resolve(ctx context.Context, cmd *protocol.Command) (executor.Task, error) {
	rt, ok := r.lookup(cmd.Type)
	if !ok {
		logging.Debug("Unknown command type", zap.String("type", cmd.Type))
		return nil, &UnknownCommandError{Type: cmd.Type}
	}

	params := Params(cmd.Params)
	if params == nil {
		params = Params{}
	}

	if rt.prepare == nil {
		h := rt.handler
		return func() (any, error) { return h(params) }, nil
	}

	apply, err := rt.prepare(ctx, params)
	if err != nil {
		return nil, err
	}
	return executor.Task(apply), nil
}

// Dispatch resolves cmd and runs it on the calling goroutine. It must only be
// called from the owner context.
func (r *Router) Dispatch(ctx context.Context, cmd *protocol.Command) (resp protocol.Response) {
	task, err := r.Resolve(ctx, cmd)
	if err != nil {
		return protocol.FromError(err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Handler panicked",
				zap.String("type", cmd.Type),
				zap.Any("panic", rec),
			)
			resp = protocol.Failuref("internal error: %v", rec)
		}
	}()

	result, err := task()
	if err != nil {
		return protocol.FromError(err)
	}
	return protocol.Success(result)
}

// Available returns the currently enabled command types, sorted.
func (r *Router) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name, rt := range r.routes {
		if r.enabled(rt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
