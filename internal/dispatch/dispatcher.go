package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"toolshim-mcp/internal/cache"
	"toolshim-mcp/internal/registry"
	"toolshim-mcp/internal/telemetry"
)

// Dispatcher routes invocation requests to registry tools.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	metrics  *telemetry.Metrics
	timeout  time.Duration
	cache    *cache.Cache[json.RawMessage]
	cacheTTL time.Duration
	newID    func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records every dispatch on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTimeout bounds each tool invocation. Zero means no bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithResultCache caches results of pure tools in c for ttl.
func WithResultCache(c *cache.Cache[json.RawMessage], ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.cache = c
		d.cacheTTL = ttl
	}
}

// New creates a Dispatcher over reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Dispatch resolves, validates and runs one invocation. It never panics
// and never returns a Go error: every outcome is an InvocationResult.
func (d *Dispatcher) Dispatch(ctx context.Context, req InvocationRequest) InvocationResult {
	id := d.newID()
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "tool.dispatch",
		attribute.String("tool.name", req.Tool),
		attribute.String("invocation.id", id),
	)
	defer span.End()

	res, known := d.dispatch(ctx, id, req)

	outcome := "success"
	if res.Failure != nil {
		outcome = string(res.Failure.Kind)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("tool.outcome", outcome), attribute.Bool("tool.cached", res.Cached))
	d.metrics.ObserveInvocation(req.Tool, outcome, known, time.Since(start))

	ev := log.Debug().
		Str("tool", req.Tool).
		Str("invocation_id", id)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		ev = ev.Str("trace_id", traceID)
	}
	ev.Str("outcome", outcome).
		Bool("cached", res.Cached).
		Dur("duration", time.Since(start)).
		Msg("Tool dispatched")

	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, id string, req InvocationRequest) (InvocationResult, bool) {
	tool, err := d.registry.Lookup(req.Tool)
	if err != nil {
		return Failed(id, req.Tool, UnknownTool, fmt.Sprintf("unknown tool %q", req.Tool)), false
	}
	desc := tool.Descriptor

	args, verr := prepareArguments(desc, tool.Schema, req.Arguments)
	if verr != nil {
		log.Debug().Str("tool", req.Tool).Str("invocation_id", id).Strs("parameters", verr.params).
			Msg("Argument validation failed")
		return Failed(id, req.Tool, InvalidArguments, verr.Error(), verr.params...), true
	}

	var key uint64
	useCache := desc.Pure && d.cache != nil && d.cacheTTL > 0
	if useCache {
		canonical, err := json.Marshal(map[string]any(args))
		if err != nil {
			useCache = false
		} else {
			key = cache.Key([]byte(desc.Name), canonical)
			if v, ok := d.cache.Get(key); ok {
				d.metrics.CacheHit(desc.Name)
				return InvocationResult{ID: id, Tool: desc.Name, Value: v, Cached: true}, true
			}
		}
	}

	value, err := d.invoke(ctx, tool, args)
	if err != nil {
		return d.executionFailure(id, desc.Name, err), true
	}

	raw, err := checkReturn(desc.Returns, value)
	if err != nil {
		return d.executionFailure(id, desc.Name, err), true
	}

	if useCache {
		d.cache.Set(key, raw, d.cacheTTL)
	}
	return InvocationResult{ID: id, Tool: desc.Name, Value: raw}, true
}

var errTimeout = errors.New("tool execution timed out")

// invoke runs the handler, converting panics into errors and applying the
// configured timeout.
func (d *Dispatcher) invoke(ctx context.Context, tool registry.Tool, args registry.Arguments) (any, error) {
	if d.timeout <= 0 {
		return callHandler(ctx, tool.Handler, args)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := callHandler(timeoutCtx, tool.Handler, args)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-timeoutCtx.Done():
		return nil, errors.Wrapf(errTimeout, "after %v", d.timeout)
	}
}

func callHandler(ctx context.Context, h registry.Handler, args registry.Arguments) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, args)
}

func (d *Dispatcher) executionFailure(id, tool string, err error) InvocationResult {
	log.Error().Err(err).Str("tool", tool).Str("invocation_id", id).Msg("Tool execution failed")

	if te, ok := registry.AsToolError(err); ok {
		return Failed(id, tool, ExecutionError, te.Message)
	}
	if errors.Is(err, errTimeout) {
		return Failed(id, tool, ExecutionError, fmt.Sprintf("tool %q timed out after %v", tool, d.timeout))
	}
	return Failed(id, tool, ExecutionError, fmt.Sprintf("tool %q failed (invocation %s)", tool, id))
}
