// Package server owns the lifecycle of the tool server and the transports
// that expose it: HTTP (chi), websocket and MCP.
package server

import (
	"context"
	"iter"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/dispatch"
	"toolshim-mcp/internal/registry"
)

// State is the lifecycle state of a Server.
type State int

const (
	NotStarted State = iota
	// Starting: resources and transports are being acquired.
	Starting
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// ErrInvalidState is returned for a transition the state machine forbids.
var ErrInvalidState = errors.New("invalid server state transition")

// Endpoint is what transports serve: invocation and discovery.
type Endpoint interface {
	Invoke(ctx context.Context, req dispatch.InvocationRequest) dispatch.InvocationResult
	Tools() iter.Seq[registry.ToolDescriptor]
}

// Transport exposes an Endpoint to remote callers.
//
// Serve returns once the transport accepts requests; a bind failure is
// returned directly. The channel yields the terminal error if the transport
// ends on its own, and is closed afterwards.
type Transport interface {
	Name() string
	Serve(ctx context.Context, ep Endpoint) (<-chan error, error)
	Stop(ctx context.Context) error
}

// Resource is acquired on Start and released on Stop.
type Resource interface {
	Name() string
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Server drives the NotStarted -> Starting -> Listening -> Stopped lifecycle.
type Server struct {
	dispatcher *dispatch.Dispatcher
	resources  []Resource
	transports []Transport

	// lifecycle serializes Start and Stop; mu guards state and is never
	// held while resources open or transports bind.
	lifecycle sync.Mutex
	mu        sync.RWMutex
	state     State
	opened    []Resource
	started   []Transport
	inFlight  sync.WaitGroup

	done     chan error
	doneOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithResources adds resources opened on Start, in order.
func WithResources(rs ...Resource) Option {
	return func(s *Server) { s.resources = append(s.resources, rs...) }
}

// WithTransports adds transports started on Start, in order.
func WithTransports(ts ...Transport) Option {
	return func(s *Server) { s.transports = append(s.transports, ts...) }
}

// New creates a Server in the NotStarted state.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		done:       make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done yields once when a transport ends while the server is listening.
func (s *Server) Done() <-chan error {
	return s.done
}

// Start seals the registry, opens resources and starts transports. On
// failure everything acquired so far is released and the server ends up
// Stopped. Invocations made while Start runs fail with ServerNotRunning.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state != NotStarted {
		state := s.state
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start from %s", state)
	}
	s.state = Starting
	s.mu.Unlock()

	s.dispatcher.Registry().Close()

	var (
		opened  []Resource
		started []Transport
	)
	for _, r := range s.resources {
		if err := r.Open(ctx); err != nil {
			return s.abortStart(ctx, started, opened, errors.Wrapf(err, "open %s", r.Name()))
		}
		opened = append(opened, r)
	}

	for _, t := range s.transports {
		errc, err := t.Serve(ctx, s)
		if err != nil {
			return s.abortStart(ctx, started, opened, errors.Wrapf(err, "start %s transport", t.Name()))
		}
		started = append(started, t)
		go s.watch(t, errc)
	}

	s.mu.Lock()
	s.state = Listening
	s.opened, s.started = opened, started
	s.mu.Unlock()

	log.Info().
		Int("tools", s.dispatcher.Registry().Len()).
		Int("transports", len(started)).
		Msg("Server listening")
	return nil
}

func (s *Server) abortStart(ctx context.Context, transports []Transport, resources []Resource, cause error) error {
	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()

	if err := release(ctx, transports, resources); err != nil {
		log.Warn().Err(err).Msg("Release after failed start")
	}
	log.Error().Err(cause).Msg("Server start failed")
	return cause
}

func (s *Server) watch(t Transport, errc <-chan error) {
	err, ok := <-errc
	if !ok {
		return
	}
	if state := s.State(); state != Starting && state != Listening {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("transport", t.Name()).Msg("Transport failed")
	} else {
		log.Info().Str("transport", t.Name()).Msg("Transport closed")
	}
	s.doneOnce.Do(func() { s.done <- err })
}

// Stop stops transports, waits for in-flight invocations and releases
// resources in reverse order. Stopping a stopped server is a no-op. A Stop
// issued while Start runs waits for Start to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	prev := s.state
	s.state = Stopped
	transports, resources := s.started, s.opened
	s.started, s.opened = nil, nil
	s.mu.Unlock()

	if prev != Listening {
		return nil
	}

	log.Info().Msg("Server stopping")

	var errs error
	for i := len(transports) - 1; i >= 0; i-- {
		if err := transports[i].Stop(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "stop %s transport", transports[i].Name()))
		}
	}

	if err := s.waitInFlight(ctx); err != nil {
		errs = errors.CombineErrors(errs, err)
	}

	errs = errors.CombineErrors(errs, release(ctx, nil, resources))
	if errs != nil {
		log.Warn().Err(errs).Msg("Server stopped with errors")
		return errs
	}
	log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) waitInFlight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for in-flight invocations")
	}
}

func release(ctx context.Context, transports []Transport, resources []Resource) error {
	var errs error
	for i := len(transports) - 1; i >= 0; i-- {
		if err := transports[i].Stop(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "stop %s transport", transports[i].Name()))
		}
	}
	for i := len(resources) - 1; i >= 0; i-- {
		if err := resources[i].Close(ctx); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "close %s", resources[i].Name()))
		}
	}
	return errs
}

// Invoke dispatches req if the server is listening and fails with
// ServerNotRunning otherwise.
func (s *Server) Invoke(ctx context.Context, req dispatch.InvocationRequest) dispatch.InvocationResult {
	s.mu.RLock()
	if s.state != Listening {
		state := s.state
		s.mu.RUnlock()
		return dispatch.Failed(uuid.NewString(), req.Tool, dispatch.ServerNotRunning,
			"server is "+state.String())
	}
	s.inFlight.Add(1)
	s.mu.RUnlock()
	defer s.inFlight.Done()

	return s.dispatcher.Dispatch(ctx, req)
}

// Tools lists the registered tools in registration order.
func (s *Server) Tools() iter.Seq[registry.ToolDescriptor] {
	return s.dispatcher.Registry().List()
}
