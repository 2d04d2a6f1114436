// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/metrics"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Config tunes the engine. Zero fields take the defaults below.
type Config struct {
	// InterfaceAspects are attached to the interface node at startup.
	InterfaceAspects []string

	// CallTimeout bounds how long a forwarded or server-originated
	// call waits for its response.
	CallTimeout time.Duration

	// TaskQueue bounds tasks posted between ticks.
	TaskQueue int
}

// Defaults for zero Config fields.
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultTaskQueue   = 4096
)

// ErrTaskQueueFull is returned by Post when collaborators outpace the
// tick.
var ErrTaskQueueFull = errors.New("task queue full")

// Engine owns the node store and runs ticks.
type Engine struct {
	registry *scene.Registry
	clients  *client.Registry
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Recorder
	config   Config

	tasks *client.Queue[scene.Task]

	// mu serializes ticks. Everything below it is only touched while
	// it is held.
	mu      sync.Mutex
	store   *scene.Store
	pending map[pendingKey]*pendingCall
	frame   clock.Frame
}

var _ scene.Env = (*Engine)(nil)

// New builds an engine over a frozen aspect registry and bootstraps the
// interface node. recorder may be nil.
func New(config Config, registry *scene.Registry, clients *client.Registry, clk clock.Clock, logger *slog.Logger, recorder *metrics.Recorder) (*Engine, error) {
	if !registry.Frozen() {
		return nil, fmt.Errorf("aspect registry must be frozen before the engine starts")
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if config.TaskQueue <= 0 {
		config.TaskQueue = DefaultTaskQueue
	}
	e := &Engine{
		registry: registry,
		clients:  clients,
		clock:    clk,
		logger:   logger,
		metrics:  recorder,
		config:   config,
		tasks:    client.NewQueue[scene.Task](config.TaskQueue),
		pending:  make(map[pendingKey]*pendingCall),
	}
	e.store = scene.NewStore(registry, e)
	if _, err := e.store.Bootstrap(config.InterfaceAspects...); err != nil {
		return nil, fmt.Errorf("creating interface node: %w", err)
	}
	return e, nil
}

// Post schedules task to run during the next tick. It never blocks.
func (e *Engine) Post(task scene.Task) error {
	if err := e.tasks.TryPush(task); err != nil {
		if errors.Is(err, client.ErrQueueFull) {
			return ErrTaskQueueFull
		}
		return err
	}
	return nil
}

// Run ticks once per frame until ctx is cancelled or frames is closed.
func (e *Engine) Run(ctx context.Context, frames <-chan clock.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			e.Tick(frame)
		}
	}
}

// Tick runs one exclusive dispatch pass.
func (e *Engine) Tick(frame clock.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock.Now()
	e.frame = frame

	// Snapshot every client's queue before handling anything, so a
	// message that arrives mid-tick waits for the next one.
	type batch struct {
		client   *client.Client
		messages []wire.Message
	}
	var batches []batch
	for _, c := range e.clients.Active() {
		if messages := c.Inbound.Drain(); len(messages) > 0 {
			batches = append(batches, batch{client: c, messages: messages})
		}
	}
	for _, b := range batches {
		for _, message := range b.messages {
			if b.client.State() != client.Active {
				break
			}
			e.handle(b.client, message)
		}
	}

	for _, task := range e.tasks.Drain() {
		e.runTask(task)
	}

	for _, c := range e.clients.TakeClosing() {
		e.teardown(c)
	}

	e.expire(start)

	for _, table := range e.registry.Tables() {
		if table.Tick != nil {
			e.runHook(table, frame)
		}
	}

	e.metrics.Tick(e.clock.Now().Sub(start), e.clients.Len(), e.store.Len(), len(e.pending))
}

// Shutdown disconnects every client and tears them down.
func (e *Engine) Shutdown() {
	for _, c := range e.clients.All() {
		e.clients.Disconnect(c.ID, client.ErrShutdown)
	}
	e.mu.Lock()
	frame := e.frame
	e.mu.Unlock()
	frame.Number++
	e.Tick(frame)
}

func (e *Engine) handle(c *client.Client, message wire.Message) {
	e.metrics.Message(message.Kind.String())
	switch message.Kind {
	case wire.KindResponse:
		e.resolve(c.ID, message)
	case wire.KindCall, wire.KindSignal:
		e.invoke(c.ID, message)
	}
}

// invoke resolves and runs one Call or Signal.
func (e *Engine) invoke(caller wire.ClientID, message wire.Message) {
	isCall := message.Kind == wire.KindCall
	fail := func(err *wire.Error) {
		if isCall {
			e.respond(caller, message.Seq, nil, err)
		}
	}

	node, ok := e.store.Get(message.Node)
	if !ok {
		// A signal may have raced a destroy; dropping it is not an
		// error.
		fail(wire.Errorf(wire.CodeUnknownNode, "%s", message.Node))
		return
	}
	if !node.Has(message.Aspect) {
		fail(wire.Errorf(wire.CodeMethodNotSupported, "aspect %q is not attached to %s", message.Aspect, node.ID))
		return
	}
	table, _ := e.registry.Resolve(message.Aspect)
	method, ok := table.Methods[message.Member]
	if !ok {
		fail(wire.Errorf(wire.CodeMethodNotSupported, "aspect %q has no method %q", message.Aspect, message.Member))
		return
	}
	if method.Ownership && !node.Permits(caller) {
		fail(wire.Errorf(wire.CodePermissionDenied, "%s.%s on %s requires ownership", message.Aspect, message.Member, node.ID))
		return
	}

	call := scene.NewCall(e.store, e, caller, node, message)
	result, err := e.runHandler(call, method.Handler)
	if !isCall {
		if err != nil {
			e.logger.Debug("signal handler failed",
				"client", caller, "node", node.ID, "aspect", message.Aspect, "member", message.Member, "error", err)
		}
		return
	}
	if err != nil {
		if call.Deferred() {
			e.abandon(caller, message.Seq)
		}
		e.respond(caller, message.Seq, nil, err)
		return
	}
	if call.Deferred() {
		return
	}
	e.respond(caller, message.Seq, result, nil)
}

// runHandler invokes handler, converting a panic into an internal
// aspect error.
func (e *Engine) runHandler(call *scene.Call, handler scene.Handler) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("aspect handler panicked",
				"client", call.Caller, "node", call.Node.ID,
				"aspect", call.Aspect, "member", call.Method,
				"panic", recovered, "stack", string(debug.Stack()))
			result = nil
			err = wire.Errorf(wire.CodeInternalAspectError, "%s.%s failed", call.Aspect, call.Method)
		}
	}()
	return handler(call)
}

func (e *Engine) runTask(task scene.Task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("task panicked", "panic", recovered, "stack", string(debug.Stack()))
		}
	}()
	task(e.store, e)
}

func (e *Engine) runHook(table *scene.Table, frame clock.Frame) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("aspect tick hook panicked", "aspect", table.Name,
				"panic", recovered, "stack", string(debug.Stack()))
		}
	}()
	table.Tick(e.store, e, frame)
}

// respond queues a Response for seq to client. err takes precedence
// over result.
func (e *Engine) respond(to wire.ClientID, seq uint64, result any, err error) {
	c, ok := e.clients.Get(to)
	if !ok {
		return
	}
	var message wire.Message
	if err != nil {
		wireErr := wire.AsError(err)
		e.metrics.Error(string(wireErr.Code))
		message = wire.NewErrorResponse(seq, wireErr)
	} else {
		var encodeErr error
		message, encodeErr = wire.NewResponse(seq, result)
		if encodeErr != nil {
			e.logger.Error("encoding response", "client", to, "seq", seq, "error", encodeErr)
			e.metrics.Error(string(wire.CodeInternalAspectError))
			message = wire.NewErrorResponse(seq, wire.Errorf(wire.CodeInternalAspectError, "result could not be encoded"))
		}
	}
	e.send(c, message)
}

func (e *Engine) send(c *client.Client, message wire.Message) {
	if err := e.clients.Send(c, message); err != nil {
		e.logger.Debug("dropping outbound message", "client", c.ID, "kind", message.Kind, "error", err)
	}
}

// teardown destroys a Closing client's nodes, settles its pending
// calls and removes it.
func (e *Engine) teardown(c *client.Client) {
	destroyed := e.store.DestroyOwnedBy(c.ID)
	e.dropPending(c.ID)
	e.clients.Remove(c)
	reason := c.Reason()
	e.metrics.Disconnect(reasonLabel(reason))
	e.logger.Info("client removed", "client", c.ID, "name", c.Name(), "nodes", len(destroyed), "reason", reason)
}

// reasonLabel maps a disconnect reason to a low-cardinality metric
// label.
func reasonLabel(reason error) string {
	switch {
	case reason == nil:
		return "unknown"
	case errors.Is(reason, client.ErrPeerClosed):
		return "peer_closed"
	case errors.Is(reason, client.ErrOutboundOverflow):
		return "outbound_overflow"
	case errors.Is(reason, client.ErrInboundStalled):
		return "inbound_stalled"
	case errors.Is(reason, client.ErrHandshake):
		return "handshake"
	case errors.Is(reason, client.ErrKicked):
		return "kicked"
	case errors.Is(reason, client.ErrShutdown):
		return "shutdown"
	case wire.IsProtocolError(reason):
		return "protocol"
	default:
		return "transport"
	}
}

// Emit implements scene.Env.
func (e *Engine) Emit(node *scene.Node, aspect, event string, payload any) {
	recipients := node.Recipients()
	if len(recipients) == 0 {
		return
	}
	message, err := wire.NewSignal(node.ID, aspect, event, payload)
	if err != nil {
		e.logger.Error("encoding event", "node", node.ID, "aspect", aspect, "event", event, "error", err)
		return
	}
	for _, id := range recipients {
		if c, ok := e.clients.Get(id); ok && c.State() == client.Active {
			e.send(c, message)
		}
	}
}

// Notify implements scene.Env.
func (e *Engine) Notify(to wire.ClientID, node *scene.Node, aspect, event string, payload any) {
	c, ok := e.clients.Get(to)
	if !ok || c.State() != client.Active {
		return
	}
	message, err := wire.NewSignal(node.ID, aspect, event, payload)
	if err != nil {
		e.logger.Error("encoding event", "node", node.ID, "aspect", aspect, "event", event, "error", err)
		return
	}
	e.send(c, message)
}

// Logger implements scene.Env.
func (e *Engine) Logger() *slog.Logger { return e.logger }
