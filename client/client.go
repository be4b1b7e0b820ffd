// Package client implements the protocol client for a single worker process:
// the initialize handshake, request/response correlation over a transport, and
// typed wrappers for the tool and resource operations.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/localrivet/mcphost/logx"
	"github.com/localrivet/mcphost/protocol"
	"github.com/localrivet/mcphost/transport"
)

// NotificationHandler receives server-initiated notifications.
type NotificationHandler func(method string, params interface{})

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(logger logx.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client speaks the protocol with exactly one worker over a transport. A
// client is bound to a single connection attempt; reconnecting means building
// a fresh client.
type Client struct {
	name    string
	version string
	logger  logx.Logger

	mu         sync.Mutex
	transport  transport.Transport
	connected  bool
	serverInfo protocol.Implementation
	serverCaps protocol.ServerCapabilities

	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Response

	notifyMu       sync.RWMutex
	notifyHandlers []NotificationHandler
	onClosed       func()
}

// New creates a client that will identify itself with the given name and
// version during the handshake.
func New(name, version string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		version: version,
		logger:  logx.NewDefaultLogger(),
		pending: make(map[string]chan *protocol.Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotification registers a handler for server-initiated notifications.
// Handlers are invoked in registration order on the transport's read
// goroutine.
func (c *Client) OnNotification(handler NotificationHandler) {
	c.notifyMu.Lock()
	c.notifyHandlers = append(c.notifyHandlers, handler)
	c.notifyMu.Unlock()
}

// OnConnectionClosed registers the callback invoked once when the underlying
// transport reports that the worker has gone away. Must be called before
// Connect.
func (c *Client) OnConnectionClosed(fn func()) {
	c.notifyMu.Lock()
	c.onClosed = fn
	c.notifyMu.Unlock()
}

// Connect binds the client to the transport and performs the initialize
// handshake: an initialize request followed by the initialized notification.
// The context bounds the whole handshake.
func (c *Client) Connect(ctx context.Context, t transport.Transport) error {
	c.mu.Lock()
	if c.transport != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.transport = t
	c.mu.Unlock()

	t.SetMessageHandler(c.handleMessage)
	t.SetErrorHandler(c.handleError)
	t.SetCloseHandler(c.handleClose)
	t.Start(nil)

	params := protocol.InitializeParams{
		ProtocolVersion: protocol.CurrentProtocolVersion,
		Capabilities:    protocol.ClientCapabilities{},
		ClientInfo: protocol.Implementation{
			Name:    c.name,
			Version: c.version,
		},
	}
	var result protocol.InitializeResult
	if err := c.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	if err := t.Send(protocol.NewNotification(protocol.MethodNotifyInitialized, nil)); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("connected to %s (protocol %s)", result.ServerInfo.Name, result.ProtocolVersion)
	return nil
}

// Close releases the transport. Outstanding requests fail once the worker's
// exit is observed.
func (c *Client) Close() error {
	c.mu.Lock()
	t := c.transport
	c.connected = false
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Close()
}

// Connected reports whether the handshake completed and the worker has not
// gone away since.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ServerInfo returns the identity the worker reported during the handshake.
func (c *Client) ServerInfo() protocol.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ServerCapabilities returns the capabilities the worker advertised during
// the handshake.
func (c *Client) ServerCapabilities() protocol.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

// Ping performs a liveness round trip.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.call(ctx, protocol.MethodPing, nil, nil)
}

// ListTools fetches the worker's full tool catalog, following pagination
// cursors until exhausted.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	var tools []protocol.Tool
	cursor := ""
	for {
		var result protocol.ListToolsResult
		if err := c.call(ctx, protocol.MethodListTools, protocol.ListToolsParams{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		tools = append(tools, result.Tools...)
		if result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// ListResources fetches the worker's full resource catalog, following
// pagination cursors until exhausted.
func (c *Client) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	var resources []protocol.Resource
	cursor := ""
	for {
		var result protocol.ListResourcesResult
		if err := c.call(ctx, protocol.MethodListResources, protocol.ListResourcesParams{Cursor: cursor}, &result); err != nil {
			return nil, err
		}
		resources = append(resources, result.Resources...)
		if result.NextCursor == "" {
			return resources, nil
		}
		cursor = result.NextCursor
	}
}

// CallTool invokes the named tool with the given arguments and returns the
// worker's result verbatim, including results flagged as tool-level errors.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	params := protocol.CallToolParams{Name: name, Arguments: args}
	var result protocol.CallToolResult
	if err := c.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads the resource identified by uri.
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	params := protocol.ReadResourceParams{URI: uri}
	var result protocol.ReadResourceResult
	if err := c.call(ctx, protocol.MethodReadResource, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call sends one request and blocks until its response arrives, the context
// expires, or the connection closes. On expiry the outstanding entry is
// dropped so a late response is discarded as stale.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}

	id := uuid.NewString()
	ch := make(chan *protocol.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := t.Send(protocol.NewRequest(id, method, params)); err != nil {
		c.dropPending(id)
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.dropPending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w while awaiting %s response", ErrConnectionClosed, method)
		}
		if resp.Error != nil {
			return NewServerError(method, resp.Error)
		}
		if result != nil && resp.Result != nil {
			if err := protocol.UnmarshalPayload(resp.Result, result); err != nil {
				return fmt.Errorf("invalid %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// handleMessage routes each decoded message: responses to their pending
// callers, notifications to registered handlers, and server-to-client
// requests to the minimal built-in answers.
func (c *Client) handleMessage(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindResponse:
		c.deliverResponse(msg.Response)
	case protocol.KindNotification:
		c.dispatchNotification(msg.Notification)
	case protocol.KindRequest:
		c.answerRequest(msg.Request)
	}
}

func (c *Client) deliverResponse(resp *protocol.Response) {
	id := fmt.Sprintf("%v", resp.ID)
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("dropping stale response for request %s", id)
		return
	}
	ch <- resp
}

func (c *Client) dispatchNotification(note *protocol.Notification) {
	c.notifyMu.RLock()
	handlers := make([]NotificationHandler, len(c.notifyHandlers))
	copy(handlers, c.notifyHandlers)
	c.notifyMu.RUnlock()
	for _, handler := range handlers {
		handler(note.Method, note.Params)
	}
}

// answerRequest handles server-to-client requests. Pings are answered so
// workers that probe liveness keep working; everything else gets a method
// not found error.
func (c *Client) answerRequest(req *protocol.Request) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return
	}

	var resp *protocol.Response
	switch req.Method {
	case protocol.MethodPing:
		resp = protocol.NewSuccessResponse(req.ID, struct{}{})
	default:
		c.logger.Debug("rejecting unsupported server request %s", req.Method)
		resp = protocol.NewErrorResponse(req.ID, protocol.ErrorCodeMethodNotFound, "method not found", nil)
	}
	if err := t.Send(resp); err != nil {
		c.logger.Warn("failed to answer server request %s: %v", req.Method, err)
	}
}

func (c *Client) handleError(err error) {
	c.logger.Warn("transport error: %v", err)
}

// handleClose fails all outstanding requests and reports the closure upward.
func (c *Client) handleClose() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.notifyMu.RLock()
	onClosed := c.onClosed
	c.notifyMu.RUnlock()
	if onClosed != nil {
		onClosed()
	}
}
