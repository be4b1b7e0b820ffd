package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localrivet/mcphost/client"
	"github.com/localrivet/mcphost/logx"
	"github.com/localrivet/mcphost/spawn"
	"github.com/localrivet/mcphost/transport"
)

// ConnState tracks a server connection through its lifecycle.
type ConnState int

const (
	StateIdle ConnState = iota
	StateStarting
	StateAwaitingReady
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAwaitingReady:
		return "awaiting-ready"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Connection establishment defaults.
const (
	DefaultSettleDelay    = 1 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultConnectRetries = 3
	DefaultRetryBackoff   = 2 * time.Second
)

// ConnectionOptions configures how server connections are established. The
// zero value gets production defaults; tests shrink the durations.
type ConnectionOptions struct {
	// SettleDelay is how long a freshly spawned worker gets to boot before the
	// first handshake attempt.
	SettleDelay time.Duration
	// ConnectTimeout bounds each individual handshake attempt.
	ConnectTimeout time.Duration
	// ConnectRetries is the number of handshake attempts before giving up.
	ConnectRetries int
	// RetryBackoff is the pause between handshake attempts.
	RetryBackoff time.Duration

	// ClientName and ClientVersion identify the host during the handshake.
	ClientName    string
	ClientVersion string

	Logger  logx.Logger
	Spawner spawn.Spawner
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ConnectRetries <= 0 {
		o.ConnectRetries = DefaultConnectRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.ClientName == "" {
		o.ClientName = "mcphost"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "0.1.0"
	}
	if o.Logger == nil {
		o.Logger = logx.NewDefaultLogger()
	}
	if o.Spawner == nil {
		o.Spawner = spawn.NewExecSpawner()
	}
	return o
}

// ServerConnection owns one worker: its process, the transport over the
// process's streams, and the protocol client bound to the current connection
// attempt.
type ServerConnection struct {
	name string
	cfg  spawn.Config
	opts ConnectionOptions

	mu    sync.Mutex
	state ConnState
	cause error
	proc  spawn.Process
	trans *transport.ProcessTransport
	cli   *client.Client
}

func newServerConnection(name string, cfg spawn.Config, opts ConnectionOptions) *ServerConnection {
	return &ServerConnection{
		name:  name,
		cfg:   cfg,
		opts:  opts,
		state: StateIdle,
	}
}

// Name returns the configured server name.
func (c *ServerConnection) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *ServerConnection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cause returns the error that moved the connection to StateFailed, if any.
func (c *ServerConnection) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Client returns the protocol client, or nil unless the connection is
// currently established.
func (c *ServerConnection) Client() *client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.cli
}

func (c *ServerConnection) setState(state ConnState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	c.opts.Logger.Debug("server %s: %s -> %s", c.name, prev, state)
}

// connect spawns the worker, waits for it to settle, and runs handshake
// attempts until one succeeds or the retry budget is spent. A spawn failure is
// terminal and never retried.
func (c *ServerConnection) connect(ctx context.Context) error {
	c.setState(StateStarting)

	proc, err := c.opts.Spawner.Spawn(ctx, c.cfg)
	if err != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrSpawnFailed, err))
	}

	trans := transport.NewProcessTransport(proc, c.opts.Logger)
	c.mu.Lock()
	c.proc = proc
	c.trans = trans
	c.mu.Unlock()

	c.setState(StateAwaitingReady)
	select {
	case <-time.After(c.opts.SettleDelay):
	case <-proc.Done():
		return c.fail(fmt.Errorf("%w during startup: %v", ErrProcessExited, proc.Err()))
	case <-ctx.Done():
		return c.fail(ctx.Err())
	}

	c.setState(StateConnecting)
	var lastErr error
	for attempt := 1; attempt <= c.opts.ConnectRetries; attempt++ {
		select {
		case <-proc.Done():
			return c.fail(fmt.Errorf("%w before handshake attempt %d: %v", ErrProcessExited, attempt, proc.Err()))
		case <-ctx.Done():
			return c.fail(ctx.Err())
		default:
		}

		// Each attempt gets a fresh client; a timed-out attempt loses its
		// handler binding, so its late results are discarded as stale.
		cli := client.New(c.opts.ClientName, c.opts.ClientVersion, client.WithLogger(c.opts.Logger))
		cli.OnConnectionClosed(c.onWorkerGone)

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
		err := cli.Connect(attemptCtx, trans)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.cli = cli
			c.mu.Unlock()
			c.setState(StateConnected)
			c.opts.Logger.Info("server %s: connected on attempt %d", c.name, attempt)
			return nil
		}

		if errors.Is(err, client.ErrRequestTimeout) {
			err = fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		lastErr = err
		c.opts.Logger.Warn("server %s: handshake attempt %d/%d failed: %v",
			c.name, attempt, c.opts.ConnectRetries, err)

		if attempt < c.opts.ConnectRetries {
			select {
			case <-time.After(c.opts.RetryBackoff):
			case <-proc.Done():
				return c.fail(fmt.Errorf("%w during retry backoff: %v", ErrProcessExited, proc.Err()))
			case <-ctx.Done():
				return c.fail(ctx.Err())
			}
		}
	}
	return c.fail(fmt.Errorf("%w for server %s: %w", ErrRetriesExhausted, c.name, lastErr))
}

// onWorkerGone runs when the transport reports the worker has exited. An exit
// while connected moves the connection to StateFailed; exits during teardown
// are the expected outcome of shutdown.
func (c *ServerConnection) onWorkerGone() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.cause = ErrProcessExited
	c.mu.Unlock()
	c.opts.Logger.Warn("server %s: worker exited while connected", c.name)
}

// fail records the terminal error and tears down whatever was established.
func (c *ServerConnection) fail(cause error) error {
	c.mu.Lock()
	c.state = StateFailed
	c.cause = cause
	trans := c.trans
	proc := c.proc
	c.mu.Unlock()

	c.opts.Logger.Warn("server %s: connection failed: %v", c.name, cause)
	if trans != nil {
		if err := trans.Close(); err != nil {
			c.opts.Logger.Debug("server %s: transport close after failure: %v", c.name, err)
		}
	}
	if proc != nil {
		if err := proc.Kill(); err != nil {
			c.opts.Logger.Debug("server %s: kill after failure: %v", c.name, err)
		}
	}
	return cause
}

// shutdown tears the connection down deliberately. Teardown never fails;
// problems are logged and swallowed.
func (c *ServerConnection) shutdown() {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	trans := c.trans
	proc := c.proc
	c.mu.Unlock()
	c.opts.Logger.Debug("server %s: shutting down", c.name)

	if trans != nil {
		if err := trans.Close(); err != nil {
			c.opts.Logger.Warn("server %s: error closing transport: %v", c.name, err)
		}
	}
	if proc != nil {
		if err := proc.Kill(); err != nil {
			c.opts.Logger.Warn("server %s: error killing worker: %v", c.name, err)
		}
	}
	c.setState(StateClosed)
}
