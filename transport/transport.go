// Package transport adapts one worker process's byte streams into a duplex
// message channel. It owns the background read loops and reports decoded
// messages, per-frame decode errors and process termination through
// caller-supplied handlers.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/localrivet/mcphost/framing"
	"github.com/localrivet/mcphost/logx"
	"github.com/localrivet/mcphost/protocol"
	"github.com/localrivet/mcphost/spawn"
)

// Standard error types that can be used with errors.Is()
var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrUnexpectedExit  = errors.New("worker process terminated unexpectedly")
)

// MessageHandler receives every decoded protocol message.
type MessageHandler func(msg *protocol.Message)

// ErrorHandler receives recoverable transport errors: per-frame decode
// failures and unexpected process termination.
type ErrorHandler func(err error)

// CloseHandler fires exactly once, when the worker process has exited.
type CloseHandler func()

// Transport is the duplex message channel over one worker process.
type Transport interface {
	// Start launches the background read loops. Readiness is signaled through
	// the caller-supplied callback; the transport only knows the process
	// exists, not that the worker is listening. Idempotent.
	Start(onReady func())
	// Send encodes and writes one message to the worker's input sink.
	Send(msg interface{}) error
	// Close stops the transport and releases the input sink. Idempotent.
	Close() error

	SetMessageHandler(handler MessageHandler)
	SetErrorHandler(handler ErrorHandler)
	SetCloseHandler(handler CloseHandler)
}

// ProcessTransport wraps exactly one spawn.Process. Created after spawn,
// closed with or before kill.
type ProcessTransport struct {
	proc   spawn.Process
	framer *framing.Framer
	logger logx.Logger

	handlerMu sync.RWMutex
	onMessage MessageHandler
	onError   ErrorHandler
	onClose   CloseHandler

	closeMu sync.Mutex
	closed  bool

	writeMu   sync.Mutex
	startOnce sync.Once
	notifyOne sync.Once
}

// NewProcessTransport creates a transport over the given live process. A nil
// logger falls back to the default stderr logger.
func NewProcessTransport(proc spawn.Process, logger logx.Logger) *ProcessTransport {
	if logger == nil {
		logger = logx.NewDefaultLogger()
	}
	return &ProcessTransport{
		proc:   proc,
		framer: framing.NewFramer(),
		logger: logger,
	}
}

// SetMessageHandler sets the handler invoked for each decoded message.
func (t *ProcessTransport) SetMessageHandler(handler MessageHandler) {
	t.handlerMu.Lock()
	t.onMessage = handler
	t.handlerMu.Unlock()
}

// SetErrorHandler sets the handler invoked for recoverable errors.
func (t *ProcessTransport) SetErrorHandler(handler ErrorHandler) {
	t.handlerMu.Lock()
	t.onError = handler
	t.handlerMu.Unlock()
}

// SetCloseHandler sets the handler invoked once when the process has exited.
func (t *ProcessTransport) SetCloseHandler(handler CloseHandler) {
	t.handlerMu.Lock()
	t.onClose = handler
	t.handlerMu.Unlock()
}

// Start launches the stdout read loop, the stderr drain and the exit watcher,
// then reports readiness through onReady. Subsequent calls only re-signal
// readiness.
func (t *ProcessTransport) Start(onReady func()) {
	t.startOnce.Do(func() {
		go t.readLoop()
		go t.drainStderr()
		go t.watchExit()
	})
	if onReady != nil {
		onReady()
	}
}

// Send encodes msg and writes it to the worker's input sink. Back-pressure is
// the sink's responsibility; the write may block. Sending after Close fails
// with ErrTransportClosed without attempting a write.
func (t *ProcessTransport) Send(msg interface{}) error {
	t.closeMu.Lock()
	closed := t.closed
	t.closeMu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	data, err := t.framer.Encode(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.proc.Stdin().Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close marks the transport closed and releases the input sink. The read
// loops wind down when the process's streams reach EOF. Idempotent.
func (t *ProcessTransport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	if err := t.proc.Stdin().Close(); err != nil {
		t.logger.Warn("transport: error closing input sink: %v", err)
	}
	return nil
}

func (t *ProcessTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

// readLoop feeds stdout chunks to the framer and dispatches every decoded
// frame. A decode error is reported without stopping the loop.
func (t *ProcessTransport) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.proc.Stdout().Read(buf)
		if n > 0 {
			for _, frame := range t.framer.Feed(buf[:n]) {
				if frame.Err != nil {
					t.dispatchError(frame.Err)
					continue
				}
				t.dispatchMessage(frame.Message)
			}
		}
		if err != nil {
			if err != io.EOF && !t.isClosed() {
				t.logger.Error("transport: read error on worker output: %v", err)
			}
			return
		}
	}
}

// drainStderr logs diagnostic output line by line. Stderr is never dispatched
// as protocol data.
func (t *ProcessTransport) drainStderr() {
	scanner := bufio.NewScanner(t.proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.logger.Debug("worker stderr: %s", scanner.Text())
	}
}

// watchExit waits for the process's exit completion. Exit without a prior
// Close is first reported as an unexpected termination via the error handler,
// then the close handler fires. The close handler fires exactly once either
// way.
func (t *ProcessTransport) watchExit() {
	<-t.proc.Done()

	t.closeMu.Lock()
	wasClosed := t.closed
	t.closed = true
	t.closeMu.Unlock()

	if !wasClosed {
		if cause := t.proc.Err(); cause != nil {
			t.dispatchError(fmt.Errorf("%w: %v", ErrUnexpectedExit, cause))
		} else {
			t.dispatchError(ErrUnexpectedExit)
		}
	}
	t.notifyOne.Do(func() {
		t.handlerMu.RLock()
		handler := t.onClose
		t.handlerMu.RUnlock()
		if handler != nil {
			handler()
		}
	})
}

func (t *ProcessTransport) dispatchMessage(msg *protocol.Message) {
	t.handlerMu.RLock()
	handler := t.onMessage
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

func (t *ProcessTransport) dispatchError(err error) {
	t.handlerMu.RLock()
	handler := t.onError
	t.handlerMu.RUnlock()
	if handler != nil {
		handler(err)
		return
	}
	t.logger.Warn("transport: %v", err)
}

var _ Transport = (*ProcessTransport)(nil)
