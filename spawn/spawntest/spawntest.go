// Package spawntest provides in-memory fakes of spawn.Process and
// spawn.Spawner, plus a scripted stub worker that speaks just enough of the
// protocol to exercise transports, clients and the host manager without real
// subprocesses.
package spawntest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/localrivet/mcphost/framing"
	"github.com/localrivet/mcphost/protocol"
	"github.com/localrivet/mcphost/spawn"
)

// ErrKilled is the exit error recorded when a fake process is killed.
var ErrKilled = errors.New("process killed")

// Process is an in-memory spawn.Process backed by pipes. The test side plays
// the worker: it reads what the transport wrote via WorkerInput and emits
// protocol output via WriteStdout / WriteStderr.
type Process struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	done     chan struct{}
	exitOnce sync.Once
	exitErr  error
}

// NewProcess creates a fake process whose streams are connected pipes.
func NewProcess() *Process {
	p := &Process{done: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *Process) Stdin() io.WriteCloser { return p.stdinW }
func (p *Process) Stdout() io.Reader     { return p.stdoutR }
func (p *Process) Stderr() io.Reader     { return p.stderrR }

// Kill terminates the fake process, recording ErrKilled as the exit outcome.
func (p *Process) Kill() error {
	p.Exit(ErrKilled)
	return nil
}

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Exit simulates process termination with the given exit outcome. All streams
// are closed so readers observe EOF. Safe to call more than once; only the
// first outcome sticks.
func (p *Process) Exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.stdoutW.Close()
		p.stderrW.Close()
		p.stdinR.Close()
		close(p.done)
	})
}

// WorkerInput exposes the worker-side view of the transport's writes.
func (p *Process) WorkerInput() io.Reader { return p.stdinR }

// WriteStdout emits raw bytes on the process's protocol output stream.
func (p *Process) WriteStdout(data []byte) error {
	_, err := p.stdoutW.Write(data)
	return err
}

// WriteStderr emits raw bytes on the process's diagnostic stream.
func (p *Process) WriteStderr(data []byte) error {
	_, err := p.stderrW.Write(data)
	return err
}

// Factory builds a fake process for one spawn request.
type Factory func(cfg spawn.Config) (spawn.Process, error)

// Spawner is a spawn.Spawner that dispatches to factories registered per
// command name. Spawning an unregistered command fails, which doubles as a
// scripted spawn failure.
type Spawner struct {
	mu        sync.Mutex
	factories map[string]Factory
	spawned   map[string]int
}

// NewSpawner creates an empty fake spawner.
func NewSpawner() *Spawner {
	return &Spawner{
		factories: make(map[string]Factory),
		spawned:   make(map[string]int),
	}
}

// Register installs the factory invoked when cfg.Command equals command.
func (s *Spawner) Register(command string, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[command] = factory
}

// SpawnCount reports how many times the given command has been spawned.
func (s *Spawner) SpawnCount(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned[command]
}

// Spawn implements spawn.Spawner.
func (s *Spawner) Spawn(_ context.Context, cfg spawn.Config) (spawn.Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	factory, ok := s.factories[cfg.Command]
	s.spawned[cfg.Command]++
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	return factory(cfg)
}

var _ spawn.Spawner = (*Spawner)(nil)
var _ spawn.Process = (*Process)(nil)

// StubServer scripts a worker that answers initialize, ping, tools/list,
// resources/list, tools/call and resources/read. Zero values give a worker
// with no capabilities that still completes the handshake.
type StubServer struct {
	Name      string
	Tools     []protocol.Tool
	Resources []protocol.Resource

	// OnCallTool overrides the default tools/call reply.
	OnCallTool func(params protocol.CallToolParams) *protocol.CallToolResult
	// OnRequest intercepts any request before default handling. Returning a
	// non-nil response short-circuits; returning nil with handled=true
	// swallows the request entirely (no reply is ever sent).
	OnRequest func(req *protocol.Request) (resp *protocol.Response, handled bool)

	mu                sync.Mutex
	failListTools     bool
	failListResources bool
}

// SetFailListTools toggles whether tools/list answers with an internal error.
func (s *StubServer) SetFailListTools(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failListTools = fail
}

// SetFailListResources toggles whether resources/list answers with an
// internal error.
func (s *StubServer) SetFailListResources(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failListResources = fail
}

// Start creates a fake process and serves the stub behind it until the
// process exits or its input stream closes.
func (s *StubServer) Start() *Process {
	p := NewProcess()
	go s.serve(p)
	return p
}

// Factory adapts Start to the Spawner registration signature.
func (s *StubServer) Factory() Factory {
	return func(spawn.Config) (spawn.Process, error) {
		return s.Start(), nil
	}
}

func (s *StubServer) serve(p *Process) {
	framer := framing.NewFramer()
	scanner := bufio.NewScanner(p.WorkerInput())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		msg, err := protocol.ParseMessage(scanner.Bytes())
		if err != nil || msg.Kind != protocol.KindRequest {
			continue
		}
		resp := s.handle(msg.Request)
		if resp == nil {
			continue
		}
		data, err := framer.Encode(resp)
		if err != nil {
			continue
		}
		if err := p.WriteStdout(data); err != nil {
			return
		}
	}
}

func (s *StubServer) handle(req *protocol.Request) *protocol.Response {
	if s.OnRequest != nil {
		if resp, handled := s.OnRequest(req); handled {
			return resp
		}
	}

	switch req.Method {
	case protocol.MethodInitialize:
		caps := protocol.ServerCapabilities{}
		if len(s.Tools) > 0 {
			caps.Tools = &protocol.ToolsCapability{}
		}
		if len(s.Resources) > 0 {
			caps.Resources = &protocol.ResourcesCapability{}
		}
		return protocol.NewSuccessResponse(req.ID, protocol.InitializeResult{
			ProtocolVersion: protocol.CurrentProtocolVersion,
			Capabilities:    caps,
			ServerInfo:      protocol.Implementation{Name: s.Name, Version: "1.0.0"},
		})
	case protocol.MethodPing:
		return protocol.NewSuccessResponse(req.ID, struct{}{})
	case protocol.MethodListTools:
		s.mu.Lock()
		fail := s.failListTools
		s.mu.Unlock()
		if fail {
			return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeInternalError, "tool listing unavailable", nil)
		}
		tools := s.Tools
		if tools == nil {
			tools = []protocol.Tool{}
		}
		return protocol.NewSuccessResponse(req.ID, protocol.ListToolsResult{Tools: tools})
	case protocol.MethodListResources:
		s.mu.Lock()
		fail := s.failListResources
		s.mu.Unlock()
		if fail {
			return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeInternalError, "resource listing unavailable", nil)
		}
		resources := s.Resources
		if resources == nil {
			resources = []protocol.Resource{}
		}
		return protocol.NewSuccessResponse(req.ID, protocol.ListResourcesResult{Resources: resources})
	case protocol.MethodCallTool:
		var params protocol.CallToolParams
		if err := protocol.UnmarshalPayload(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeInvalidParams, err.Error(), nil)
		}
		if s.OnCallTool != nil {
			return protocol.NewSuccessResponse(req.ID, s.OnCallTool(params))
		}
		return protocol.NewSuccessResponse(req.ID, protocol.CallToolResult{
			Content: []protocol.Content{{Type: "text", Text: fmt.Sprintf("%s:%s", s.Name, params.Name)}},
		})
	case protocol.MethodReadResource:
		var params protocol.ReadResourceParams
		if err := protocol.UnmarshalPayload(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeInvalidParams, err.Error(), nil)
		}
		return protocol.NewSuccessResponse(req.ID, protocol.ReadResourceResult{
			Contents: []protocol.ResourceContents{{URI: params.URI, MimeType: "text/plain", Text: s.Name}},
		})
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrorCodeMethodNotFound, "method not found", nil)
	}
}
