// Package spawn abstracts starting and owning worker processes. A Spawner
// turns an immutable Config into a live Process exposing the byte streams the
// transport layer wraps.
package spawn

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Config is an immutable description of how to start a worker.
type Config struct {
	Command string            `json:"command" yaml:"command" mapstructure:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
}

// Validate reports whether the config can be spawned at all.
func (c Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("spawn config is missing a command")
	}
	return nil
}

// Process is one live worker subprocess. It is owned exclusively by a single
// connection and destroyed on teardown or abnormal exit.
type Process interface {
	// Stdin returns the process's input write-sink.
	Stdin() io.WriteCloser
	// Stdout returns the process's protocol output stream.
	Stdout() io.Reader
	// Stderr returns the process's diagnostic output stream.
	Stderr() io.Reader
	// Kill forcibly terminates the process.
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error. It is only meaningful after Done is closed.
	Err() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, cfg Config) (Process, error)
}

// ExecSpawner starts real subprocesses via os/exec. The child inherits the
// parent environment with cfg.Env entries appended.
type ExecSpawner struct{}

// NewExecSpawner creates the default process spawner.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn starts the configured command with stdin/stdout/stderr pipes attached
// and a background waiter that records the exit outcome.
func (s *ExecSpawner) Spawn(ctx context.Context, cfg Config) (Process, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process %s: %w", cfg.Command, err)
	}

	p := &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.Reader
	stderr   io.Reader
	done     chan struct{}
	waitErr  error
	killOnce sync.Once
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

// Kill tries a graceful interrupt first and falls back to a hard kill.
func (p *execProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		if sigErr := p.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			err = p.cmd.Process.Kill()
		}
	})
	return err
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}
