package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// ProcessController keeps a single instance of a helper process running
// between Start and Stop. It implements model.ServiceController.
type ProcessController struct {
	cmd Command

	mx     sync.Mutex
	proc   *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

func NewProcessController(cmd Command) *ProcessController {
	return &ProcessController{cmd: cmd}
}

// Start spawns the process unless it is already running. Failures are
// logged, the worker does not depend on the helper.
func (p *ProcessController) Start() {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.proc != nil {
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.cmd.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), p.cmd.Timeout)
	} else {
		slog.Warn("foreground command has no timeout", "path", p.cmd.Path)
		ctx, cancel = context.WithCancel(context.Background())
	}

	c := exec.CommandContext(ctx, p.cmd.Path, p.cmd.Args...)
	c.Env = append(os.Environ(), p.cmd.Env...)
	c.Stderr = &stderrLog{path: p.cmd.Path}
	c.WaitDelay = time.Second
	if err := c.Start(); err != nil {
		cancel()
		slog.Error("starting foreground command failed", "path", p.cmd.Path, "error", err)
		return
	}
	slog.Debug("foreground command started", "path", p.cmd.Path, "pid", c.Process.Pid)

	done := make(chan struct{})
	p.proc, p.cancel, p.done = c, cancel, done
	go p.wait(c, cancel, done)
}

func (p *ProcessController) wait(c *exec.Cmd, cancel context.CancelFunc, done chan struct{}) {
	err := c.Wait()
	cancel()
	slog.Debug("foreground command exited", "path", p.cmd.Path, "error", err)
	close(done)

	p.mx.Lock()
	defer p.mx.Unlock()
	if p.proc == c {
		p.proc, p.cancel, p.done = nil, nil, nil
	}
}

// Stop kills the running process and waits until it is gone.
func (p *ProcessController) Stop() {
	p.mx.Lock()
	cancel, done := p.cancel, p.done
	p.proc, p.cancel, p.done = nil, nil, nil
	p.mx.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the process is alive.
func (p *ProcessController) Running() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.proc != nil
}

// stderrLog logs every complete line written by the process.
type stderrLog struct {
	path string
	buf  []byte
}

func (w *stderrLog) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		slog.Debug("foreground stderr", "path", w.path, "line", string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}
