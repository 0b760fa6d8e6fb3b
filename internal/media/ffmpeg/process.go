// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/metrics"
	"github.com/ManuGH/mediaops/internal/procgroup"
)

const stderrLines = 256

// ErrNotStarted is returned by Wait on a process that was never started.
var ErrNotStarted = errors.New("process not started")

// Process is a cancellable handle on one external tool invocation.
// The tool runs in its own process group; Terminate reaps the whole tree.
type Process struct {
	tool  string
	cmd   *exec.Cmd
	ring  *LineRing
	grace time.Duration
	start time.Time

	done chan struct{}
	err  error

	termOnce sync.Once
	termErr  error
}

// NewProcess prepares bin with args. stdout may be nil.
func NewProcess(tool, bin string, args []string, stdout io.Writer, grace time.Duration) *Process {
	ring := NewLineRing(stderrLines)
	cmd := exec.Command(bin, args...) // #nosec G204 -- bin comes from configuration, args are built internally
	cmd.Stderr = ring
	cmd.Stdout = stdout
	cmd.WaitDelay = grace
	procgroup.Set(cmd)
	return &Process{
		tool:  tool,
		cmd:   cmd,
		ring:  ring,
		grace: grace,
		done:  make(chan struct{}),
	}
}

// Start launches the process and a reaper goroutine.
func (p *Process) Start() error {
	if err := p.cmd.Start(); err != nil {
		metrics.IncToolExit(p.tool, "start_error")
		return fmt.Errorf("start %s: %w", p.tool, err)
	}
	p.start = time.Now()
	metrics.IncToolStart(p.tool)

	logger := log.WithComponent("ffmpeg")
	logger.Debug().
		Str(log.FieldEvent, "tool.started").
		Str("tool", p.tool).
		Int(log.FieldPID, p.cmd.Process.Pid).
		Strs("args", p.cmd.Args[1:]).
		Msg("external tool started")

	go func() {
		p.err = p.cmd.Wait()
		p.ring.Flush()
		close(p.done)
	}()
	return nil
}

// Wait blocks until the process exits or ctx ends. When ctx ends first the
// process group is terminated and ctx.Err() is returned.
func (p *Process) Wait(ctx context.Context) error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	select {
	case <-p.done:
		p.recordExit(nil)
		return p.err
	case <-ctx.Done():
		_ = p.Terminate()
		p.recordExit(ctx.Err())
		return ctx.Err()
	}
}

// Terminate sends SIGTERM to the group, then SIGKILL after the grace period,
// and returns once the process has been reaped. Repeated calls return the
// first result.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			p.termErr = p.err
			return
		default:
		}
		waitCh := make(chan error, 1)
		go func() {
			<-p.done
			waitCh <- p.err
		}()
		p.termErr = procgroup.Terminate(p.cmd, waitCh, p.grace)
	})
	return p.termErr
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Stderr returns up to n of the most recent stderr lines.
func (p *Process) Stderr(n int) []string { return p.ring.LastN(n) }

// ExitCode returns the exit code of a reaped process, or -1.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *Process) recordExit(ctxErr error) {
	reason := "ok"
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		reason = "timeout"
	case ctxErr != nil:
		reason = "cancelled"
	case p.err != nil:
		reason = "exit_nonzero"
	}
	metrics.IncToolExit(p.tool, reason)

	logger := log.WithComponent("ffmpeg")
	ev := logger.Debug()
	if reason != "ok" {
		ev = logger.Warn().Strs("stderr", p.ring.LastN(20))
	}
	ev.Str(log.FieldEvent, "tool.exited").
		Str("tool", p.tool).
		Str("reason", reason).
		Int("exit_code", p.ExitCode()).
		Dur(log.FieldDuration, time.Since(p.start)).
		Msg("external tool exited")
}
