// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns external tools in their own process group so a
// timed out or cancelled operation can reap the whole tree.
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/metrics"
)

// Terminate stops a process group in two phases.
// It sends SIGTERM, waits up to grace for waitCh to deliver the exit result,
// then sends SIGKILL and drains waitCh. The caller must own the only reader
// of waitCh. It is safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup")
	pid := cmd.Process.Pid

	signalGroup(cmd, syscall.SIGTERM)
	logger.Debug().Str(log.FieldEvent, "proc.sigterm").Int(log.FieldPID, pid).Msg("sent SIGTERM to process group")

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-timer.C:
	}

	logger.Warn().Str(log.FieldEvent, "proc.sigkill").Int(log.FieldPID, pid).Dur("grace", grace).
		Msg("grace period exceeded, sending SIGKILL to process group")
	signalGroup(cmd, syscall.SIGKILL)

	err := <-waitCh
	if err == nil {
		metrics.IncProcWait("forced_exit0")
	} else {
		metrics.IncProcWait("forced_error")
	}
	return err
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	name := signalName(sig)
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, syscall.ESRCH), errors.Is(err, os.ErrProcessDone):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
	}
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	default:
		return sig.String()
	}
}
