// Package daemon tracks a background `tb serve` process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Acquire when a live process holds the file.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotRunning is returned by Stop when no live process holds the file.
	ErrNotRunning = errors.New("not running")
)

// PIDFile manages a PID file for daemon process tracking.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID writes the given PID to the file, creating its directory.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire records pid as the owner. A file left by a dead process is
// replaced; another live owner yields ErrAlreadyRunning.
func (p *PIDFile) Acquire(pid int) error {
	if owner, running := p.IsRunning(); running && owner != pid {
		return fmt.Errorf("server %w (PID %d)", ErrAlreadyRunning, owner)
	}
	return p.WritePID(pid)
}

// Release removes the file if it still names pid.
func (p *PIDFile) Release(pid int) error {
	owner, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if owner != pid {
		return nil
	}
	return p.Remove()
}

// Stop sends term to the owner and waits up to timeout for it to exit,
// escalating to kill. The file is removed once the process is gone.
func (p *PIDFile) Stop(term, kill syscall.Signal, timeout time.Duration) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return pid, fmt.Errorf("server %w", ErrNotRunning)
	}

	if err := p.Signal(term); err != nil {
		return pid, fmt.Errorf("signal PID %d: %w", pid, err)
	}
	if !p.waitExit(timeout) {
		if err := p.Signal(kill); err != nil {
			return pid, fmt.Errorf("kill PID %d: %w", pid, err)
		}
		p.waitExit(timeout)
	}
	_ = p.Remove()
	return pid, nil
}

func (p *PIDFile) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, running := p.IsRunning(); !running {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	_, running := p.IsRunning()
	return !running
}
