package process

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// Launcher starts the supervised executable.
type Launcher interface {
	Launch(path string, args []string) (pid int, err error)
}

// Killer force-terminates a process.
type Killer interface {
	Kill(pid int) error
}

// ExecLauncher starts processes detached from the supervisor: a new session,
// stdio bound to /dev/null and the working directory set to the executable's
// directory. The child outlives the supervisor.
type ExecLauncher struct{}

// Launch starts path and returns its PID without waiting for it to exit.
func (ExecLauncher) Launch(path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = filepath.Dir(path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", path, err)
	}

	pid := cmd.Process.Pid
	// Reap the child if it exits while the supervisor is still alive.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// SignalKiller sends SIGKILL. A process that is already gone is not an error.
type SignalKiller struct{}

// Kill sends SIGKILL to pid.
func (SignalKiller) Kill(pid int) error {
	err := syscall.Kill(pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("kill %d: %w", pid, err)
}

// ParseArgs splits an argument string into arguments.
// Handles quoted strings and basic escaping.
func ParseArgs(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, errors.New("unclosed quote in arguments")
	}

	return args, nil
}
