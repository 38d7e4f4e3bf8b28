// Package power keeps the host awake during a call.
package power

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/core"
)

var ErrUnavailable = errors.New("wake lock unavailable")

// Inhibitor holds a systemd-inhibit child process for as long as the lock is
// held. Acquire and Release are idempotent.
type Inhibitor struct {
	name string
	args []string

	logger zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

var _ core.WakeLock = (*Inhibitor)(nil)

func NewInhibitor(who string) *Inhibitor {
	return newInhibitor("systemd-inhibit",
		"--what=idle:sleep",
		"--who="+who,
		"--why=call in progress",
		"--mode=block",
		"sleep", "infinity",
	)
}

func newInhibitor(name string, args ...string) *Inhibitor {
	return &Inhibitor{
		name:   name,
		args:   args,
		logger: log.With().Str("module", "power").Logger(),
	}
}

func (i *Inhibitor) Acquire() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cmd != nil {
		return nil
	}
	cmd := exec.Command(i.name, i.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		close(done)
		i.mu.Lock()
		lost := i.cmd == cmd
		if lost {
			i.cmd, i.done = nil, nil
		}
		i.mu.Unlock()
		if lost {
			i.logger.Warn().Err(err).Msg("inhibitor exited while held")
		}
	}()
	i.cmd, i.done = cmd, done
	i.logger.Info().Int("pid", cmd.Process.Pid).Msg("wake lock acquired")
	return nil
}

func (i *Inhibitor) Release() error {
	i.mu.Lock()
	cmd, done := i.cmd, i.done
	i.cmd, i.done = nil, nil
	i.mu.Unlock()
	if cmd == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("release wake lock: %w", err)
	}
	<-done
	i.logger.Info().Msg("wake lock released")
	return nil
}

// Held reports whether an inhibitor process is running.
func (i *Inhibitor) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cmd != nil
}

// Nop satisfies core.WakeLock where no inhibitor is available.
type Nop struct{}

func (Nop) Acquire() error { return nil }
func (Nop) Release() error { return nil }

// Detect returns an Inhibitor when systemd-inhibit is on PATH, Nop otherwise.
func Detect(who string) core.WakeLock {
	if _, err := exec.LookPath("systemd-inhibit"); err != nil {
		log.Warn().Str("module", "power").Msg("systemd-inhibit not found, wake lock disabled")
		return Nop{}
	}
	return NewInhibitor(who)
}
