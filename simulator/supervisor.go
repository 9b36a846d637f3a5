package simulator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultGrace is how long a stopped process gets before SIGKILL.
const DefaultGrace = 5 * time.Second

// Process is a simulator server started by a Supervisor.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Pid returns the operating system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Supervisor starts simulator server processes and guarantees they are torn
// down. It implements Teardown.
type Supervisor struct {
	// Grace bounds the wait between SIGTERM and SIGKILL.
	Grace time.Duration
	// KillCommand, when set, runs once during KillAll after all tracked
	// processes are stopped, e.g. {"pkill", "-f", "CarlaUE4"}.
	KillCommand []string

	mu       sync.Mutex
	procs    map[*Process]struct{}
	killOnce sync.Once
	killErr  error
	stopped  bool
}

// NewSupervisor returns a supervisor with the default grace period.
func NewSupervisor(killCommand []string) *Supervisor {
	return &Supervisor{Grace: DefaultGrace, KillCommand: killCommand}
}

// Start launches name with args in its own process group. Nothing is
// launched once ctx is done; the process itself outlives ctx and is ended by
// Stop or KillAll.
func (s *Supervisor) Start(ctx context.Context, name string, args []string, dir string) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("supervisor: already torn down")
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	configureProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	if s.procs == nil {
		s.procs = make(map[*Process]struct{})
	}
	s.procs[p] = struct{}{}
	logrus.WithFields(logrus.Fields{"pid": p.Pid(), "cmd": name}).Debug("started simulator process")
	return p, nil
}

// Stop terminates p and waits for it to exit.
func (s *Supervisor) Stop(p *Process) {
	if p == nil {
		return
	}
	s.mu.Lock()
	delete(s.procs, p)
	s.mu.Unlock()
	s.stop(p)
}

func (s *Supervisor) stop(p *Process) {
	select {
	case <-p.done:
		return
	default:
	}
	grace := s.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	terminateProcess(p.cmd, p.done, grace)
	<-p.done
}

// Running returns the number of tracked processes that have not exited.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.procs {
		select {
		case <-p.done:
		default:
			n++
		}
	}
	return n
}

// KillAll stops every tracked process and runs the kill command. Only the
// first call does any work; later calls return the first call's error.
func (s *Supervisor) KillAll(ctx context.Context) error {
	s.killOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		procs := make([]*Process, 0, len(s.procs))
		for p := range s.procs {
			procs = append(procs, p)
		}
		s.procs = nil
		s.mu.Unlock()

		var wg sync.WaitGroup
		for _, p := range procs {
			wg.Add(1)
			go func(p *Process) {
				defer wg.Done()
				s.stop(p)
			}(p)
		}
		wg.Wait()
		logrus.WithField("processes", len(procs)).Info("simulator processes torn down")

		if len(s.KillCommand) > 0 {
			cmd := exec.CommandContext(ctx, s.KillCommand[0], s.KillCommand[1:]...)
			if out, err := cmd.CombinedOutput(); err != nil {
				s.killErr = fmt.Errorf("kill command %q: %w (%s)", s.KillCommand[0], err, out)
			}
		}
	})
	return s.killErr
}
