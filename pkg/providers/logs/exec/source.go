// Package exec follows the merged stdout/stderr of a child process.
package exec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
)

// StopGrace is how long Close waits after SIGTERM before sending SIGKILL.
var StopGrace = 5 * time.Second

// ErrExited is wrapped into the error returned once the process has exited
// and all of its output has been read.
var ErrExited = errors.New("process exited")

// MaxLineBytes bounds one output line. The excess is discarded and the line
// ends with truncatedMark.
const MaxLineBytes = 1024 * 1024

const truncatedMark = " [truncated]"

// Source runs a command and yields its output lines. Every Open starts a
// fresh process, so a tailer restarting after a failure restarts the command.
type Source struct {
	id     string
	argv   []string
	dir    string
	env    map[string]string
	logger *slog.Logger

	cmd     *exec.Cmd
	lines   chan string
	stop    chan struct{}
	exited  chan struct{}
	waitErr error
}

// New creates a source for a whitespace-separated command line.
func New(command, dir string, env map[string]string, logger *slog.Logger) *Source {
	s := NewArgs(core.SourceID(core.KindExec, command), strings.Fields(command), logger)
	s.dir = dir
	s.env = env
	return s
}

// NewArgs creates a source for an explicit argv with the given identifier.
func NewArgs(id string, argv []string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{id: id, argv: argv, logger: logger}
}

func (s *Source) Name() string { return s.id }

// Open starts the process in its own process group.
func (s *Source) Open(_ context.Context) error {
	if len(s.argv) == 0 {
		return fmt.Errorf("empty command")
	}
	if s.cmd != nil {
		return fmt.Errorf("%s: already running", s.id)
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Dir = s.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = os.Environ()
	for k, v := range s.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", strings.Join(s.argv, " "), err)
	}

	lines := make(chan string, 64)
	stop := make(chan struct{})
	exited := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go s.scan(&wg, stdout, lines, stop)
	go s.scan(&wg, stderr, lines, stop)
	go func() {
		wg.Wait()
		s.waitErr = cmd.Wait()
		close(lines)
		close(exited)
	}()

	s.cmd = cmd
	s.lines = lines
	s.stop = stop
	s.exited = exited
	s.logger.Info("process started", "source", s.id, "pid", cmd.Process.Pid)
	return nil
}

func (s *Source) scan(wg *sync.WaitGroup, r io.Reader, out chan<- string, stop <-chan struct{}) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, truncated, err := readLine(br, MaxLineBytes)
		if err != nil {
			return
		}
		if truncated {
			s.logger.Warn("output line too long, truncated", "source", s.id, "limit", MaxLineBytes)
			line += truncatedMark
		}
		select {
		case out <- line:
		case <-stop:
			io.Copy(io.Discard, br)
			return
		}
	}
}

// readLine reads through the next newline. Bytes beyond limit are read and
// dropped so a runaway line never stalls the pipe.
func readLine(br *bufio.Reader, limit int) (string, bool, error) {
	var (
		buf       []byte
		truncated bool
		started   bool
	)
	for {
		frag, more, err := br.ReadLine()
		if err != nil {
			if started {
				return string(buf), truncated, nil
			}
			return "", false, err
		}
		started = true
		if room := limit - len(buf); room < len(frag) {
			frag = frag[:max(room, 0)]
			truncated = true
		}
		buf = append(buf, frag...)
		if !more {
			return string(buf), truncated, nil
		}
	}
}

// ReadLine blocks until a line arrives, the process exits, or ctx is done.
func (s *Source) ReadLine(ctx context.Context) (string, error) {
	if s.cmd == nil {
		return "", fmt.Errorf("%s: not running", s.id)
	}
	select {
	case line, ok := <-s.lines:
		if ok {
			return line, nil
		}
		code := s.cmd.ProcessState.ExitCode()
		if s.waitErr != nil {
			return "", fmt.Errorf("%w (code %d): %v", ErrExited, code, s.waitErr)
		}
		return "", fmt.Errorf("%w (code %d)", ErrExited, code)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close terminates the process group and waits for it to exit.
func (s *Source) Close() error {
	if s.cmd == nil {
		return nil
	}
	cmd, exited := s.cmd, s.exited
	close(s.stop)
	s.cmd = nil

	select {
	case <-exited:
		return nil
	default:
	}

	pgid := -cmd.Process.Pid
	syscall.Kill(pgid, syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(StopGrace):
		s.logger.Warn("process ignored SIGTERM, killing", "source", s.id, "pid", cmd.Process.Pid)
		syscall.Kill(pgid, syscall.SIGKILL)
		<-exited
	}
	return nil
}
