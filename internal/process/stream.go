package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/zjrosen/modeldeck/internal/log"
)

const linesBuffer = 100

// Stream is a running process whose output is delivered line by line.
//
// Lines must be drained by the caller: the readers block once the buffer is
// full, and the process is not waited on until both pipes reach EOF.
type Stream struct {
	inv   Invocation
	cmd   *exec.Cmd
	lines chan StreamedLine
	done  chan struct{}

	mu     sync.RWMutex
	status Status
	term   Termination
}

// Stream starts inv and returns without waiting for output. A start failure
// is returned as *SpawnError and no Stream is created.
func (r *Runner) Stream(ctx context.Context, inv Invocation) (*Stream, error) {
	cmd := r.command(ctx, inv)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	log.Debug(log.CatProc, "Spawning process", "program", inv.Program, "args", len(inv.Args))

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		log.ErrorErr(log.CatProc, "Failed to start process", err, "program", inv.Program)
		return nil, &SpawnError{Program: inv.Program, Err: err}
	}

	log.Debug(log.CatProc, "Process started", "program", inv.Program, "pid", cmd.Process.Pid)

	s := &Stream{
		inv:    inv,
		cmd:    cmd,
		lines:  make(chan StreamedLine, linesBuffer),
		done:   make(chan struct{}),
		status: StatusRunning,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go s.read(&readers, stdout, Stdout)
	go s.read(&readers, stderr, Stderr)
	go s.waitForCompletion(&readers)

	return s, nil
}

// Lines returns the output channel. It is closed after the process exits.
func (s *Stream) Lines() <-chan StreamedLine {
	return s.lines
}

// Wait blocks until the process has exited and returns its Termination.
func (s *Stream) Wait() Termination {
	<-s.done
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.term
}

// Done is closed once the Termination is available.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Status returns the current lifecycle state. Thread-safe.
func (s *Stream) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PID returns the OS process ID.
func (s *Stream) PID() int {
	if s.cmd.Process == nil {
		return -1
	}
	return s.cmd.Process.Pid
}

// Invocation returns what was started.
func (s *Stream) Invocation() Invocation {
	return s.inv
}

func (s *Stream) read(wg *sync.WaitGroup, r io.Reader, ch Channel) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)
	scanner.Split(splitLongLines(maxLineBytes, ScanLinesOrCR))

	for scanner.Scan() {
		s.lines <- StreamedLine{Channel: ch, Text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		log.Warn(log.CatProc, "Discarding unreadable output", "program", s.inv.Program, "channel", ch, "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// waitForCompletion waits for both readers to hit EOF, then reaps the process.
func (s *Stream) waitForCompletion(readers *sync.WaitGroup) {
	readers.Wait()
	err := s.cmd.Wait()

	term := Termination{ExitCode: NoExitCode}
	if code := exitCodeOf(s.cmd); code != nil {
		term.ExitCode = *code
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		term.Err = err
	}

	s.mu.Lock()
	s.term = term
	if term.Success() {
		s.status = StatusSucceeded
	} else {
		s.status = StatusFailedNonZeroExit
	}
	s.mu.Unlock()

	log.Debug(log.CatProc, "Process exited", "program", s.inv.Program, "exitCode", term.ExitCode)

	close(s.lines)
	close(s.done)
}

// maxLineBytes is the longest line delivered whole. Longer lines arrive in
// pieces of this size.
const maxLineBytes = 1024 * 1024

// splitLongLines wraps split so a line that fills the scanner's buffer is
// cut at limit bytes instead of ending the scan with bufio.ErrTooLong.
func splitLongLines(limit int, split bufio.SplitFunc) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := split(data, atEOF)
		if advance == 0 && token == nil && err == nil && len(data) >= limit {
			n := limit
			// A trailing "\r" is a line end, never line text.
			if data[n-1] == '\r' {
				n--
			}
			return n, data[:n], nil
		}
		return advance, token, err
	}
}

// ScanLinesOrCR is a bufio.SplitFunc that ends a line at "\n", "\r\n" or a
// lone "\r". Progress bars redraw with "\r", so each redraw becomes a line.
func ScanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// data[i] == '\r'
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// Need one more byte to tell "\r" from "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
