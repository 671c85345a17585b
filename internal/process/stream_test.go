package process

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Stream) []StreamedLine {
	t.Helper()
	var lines []StreamedLine
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-s.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			require.FailNow(t, "timeout draining stream")
		}
	}
}

func textsOf(lines []StreamedLine, ch Channel) []string {
	var out []string
	for _, l := range lines {
		if l.Channel == ch {
			out = append(out, l.Text)
		}
	}
	return out
}

// TestStream_LinesThenTermination verifies per-channel ordering and the final exit code.
func TestStream_LinesThenTermination(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(),
		sh("echo one; echo warn >&2; echo two; printf 'three'; exit 4"))
	require.NoError(t, err)
	require.Greater(t, s.PID(), 0)

	lines := collect(t, s)
	term := s.Wait()

	require.Equal(t, []string{"one", "two", "three"}, textsOf(lines, Stdout))
	require.Equal(t, []string{"warn"}, textsOf(lines, Stderr))
	require.Equal(t, 4, term.ExitCode)
	require.NoError(t, term.Err)
	require.False(t, term.Success())
	require.Equal(t, StatusFailedNonZeroExit, s.Status())
}

func TestStream_Success(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(), NewInvocation("/bin/echo", "hello"))
	require.NoError(t, err)

	lines := collect(t, s)
	require.Equal(t, []StreamedLine{{Channel: Stdout, Text: "hello"}}, lines)
	require.True(t, s.Wait().Success())
	require.Equal(t, StatusSucceeded, s.Status())
	require.True(t, s.Status().IsTerminal())
}

// TestStream_CarriageReturnProgress verifies "\r" redraws are split into separate lines.
func TestStream_CarriageReturnProgress(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(),
		sh(`printf 'pulling 10%%\rpulling 55%%\rpulling 100%%\r\nsuccess\n'`))
	require.NoError(t, err)

	lines := collect(t, s)
	require.Equal(t, []string{"pulling 10%", "pulling 55%", "pulling 100%", "success"}, textsOf(lines, Stdout))
	require.Equal(t, 0, s.Wait().ExitCode)
}

// TestStream_LongLineKeepsLaterOutput verifies a line over the scanner limit
// is delivered in pieces and the lines after it still arrive.
func TestStream_LongLineKeepsLaterOutput(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(),
		sh(`head -c 1500000 /dev/zero | tr '\0' a; echo; echo after`))
	require.NoError(t, err)

	out := textsOf(collect(t, s), Stdout)
	require.Equal(t, 0, s.Wait().ExitCode)

	require.Len(t, out, 3)
	require.Len(t, out[0], maxLineBytes)
	require.Equal(t, strings.Repeat("a", 1500000), out[0]+out[1])
	require.Equal(t, "after", out[2])
}

func TestSplitLongLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"short lines untouched", "ab\ncd\n", []string{"ab", "cd"}},
		{"long line cut", "abcdefghijkl\nxy\n", []string{"abcdefgh", "ijkl", "xy"}},
		{"cr at cut ends the piece", "abcdefg\r\nxy", []string{"abcdefg", "", "xy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Buffer(make([]byte, 0, 4), 8)
			scanner.Split(splitLongLines(8, ScanLinesOrCR))
			var got []string
			for scanner.Scan() {
				got = append(got, scanner.Text())
			}
			require.NoError(t, scanner.Err())
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStream_SpawnFailure(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(), NewInvocation("modeldeck-definitely-missing"))

	require.Nil(t, s)
	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	require.Contains(t, err.Error(), "executable file not found")
}

func TestStream_SignalledReportsSentinel(t *testing.T) {
	s, err := NewRunner().Stream(context.Background(), sh("echo before; kill -9 $$"))
	require.NoError(t, err)

	collect(t, s)
	term := s.Wait()
	require.Equal(t, NoExitCode, term.ExitCode)
	require.False(t, term.Success())
}

func TestScanLinesOrCR(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newline", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"bare cr", "a\rb\rc", []string{"a", "b", "c"}},
		{"trailing cr", "a\r", []string{"a"}},
		{"blank lines kept", "a\n\nb", []string{"a", "", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(ScanLinesOrCR)
			var got []string
			for scanner.Scan() {
				got = append(got, scanner.Text())
			}
			require.NoError(t, scanner.Err())
			require.Equal(t, tt.want, got)
		})
	}
}
