package ollama

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modeldeck/internal/process"
)

func TestListInstalled_ParsesRows(t *testing.T) {
	svc, rec := newTestService(t)

	models, err := svc.ListInstalled(context.Background())

	require.NoError(t, err)
	require.Equal(t, []Model{
		{Name: "llama3:latest", ID: "365c0bd3c000", Size: "4.7 GB", Modified: "2 weeks ago"},
		{Name: "mistral:7b", ID: "f974a74358d6", Size: "4.1 GB", Modified: "3 days ago"},
	}, models)
	require.Zero(t, rec.Len(), "listing never publishes")
}

// TestListInstalled_NonZeroExit verifies the error carries stderr and matches ErrNonZeroExit.
func TestListInstalled_NonZeroExit(t *testing.T) {
	bin := writeScript(t, "ollama", "echo 'Error: could not connect to ollama app' >&2\nexit 1\n")
	svc, rec := newTestService(t, WithBinary(bin))

	_, err := svc.ListInstalled(context.Background())

	require.EqualError(t, err, "ollama list failed: Error: could not connect to ollama app")
	require.ErrorIs(t, err, ErrNonZeroExit)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, 1, cmdErr.ExitCode)
	require.Zero(t, rec.Len())
}

func TestListInstalled_SpawnFailure(t *testing.T) {
	svc, _ := newTestService(t, WithBinary(missingBinary(t)))

	_, err := svc.ListInstalled(context.Background())

	require.ErrorContains(t, err, "failed to execute ollama list: ")
	require.ErrorContains(t, err, "no such file or directory")
	var spawnErr *process.SpawnError
	require.True(t, errors.As(err, &spawnErr))
}

func TestListInstalled_HeaderOnly(t *testing.T) {
	bin := writeScript(t, "ollama", "echo 'NAME ID SIZE MODIFIED'\n")
	svc, _ := newTestService(t, WithBinary(bin))

	models, err := svc.ListInstalled(context.Background())
	require.NoError(t, err)
	require.Empty(t, models)
}

// TestCheckAvailability_Idempotent verifies repeated checks succeed and never publish.
func TestCheckAvailability_Idempotent(t *testing.T) {
	svc, rec := newTestService(t)

	for i := 0; i < 3; i++ {
		ok, err := svc.CheckAvailability(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	}
	svc.Wait()
	require.Zero(t, rec.Len())
}

func TestCheckAvailability_NonZeroIsFalse(t *testing.T) {
	svc, _ := newTestService(t, WithBinary(writeScript(t, "ollama", "exit 1\n")))

	ok, err := svc.CheckAvailability(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckAvailability_Missing(t *testing.T) {
	svc, rec := newTestService(t, WithBinary(missingBinary(t)))

	ok, err := svc.CheckAvailability(context.Background())
	require.False(t, ok)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "ollama not found or not running")
	require.Zero(t, rec.Len())
}

func TestValidateRunnable(t *testing.T) {
	svc, rec := newTestService(t)

	msg, err := svc.ValidateRunnable(context.Background(), "llama3")
	require.NoError(t, err)
	require.Equal(t, "Model llama3 is ready to run", msg)

	_, err = svc.ValidateRunnable(context.Background(), "bad")
	require.EqualError(t, err, "failed to run model bad: Error: model 'bad' not found")
	require.Zero(t, rec.Len())
}

func TestRemove(t *testing.T) {
	svc, rec := newTestService(t)

	msg, err := svc.Remove(context.Background(), "llama3")
	require.NoError(t, err)
	require.Equal(t, "Model llama3 deleted successfully", msg)

	_, err = svc.Remove(context.Background(), "bad")
	require.EqualError(t, err, "failed to delete model bad: Error: model 'bad' not found")
	require.ErrorIs(t, err, ErrNonZeroExit)
	require.Zero(t, rec.Len())
}

func showCalls(t *testing.T, path string) int {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "show")
}

// TestShow_CachedUntilRemoved verifies show output is cached and invalidated by Remove.
func TestShow_CachedUntilRemoved(t *testing.T) {
	calls := filepath.Join(t.TempDir(), "calls")
	t.Setenv("CALLS_FILE", calls)
	svc, _ := newTestService(t, WithDetailsTTL(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		details, err := svc.Show(ctx, "llama3")
		require.NoError(t, err)
		require.Contains(t, details, "architecture    llama")
	}
	require.Equal(t, 1, showCalls(t, calls))

	_, err := svc.Remove(ctx, "llama3")
	require.NoError(t, err)
	_, err = svc.Show(ctx, "llama3")
	require.NoError(t, err)
	require.Equal(t, 2, showCalls(t, calls))

	svc.InvalidateDetails(ctx)
	_, err = svc.Show(ctx, "llama3")
	require.NoError(t, err)
	require.Equal(t, 3, showCalls(t, calls))
}

func TestShow_ErrorsNotCached(t *testing.T) {
	calls := filepath.Join(t.TempDir(), "calls")
	t.Setenv("CALLS_FILE", calls)
	svc, _ := newTestService(t)

	_, err := svc.Show(context.Background(), "bad")
	require.ErrorIs(t, err, ErrNonZeroExit)
	_, err = svc.Show(context.Background(), "bad")
	require.Error(t, err)
	require.Equal(t, 2, showCalls(t, calls))
}

func TestShow_ZeroTTLDisablesCache(t *testing.T) {
	calls := filepath.Join(t.TempDir(), "calls")
	t.Setenv("CALLS_FILE", calls)
	svc, _ := newTestService(t, WithDetailsTTL(0))

	_, _ = svc.Show(context.Background(), "llama3")
	_, _ = svc.Show(context.Background(), "llama3")
	require.Equal(t, 2, showCalls(t, calls))
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService(t)

	status := svc.Status(context.Background())
	require.True(t, status.Running)
	require.Equal(t, "0.5.7", status.Version)
	require.Empty(t, status.Error)
	require.GreaterOrEqual(t, status.ResponseTimeMs, int64(0))

	missing, _ := newTestService(t, WithBinary(missingBinary(t)))
	status = missing.Status(context.Background())
	require.False(t, status.Running)
	require.Contains(t, status.Error, "no such file or directory")
}

func TestParseVersion(t *testing.T) {
	require.Equal(t, "0.5.7", ParseVersion("ollama version is 0.5.7\n"))
	require.Equal(t, "0.6.0", ParseVersion("Warning: could not connect to a running Ollama instance\nWarning: client version is 0.6.0\n"))
	require.Equal(t, "custom-build", ParseVersion("custom-build\n"))
	require.Equal(t, "unknown", ParseVersion(" \n"))
}
