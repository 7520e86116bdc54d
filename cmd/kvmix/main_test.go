package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kverrors "github.com/arkilian/kvmix/internal/errors"
	"github.com/arkilian/kvmix/internal/report"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "kvmix version dev (commit: unknown)\n", out)
}

func TestRun_TextOutput(t *testing.T) {
	out, _, err := execute(t, "run", "--env-file", "",
		"--reads", "50", "--inserts", "50",
		"--initial-capacity", "10", "--prefill", "50", "--num-threads", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "total ops: 921\n")
	assert.Contains(t, out, "time elapsed (sec): ")
	assert.Contains(t, out, "throughput (ops/sec): ")
}

func TestRun_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kvmix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workload:
  reads: 50
  inserts: 50
  initial_capacity: 12
  prefill: 40
  num_threads: 4
report:
  format: json
`), 0644))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("KVMIX_INITIAL_CAPACITY=8\nKVMIX_PREFILL=20\n"), 0644))
	t.Setenv("KVMIX_INITIAL_CAPACITY", "")
	t.Setenv("KVMIX_PREFILL", "")
	os.Unsetenv("KVMIX_INITIAL_CAPACITY")
	os.Unsetenv("KVMIX_PREFILL")

	out, _, err := execute(t, "run", "--config", path, "--env-file", envFile,
		"--reads", "70", "--inserts", "30", "--num-threads", "2")
	require.NoError(t, err)

	rep, err := report.Decode([]byte(out), false)
	require.NoError(t, err)
	assert.Equal(t, uint(70), rep.Settings.Reads, "flag beats file")
	assert.Equal(t, uint(30), rep.Settings.Inserts)
	assert.Equal(t, uint(8), rep.Settings.CapacityExponent, "env beats file")
	assert.Equal(t, uint(20), rep.Settings.Prefill)
	assert.Equal(t, 2, rep.Settings.Threads, "flag beats file")
	assert.Equal(t, uint64(51), rep.PrefillElements)
}

func TestRun_ConfigurationError(t *testing.T) {
	out, _, err := execute(t, "run", "--env-file", "", "--reads", "40", "--inserts", "40")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, kverrors.CodeMixSum, kverrors.GetCode(err))
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestRun_BadLogLevel(t *testing.T) {
	_, _, err := execute(t, "run", "--log-level", "loud")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestExitCode(t *testing.T) {
	violation := kverrors.NewInvariantViolation(kverrors.CodeOutcomeMismatch, "read mismatch")
	assert.Equal(t, exitViolation, exitCode(violation))
	assert.Equal(t, exitError, exitCode(assert.AnError))
}

func TestRun_LogsToStderr(t *testing.T) {
	_, stderr, err := execute(t, "run", "--env-file", "", "--log-level", "debug",
		"--reads", "100", "--initial-capacity", "4")
	require.NoError(t, err)
	assert.True(t, strings.Contains(stderr, "level=INFO"), stderr)
}

func TestReports_ListShowRemove(t *testing.T) {
	archive := t.TempDir()
	store := []string{"--env-file", "", "--storage", "local", "--storage-path", archive}

	out, _, err := execute(t, append([]string{"run", "--format", "json",
		"--reads", "50", "--inserts", "50", "--initial-capacity", "6", "--num-threads", "1"}, store...)...)
	require.NoError(t, err)
	rep, err := report.Decode([]byte(out), false)
	require.NoError(t, err)

	out, _, err = execute(t, append([]string{"reports", "list"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID+"\n", out)

	out, _, err = execute(t, append([]string{"reports", "show", "latest", "--format", "json"}, store...)...)
	require.NoError(t, err)
	shown, err := report.Decode([]byte(out), false)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, shown.RunID)
	assert.Equal(t, rep.Threads, shown.Threads)

	_, _, err = execute(t, append([]string{"reports", "rm", rep.RunID}, store...)...)
	require.NoError(t, err)
	_, _, err = execute(t, append([]string{"reports", "show", rep.RunID}, store...)...)
	require.Error(t, err)
	assert.Equal(t, kverrors.CodeReportNotFound, kverrors.GetCode(err))
}

func TestReports_RequiresArchive(t *testing.T) {
	_, _, err := execute(t, "reports", "list", "--env-file", "")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}
