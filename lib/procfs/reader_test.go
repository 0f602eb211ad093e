package procfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFakeProc lays out a single /proc/<pid> entry under root, writing a
// stat file with the given ppid/starttime and comm/parens-in-comm, plus
// whichever of comm/exe/cgroup the caller supplies.
func writeFakeProc(t *testing.T, root string, pid, ppid uint32, starttime uint64, comm, exeTarget, cgroup *string) {
	t.Helper()
	dir := filepath.Join(root, strconv.FormatUint(uint64(pid), 10))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	filler := strings.Repeat("0 ", 17) // fields 5..21
	stat := strconv.FormatUint(uint64(pid), 10) + " (test) S " +
		strconv.FormatUint(uint64(ppid), 10) + " " + filler +
		strconv.FormatUint(starttime, 10) + " 9 9"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))

	if comm != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(*comm+"\n"), 0o644))
	}
	if exeTarget != nil {
		require.NoError(t, os.Symlink(*exeTarget, filepath.Join(dir, "exe")))
	}
	if cgroup != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cgroup"), []byte(*cgroup), 0o644))
	}
}

func strPtr(s string) *string { return &s }

func TestParseProcPIDFullySpecified(t *testing.T) {
	root := t.TempDir()
	cgroupLine := "0::/system.slice/docker-" + dockerID + ".scope\n"
	writeFakeProc(t, root, 100, 1, 54321, strPtr("bash"), strPtr("/bin/bash"), strPtr(cgroupLine))

	r, err := NewReader(root)
	require.NoError(t, err)

	info, err := r.ParseProcPID(100)
	require.NoError(t, err)
	require.Equal(t, uint32(100), info.PID)
	require.Equal(t, uint32(1), info.PPID)
	require.Equal(t, "bash", string(info.Comm))
	require.Equal(t, "/bin/bash", string(info.Exe))
	require.Equal(t, dockerID, string(info.ContainerID))
}

// TestParseProcPIDAbsorbsMissingOptionalFields covers spec 7's "Missing
// optional data" row: a process with no comm, no exe symlink and no
// cgroup file still parses successfully, with those fields left nil
// rather than the call failing.
func TestParseProcPIDAbsorbsMissingOptionalFields(t *testing.T) {
	root := t.TempDir()
	writeFakeProc(t, root, 200, 1, 11111, nil, nil, nil)

	r, err := NewReader(root)
	require.NoError(t, err)

	info, err := r.ParseProcPID(200)
	require.NoError(t, err)
	require.Equal(t, uint32(200), info.PID)
	require.Equal(t, uint32(1), info.PPID)
	require.Nil(t, info.Comm)
	require.Nil(t, info.Exe)
	require.Nil(t, info.ContainerID)
}

func TestParseProcPIDRequiredStatFieldFailurePropagates(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "300")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte("not a stat line"), 0o644))

	r, err := NewReader(root)
	require.NoError(t, err)

	_, err = r.ParseProcPID(300)
	require.Error(t, err)
}

func TestParseProcPIDMissingStatPropagatesError(t *testing.T) {
	root := t.TempDir()
	r, err := NewReader(root)
	require.NoError(t, err)

	_, err = r.ParseProcPID(9999)
	require.Error(t, err)
}
