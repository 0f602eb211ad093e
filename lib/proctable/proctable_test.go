package proctable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
	"github.com/gravitational/auditlogcore/lib/procfs"
)

// fakeReader is a hand-rolled ProcFSReader fake, in the style of the
// teacher's netlinkMock (lib/auditd/auditd_test.go): a map of
// pre-canned responses rather than a mocking framework.
type fakeReader struct {
	pids  []uint32
	infos map[uint32]procfs.ProcPidInfo
}

func (f *fakeReader) GetPIDs() ([]uint32, error) {
	return f.pids, nil
}

func (f *fakeReader) ParseProcPID(pid uint32) (procfs.ProcPidInfo, error) {
	return f.infos[pid], nil
}

func eid(ms uint64, seq uint32) auditrecord.EventID {
	return auditrecord.EventID{TimestampMS: ms, Sequence: seq}
}

// TestAddProcessMultiGeneration covers spec 8 scenario 3.
func TestAddProcessMultiGeneration(t *testing.T) {
	tbl := NewProcTable()
	a := tbl.AddProcess(42, 1, eid(100, 1), []byte("sh"), []byte("/bin/sh"))
	b := tbl.AddProcess(42, 1, eid(200, 1), []byte("sh"), []byte("/bin/sh"))

	got, ok := tbl.GetProcess(42)
	require.True(t, ok)
	require.Same(t, b, got)

	before, ok := tbl.GetPidBefore(42, 150)
	require.True(t, ok)
	require.Same(t, a, before)

	_, ok = tbl.GetPidBefore(42, 50)
	require.False(t, ok)
}

// TestAddProcessLabelPropagation covers spec 8 scenario 4.
func TestAddProcessLabelPropagation(t *testing.T) {
	tbl := NewProcTable(WithPropagatedLabels([]string{"audited"}))

	parent := tbl.AddProcess(1, 0, eid(10, 0), []byte("init"), []byte("/sbin/init"))
	parent.AddLabel([]byte("audited"))
	parent.AddLabel([]byte("other"))

	child := tbl.AddProcess(7, 1, eid(20, 0), []byte("sh"), []byte("/bin/sh"))

	require.True(t, child.HasLabel([]byte("audited")))
	require.False(t, child.HasLabel([]byte("other")))
}

type staticMatcher map[string][][]byte

func (m staticMatcher) Matches(exe []byte) [][]byte { return m[string(exe)] }

func TestAddProcessLabelMatcher(t *testing.T) {
	tbl := NewProcTable(WithLabelMatcher(staticMatcher{
		"/usr/bin/curl": {[]byte("network-tool")},
	}))

	p := tbl.AddProcess(5, 1, eid(10, 0), []byte("curl"), []byte("/usr/bin/curl"))
	require.True(t, p.HasLabel([]byte("network-tool")))

	// A second process against the same exe exercises the memoization
	// path, not just a fresh Matches call.
	p2 := tbl.AddProcess(6, 1, eid(20, 0), []byte("curl"), []byte("/usr/bin/curl"))
	require.True(t, p2.HasLabel([]byte("network-tool")))
}

func TestAddLabelRemoveLabelRoundTrip(t *testing.T) {
	tbl := NewProcTable()
	p := tbl.AddProcess(9, 1, eid(10, 0), []byte("sh"), []byte("/bin/sh"))

	key := p.Key
	tbl.AddLabel(key, []byte("L"))
	require.True(t, p.HasLabel([]byte("L")))
	tbl.RemoveLabel(key, []byte("L"))
	require.False(t, p.HasLabel([]byte("L")))
}

func TestAddLabelPidRemoveLabelPidNoOpOnUnknownPid(t *testing.T) {
	tbl := NewProcTable()
	// Must not panic on a pid the table has never seen.
	tbl.AddLabelPid(999, []byte("L"))
	tbl.RemoveLabelPid(999, []byte("L"))
}

func TestInitFromProc(t *testing.T) {
	reader := &fakeReader{
		pids: []uint32{1, 2},
		infos: map[uint32]procfs.ProcPidInfo{
			1: {PID: 1, PPID: 0, StartTimeMS: 100, Comm: []byte("init"), Exe: []byte("/sbin/init")},
			2: {PID: 2, PPID: 1, StartTimeMS: 150, Comm: []byte("sh"), Exe: []byte("/bin/sh")},
		},
	}
	tbl := NewProcTable()
	require.NoError(t, tbl.InitFromProc(context.Background(), reader))

	p1, ok := tbl.GetProcess(1)
	require.True(t, ok)
	require.Equal(t, TimeKey(100), p1.Key)
	// Bootstrap never reconstructs parent_key (spec 4.4.1).
	require.Nil(t, p1.ParentKey)

	p2, ok := tbl.GetProcess(2)
	require.True(t, ok)
	require.Equal(t, TimeKey(150), p2.Key)
	require.Nil(t, p2.ParentKey)
}

// TestExpireRetainsAncestorChain covers spec 8 scenario 5: alive pids
// {1,500}; P2 (pid 100) has exited but must be retained because P3 (pid
// 500) still chains through it up to P1 (pid 1).
func TestExpireRetainsAncestorChain(t *testing.T) {
	tbl := NewProcTable()

	p1 := tbl.AddProcess(1, 0, eid(10, 0), []byte("init"), []byte("/sbin/init"))
	p2 := tbl.AddProcess(100, 1, eid(20, 0), []byte("sh"), []byte("/bin/sh"))
	p3 := tbl.AddProcess(500, 100, eid(30, 0), []byte("sleep"), []byte("/bin/sleep"))

	require.NotNil(t, p2.ParentKey)
	require.Equal(t, p1.Key, *p2.ParentKey)
	require.NotNil(t, p3.ParentKey)
	require.Equal(t, p2.Key, *p3.ParentKey)

	reader := &fakeReader{pids: []uint32{1, 500}}
	tbl.Expire(context.Background(), reader)

	_, ok := tbl.Get(p1.Key)
	require.True(t, ok, "pid 1 (alive) must be retained")
	_, ok = tbl.Get(p2.Key)
	require.True(t, ok, "pid 100 (exited) must be retained as an ancestor of live pid 500")
	_, ok = tbl.Get(p3.Key)
	require.True(t, ok, "pid 500 (alive) must be retained")
}

func TestExpireRemovesFullyDeadBranch(t *testing.T) {
	tbl := NewProcTable()

	p1 := tbl.AddProcess(1, 0, eid(10, 0), []byte("init"), []byte("/sbin/init"))
	p2 := tbl.AddProcess(100, 1, eid(20, 0), []byte("sh"), []byte("/bin/sh"))

	reader := &fakeReader{pids: []uint32{1}}
	tbl.Expire(context.Background(), reader)

	_, ok := tbl.Get(p1.Key)
	require.True(t, ok)
	_, ok = tbl.Get(p2.Key)
	require.False(t, ok, "pid 100 has no live descendant, so it must be pruned")

	_, ok = tbl.GetProcess(100)
	require.False(t, ok)
}

type errorReader struct{}

func (errorReader) GetPIDs() ([]uint32, error) {
	return nil, errTest{}
}
func (errorReader) ParseProcPID(pid uint32) (procfs.ProcPidInfo, error) {
	return procfs.ProcPidInfo{}, errTest{}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }

func TestExpireNoOpOnEnumerationFailure(t *testing.T) {
	tbl := NewProcTable()
	p := tbl.AddProcess(1, 0, eid(10, 0), []byte("init"), []byte("/sbin/init"))

	tbl.Expire(context.Background(), errorReader{})

	_, ok := tbl.Get(p.Key)
	require.True(t, ok, "table must be unchanged when /proc enumeration fails")
}

func TestInitFromProcPropagatesEnumerationError(t *testing.T) {
	tbl := NewProcTable()
	err := tbl.InitFromProc(context.Background(), errorReader{})
	require.Error(t, err)
}

func TestByPidStaysSortedAfterMutations(t *testing.T) {
	tbl := NewProcTable()
	tbl.AddProcess(42, 1, eid(300, 0), nil, nil)
	tbl.AddProcess(42, 1, eid(100, 0), nil, nil)
	tbl.AddProcess(42, 1, eid(200, 0), nil, nil)

	list := tbl.byPID[42]
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		require.True(t, list[i-1].Less(list[i]))
	}
}
