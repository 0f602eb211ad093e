package proctable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
)

func TestProcessEventID(t *testing.T) {
	p := newProcess(EventKey(auditrecord.EventID{TimestampMS: 1, Sequence: 2}))
	id, ok := p.EventID()
	require.True(t, ok)
	require.Equal(t, uint64(1), id.TimestampMS)

	p2 := newProcess(TimeKey(5))
	_, ok = p2.EventID()
	require.False(t, ok)
}

// TestProcessAddRemoveLabelRoundTrip covers spec 8: "add_label(k, L)
// followed by remove_label(k, L) leaves the process's label set
// unchanged."
func TestProcessAddRemoveLabelRoundTrip(t *testing.T) {
	p := newProcess(TimeKey(1))
	before := p.Labels()

	p.AddLabel([]byte("L"))
	p.RemoveLabel([]byte("L"))

	require.Equal(t, before, p.Labels())
}

func TestProcessMarshalJSON(t *testing.T) {
	p := newProcess(TimeKey(1000))
	p.Comm = []byte("sh")
	p.Exe = []byte("/bin/sh")
	p.Container = &ContainerInfo{ID: []byte("deadbeef")}
	p.AddLabel([]byte("z"))
	p.AddLabel([]byte("a"))

	out, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "sh", decoded["comm"])
	require.Equal(t, "/bin/sh", decoded["exe"])
	require.Equal(t, []any{"a", "z"}, decoded["labels"])
	require.Equal(t, "1000", string(mustMarshal(t, decoded["key"])))
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
