package proctable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
)

// TestProcKeyLessEventOrdering covers spec 8: "For any (t1,s1),(t2,s2)
// EventIDs, Event(t1,s1) < Event(t2,s2) iff (t1,s1) < (t2,s2) lex."
func TestProcKeyLessEventOrdering(t *testing.T) {
	a := EventKey(auditrecord.EventID{TimestampMS: 100, Sequence: 5})
	b := EventKey(auditrecord.EventID{TimestampMS: 100, Sequence: 6})
	c := EventKey(auditrecord.EventID{TimestampMS: 200, Sequence: 0})

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, b.Less(c))
	require.True(t, a.Less(c))
}

// TestProcKeyTimeBeforeEventAtSameTimestamp covers spec 8: "Time(t) <
// Event(t, _) for any t (ties go to Time first)."
func TestProcKeyTimeBeforeEventAtSameTimestamp(t *testing.T) {
	tk := TimeKey(100)
	ek := EventKey(auditrecord.EventID{TimestampMS: 100, Sequence: 0})

	require.True(t, tk.Less(ek))
	require.False(t, ek.Less(tk))
}

func TestProcKeyDefaultIsTimeZero(t *testing.T) {
	var k ProcKey
	require.Equal(t, ProcKeyTime, k.Kind)
	require.Equal(t, uint64(0), k.TimeMS)
}

func TestProcKeyStringAndJSON(t *testing.T) {
	ek := EventKey(auditrecord.EventID{TimestampMS: 1500, Sequence: 3})
	require.Equal(t, "1.500:3", ek.String())

	j, err := ek.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"1.500:3"`, string(j))

	tk := TimeKey(42)
	require.Equal(t, "42", tk.String())
	j, err = tk.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, "42", string(j))
}
