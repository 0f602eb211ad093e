// Package proctable implements the time-indexed, PID-indexed store of
// process entries described by spec 3/4.4: multiple generations of a pid,
// parent linkage, container membership, propagated labels, and expiry
// against the live /proc view.
package proctable

import (
	"strconv"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
)

// ProcKeyKind discriminates the two ProcKey variants.
type ProcKeyKind int

const (
	// ProcKeyTime keys a process bootstrapped from /proc, with no known
	// EventID (InitFromProc, spec 4.4.1).
	ProcKeyTime ProcKeyKind = iota
	// ProcKeyEvent keys a process inserted at runtime off an EXECVE
	// event (AddProcess, spec 4.4.2).
	ProcKeyEvent
)

// ProcKey is the sum type ProcTable sorts its processes by: either a bare
// timestamp (a bootstrap-time process with no originating event) or an
// EventID (a process seen being execve'd). Ties between a Time and an
// Event at the same timestamp resolve with Time ordered first (spec 3).
//
// The source leaves open whether Time should carry a secondary
// discriminator (e.g. pid) to avoid collisions when two bootstrap
// processes share a starttime_ms; this type does not add one, matching
// spec 9's open question.
type ProcKey struct {
	Kind ProcKeyKind

	// TimeMS holds the timestamp for ProcKeyTime.
	TimeMS uint64

	// Event holds the EventID for ProcKeyEvent.
	Event auditrecord.EventID
}

// TimeKey builds a ProcKey for a process observed at bootstrap, with no
// originating event.
func TimeKey(ms uint64) ProcKey { return ProcKey{Kind: ProcKeyTime, TimeMS: ms} }

// EventKey builds a ProcKey for a process inserted off an audit event.
func EventKey(id auditrecord.EventID) ProcKey { return ProcKey{Kind: ProcKeyEvent, Event: id} }

// Time returns the timestamp this key sorts by, regardless of variant.
func (k ProcKey) Time() uint64 {
	if k.Kind == ProcKeyEvent {
		return k.Event.TimestampMS
	}
	return k.TimeMS
}

// Less implements the total order pinned by spec 3: compare by timestamp
// first; two Events at the same timestamp compare by sequence; a Time tie
// with an Event at the same timestamp resolves as the Time sorting first.
func (k ProcKey) Less(other ProcKey) bool {
	kt, ot := k.Time(), other.Time()
	if kt != ot {
		return kt < ot
	}
	if k.Kind == ProcKeyEvent && other.Kind == ProcKeyEvent {
		return k.Event.Sequence < other.Event.Sequence
	}
	// At least one side is a Time at this timestamp: Time < Event, and
	// Time == Time is not Less.
	return k.Kind == ProcKeyTime && other.Kind == ProcKeyEvent
}

// Equal reports whether two keys denote the same table entry.
func (k ProcKey) Equal(other ProcKey) bool {
	return k.Kind == other.Kind && k.TimeMS == other.TimeMS && k.Event == other.Event
}

// String renders the key the way ProcTable's JSON serialization does:
// an Event key as its EventID textual form, a Time key as the bare integer
// millisecond count (spec 6).
func (k ProcKey) String() string {
	if k.Kind == ProcKeyEvent {
		return k.Event.String()
	}
	return strconv.FormatUint(k.TimeMS, 10)
}

// MarshalJSON implements spec 6's ProcKey serialization rule.
func (k ProcKey) MarshalJSON() ([]byte, error) {
	if k.Kind == ProcKeyEvent {
		return k.Event.MarshalJSON()
	}
	return []byte(strconv.FormatUint(k.TimeMS, 10)), nil
}
