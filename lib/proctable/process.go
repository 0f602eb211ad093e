package proctable

import (
	"encoding/json"
	"sort"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
)

// Process is one generation of a pid tracked by ProcTable (spec 3).
type Process struct {
	Key       ProcKey
	PPID      *uint32
	ParentKey *ProcKey
	Comm      []byte
	Exe       []byte

	Container *ContainerInfo

	// labels is the set of labels attached to this process, keyed by the
	// label text so membership tests and propagation are O(1).
	labels map[string]struct{}
}

// newProcess builds a Process with an empty label set.
func newProcess(key ProcKey) *Process {
	return &Process{Key: key, labels: make(map[string]struct{})}
}

// EventID returns the EventID this process was inserted under, if any
// (spec 3: "Some(id) iff key = Event(id)").
func (p *Process) EventID() (auditrecord.EventID, bool) {
	if p.Key.Kind == ProcKeyEvent {
		return p.Key.Event, true
	}
	return auditrecord.EventID{}, false
}

// HasLabel reports whether label is attached to this process.
func (p *Process) HasLabel(label []byte) bool {
	_, ok := p.labels[string(label)]
	return ok
}

// AddLabel attaches label to this process.
func (p *Process) AddLabel(label []byte) {
	p.labels[string(label)] = struct{}{}
}

// RemoveLabel detaches label from this process, if present.
func (p *Process) RemoveLabel(label []byte) {
	delete(p.labels, string(label))
}

// Labels returns the process's labels in sorted order, for deterministic
// iteration and serialization.
func (p *Process) Labels() []string {
	out := make([]string, 0, len(p.labels))
	for l := range p.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON serializes the process's field structure per spec 6. Labels
// are rendered as a sorted array so output is deterministic despite the
// underlying set's unordered iteration.
func (p *Process) MarshalJSON() ([]byte, error) {
	type wire struct {
		Key       ProcKey        `json:"key"`
		PPID      *uint32        `json:"ppid,omitempty"`
		ParentKey *ProcKey       `json:"parent_key,omitempty"`
		Labels    []string       `json:"labels"`
		Comm      string         `json:"comm,omitempty"`
		Exe       string         `json:"exe,omitempty"`
		Container *ContainerInfo `json:"container_info,omitempty"`
	}
	w := wire{
		Key:       p.Key,
		PPID:      p.PPID,
		ParentKey: p.ParentKey,
		Labels:    p.Labels(),
		Container: p.Container,
	}
	if p.Comm != nil {
		w.Comm = string(p.Comm)
	}
	if p.Exe != nil {
		w.Exe = string(p.Exe)
	}
	return json.Marshal(w)
}
