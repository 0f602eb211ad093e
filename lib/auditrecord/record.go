package auditrecord

import (
	"strings"

	"github.com/gravitational/trace"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// element is one stored (Key, RecordValue) pair.
type element struct {
	Key   Key
	Value RecordValue
}

// Record is an ordered sequence of (Key, Value) pairs backed by one growable
// raw byte buffer. Every Range held by an element's RecordValue points into
// raw; insertion order is preserved and is the serialization order (spec 3).
type Record struct {
	elems []element
	raw   []byte
}

// NewRecord returns an empty Record ready for Push.
func NewRecord() *Record {
	return &Record{}
}

// Len reports the number of (Key, Value) pairs in the record.
func (r *Record) Len() int { return len(r.elems) }

// Raw exposes the record's underlying buffer; callers must not retain it
// past the next mutating call, since Push/Extend/Put may reallocate it.
func (r *Record) Raw() []byte { return r.raw }

// Push converts v into the record's storage form and appends (k, v) to the
// record, reusing v's backing bytes in place of copying them when they
// already live inside the record's raw buffer (spec 4.1, the slice-contains
// optimization).
func (r *Record) Push(k Key, v Value) {
	rv := v.toRecordValue(&r.raw)
	r.elems = append(r.elems, element{Key: k, Value: rv})
}

// Put appends s to the record's raw buffer and returns the range it now
// occupies, for callers that build a Value's byte payload directly against
// the record (e.g. assembling a multi-fragment string without an
// intermediate allocation).
func (r *Record) Put(s []byte) Range {
	start := len(r.raw)
	r.raw = append(r.raw, s...)
	return Range{Start: start, End: start + len(s)}
}

// Get returns the first value whose key's canonical textual form matches
// keyBytes.
func (r *Record) Get(keyBytes []byte) (Value, bool) {
	for _, e := range r.elems {
		if e.Key.EqualBytes(keyBytes) {
			return e.Value.toValue(r.raw), true
		}
	}
	return Value{}, false
}

// Pair is one (Key, Value) pair as produced by Record.All.
type Pair struct {
	Key   Key
	Value Value
}

// All returns every (Key, Value) pair in insertion order, projecting each
// stored RecordValue against the record's raw buffer.
func (r *Record) All() []Pair {
	out := make([]Pair, len(r.elems))
	for i, e := range r.elems {
		out[i] = Pair{Key: e.Key, Value: e.Value.toValue(r.raw)}
	}
	return out
}

// Extend merges other into r: other's raw buffer is appended to r's, and
// every range held by other's values is rebased by the length r.raw had
// before the append (spec 3). Merging records containing Segments, Skipped,
// List or StringifiedList values is only meaningful for EXECVE-derived
// records; the caller is responsible for that invariant (spec 4.1).
func (r *Record) Extend(other *Record) {
	base := len(r.raw)
	r.raw = append(r.raw, other.raw...)
	for _, e := range other.elems {
		r.elems = append(r.elems, element{Key: e.Key, Value: e.Value.offsetBy(base)})
	}
}

// MarshalJSON serializes the record as an ordered JSON object, preserving
// insertion order and skipping Arg/ArgLen keys (spec 4.1, 6).
func (r *Record) MarshalJSON() ([]byte, error) {
	doc := "{}"
	for _, e := range r.elems {
		if e.Key.IsArgLike() {
			continue
		}
		v := e.Value.toValue(r.raw)
		valJSON, err := v.jsonValue()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		var err2 error
		doc, err2 = sjson.SetRawOptions(doc, e.Key.String(), string(valJSON), &sjson.Options{ReplaceInPlace: false})
		if err2 != nil {
			return nil, trace.Wrap(err2)
		}
	}
	return pretty.Ugly([]byte(doc)), nil
}

// PrettyJSON renders the record the same way MarshalJSON does, but
// indented; useful for debug logging.
func (r *Record) PrettyJSON() ([]byte, error) {
	doc, err := r.MarshalJSON()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return pretty.Pretty(doc), nil
}

// String renders a single-line debug form of the record, e.g.
// `syscall=Number:<59> path=Str:</bin/ls>`. This is the form a caller
// builds for a slog Debug breadcrumb around a record it is about to reject
// or enrich; it has no bearing on MarshalJSON's wire form.
func (r *Record) String() string {
	parts := make([]string, len(r.elems))
	for i, e := range r.elems {
		v := e.Value.toValue(r.raw)
		parts[i] = e.Key.String() + "=" + v.String()
	}
	return strings.Join(parts, " ")
}
