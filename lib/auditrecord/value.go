package auditrecord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/gravitational/trace"
)

// Quote records which textual delimiter (if any) surrounded a Str value in
// the original log line, so serialization can reproduce the same shape the
// kernel emitted.
type Quote int

const (
	QuoteNone Quote = iota
	QuoteSingle
	QuoteDouble
	// QuoteBraces marks the {...}-wrapped SELinux-context style strings
	// auditd emits for a small number of fields.
	QuoteBraces
)

// NumberKind discriminates the radix a Number was written in; EXECVE and
// SYSCALL records mix hex (most arguments), decimal (pid/uid/gid-like
// fields) and octal (mode) freely.
type NumberKind int

const (
	NumberHex NumberKind = iota
	NumberDec
	NumberOct
)

// Number is a parsed numeric value together with the radix it was rendered
// in, so re-serialization is round-trip faithful.
type Number struct {
	Kind NumberKind
	// U holds the magnitude for NumberHex and NumberOct.
	U uint64
	// I holds the value for NumberDec, which is signed (e.g. exit codes).
	I int64
}

// NewHexNumber builds a Number parsed from a 0x-less hex token.
func NewHexNumber(u uint64) Number { return Number{Kind: NumberHex, U: u} }

// NewOctNumber builds a Number parsed from an 0-prefixed octal token.
func NewOctNumber(u uint64) Number { return Number{Kind: NumberOct, U: u} }

// NewDecNumber builds a Number parsed from a plain decimal token.
func NewDecNumber(i int64) Number { return Number{Kind: NumberDec, I: i} }

// String renders the number the way it would appear in a re-serialized
// record: hex and octal keep their radix prefix, decimal does not.
func (n Number) String() string {
	switch n.Kind {
	case NumberHex:
		return "0x" + strconv.FormatUint(n.U, 16)
	case NumberOct:
		return "0" + strconv.FormatUint(n.U, 8)
	default:
		return strconv.FormatInt(n.I, 10)
	}
}

// jsonValue returns the JSON encoding sjson should splice in for this
// number: hex and octal render as JSON strings (they aren't meaningfully
// numeric once re-read), decimal renders as a JSON integer.
func (n Number) jsonValue() ([]byte, error) {
	if n.Kind == NumberDec {
		return json.Marshal(n.I)
	}
	return json.Marshal(n.String())
}

// Range is a half-open byte offset range into a Record's raw buffer.
type Range struct {
	Start int
	End   int
}

// Len reports the number of bytes the range spans.
func (r Range) Len() int { return r.End - r.Start }

// Offset shifts both ends of the range by by, used when a Record's raw
// buffer is appended to another's (Record.Extend, spec 4.1).
func (r Range) Offset(by int) Range { return Range{Start: r.Start + by, End: r.End + by} }

func (r Range) slice(raw []byte) []byte { return raw[r.Start:r.End] }

// ValueKind discriminates the variants of Value and RecordValue. The two
// types share one Kind set: Value borrows byte slices directly, RecordValue
// stores offsets into a Record's raw buffer. Record.Get projects a
// RecordValue back into a Value on every read; nothing is copied unless the
// caller asks for an owned conversion (ToBytes).
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueStr
	ValueSegments
	ValueList
	ValueStringifiedList
	ValueMap
	ValueNumber
	ValueSkipped
	ValueLiteral
)

// SimpleKey is the key half of a Map entry: either a borrowed byte string or
// a static literal, never both.
type SimpleKey struct {
	IsLiteral bool
	Str       []byte
	Literal   string
}

// SimpleValue is the value half of a Map entry: either a borrowed byte
// string or a parsed Number.
type SimpleValue struct {
	IsNumber bool
	Str      []byte
	Number   Number
}

// MapEntry is one key/value pair of a Value's Map variant.
type MapEntry struct {
	Key   SimpleKey
	Value SimpleValue
}

// Value is the borrowed, read-ready form of a record field's value: the
// shape auparse-style consumers pattern-match on. Construct one directly
// with the New* helpers, or read one out of a Record via Record.Get, which
// projects the stored RecordValue against the Record's raw buffer.
type Value struct {
	Kind ValueKind

	// Str and Quote hold the ValueStr payload.
	Str   []byte
	Quote Quote

	// Segments holds the ValueSegments payload: a handful of byte runs
	// that render back to back with no separator (e.g. an EXECVE argument
	// split across aN[M] fragments that share one logical string).
	Segments [][]byte

	// List holds ValueList and ValueStringifiedList payloads: a flat
	// sequence of scalar Values, never nested.
	List []Value

	// Map holds the ValueMap payload.
	Map []MapEntry

	// Number holds the ValueNumber payload.
	Number Number

	// SkippedArgs and SkippedBytes hold the ValueSkipped payload: a
	// placeholder for EXECVE arguments the kernel elided past
	// audit_arg_string_size_max.
	SkippedArgs  int
	SkippedBytes int

	// Literal holds the ValueLiteral payload: a value not read from any
	// record, attached by enrichment.
	Literal string
}

func ValueOfEmpty() Value { return Value{Kind: ValueEmpty} }

func ValueOfStr(b []byte, q Quote) Value { return Value{Kind: ValueStr, Str: b, Quote: q} }

func ValueOfSegments(segs [][]byte) Value { return Value{Kind: ValueSegments, Segments: segs} }

func ValueOfList(vs []Value) Value { return Value{Kind: ValueList, List: vs} }

func ValueOfStringifiedList(vs []Value) Value {
	return Value{Kind: ValueStringifiedList, List: vs}
}

func ValueOfMap(entries []MapEntry) Value { return Value{Kind: ValueMap, Map: entries} }

func ValueOfNumber(n Number) Value { return Value{Kind: ValueNumber, Number: n} }

func ValueOfSkipped(args, bytes int) Value {
	return Value{Kind: ValueSkipped, SkippedArgs: args, SkippedBytes: bytes}
}

func ValueOfLiteral(s string) Value { return Value{Kind: ValueLiteral, Literal: s} }

// ToBytes implements the scalar "TryFrom<Value> for Vec<u8>" conversion:
// the raw bytes a value would contribute if it were concatenated straight
// into another field (e.g. assembling a path out of PARENT_INFO/PATH_INFO
// segments). Braces-quoted strings are rewrapped in "{" "}"; every
// aggregate variant (List, StringifiedList, Map, Number, Skipped) has no
// scalar byte representation and returns an error the caller can recognize
// with trace.IsBadParameter.
func (v Value) ToBytes() ([]byte, error) {
	switch v.Kind {
	case ValueEmpty:
		return []byte{}, nil
	case ValueStr:
		if v.Quote == QuoteBraces {
			out := make([]byte, 0, len(v.Str)+2)
			out = append(out, '{')
			out = append(out, v.Str...)
			out = append(out, '}')
			return out, nil
		}
		out := make([]byte, len(v.Str))
		copy(out, v.Str)
		return out, nil
	case ValueSegments:
		n := 0
		for _, s := range v.Segments {
			n += len(s)
		}
		out := make([]byte, 0, n)
		for _, s := range v.Segments {
			out = append(out, s...)
		}
		return out, nil
	case ValueLiteral:
		return []byte(v.Literal), nil
	default:
		return nil, trace.BadParameter("cannot convert %s value to a scalar byte string", v.kindName())
	}
}

// String renders a single-line debug form of the value, e.g. `Str:<path>`,
// `Segments<a,b>`, `List:<Str:<a>,Number:<1>>`. This is the Go analogue of
// the source's own single-line `Debug` rendering (spec 9, "Supplemented
// features"); it is not used for serialization, only for debug-level log
// breadcrumbs a caller builds around a Record (Record.String()).
func (v Value) String() string {
	switch v.Kind {
	case ValueEmpty:
		return "Empty"
	case ValueStr:
		return "Str:<" + quoteBytes(v.Str) + ">"
	case ValueSegments:
		parts := make([]string, len(v.Segments))
		for i, s := range v.Segments {
			parts[i] = quoteBytes(s)
		}
		return "Segments<" + strings.Join(parts, ",") + ">"
	case ValueList:
		return "List:<" + v.joinElems() + ">"
	case ValueStringifiedList:
		return "StringifiedList:<" + v.joinElems() + ">"
	case ValueMap:
		parts := make([]string, len(v.Map))
		for i, e := range v.Map {
			var k string
			if e.Key.IsLiteral {
				k = e.Key.Literal
			} else {
				k = quoteBytes(e.Key.Str)
			}
			var val string
			if e.Value.IsNumber {
				val = e.Value.Number.String()
			} else {
				val = quoteBytes(e.Value.Str)
			}
			parts[i] = k + ":" + val
		}
		return "Map:<" + strings.Join(parts, ",") + ">"
	case ValueNumber:
		return "Number:<" + v.Number.String() + ">"
	case ValueSkipped:
		return "Skipped:<args=" + strconv.Itoa(v.SkippedArgs) + ",bytes=" + strconv.Itoa(v.SkippedBytes) + ">"
	case ValueLiteral:
		return "Literal:<" + v.Literal + ">"
	default:
		return "Unknown"
	}
}

// GoString renders the same single-line debug form as String, so %#v on a
// Value is as readable as %v/%s.
func (v Value) GoString() string { return v.String() }

func (v Value) joinElems() string {
	parts := make([]string, len(v.List))
	for i, e := range v.List {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

func (v Value) kindName() string {
	switch v.Kind {
	case ValueEmpty:
		return "empty"
	case ValueStr:
		return "str"
	case ValueSegments:
		return "segments"
	case ValueList:
		return "list"
	case ValueStringifiedList:
		return "stringified-list"
	case ValueMap:
		return "map"
	case ValueNumber:
		return "number"
	case ValueSkipped:
		return "skipped"
	case ValueLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// jsonValue renders the JSON this Value should appear as inside a Record's
// serialized form (spec 4.1's "textual value rendering", used by
// Record.MarshalJSON via sjson.SetRawOptions).
func (v Value) jsonValue() ([]byte, error) {
	switch v.Kind {
	case ValueEmpty:
		return []byte("null"), nil
	case ValueStr:
		text := quoteBytes(v.Str)
		if v.Quote == QuoteBraces {
			text = "{" + text + "}"
		}
		return json.Marshal(text)
	case ValueSegments:
		var sb []byte
		for _, s := range v.Segments {
			sb = append(sb, s...)
		}
		return json.Marshal(quoteBytes(sb))
	case ValueNumber:
		return v.Number.jsonValue()
	case ValueLiteral:
		return json.Marshal(v.Literal)
	case ValueSkipped:
		return json.Marshal(skippedText(v.SkippedArgs, v.SkippedBytes))
	case ValueList:
		parts := make([]json.RawMessage, len(v.List))
		for i, e := range v.List {
			raw, err := e.jsonValue()
			if err != nil {
				return nil, trace.Wrap(err)
			}
			parts[i] = raw
		}
		return json.Marshal(parts)
	case ValueStringifiedList:
		text, err := v.stringifiedListText()
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return json.Marshal(text)
	case ValueMap:
		// Preserve insertion order: build the object body by hand rather
		// than through a Go map, which would re-sort keys.
		buf := []byte("{")
		for i, e := range v.Map {
			if i > 0 {
				buf = append(buf, ',')
			}
			var keyText string
			if e.Key.IsLiteral {
				keyText = e.Key.Literal
			} else {
				keyText = string(e.Key.Str)
			}
			keyJSON, err := json.Marshal(keyText)
			if err != nil {
				return nil, trace.Wrap(err)
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')
			var valJSON []byte
			if e.Value.IsNumber {
				valJSON, err = e.Value.Number.jsonValue()
			} else {
				valJSON, err = json.Marshal(quoteBytes(e.Value.Str))
			}
			if err != nil {
				return nil, trace.Wrap(err)
			}
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return nil, trace.BadParameter("unknown value kind %d", v.Kind)
	}
}

// skippedText renders the placeholder EXECVE leaves when the kernel elided
// arguments past audit_arg_string_size_max.
func skippedText(args, bytes int) string {
	return fmt.Sprintf("<<< Skipped: args=%d, bytes=%d >>>", args, bytes)
}

// stringifiedListText joins a StringifiedList's elements with spaces into
// one scalar conversion, then quote-encodes the whole result once. An
// element with no scalar byte conversion (a Number can appear in a
// malformed StringifiedList) falls back to a literal "x" rather than
// failing the whole record, matching the source's lenient renderer.
func (v Value) stringifiedListText() (string, error) {
	if v.Kind != ValueStringifiedList {
		return "", trace.BadParameter("not a stringified list")
	}
	var buf []byte
	for i, e := range v.List {
		if i > 0 {
			buf = append(buf, ' ')
		}
		if e.Kind == ValueSkipped {
			buf = append(buf, skippedText(e.SkippedArgs, e.SkippedBytes)...)
			continue
		}
		b, err := e.ToBytes()
		if err != nil {
			buf = append(buf, 'x')
			continue
		}
		buf = append(buf, b...)
	}
	return quoteBytes(buf), nil
}

// --- RecordValue: the offset-based storage form kept inside a Record ---

// SimpleRecordKey is the stored form of SimpleKey: a Range into the
// Record's raw buffer instead of a borrowed slice.
type SimpleRecordKey struct {
	IsLiteral bool
	Range     Range
	Literal   string
}

// SimpleRecordValue is the stored form of SimpleValue.
type SimpleRecordValue struct {
	IsNumber bool
	Range    Range
	Number   Number
}

// RecordMapEntry is the stored form of MapEntry.
type RecordMapEntry struct {
	Key   SimpleRecordKey
	Value SimpleRecordValue
}

// RecordValue is the form a Value takes once pushed into a Record: byte
// payloads are stored as Ranges into the Record's single raw buffer rather
// than as independently-owned slices, so appending N values to a Record
// costs one copy into the shared buffer, not N allocations.
type RecordValue struct {
	Kind ValueKind

	Range Range
	Quote Quote

	Segments []Range

	List []RecordValue

	Map []RecordMapEntry

	Number Number

	SkippedArgs  int
	SkippedBytes int

	Literal string
}

// ByteLen reports how many raw-buffer bytes this RecordValue occupies,
// summing nested ranges (Str, Segments, List/StringifiedList elements and
// non-literal Map keys and non-number Map values); other kinds count zero.
func (rv RecordValue) ByteLen() int {
	switch rv.Kind {
	case ValueStr:
		return rv.Range.Len()
	case ValueSegments:
		n := 0
		for _, r := range rv.Segments {
			n += r.Len()
		}
		return n
	case ValueList, ValueStringifiedList:
		n := 0
		for _, e := range rv.List {
			n += e.ByteLen()
		}
		return n
	case ValueMap:
		n := 0
		for _, e := range rv.Map {
			if !e.Key.IsLiteral {
				n += e.Key.Range.Len()
			}
			if !e.Value.IsNumber {
				n += e.Value.Range.Len()
			}
		}
		return n
	default:
		return 0
	}
}

// offsetBy shifts every range held by the RecordValue by by, used when
// copying a value from one Record's raw buffer into another's tail
// (Record.Extend, spec 4.1).
func (rv RecordValue) offsetBy(by int) RecordValue {
	out := rv
	out.Range = rv.Range.Offset(by)
	if rv.Segments != nil {
		out.Segments = make([]Range, len(rv.Segments))
		for i, r := range rv.Segments {
			out.Segments[i] = r.Offset(by)
		}
	}
	if rv.List != nil {
		out.List = make([]RecordValue, len(rv.List))
		for i, e := range rv.List {
			out.List[i] = e.offsetBy(by)
		}
	}
	if rv.Map != nil {
		out.Map = make([]RecordMapEntry, len(rv.Map))
		for i, e := range rv.Map {
			ne := e
			if !e.Key.IsLiteral {
				ne.Key.Range = e.Key.Range.Offset(by)
			}
			if !e.Value.IsNumber {
				ne.Value.Range = e.Value.Range.Offset(by)
			}
			out.Map[i] = ne
		}
	}
	return out
}

// toValue projects a stored RecordValue back into a borrowed Value by
// slicing raw. This is the read path every Record.Get goes through; it
// never copies, it only re-slices.
func (rv RecordValue) toValue(raw []byte) Value {
	v := Value{Kind: rv.Kind, Quote: rv.Quote, Number: rv.Number,
		SkippedArgs: rv.SkippedArgs, SkippedBytes: rv.SkippedBytes, Literal: rv.Literal}
	switch rv.Kind {
	case ValueStr:
		v.Str = rv.Range.slice(raw)
	case ValueSegments:
		v.Segments = make([][]byte, len(rv.Segments))
		for i, r := range rv.Segments {
			v.Segments[i] = r.slice(raw)
		}
	case ValueList, ValueStringifiedList:
		v.List = make([]Value, len(rv.List))
		for i, e := range rv.List {
			v.List[i] = e.toValue(raw)
		}
	case ValueMap:
		v.Map = make([]MapEntry, len(rv.Map))
		for i, e := range rv.Map {
			var me MapEntry
			me.Key.IsLiteral = e.Key.IsLiteral
			if e.Key.IsLiteral {
				me.Key.Literal = e.Key.Literal
			} else {
				me.Key.Str = e.Key.Range.slice(raw)
			}
			me.Value.IsNumber = e.Value.IsNumber
			if e.Value.IsNumber {
				me.Value.Number = e.Value.Number
			} else {
				me.Value.Str = e.Value.Range.slice(raw)
			}
			v.Map[i] = me
		}
	}
	return v
}

// sliceContains reports whether sub's backing array lies within main's, and
// if so the byte offset at which it starts. Values are usually built from
// sub-slices of the very line being parsed; when that line is itself the
// Record's raw buffer (the common case once a Record owns its input line
// wholesale) this lets toRecordValue reuse the existing bytes by range
// instead of appending a second copy. This relies on comparing raw pointer
// addresses, same as the pointer-offset trick the source performs with its
// own unsafe block; Go has no safe API for it.
func sliceContains(main, sub []byte) (int, bool) {
	if len(sub) == 0 || len(main) == 0 {
		return 0, false
	}
	mStart := uintptr(unsafe.Pointer(&main[0]))
	mEnd := mStart + uintptr(len(main))
	sStart := uintptr(unsafe.Pointer(&sub[0]))
	sEnd := sStart + uintptr(len(sub))
	if mStart <= sStart && sEnd <= mEnd {
		return int(sStart - mStart), true
	}
	return 0, false
}

// appendBytes writes b into *raw, reusing b's own storage as the range when
// it already lives inside *raw (the slice-contains optimization, spec 9),
// and otherwise appending a copy. It returns the range the bytes now
// occupy in *raw.
func appendBytes(raw *[]byte, b []byte) Range {
	if off, ok := sliceContains(*raw, b); ok {
		return Range{Start: off, End: off + len(b)}
	}
	start := len(*raw)
	*raw = append(*raw, b...)
	return Range{Start: start, End: start + len(b)}
}

// toRecordValue stores v into *raw, returning the offset-based RecordValue
// that now refers to it.
func (v Value) toRecordValue(raw *[]byte) RecordValue {
	rv := RecordValue{Kind: v.Kind, Quote: v.Quote, Number: v.Number,
		SkippedArgs: v.SkippedArgs, SkippedBytes: v.SkippedBytes, Literal: v.Literal}
	switch v.Kind {
	case ValueStr:
		rv.Range = appendBytes(raw, v.Str)
	case ValueSegments:
		rv.Segments = make([]Range, len(v.Segments))
		for i, s := range v.Segments {
			rv.Segments[i] = appendBytes(raw, s)
		}
	case ValueList, ValueStringifiedList:
		rv.List = make([]RecordValue, len(v.List))
		for i, e := range v.List {
			rv.List[i] = e.toRecordValue(raw)
		}
	case ValueMap:
		rv.Map = make([]RecordMapEntry, len(v.Map))
		for i, e := range v.Map {
			var re RecordMapEntry
			re.Key.IsLiteral = e.Key.IsLiteral
			if e.Key.IsLiteral {
				re.Key.Literal = e.Key.Literal
			} else {
				re.Key.Range = appendBytes(raw, e.Key.Str)
			}
			re.Value.IsNumber = e.Value.IsNumber
			if e.Value.IsNumber {
				re.Value.Number = e.Value.Number
			} else {
				re.Value.Range = appendBytes(raw, e.Value.Str)
			}
			rv.Map[i] = re
		}
	}
	return rv
}
