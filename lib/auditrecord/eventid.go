// Package auditrecord implements the key/value grammar of a single auditd(8)
// record: a zero-copy, offset-based value model and the ordered Record that
// holds it, along with the EventID and MessageType that identify the record.
package auditrecord

import "fmt"

// EventID identifies an audit event, corresponding to the msg=audit(...)
// portion of every auditd(8) log line. It is unique per host: a
// millisecond-precision timestamp paired with a sequence number.
type EventID struct {
	TimestampMS uint64
	Sequence    uint32
}

// Less orders EventIDs lexicographically on (TimestampMS, Sequence).
func (e EventID) Less(other EventID) bool {
	if e.TimestampMS != other.TimestampMS {
		return e.TimestampMS < other.TimestampMS
	}
	return e.Sequence < other.Sequence
}

// String renders the canonical "{sec}.{ms:03}:{seq}" text form.
func (e EventID) String() string {
	sec := e.TimestampMS / 1000
	ms := e.TimestampMS % 1000
	return fmt.Sprintf("%d.%03d:%d", sec, ms, e.Sequence)
}

// MarshalJSON serializes the EventID as its canonical text form.
func (e EventID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}
