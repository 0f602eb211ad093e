package auditrecord

import (
	"strconv"
	"strings"
)

// Common enumerates the well-known keys found in SYSCALL (and related)
// records, whose canonical text form is a short fixed name rather than
// whatever the parser happened to read.
type Common int

const (
	CommonArch Common = iota
	CommonSyscall
	CommonSuccess
	CommonExit
	CommonItems
	CommonPPID
	CommonPID
	CommonTTY
	CommonSes
	CommonComm
	CommonExe
	CommonSubj
	CommonKey
)

var commonNames = map[Common]string{
	CommonArch:    "arch",
	CommonSyscall: "syscall",
	CommonSuccess: "success",
	CommonExit:    "exit",
	CommonItems:   "items",
	CommonPPID:    "ppid",
	CommonPID:     "pid",
	CommonTTY:     "tty",
	CommonSes:     "ses",
	CommonComm:    "comm",
	CommonExe:     "exe",
	CommonSubj:    "subj",
	CommonKey:     "key",
}

var commonByName = func() map[string]Common {
	m := make(map[string]Common, len(commonNames))
	for c, name := range commonNames {
		m[name] = c
	}
	return m
}()

// CommonByName resolves a well-known key name to its Common value.
func CommonByName(name string) (Common, bool) {
	c, ok := commonByName[name]
	return c, ok
}

func (c Common) String() string {
	return commonNames[c]
}

// KeyKind discriminates the variants of Key. Key is a tagged union rather
// than an interface: callers switch on Kind and the relevant fields are
// populated, mirroring the source enum's variants one for one.
type KeyKind int

const (
	// KeyName is a parser-guaranteed ASCII key, e.g. "a0" seen raw (before
	// any Arg-specific handling), "path", "name", ...
	KeyName KeyKind = iota
	// KeyNameUID marks a key whose value is a *uid subject to enrichment.
	KeyNameUID
	// KeyNameGID marks a key whose value is a *gid subject to enrichment.
	KeyNameGID
	// KeyNameTranslated marks an enriched/translated field; its canonical
	// text form is the upper-cased name.
	KeyNameTranslated
	// KeyCommon is one of the fixed well-known SYSCALL-record keys.
	KeyCommon
	// KeyArg is aN or aN[M].
	KeyArg
	// KeyArgLen is aN_len.
	KeyArgLen
	// KeyLiteral is a static string not read from any record.
	KeyLiteral
)

// Key is the key half of a Record's (Key, Value) pairs.
type Key struct {
	Kind KeyKind

	// Name holds the raw bytes for KeyName, KeyNameUID, KeyNameGID and
	// KeyNameTranslated.
	Name []byte

	// CommonKey holds the well-known key for KeyCommon.
	CommonKey Common

	// ArgIndex and ArgSub hold the indices for KeyArg (a{ArgIndex} or
	// a{ArgIndex}[{*ArgSub}]) and KeyArgLen (a{ArgIndex}_len).
	ArgIndex uint16
	ArgSub   *uint16

	// Literal holds the text for KeyLiteral.
	Literal string
}

// NewNameKey builds a plain parser-supplied Key.
func NewNameKey(name []byte) Key { return Key{Kind: KeyName, Name: name} }

// NewUIDKey builds a Key marking a *uid field.
func NewUIDKey(name []byte) Key { return Key{Kind: KeyNameUID, Name: name} }

// NewGIDKey builds a Key marking a *gid field.
func NewGIDKey(name []byte) Key { return Key{Kind: KeyNameGID, Name: name} }

// NewTranslatedKey builds a Key for an enriched/translated field.
func NewTranslatedKey(name []byte) Key { return Key{Kind: KeyNameTranslated, Name: name} }

// NewCommonKey builds a Key for one of the fixed well-known names.
func NewCommonKey(c Common) Key { return Key{Kind: KeyCommon, CommonKey: c} }

// NewArgKey builds a Key for aN or aN[sub].
func NewArgKey(n uint16, sub *uint16) Key { return Key{Kind: KeyArg, ArgIndex: n, ArgSub: sub} }

// NewArgLenKey builds a Key for aN_len.
func NewArgLenKey(n uint16) Key { return Key{Kind: KeyArgLen, ArgIndex: n} }

// NewLiteralKey builds a Key carrying a fixed string not read from input.
func NewLiteralKey(s string) Key { return Key{Kind: KeyLiteral, Literal: s} }

// String renders the canonical textual form of the key, used both for
// serialization and for key-based lookups into a Record.
func (k Key) String() string {
	switch k.Kind {
	case KeyArg:
		if k.ArgSub != nil {
			return "a" + strconv.Itoa(int(k.ArgIndex)) + "[" + strconv.Itoa(int(*k.ArgSub)) + "]"
		}
		return "a" + strconv.Itoa(int(k.ArgIndex))
	case KeyArgLen:
		return "a" + strconv.Itoa(int(k.ArgIndex)) + "_len"
	case KeyName, KeyNameUID, KeyNameGID:
		return string(k.Name)
	case KeyNameTranslated:
		return strings.ToUpper(string(k.Name))
	case KeyCommon:
		return k.CommonKey.String()
	case KeyLiteral:
		return k.Literal
	default:
		return ""
	}
}

// Equal reports whether two keys have the same canonical textual form.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// EqualBytes reports whether the key's canonical textual form equals the
// given bytes, without allocating an intermediate string for the common
// fast-path variants.
func (k Key) EqualBytes(b []byte) bool {
	switch k.Kind {
	case KeyName, KeyNameUID, KeyNameGID:
		return string(k.Name) == string(b)
	default:
		return k.String() == string(b)
	}
}

// IsArgLike reports whether the key is Arg or ArgLen; such keys are skipped
// during Record serialization (spec 4.1).
func (k Key) IsArgLike() bool {
	return k.Kind == KeyArg || k.Kind == KeyArgLen
}
