package auditrecord

import (
	"fmt"
	"strings"
)

// quoteBytes renders raw bytes as the quoted-string text form used in both
// serialization and debug output: printable ASCII passes through unchanged,
// everything else becomes a "\xHH" hex escape. Decoding quoted strings (and
// decoding all-hex unquoted tokens) happens upstream, in the syscall-to-text
// parser front-end this package does not implement (spec 1).
func quoteBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "\\x%02x", c)
	}
	return sb.String()
}
