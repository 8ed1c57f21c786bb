package protocol

import (
	"fmt"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// FormatHex renders b as uppercase, space separated byte pairs:
// "05 00 00 00 2A". When limit > 0 and b is longer, the output is cut
// after limit bytes and the remainder is reported as a count.
func FormatHex(b []byte, limit int) string {
	shown := b
	if limit > 0 && len(b) > limit {
		shown = b[:limit]
	}
	var sb strings.Builder
	sb.Grow(len(shown) * 3)
	for i, c := range shown {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0F])
	}
	if len(shown) < len(b) {
		fmt.Fprintf(&sb, " …(+%d bytes)", len(b)-len(shown))
	}
	return sb.String()
}
