package wsroom

import (
	"fmt"
	"strings"
)

// UTF8Error describes a malformed byte in an acknowledgement payload
type UTF8Error struct {
	Offset   int  // index of the offending byte
	Byte     byte // the offending byte
	Expected int  // length of the sequence being decoded, 0 for a bad start byte
	Reason   string
}

func (e *UTF8Error) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("wsroom: %s 0x%02x at offset %d", e.Reason, e.Byte, e.Offset)
	}
	return fmt.Sprintf("wsroom: %s 0x%02x at offset %d (expected %d-byte sequence)",
		e.Reason, e.Byte, e.Offset, e.Expected)
}

// DecodeUTF8 decodes b strictly. Malformed input yields a *UTF8Error rather
// than U+FFFD substitution.
func DecodeUTF8(b []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(len(b))

	for i := 0; i < len(b); {
		lead := b[i]
		var size int
		var cp rune
		switch {
		case lead < 0x80:
			sb.WriteByte(lead)
			i++
			continue
		case lead&0xE0 == 0xC0:
			size, cp = 2, rune(lead&0x1F)
		case lead&0xF0 == 0xE0:
			size, cp = 3, rune(lead&0x0F)
		case lead&0xF8 == 0xF0:
			size, cp = 4, rune(lead&0x07)
		default:
			return "", &UTF8Error{Offset: i, Byte: lead, Reason: "invalid UTF-8 start byte"}
		}

		if i+size > len(b) {
			return "", &UTF8Error{Offset: i, Byte: lead, Expected: size, Reason: "truncated UTF-8 sequence starting with"}
		}
		for j := 1; j < size; j++ {
			c := b[i+j]
			if c&0xC0 != 0x80 {
				return "", &UTF8Error{Offset: i + j, Byte: c, Expected: size, Reason: "invalid UTF-8 continuation byte"}
			}
			cp = cp<<6 | rune(c&0x3F)
		}
		sb.WriteRune(cp)
		i += size
	}
	return sb.String(), nil
}
