package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLegacyRun caps a single run in the legacy format.  Older clients never
// wrote runs anywhere near this long; anything larger is garbage or hostile.
const MaxLegacyRun = 4096

// expandLegacy decodes the run-length text older app versions stored:
//
//	~~        literal '~'
//	~N~c      the rune c repeated N times
//
// Every other rune is copied through.
func expandLegacy(body string) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); {
		if body[i] != '~' {
			r, size := utf8.DecodeRuneInString(body[i:])
			if r == utf8.RuneError && size == 1 {
				return nil, fmt.Errorf("%w: invalid utf-8 at %d", ErrMalformed, i)
			}
			b.WriteString(body[i : i+size])
			i += size
		} else if i+1 < len(body) && body[i+1] == '~' {
			b.WriteByte('~')
			i += 2
		} else {
			j := i + 1
			n := 0
			for j < len(body) && body[j] >= '0' && body[j] <= '9' {
				n = n*10 + int(body[j]-'0')
				if n > MaxLegacyRun {
					return nil, fmt.Errorf("%w: run length exceeds %d", ErrMalformed, MaxLegacyRun)
				}
				j++
			}
			if j == i+1 || j >= len(body) || body[j] != '~' || j+1 >= len(body) {
				return nil, fmt.Errorf("%w: bad run at %d", ErrMalformed, i)
			}
			r, size := utf8.DecodeRuneInString(body[j+1:])
			if r == utf8.RuneError && size == 1 {
				return nil, fmt.Errorf("%w: invalid utf-8 at %d", ErrMalformed, j+1)
			}
			if b.Len()+n*size > MaxDecodedSize {
				return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrMalformed, MaxDecodedSize)
			}
			b.WriteString(strings.Repeat(string(r), n))
			i = j + 1 + size
		}
		if b.Len() > MaxDecodedSize {
			return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrMalformed, MaxDecodedSize)
		}
	}
	return []byte(b.String()), nil
}
