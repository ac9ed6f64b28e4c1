package sdfat

import (
	"strings"

	"github.com/aligator/sdfat/checkpoint"
	"golang.org/x/text/encoding/charmap"
)

// Characters which are printable but not allowed in a short name.
const shortNameForbidden = `|<>^+=?/[];,*"\`

// makeShortName formats one path component as space padded 8.3 name, e.g. "file.txt" -> "FILE    TXT".
// Lower case letters are converted to upper case. Only a single dot is allowed,
// the base name must have 1 to 8 and the extension 0 to 3 characters.
func makeShortName(component string) ([11]byte, error) {
	var name [11]byte
	for i := range name {
		name[i] = ' '
	}

	i := 0
	n := 7 // last index of the current part
	for j := 0; j < len(component); j++ {
		c := component[j]
		if c == '.' {
			if n == 10 {
				return name, checkpoint.New(ErrInvalidName, "%q has more than one dot", component)
			}
			n = 10
			i = 8
			continue
		}

		if c < 0x21 || c > 0x7E || strings.IndexByte(shortNameForbidden, c) >= 0 {
			return name, checkpoint.New(ErrInvalidName, "%q contains invalid character %q", component, c)
		}
		if i > n {
			return name, checkpoint.New(ErrInvalidName, "%q is too long for 8.3", component)
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		name[i] = c
		i++
	}

	if name[0] == ' ' {
		return name, checkpoint.New(ErrInvalidName, "%q has an empty base name", component)
	}
	return name, nil
}

// displayName converts a raw 8.3 name into its usual form, e.g. "FILE    TXT" -> "FILE.TXT".
// Bytes outside of ASCII are decoded as code page 437.
func displayName(raw [11]byte) string {
	if raw[0] == dirNameE5 {
		raw[0] = dirNameDeleted
	}

	base := strings.TrimRight(decodeOEM(raw[:8]), " ")
	ext := strings.TrimRight(decodeOEM(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func decodeOEM(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	decoded, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
