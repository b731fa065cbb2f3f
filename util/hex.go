package util

import (
	"fmt"
	"strings"
)

// ParseBytes parses a human-typed hex byte string into a byte slice.
// Bytes may be separated by spaces or commas and may carry an "0x"
// prefix; single hex digits stand for one byte. A run without
// separators is split into byte pairs and must have even length.
//
//	"9F 00 00", "0x9f,0x00,0x00" and "9f0000" all parse to the
//	same three bytes.
func ParseBytes(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return []byte{}, nil
	}

	var out []byte
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if f == "" {
			return nil, fmt.Errorf("empty byte after 0x prefix in %q", s)
		}
		if len(f)%2 == 1 {
			if len(f) > 1 {
				return nil, fmt.Errorf("odd number of hex digits in %q", f)
			}
			f = "0" + f
		}
		for i := 0; i < len(f); i += 2 {
			b, err := parseHexByte(f[i], f[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func parseHexByte(hi, lo byte) (byte, error) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("invalid hex byte %q", string([]byte{hi, lo}))
	}
	return h<<4 | l, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// FormatBytes renders a byte slice as uppercase hex pairs separated by
// spaces, the inverse of ParseBytes.
func FormatBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
