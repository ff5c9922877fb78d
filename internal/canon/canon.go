// Package canon implements the canonical-JSON encoding and SHA-256 hashing
// used by the governance audit chain. No example repo in the pack carries a
// canonical-JSON library (the closest, sergi/go-diff, is a text differ, not
// a serializer) — stdlib encoding/json plus manual key-sorting is the
// literal mechanism the canonical form requires, so this package is
// deliberately stdlib-only.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
)

// Marshal renders v as canonical JSON: object keys sorted lexicographically
// at every nesting level, no indentation, separators fixed to `,` and `:`,
// every string ASCII-escaped (non-ASCII runes as \uXXXX) so the byte stream
// is identical across implementations regardless of the underlying text
// encoding.
func Marshal(v any) ([]byte, error) {
	// Round-trip through a generic representation so map keys sort and
	// struct field order never leaks into the byte stream.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canon: unmarshal for canonicalization: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case string:
		writeCanonicalString(buf, val)
		return nil
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}
}

// writeCanonicalString writes s as a JSON string literal with every rune
// outside printable ASCII escaped as \uXXXX (astral-plane runes as a
// surrogate pair), matching a conformant implementation's
// json.dumps(..., ensure_ascii=True) so the same logical audit row hashes
// identically regardless of which implementation computed it.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20, r >= 0x80 && r <= 0xffff:
				fmt.Fprintf(buf, `\u%04x`, r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, hi, lo)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// Hash returns the lowercase hex SHA-256 digest of the canonical encoding
// of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Bucket returns sha256(key)[0:8] interpreted as a big-endian u32, mod 100 —
// the rollout-gating bucket function from the design notes.
func Bucket(key string) uint32 {
	sum := sha256.Sum256([]byte(key))
	v := uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	return v % 100
}
