package normalize

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
)

// RawAddress converts a TON address in raw ("0:<hex>") or user-friendly
// (48-char base64/base64url) form to lower-case raw form.
func RawAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if wc, h, ok := strings.Cut(s, ":"); ok {
		n, err := strconv.ParseInt(wc, 10, 32)
		if err != nil || len(h) != 64 {
			return "", false
		}
		if _, err := hex.DecodeString(h); err != nil {
			return "", false
		}
		return strconv.FormatInt(n, 10) + ":" + strings.ToLower(h), true
	}

	if len(s) != 48 {
		return "", false
	}
	b, err := base64.URLEncoding.DecodeString(strings.NewReplacer("+", "-", "/", "_").Replace(s))
	if err != nil || len(b) != 36 {
		return "", false
	}
	// flags(1) workchain(1) hash(32) crc16(2)
	return strconv.Itoa(int(int8(b[1]))) + ":" + hex.EncodeToString(b[2:34]), true
}

// SameAddress compares two addresses across encodings. Unparseable values
// fall back to exact comparison.
func SameAddress(a, b string) bool {
	if a == b {
		return true
	}
	ra, okA := RawAddress(a)
	rb, okB := RawAddress(b)
	return okA && okB && ra == rb
}
