package normalize

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// TxHashHex normalizes a transaction hash to 64 lower-case hex characters.
// It accepts hex (optionally 0x-prefixed) and base64/base64url of 32 bytes,
// and returns "" for anything else.
func TxHashHex(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if len(h) == 66 && strings.HasPrefix(h, "0x") {
		h = h[2:]
	}
	if len(h) == 64 {
		if _, err := hex.DecodeString(h); err == nil {
			return strings.ToLower(h)
		}
	}

	s := strings.NewReplacer("-", "+", "_", "/").Replace(h)
	s = strings.TrimRight(s, "=")
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return ""
	}
	return hex.EncodeToString(raw)
}

// TxURL returns the explorer link for a hash, or fallback when the hash
// cannot be normalized.
func TxURL(hash, fallback string) string {
	if hx := TxHashHex(hash); hx != "" {
		return "https://tonviewer.com/transaction/" + hx
	}
	return strings.TrimSpace(fallback)
}
