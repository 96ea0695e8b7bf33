package domain

import "strings"

// DexKind identifies the exchange (or pre-listing launchpad) a pair trades on.
type DexKind string

const (
	DexStonFi  DexKind = "stonfi"
	DexDeDust  DexKind = "dedust"
	DexBlum    DexKind = "blum"
	DexUnknown DexKind = ""
)

// String returns the string representation of DexKind.
func (d DexKind) String() string {
	return string(d)
}

// IsValid checks if the dex kind is a known value.
func (d DexKind) IsValid() bool {
	return d == DexStonFi || d == DexDeDust || d == DexBlum
}

// ParseDexKind maps free-form dex ids ("ston_fi", "stonfi_v2", "DeDust") to a DexKind.
func ParseDexKind(s string) DexKind {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "dedust"):
		return DexDeDust
	case strings.Contains(v, "ston"):
		return DexStonFi
	case strings.Contains(v, "blum"):
		return DexBlum
	default:
		return DexUnknown
	}
}

// DexLabel returns the human label shown in alert titles for an upstream dex id.
func DexLabel(dexID string) string {
	d := strings.ToLower(dexID)
	switch {
	case strings.Contains(d, "dedust"):
		return "DeDust"
	case strings.Contains(d, "ston") && strings.Contains(d, "v2"):
		return "Stonfi v2"
	case strings.Contains(d, "ston"):
		return "STON.fi"
	default:
		return "DEX"
	}
}

// SourceKind identifies an upstream feed polled by its own loop.
type SourceKind string

const (
	SourceStonExport SourceKind = "ston-export"
	SourceStonPool   SourceKind = "ston-pool"
	SourceDeDust     SourceKind = "dedust"
	SourceBlum       SourceKind = "blum"
)

// String returns the string representation of SourceKind.
func (s SourceKind) String() string {
	return string(s)
}

// IsValid checks if the source kind is a known value.
func (s SourceKind) IsValid() bool {
	switch s {
	case SourceStonExport, SourceStonPool, SourceDeDust, SourceBlum:
		return true
	}
	return false
}

// CursorKey builds the cursor map key for a source and a pool or token address.
func CursorKey(source SourceKind, id string) string {
	return string(source) + ":" + id
}
