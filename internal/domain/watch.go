package domain

import (
	"errors"
	"strings"
	"time"
)

// WatchSource identifies where a pending token was registered from.
type WatchSource string

const (
	WatchMemepad WatchSource = "memepad"
	WatchBlum    WatchSource = "blum"
	WatchManual  WatchSource = "manual"
)

// ErrWatchIdentity is returned when a watch entry has neither token address nor slug.
var ErrWatchIdentity = errors.New("watch entry requires a token address or a slug")

// WatchEntry represents a token pending discovery on an exchange.
type WatchEntry struct {
	ID            string         `json:"id"`
	Source        WatchSource    `json:"source"`
	Symbol        string         `json:"symbol"`
	TokenAddress  string         `json:"token_address,omitempty"`
	Slug          string         `json:"slug,omitempty"`
	Telegram      string         `json:"telegram,omitempty"`
	ApprovedEarly bool           `json:"approved_early"`
	Buyers        map[string]int `json:"buyers,omitempty"` // early-mode holders
	CreatedAt     time.Time      `json:"created_at"`
}

// Validate checks the entry invariants.
func (w *WatchEntry) Validate() error {
	if strings.TrimSpace(w.TokenAddress) == "" && strings.TrimSpace(w.Slug) == "" {
		return ErrWatchIdentity
	}
	return nil
}

// EarlyTrackable reports whether the entry should be polled in early mode.
func (w *WatchEntry) EarlyTrackable() bool {
	return w.Source == WatchBlum && w.ApprovedEarly && w.TokenAddress != ""
}

// Clone returns a deep copy safe to hand out of the registry.
func (w *WatchEntry) Clone() *WatchEntry {
	if w == nil {
		return nil
	}
	c := *w
	if w.Buyers != nil {
		c.Buyers = make(map[string]int, len(w.Buyers))
		for k, v := range w.Buyers {
			c.Buyers[k] = v
		}
	}
	return &c
}
