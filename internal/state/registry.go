package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/observability"
	"tonbuy-alerts/internal/storage"
)

// Registry document namespaces.
const (
	PairsNamespace = "pairs"
	WatchNamespace = "watch"
	StateNamespace = "state"
)

// Registry errors.
var (
	ErrPairExists   = errors.New("pair already tracked")
	ErrPairNotFound = errors.New("pair not found")
	ErrWatchMissing = errors.New("watch entry not found")
)

// serviceState is the small document holding operator-controlled settings.
type serviceState struct {
	ForcedRanks      map[string]int `json:"forced_ranks,omitempty"`
	LeaderboardChat  string         `json:"leaderboard_chat,omitempty"`
	LeaderboardMsgID int            `json:"leaderboard_message_id,omitempty"`
}

// Registry owns the tracked pairs, pending watch entries and operator state.
// Readers receive clones; all mutation goes through Registry methods.
type Registry struct {
	store  storage.DocumentStore
	logger *zap.Logger
	nowFn  func() time.Time

	// flushMu orders snapshot-and-save so an older snapshot never lands
	// after a newer one.
	flushMu sync.Mutex

	mu    sync.RWMutex
	pairs map[string]*domain.TrackedPair
	watch map[string]*domain.WatchEntry
	svc   serviceState
	dirty map[string]bool
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store storage.DocumentStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger.Named("registry"),
		nowFn:  time.Now,
		pairs:  make(map[string]*domain.TrackedPair),
		watch:  make(map[string]*domain.WatchEntry),
		svc:    serviceState{ForcedRanks: make(map[string]int)},
		dirty:  make(map[string]bool),
	}
}

// Load reads all registry documents. Missing documents are treated as empty.
func (r *Registry) Load(ctx context.Context) error {
	pairs := make(map[string]*domain.TrackedPair)
	if err := r.load(ctx, PairsNamespace, &pairs); err != nil {
		return err
	}
	watch := make(map[string]*domain.WatchEntry)
	if err := r.load(ctx, WatchNamespace, &watch); err != nil {
		return err
	}
	svc := serviceState{}
	if err := r.load(ctx, StateNamespace, &svc); err != nil {
		return err
	}
	if svc.ForcedRanks == nil {
		svc.ForcedRanks = make(map[string]int)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = pairs
	r.watch = watch
	r.svc = svc
	r.updateGauges()
	return nil
}

func (r *Registry) load(ctx context.Context, ns string, dst any) error {
	err := r.store.Load(ctx, ns, dst)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("load %s: %w", ns, err)
}

// Flush persists every namespace changed since its last successful save.
// Failed namespaces stay dirty; the first error is returned.
func (r *Registry) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	docs := make(map[string]any)
	for ns := range r.dirty {
		switch ns {
		case PairsNamespace:
			m := make(map[string]*domain.TrackedPair, len(r.pairs))
			for k, p := range r.pairs {
				m[k] = p.Clone()
			}
			docs[ns] = m
		case WatchNamespace:
			m := make(map[string]*domain.WatchEntry, len(r.watch))
			for k, w := range r.watch {
				m[k] = w.Clone()
			}
			docs[ns] = m
		case StateNamespace:
			s := r.svc
			s.ForcedRanks = copyRanks(r.svc.ForcedRanks)
			docs[ns] = s
		}
		delete(r.dirty, ns)
	}
	r.mu.Unlock()

	var firstErr error
	for ns, doc := range docs {
		if err := r.store.Save(ctx, ns, doc); err != nil {
			observability.RecordPersistFailure(ns)
			r.logger.Warn("registry flush failed", zap.String("namespace", ns), zap.Error(err))
			r.mu.Lock()
			r.dirty[ns] = true
			r.mu.Unlock()
			if firstErr == nil {
				firstErr = fmt.Errorf("save %s: %w", ns, err)
			}
		}
	}
	return firstErr
}

// Dirty reports whether any namespace awaits persistence.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty) > 0
}

func (r *Registry) markDirty(ns string) {
	r.dirty[ns] = true
	r.updateGauges()
}

func (r *Registry) updateGauges() {
	observability.UpdateRegistrySizes(len(r.pairs), len(r.watch))
}

// --- pairs ---

// AddPair registers a new tracked pair. The symbol is upper-cased and a
// missing creation time is filled in.
func (r *Registry) AddPair(p *domain.TrackedPair) error {
	if p == nil || strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.TokenAddress) == "" {
		return fmt.Errorf("pair requires id and token address: %w", storage.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pairs[p.ID]; ok {
		return fmt.Errorf("%s: %w", p.ID, ErrPairExists)
	}
	r.pairs[p.ID] = r.preparePair(p)
	r.markDirty(PairsNamespace)
	return nil
}

func (r *Registry) preparePair(p *domain.TrackedPair) *domain.TrackedPair {
	c := p.Clone()
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	if !c.Dex.IsValid() {
		c.Dex = domain.DexStonFi
	}
	if !c.BaseSide.IsKnown() {
		c.BaseSide = domain.BaseSideUnknown
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.nowFn().UTC()
	}
	if c.Buyers == nil {
		c.Buyers = make(map[string]int)
	}
	return c
}

// RemovePair deletes a tracked pair.
func (r *Registry) RemovePair(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pairs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	delete(r.pairs, id)
	r.markDirty(PairsNamespace)
	return nil
}

// Pair returns a copy of the pair with the given id.
func (r *Registry) Pair(id string) (*domain.TrackedPair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pairs[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Pairs returns copies of the pairs on dex (all pairs when dex is empty),
// ordered by creation time then id.
func (r *Registry) Pairs(dex domain.DexKind) []*domain.TrackedPair {
	r.mu.RLock()
	out := make([]*domain.TrackedPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		if dex == domain.DexUnknown || p.Dex == dex {
			out = append(out, p.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindPairByToken returns the first pair trading token on dex.
func (r *Registry) FindPairByToken(token string, dex domain.DexKind) (*domain.TrackedPair, bool) {
	for _, p := range r.Pairs(dex) {
		if p.TokenAddress == token {
			return p, true
		}
	}
	return nil, false
}

// SetBaseSide caches the resolved base side for a pair. Unknown sides are ignored.
func (r *Registry) SetBaseSide(id string, side domain.BaseSide) error {
	if !side.IsKnown() {
		return nil
	}
	return r.updatePair(id, func(p *domain.TrackedPair) bool {
		if p.BaseSide == side {
			return false
		}
		p.BaseSide = side
		return true
	})
}

// ClearBaseSide forgets the cached base side so it is resolved again.
func (r *Registry) ClearBaseSide(id string) error {
	return r.updatePair(id, func(p *domain.TrackedPair) bool {
		if p.BaseSide == domain.BaseSideUnknown {
			return false
		}
		p.BaseSide = domain.BaseSideUnknown
		return true
	})
}

// SetPairTelegram stores the community link shown in alerts.
func (r *Registry) SetPairTelegram(id, link string) error {
	return r.updatePair(id, func(p *domain.TrackedPair) bool {
		if p.Telegram == link {
			return false
		}
		p.Telegram = link
		return true
	})
}

func (r *Registry) updatePair(id string, fn func(*domain.TrackedPair) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if fn(p) {
		r.markDirty(PairsNamespace)
	}
	return nil
}

// RecordPairBuyer increments the buy count for buyer on pair id and reports
// whether this was the buyer's first recorded buy.
func (r *Registry) RecordPairBuyer(id, buyer string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pairs[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", id, ErrPairNotFound)
	}
	if p.Buyers == nil {
		p.Buyers = make(map[string]int)
	}
	first := p.Buyers[buyer] == 0
	p.Buyers[buyer]++
	r.markDirty(PairsNamespace)
	return first, nil
}

// --- watch ---

// AddWatch validates and stores a new watch entry, assigning its id.
func (r *Registry) AddWatch(w *domain.WatchEntry) (*domain.WatchEntry, error) {
	if w == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}

	c := w.Clone()
	c.ID = uuid.NewString()
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.TokenAddress = strings.TrimSpace(c.TokenAddress)
	if c.Source == "" {
		c.Source = domain.WatchManual
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.nowFn().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.watch[c.ID] = c
	r.markDirty(WatchNamespace)
	return c.Clone(), nil
}

// Watch returns a copy of the entry with the given id.
func (r *Registry) Watch(id string) (*domain.WatchEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.watch[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Watches returns copies of all watch entries ordered by creation time then id.
func (r *Registry) Watches() []*domain.WatchEntry {
	r.mu.RLock()
	out := make([]*domain.WatchEntry, 0, len(r.watch))
	for _, w := range r.watch {
		out = append(out, w.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EarlyWatches returns approved blum entries eligible for early-mode polling.
func (r *Registry) EarlyWatches() []*domain.WatchEntry {
	var out []*domain.WatchEntry
	for _, w := range r.Watches() {
		if w.EarlyTrackable() {
			out = append(out, w)
		}
	}
	return out
}

// UpdateWatch applies fn to the stored entry. The result must still validate.
func (r *Registry) UpdateWatch(id string, fn func(*domain.WatchEntry)) (*domain.WatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watch[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrWatchMissing)
	}
	c := w.Clone()
	fn(c)
	c.ID = id
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}
	r.watch[id] = c
	r.markDirty(WatchNamespace)
	return c.Clone(), nil
}

// ApproveWatch toggles early-mode tracking for an entry.
func (r *Registry) ApproveWatch(id string, approved bool) (*domain.WatchEntry, error) {
	return r.UpdateWatch(id, func(w *domain.WatchEntry) { w.ApprovedEarly = approved })
}

// RemoveWatch deletes a watch entry.
func (r *Registry) RemoveWatch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watch[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrWatchMissing)
	}
	delete(r.watch, id)
	r.markDirty(WatchNamespace)
	return nil
}

// RecordWatchBuyer increments the early-mode buy count for buyer on entry id
// and reports whether this was the buyer's first recorded buy.
func (r *Registry) RecordWatchBuyer(id, buyer string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watch[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", id, ErrWatchMissing)
	}
	if w.Buyers == nil {
		w.Buyers = make(map[string]int)
	}
	first := w.Buyers[buyer] == 0
	w.Buyers[buyer]++
	r.markDirty(WatchNamespace)
	return first, nil
}

// Promote atomically turns a watch entry into a tracked pair. Early-mode
// buyers carry over so holders seen before listing stay existing holders.
// If the pool is already tracked only the watch entry is removed.
func (r *Registry) Promote(watchID string, p *domain.TrackedPair) (*domain.TrackedPair, error) {
	if p == nil || p.ID == "" || p.TokenAddress == "" {
		return nil, fmt.Errorf("pair requires id and token address: %w", storage.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watch[watchID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", watchID, ErrWatchMissing)
	}

	existing, tracked := r.pairs[p.ID]
	if !tracked {
		existing = r.preparePair(p)
		for buyer, n := range w.Buyers {
			existing.Buyers[buyer] += n
		}
		r.pairs[p.ID] = existing
		r.dirty[PairsNamespace] = true
	}
	delete(r.watch, watchID)
	r.markDirty(WatchNamespace)
	return existing.Clone(), nil
}

// --- operator state ---

// SetForcedRank pins symbol to rank. Non-positive ranks are rejected.
func (r *Registry) SetForcedRank(symbol string, rank int) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || rank <= 0 {
		return storage.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.svc.ForcedRanks[symbol] = rank
	r.markDirty(StateNamespace)
	return nil
}

// ClearForcedRank removes a pinned rank and reports whether one existed.
func (r *Registry) ClearForcedRank(symbol string) bool {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.svc.ForcedRanks[symbol]; !ok {
		return false
	}
	delete(r.svc.ForcedRanks, symbol)
	r.markDirty(StateNamespace)
	return true
}

// ForcedRanks returns a copy of the pinned ranks.
func (r *Registry) ForcedRanks() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRanks(r.svc.ForcedRanks)
}

// LeaderboardMessage returns the chat and message id of the published leaderboard.
func (r *Registry) LeaderboardMessage() (string, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.svc.LeaderboardChat, r.svc.LeaderboardMsgID
}

// SetLeaderboardMessage stores the leaderboard message to edit on refresh.
func (r *Registry) SetLeaderboardMessage(chat string, msgID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.svc.LeaderboardChat == chat && r.svc.LeaderboardMsgID == msgID {
		return
	}
	r.svc.LeaderboardChat = chat
	r.svc.LeaderboardMsgID = msgID
	r.markDirty(StateNamespace)
}

// Sizes returns the number of tracked pairs and watch entries.
func (r *Registry) Sizes() (pairs, watch int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs), len(r.watch)
}

func copyRanks(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
