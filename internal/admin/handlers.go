package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage"
)

// Response is the JSON envelope of every operator endpoint.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{OK: true, Data: data})
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Error: msg})
}

// fail maps registry and storage errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, state.ErrPairExists):
		abort(c, http.StatusConflict, err.Error())
	case errors.Is(err, state.ErrPairNotFound), errors.Is(err, state.ErrWatchMissing):
		abort(c, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		abort(c, http.StatusInternalServerError, err.Error())
	}
}

// persist flushes registry changes. A failed flush keeps the registry dirty
// and is retried by the next poll cycle, so it is logged rather than returned.
func (s *Server) persist(c *gin.Context) {
	if err := s.registry.Flush(c.Request.Context()); err != nil {
		s.logger.Warn("registry flush failed", zap.Error(err))
	}
	s.onChange()
}

// --- pairs ---

type pairRequest struct {
	ID           string `json:"id" binding:"required"`
	Symbol       string `json:"symbol"`
	TokenAddress string `json:"token_address" binding:"required"`
	Dex          string `json:"dex"`
	BaseSide     *int   `json:"base_side"` // 0 or 1; omitted means resolve later
	Label        string `json:"label"`
	Telegram     string `json:"telegram"`
}

func (s *Server) listPairs(c *gin.Context) {
	dex := domain.ParseDexKind(c.Query("dex"))
	ok(c, http.StatusOK, s.registry.Pairs(dex))
}

func (s *Server) addPair(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	p := &domain.TrackedPair{
		ID:           strings.TrimSpace(req.ID),
		Symbol:       req.Symbol,
		TokenAddress: strings.TrimSpace(req.TokenAddress),
		Dex:          domain.ParseDexKind(req.Dex),
		Label:        req.Label,
		Telegram:     req.Telegram,
	}
	if req.BaseSide != nil {
		switch *req.BaseSide {
		case 0:
			p.BaseSide = domain.BaseSide0
		case 1:
			p.BaseSide = domain.BaseSide1
		default:
			abort(c, http.StatusBadRequest, "base_side must be 0 or 1")
			return
		}
	}
	if err := s.registry.AddPair(p); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	stored, _ := s.registry.Pair(p.ID)
	ok(c, http.StatusCreated, stored)
}

func (s *Server) deletePair(c *gin.Context) {
	if err := s.registry.RemovePair(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, nil)
}

func (s *Server) setPairTelegram(c *gin.Context) {
	var req struct {
		Telegram string `json:"telegram"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.registry.SetPairTelegram(c.Param("id"), strings.TrimSpace(req.Telegram)); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	p, _ := s.registry.Pair(c.Param("id"))
	ok(c, http.StatusOK, p)
}

func (s *Server) clearBaseSide(c *gin.Context) {
	if err := s.registry.ClearBaseSide(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, nil)
}

// --- watch ---

type watchRequest struct {
	Source        string  `json:"source"`
	Symbol        *string `json:"symbol"`
	TokenAddress  *string `json:"token_address"`
	Slug          *string `json:"slug"`
	Telegram      *string `json:"telegram"`
	ApprovedEarly *bool   `json:"approved_early"`
}

func (r *watchRequest) apply(w *domain.WatchEntry) {
	if r.Source != "" {
		w.Source = domain.WatchSource(strings.ToLower(r.Source))
	}
	if r.Symbol != nil {
		w.Symbol = strings.ToUpper(strings.TrimSpace(*r.Symbol))
	}
	if r.TokenAddress != nil {
		w.TokenAddress = strings.TrimSpace(*r.TokenAddress)
	}
	if r.Slug != nil {
		w.Slug = strings.TrimSpace(*r.Slug)
	}
	if r.Telegram != nil {
		w.Telegram = strings.TrimSpace(*r.Telegram)
	}
	if r.ApprovedEarly != nil {
		w.ApprovedEarly = *r.ApprovedEarly
	}
}

func (s *Server) listWatch(c *gin.Context) {
	ok(c, http.StatusOK, s.registry.Watches())
}

func (s *Server) addWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	w := &domain.WatchEntry{}
	req.apply(w)
	stored, err := s.registry.AddWatch(w)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusCreated, stored)
}

func (s *Server) updateWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	w, err := s.registry.UpdateWatch(c.Param("id"), req.apply)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, w)
}

func (s *Server) approveWatch(c *gin.Context) {
	approved := true
	if v := c.Query("approved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			abort(c, http.StatusBadRequest, "approved must be a boolean")
			return
		}
		approved = b
	}
	w, err := s.registry.ApproveWatch(c.Param("id"), approved)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, w)
}

func (s *Server) deleteWatch(c *gin.Context) {
	if err := s.registry.RemoveWatch(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, nil)
}

// --- ranks & leaderboard ---

func (s *Server) listRanks(c *gin.Context) {
	ok(c, http.StatusOK, s.registry.ForcedRanks())
}

func (s *Server) setRank(c *gin.Context) {
	var req struct {
		Rank int `json:"rank" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.registry.SetForcedRank(c.Param("symbol"), req.Rank); err != nil {
		fail(c, err)
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, s.registry.ForcedRanks())
}

func (s *Server) clearRank(c *gin.Context) {
	if !s.registry.ClearForcedRank(c.Param("symbol")) {
		abort(c, http.StatusNotFound, "no forced rank for "+strings.ToUpper(c.Param("symbol")))
		return
	}
	s.persist(c)
	ok(c, http.StatusOK, s.registry.ForcedRanks())
}

type leaderboardRef struct {
	Chat      string `json:"chat"`
	MessageID int    `json:"message_id"`
}

func (s *Server) createLeaderboard(c *gin.Context) {
	if s.leaderboard == nil {
		abort(c, http.StatusServiceUnavailable, "leaderboard disabled")
		return
	}
	chat, id, err := s.leaderboard.Create(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, leaderboardRef{Chat: chat, MessageID: id})
}

func (s *Server) setLeaderboard(c *gin.Context) {
	var req leaderboardRef
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.MessageID <= 0 {
		abort(c, http.StatusBadRequest, "message_id must be positive")
		return
	}
	s.registry.SetLeaderboardMessage(strings.TrimSpace(req.Chat), req.MessageID)
	s.persist(c)
	ok(c, http.StatusOK, req)
}

// --- status ---

// StatusResponse is the payload of /status.
type StatusResponse struct {
	Status      string         `json:"status"`
	Uptime      string         `json:"uptime"`
	Pairs       int            `json:"pairs"`
	Watch       int            `json:"watch"`
	ForcedRanks int            `json:"forced_ranks"`
	Leaderboard leaderboardRef `json:"leaderboard"`
	TONUSD      *float64       `json:"ton_usd,omitempty"`
	Dirty       bool           `json:"dirty"`
}

func (s *Server) status(c *gin.Context) {
	pairs, watch := s.registry.Sizes()
	chat, msgID := s.registry.LeaderboardMessage()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      s.now().Sub(s.started).Round(time.Second).String(),
		Pairs:       pairs,
		Watch:       watch,
		ForcedRanks: len(s.registry.ForcedRanks()),
		Leaderboard: leaderboardRef{Chat: chat, MessageID: msgID},
		Dirty:       s.registry.Dirty(),
	}
	if s.prices != nil {
		if p, found := s.prices.Cached(); found {
			resp.TONUSD = &p
		}
	}
	ok(c, http.StatusOK, resp)
}

// buyStats aggregates dispatched buys. Query: since (duration, default 24h)
// and limit (default 20).
func (s *Server) buyStats(c *gin.Context) {
	if s.events == nil {
		abort(c, http.StatusServiceUnavailable, "buy event log disabled")
		return
	}
	window := 24 * time.Hour
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			abort(c, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		window = d
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	stats, err := s.events.Summary(c.Request.Context(), s.now().Add(-window), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}
