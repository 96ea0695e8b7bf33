package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbuy-alerts/internal/domain"
	"tonbuy-alerts/internal/state"
	"tonbuy-alerts/internal/storage/memory"
)

const testToken = "s3cret"

type stubLeaderboard struct{ created int }

func (l *stubLeaderboard) Create(context.Context) (string, int, error) {
	l.created++
	return "-100", 77, nil
}

type harness struct {
	srv     *Server
	reg     *state.Registry
	store   *memory.DocumentStore
	events  *memory.BuyEventStore
	changes int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: memory.NewDocumentStore(), events: memory.NewBuyEventStore()}
	h.reg = state.NewRegistry(h.store, nil)
	h.srv = New(Options{
		Registry:       h.reg,
		Events:         h.events,
		Leaderboard:    &stubLeaderboard{},
		OnPairsChanged: func() { h.changes++ },
		Token:          testToken,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)

	var resp Response
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestAuth(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/pairs", nil)
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	closed := New(Options{Registry: h.reg})
	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	closed.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPairs_AddListDelete(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/pairs", map[string]any{
		"id": "EQpool", "symbol": "frog", "token_address": "EQfrog", "dex": "dedust",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, h.changes)

	p, ok := h.reg.Pair("EQpool")
	require.True(t, ok)
	assert.Equal(t, "FROG", p.Symbol)
	assert.Equal(t, domain.DexDeDust, p.Dex)
	assert.Equal(t, domain.BaseSideUnknown, p.BaseSide)

	var persisted map[string]*domain.TrackedPair
	require.NoError(t, h.store.Load(context.Background(), state.PairsNamespace, &persisted))
	assert.Contains(t, persisted, "EQpool")

	rec, _ = h.do(t, http.MethodPost, "/pairs", map[string]any{"id": "EQpool", "token_address": "EQfrog"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/pairs", map[string]any{"id": "EQx", "token_address": "EQx", "base_side": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/pairs", map[string]any{"symbol": "NOID"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := h.do(t, http.MethodGet, "/pairs?dex=dedust", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, _ = h.do(t, http.MethodPut, "/pairs/EQpool/telegram", map[string]string{"telegram": "https://t.me/frog"})
	require.Equal(t, http.StatusOK, rec.Code)
	p, _ = h.reg.Pair("EQpool")
	assert.Equal(t, "https://t.me/frog", p.Telegram)

	rec, _ = h.do(t, http.MethodDelete, "/pairs/EQpool", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodDelete, "/pairs/EQpool", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatch_AddApproveUpdate(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/watch", map[string]any{"source": "blum", "symbol": "cat"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "token address or slug required")

	rec, _ = h.do(t, http.MethodPost, "/watch", map[string]any{"source": "blum", "symbol": "cat", "slug": "cat-coin"})
	require.Equal(t, http.StatusCreated, rec.Code)

	watches := h.reg.Watches()
	require.Len(t, watches, 1)
	id := watches[0].ID
	assert.Equal(t, "CAT", watches[0].Symbol)
	assert.Equal(t, domain.WatchBlum, watches[0].Source)

	rec, _ = h.do(t, http.MethodPatch, "/watch/"+id, map[string]any{"token_address": "EQcat"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/watch/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	early := h.reg.EarlyWatches()
	require.Len(t, early, 1)
	assert.Equal(t, "EQcat", early[0].TokenAddress)

	rec, _ = h.do(t, http.MethodPost, "/watch/"+id+"/approve?approved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.reg.EarlyWatches())

	rec, _ = h.do(t, http.MethodPatch, "/watch/missing", map[string]any{"slug": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodDelete, "/watch/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.reg.Watches())
}

func TestRanksAndLeaderboard(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPut, "/ranks/frog", map[string]int{"rank": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"FROG": 2}, h.reg.ForcedRanks())

	rec, _ = h.do(t, http.MethodPut, "/ranks/frog", map[string]int{"rank": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodDelete, "/ranks/FROG", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodDelete, "/ranks/FROG", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/leaderboard", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = h.do(t, http.MethodPut, "/leaderboard", map[string]any{"chat": "-100123", "message_id": 42})
	require.Equal(t, http.StatusOK, rec.Code)
	chat, id := h.reg.LeaderboardMessage()
	assert.Equal(t, "-100123", chat)
	assert.Equal(t, 42, id)
}

func TestStatusAndBuyStats(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.reg.AddPair(&domain.TrackedPair{ID: "EQpool", TokenAddress: "EQfrog", Symbol: "FROG"}))
	require.NoError(t, h.events.Insert(context.Background(), &domain.BuyEvent{
		PairID: "EQpool", Symbol: "FROG", TokenAddress: "EQfrog", Buyer: "EQbuyer", TxHash: "abc",
		BaseAmount: decimal.NewFromInt(5), TokenAmount: decimal.NewFromInt(100),
		Source: domain.SourceDeDust, DetectedAt: time.Now(),
	}))

	rec, resp := h.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), status["pairs"])

	rec, resp = h.do(t, http.MethodGet, "/stats/buys?since=1h&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, stats, 1)

	rec, _ = h.do(t, http.MethodGet, "/stats/buys?since=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
