package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"leapScope/internal/aggregate"
	"leapScope/internal/cache"
	"leapScope/internal/model"
	"leapScope/internal/pipeline"
	"leapScope/internal/price"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200
)

type leaderRow struct {
	Rank int `json:"rank"`
	aggregate.Row
	VolumeUSD string `json:"volume_usd,omitempty"`
	ProfitUSD string `json:"profit_usd,omitempty"`
}

type leaderboardResponse struct {
	OK     bool          `json:"ok"`
	Rows   []leaderRow   `json:"rows"`
	EthUSD string        `json:"eth_usd,omitempty"`
	Meta   pipeline.Meta `json:"meta"`
}

type profileGamesResponse struct {
	OK      bool                  `json:"ok"`
	Address string                `json:"address"`
	Totals  *aggregate.Row        `json:"totals,omitempty"`
	Recent  []pipeline.RecentGame `json:"recent"`
	EthUSD  string                `json:"eth_usd,omitempty"`
	Meta    pipeline.Meta         `json:"meta"`
}

type profileReferralsResponse struct {
	OK      bool           `json:"ok"`
	Address string         `json:"address"`
	Totals  *aggregate.Row `json:"totals,omitempty"`
	EthUSD  string         `json:"eth_usd,omitempty"`
	Meta    pipeline.Meta  `json:"meta"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"chains": s.opts.Chains,
	})
}

func (s *Server) leaderboard(c *gin.Context) {
	tf, err := pipeline.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	key := cache.Key("leaderboard", string(tf), "", strings.Join(s.opts.Chains, ","), strconv.Itoa(limit))
	if payload, ok := s.cacheGet(key); ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, payload)
		return
	}

	result, err := s.runner.Run(c.Request.Context(), pipeline.Request{
		Kind:      pipeline.KindLeaderboard,
		Timeframe: tf,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !result.OK {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "all chains failed", "meta": result.Meta})
		return
	}

	usd := s.usdQuote(c)

	rows := result.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]leaderRow, 0, len(rows))
	for i, row := range rows {
		out = append(out, leaderRow{
			Rank:      i + 1,
			Row:       row,
			VolumeUSD: price.Annotate(row.Volume, usd),
			ProfitUSD: price.Annotate(row.Profit, usd),
		})
	}

	payload := leaderboardResponse{OK: true, Rows: out, EthUSD: usdString(usd), Meta: result.Meta}
	s.cacheSet(key, payload, tf)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, payload)
}

func (s *Server) profileGames(c *gin.Context) {
	address, ok := model.CoerceAddress(c.Param("address"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed address"})
		return
	}
	tf, err := pipeline.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	key := cache.Key("profile_games", string(tf), address, strings.Join(s.opts.Chains, ","), "")
	if payload, ok := s.cacheGet(key); ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, payload)
		return
	}

	result, err := s.runner.Run(c.Request.Context(), pipeline.Request{
		Kind:      pipeline.KindProfileGames,
		Timeframe: tf,
		Address:   address,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !result.OK {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "all chains failed", "meta": result.Meta})
		return
	}

	usd := s.usdQuote(c)
	payload := profileGamesResponse{
		OK:      true,
		Address: address,
		Totals:  findRow(result.Rows, address),
		Recent:  result.Recent,
		EthUSD:  usdString(usd),
		Meta:    result.Meta,
	}
	s.cacheSet(key, payload, tf)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, payload)
}

func (s *Server) profileReferrals(c *gin.Context) {
	address, ok := model.CoerceAddress(c.Param("address"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed address"})
		return
	}

	// Referral totals are lifetime values; no timeframe parameter.
	key := cache.Key("profile_referrals", string(pipeline.TimeframeAll), address, strings.Join(s.opts.Chains, ","), "")
	if payload, ok := s.cacheGet(key); ok {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, payload)
		return
	}

	result, err := s.runner.Run(c.Request.Context(), pipeline.Request{
		Kind:      pipeline.KindProfileReferrals,
		Timeframe: pipeline.TimeframeAll,
		Address:   address,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !result.OK {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "all chains failed", "meta": result.Meta})
		return
	}

	usd := s.usdQuote(c)
	payload := profileReferralsResponse{
		OK:      true,
		Address: address,
		Totals:  findRow(result.Rows, address),
		EthUSD:  usdString(usd),
		Meta:    result.Meta,
	}
	s.cacheSet(key, payload, pipeline.TimeframeAll)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, payload)
}

func (s *Server) cacheGet(key string) (interface{}, bool) {
	if s.store == nil {
		return nil, false
	}
	return s.store.Get(key)
}

func (s *Server) cacheSet(key string, payload interface{}, tf pipeline.Timeframe) {
	if s.store == nil {
		return
	}
	s.store.Set(key, payload, cache.TTLFor(tf))
}

func (s *Server) usdQuote(c *gin.Context) decimal.Decimal {
	if s.quoter == nil {
		return decimal.Zero
	}
	quote, err := s.quoter.USD(c.Request.Context())
	if err != nil {
		s.logger.Debug("usd quote unavailable", zap.Error(err))
		return decimal.Zero
	}
	return quote
}

func usdString(usd decimal.Decimal) string {
	if usd.IsZero() {
		return ""
	}
	return usd.StringFixed(2)
}

func findRow(rows []aggregate.Row, address string) *aggregate.Row {
	for i := range rows {
		if rows[i].Address == address {
			return &rows[i]
		}
	}
	return nil
}
