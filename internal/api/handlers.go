package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantgens/quantgens-server/internal/playground"
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleAPIHealthStatus reports provider configuration and cache statistics
func (s *Server) handleAPIHealthStatus(c *gin.Context) {
	polygonHits, polygonMisses, polygonRate := s.marketData.CacheStats()
	newsHits, newsMisses, newsRate := s.news.CacheStats()
	feedHits, feedMisses, feedRate := s.feed.CacheStats()

	successResponse(c, gin.H{
		"polygon": gin.H{
			"configured": s.marketData.IsConfigured(),
			"cache":      cacheStatsJSON(polygonHits, polygonMisses, polygonRate),
		},
		"exa": gin.H{
			"configured": s.news.IsConfigured(),
			"cache":      cacheStatsJSON(newsHits, newsMisses, newsRate),
		},
		"signals": gin.H{
			"cache": cacheStatsJSON(feedHits, feedMisses, feedRate),
		},
		"websocket_clients": WebSocketClientCount(),
	})
}

func cacheStatsJSON(hits, misses int64, hitRate float64) gin.H {
	return gin.H{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	}
}

// handleGetStock returns the latest quote for a ticker
func (s *Server) handleGetStock(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	if ticker == "" {
		errorResponse(c, http.StatusBadRequest, "ticker query parameter is required")
		return
	}

	quote := s.marketData.GetQuote(c.Request.Context(), ticker)
	if quote == nil {
		if !s.marketData.IsConfigured() {
			errorResponse(c, http.StatusServiceUnavailable, "market data provider is not configured")
			return
		}
		errorResponse(c, http.StatusBadGateway, "no data available for "+ticker)
		return
	}

	successResponse(c, quote)
}

// handleGetMarket returns the major-index basket
func (s *Server) handleGetMarket(c *gin.Context) {
	indices := s.marketData.GetMarketIndices(c.Request.Context())
	if len(indices) == 0 {
		errorResponse(c, http.StatusInternalServerError, "could not fetch market data")
		return
	}

	successResponse(c, gin.H{"indices": indices})
}

// handleSearchTickers returns ticker symbol matches for a search string
func (s *Server) handleSearchTickers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		errorResponse(c, http.StatusBadRequest, "query parameter is required")
		return
	}

	matches := s.marketData.SearchTickers(c.Request.Context(), query)
	successResponse(c, gin.H{"results": matches})
}

type newsRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
}

// handleGetNews searches recent news for a query
func (s *Server) handleGetNews(c *gin.Context) {
	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		errorResponse(c, http.StatusBadRequest, "query is required")
		return
	}
	limit := req.NumResults
	if limit < 1 || limit > 10 {
		limit = 5
	}

	articles := s.news.SearchNews(c.Request.Context(), req.Query, limit)
	successResponse(c, gin.H{
		"query":    req.Query,
		"articles": articles,
	})
}

// handleGetResearch returns research-oriented articles for a company
func (s *Server) handleGetResearch(c *gin.Context) {
	company := strings.TrimSpace(c.Query("company"))
	if company == "" {
		errorResponse(c, http.StatusBadRequest, "company parameter is required")
		return
	}

	articles := s.news.GetCompanyResearch(c.Request.Context(), company)
	successResponse(c, gin.H{
		"company":  company,
		"articles": articles,
	})
}

// handleGetSignals returns the watchlist signal batch
func (s *Server) handleGetSignals(c *gin.Context) {
	result := s.feed.Get(c.Request.Context())
	successResponse(c, result)
}

// handleListRuns returns stored playground runs, newest first
func (s *Server) handleListRuns(c *gin.Context) {
	successResponse(c, gin.H{"runs": s.runs.List()})
}

type createRunRequest struct {
	Model      string            `json:"model"`
	Parameters playground.Params `json:"parameters"`
}

// handleCreateRun simulates and stores a new playground run
func (s *Server) handleCreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.runs.Create(req.Model, req.Parameters)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	successResponse(c, run)
}

// handleDeleteRun deletes a playground run by ID
func (s *Server) handleDeleteRun(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		errorResponse(c, http.StatusBadRequest, "run ID required")
		return
	}

	if !s.runs.Delete(id) {
		errorResponse(c, http.StatusNotFound, "run not found")
		return
	}

	successResponse(c, gin.H{"deleted": id})
}
