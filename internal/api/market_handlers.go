package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"options-desk/internal/models"
	"options-desk/pkg/utils"
)

func pathIndex(c *gin.Context) (models.IndexName, bool) {
	index := models.IndexName(c.Param("index"))
	if !index.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "index must be NIFTY or SENSEX"})
		return "", false
	}
	return index, true
}

// handleStrikes lists available strikes for an index, optionally
// filtered by ?expiry=YYYY-MM-DD.
func (s *Server) handleStrikes(c *gin.Context) {
	index, ok := pathIndex(c)
	if !ok {
		return
	}

	var expiry time.Time
	if raw := c.Query("expiry"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "expiry must be YYYY-MM-DD"})
			return
		}
		expiry = parsed
	}

	strikes := s.broker.Strikes(index, expiry)
	if strikes == nil {
		strikes = []float64{}
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "strikes": strikes, "lot_size": index.LotSize()})
}

// handleExpiries lists contract expiries for an index from the broker
// instrument dump.
func (s *Server) handleExpiries(c *gin.Context) {
	index, ok := pathIndex(c)
	if !ok {
		return
	}

	expiries := s.broker.Expiries(index)
	out := make([]string, 0, len(expiries))
	for _, e := range expiries {
		out = append(out, e.Format("2006-01-02"))
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "expiries": out})
}

func (s *Server) handleSpot(c *gin.Context) {
	index, ok := pathIndex(c)
	if !ok {
		return
	}

	// Prefer the live feed, fall back to a broker quote
	if price := s.lookupLivePrice(c, index.SpotSymbol()); price != nil {
		c.JSON(http.StatusOK, gin.H{"index": index, "price": price.Price, "timestamp": price.Timestamp, "source": "feed"})
		return
	}

	price, err := s.broker.SpotPrice(c.Request.Context(), index)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "price": price, "timestamp": time.Now(), "source": "quote"})
}

// handleOptionPrice quotes a single contract identified by query
// params strike, expiry and option_type.
func (s *Server) handleOptionPrice(c *gin.Context) {
	index, ok := pathIndex(c)
	if !ok {
		return
	}

	var strike float64
	if err := bindQueryFloat(c, "strike", &strike); err != nil {
		return
	}

	expiry, err := parseDate(c.Query("expiry"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "expiry must be YYYY-MM-DD"})
		return
	}

	optType := models.OptionType(c.Query("option_type"))
	if !optType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "option_type must be CE or PE"})
		return
	}

	// Prefer the live feed price for the contract symbol
	if inst, found := s.broker.FindOption(index, strike, expiry, optType); found {
		if price := s.lookupLivePrice(c, inst.Symbol); price != nil {
			c.JSON(http.StatusOK, gin.H{"symbol": inst.Symbol, "price": price.Price, "timestamp": price.Timestamp, "source": "feed"})
			return
		}
	}

	price, err := s.broker.OptionPrice(c.Request.Context(), index, strike, expiry, optType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price, "timestamp": time.Now(), "source": "quote"})
}

func (s *Server) handleLivePrice(c *gin.Context) {
	symbol := c.Param("symbol")
	price := s.lookupLivePrice(c, symbol)
	if price == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "no live price for symbol"})
		return
	}
	c.JSON(http.StatusOK, price)
}

// handleAllLivePrices dumps the latest cached price for every symbol
// the feed has seen, keyed by trading symbol.
func (s *Server) handleAllLivePrices(c *gin.Context) {
	prices, err := s.cache.Snapshot(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(prices), "prices": prices})
}

// handleHistoricalExpiries discovers expiries with recorded data in
// the tick store, on or after ?date= (default today).
func (s *Server) handleHistoricalExpiries(c *gin.Context) {
	index, ok := pathIndex(c)
	if !ok {
		return
	}

	onOrAfter := time.Now().In(utils.IndiaLocation)
	if raw := c.Query("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "date must be YYYY-MM-DD"})
			return
		}
		onOrAfter = parsed
	}

	expiries, err := s.ticks.AvailableExpiries(c.Request.Context(), index, onOrAfter)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]string, 0, len(expiries))
	for _, e := range expiries {
		out = append(out, e.Format("2006-01-02"))
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "expiries": out})
}

func (s *Server) handleFeedStart(c *gin.Context) {
	if err := s.feed.Start(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.feed.Status())
}

func (s *Server) handleFeedStop(c *gin.Context) {
	if err := s.feed.Stop(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.feed.Status())
}

func (s *Server) handleFeedStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.feed.Status())
}

func bindQueryFloat(c *gin.Context, name string, out *float64) error {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": name + " is required"})
		return fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": name + " must be a positive number"})
		return fmt.Errorf("invalid %s", name)
	}
	*out = v
	return nil
}
