package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"options-desk/internal/auth"
	"options-desk/internal/backtest"
	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

type portfolioRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type legRequest struct {
	IndexName  models.IndexName  `json:"index_name" binding:"required"`
	Strike     float64           `json:"strike" binding:"required"`
	OptionType models.OptionType `json:"option_type" binding:"required"`
	Expiry     string            `json:"expiry" binding:"required"`
	Action     models.LegAction  `json:"action" binding:"required"`
	Lots       int               `json:"lots" binding:"required"`
}

func (r legRequest) toLeg(portfolioID int64) (*models.PortfolioLeg, error) {
	expiry, err := parseDate(r.Expiry)
	if err != nil {
		return nil, apperrors.NewValidationError("expiry", r.Expiry, "expected YYYY-MM-DD")
	}

	leg := &models.PortfolioLeg{
		PortfolioID: portfolioID,
		IndexName:   r.IndexName,
		Strike:      r.Strike,
		OptionType:  r.OptionType,
		Expiry:      expiry,
		Action:      r.Action,
		Lots:        r.Lots,
	}
	if err := leg.Validate(); err != nil {
		return nil, apperrors.NewValidationError("leg", "", err.Error())
	}
	return leg, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (s *Server) handleCreatePortfolio(c *gin.Context) {
	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	p := &models.Portfolio{
		UserID:      auth.UserID(c),
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.store.CreatePortfolio(c.Request.Context(), p); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListPortfolios(c *gin.Context) {
	portfolios, err := s.store.ListPortfolios(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if portfolios == nil {
		portfolios = []models.Portfolio{}
	}
	c.JSON(http.StatusOK, portfolios)
}

func (s *Server) handleGetPortfolio(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleUpdatePortfolio(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	p, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	p.Name = req.Name
	p.Description = req.Description
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.store.UpdatePortfolio(c.Request.Context(), p); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePortfolio(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.store.DeletePortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddLeg(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Ownership check before writing
	if _, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}

	var req legRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	leg, err := req.toLeg(id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.store.AddPortfolioLeg(c.Request.Context(), leg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, leg)
}

func (s *Server) handleListLegs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}

	legs, err := s.store.GetPortfolioLegs(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if legs == nil {
		legs = []models.PortfolioLeg{}
	}
	c.JSON(http.StatusOK, legs)
}

func (s *Server) handleUpdateLeg(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	legID, ok := pathID(c, "legID")
	if !ok {
		return
	}

	if _, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}

	var req legRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	leg, err := req.toLeg(id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	leg.ID = legID

	if err := s.store.UpdatePortfolioLeg(c.Request.Context(), leg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, leg)
}

func (s *Server) handleDeleteLeg(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	legID, ok := pathID(c, "legID")
	if !ok {
		return
	}

	if _, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.store.DeletePortfolioLeg(c.Request.Context(), legID, id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type legPrice struct {
	Leg      models.PortfolioLeg `json:"leg"`
	Symbol   string              `json:"symbol,omitempty"`
	Price    *float64            `json:"price,omitempty"`
	Value    *decimal.Decimal    `json:"value,omitempty"`
	PricedAt *time.Time          `json:"priced_at,omitempty"`
}

type portfolioPricesResponse struct {
	PortfolioID int64            `json:"portfolio_id"`
	Legs        []legPrice       `json:"legs"`
	NetPremium  *decimal.Decimal `json:"net_premium,omitempty"`
	Complete    bool             `json:"complete"`
}

// handlePortfolioPrices returns the saved legs with their latest live
// prices and the aggregated net premium. Legs without a live price
// leave the aggregate incomplete.
func (s *Server) handlePortfolioPrices(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := s.store.GetPortfolio(c.Request.Context(), id, auth.UserID(c)); err != nil {
		s.writeError(c, err)
		return
	}

	legs, err := s.store.GetPortfolioLegs(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := portfolioPricesResponse{PortfolioID: id, Complete: true, Legs: make([]legPrice, 0, len(legs))}
	total := decimal.Zero

	for _, leg := range legs {
		lp := legPrice{Leg: leg}

		if inst, found := s.broker.FindOption(leg.IndexName, leg.Strike, leg.Expiry, leg.OptionType); found {
			lp.Symbol = inst.Symbol
		}

		price := s.lookupLivePrice(c, lp.Symbol)
		if price == nil {
			resp.Complete = false
			resp.Legs = append(resp.Legs, lp)
			continue
		}

		value := backtest.LegWeight(leg.Leg()).Mul(decimal.NewFromFloat(price.Price))
		lp.Price = &price.Price
		lp.Value = &value
		lp.PricedAt = &price.Timestamp
		total = total.Add(value)
		resp.Legs = append(resp.Legs, lp)
	}

	if resp.Complete && len(legs) > 0 {
		resp.NetPremium = &total
	}

	c.JSON(http.StatusOK, resp)
}

// lookupLivePrice checks the price cache first, then the persisted
// live_prices table.
func (s *Server) lookupLivePrice(c *gin.Context, symbol string) *models.LivePrice {
	if symbol == "" {
		return nil
	}
	if price, err := s.cache.Get(c.Request.Context(), symbol); err == nil {
		return price
	}
	if price, err := s.store.GetLivePrice(c.Request.Context(), symbol); err == nil {
		return price
	}
	return nil
}
